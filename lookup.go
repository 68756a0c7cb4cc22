package pidcalib

import (
	"encoding/json"
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// RefParticle binds one particle branch prefix of the reference sample to
// the calibration particle type and PID cut whose efficiency histogram
// should be looked up for it.
type RefParticle struct {
	Prefix   string
	Particle string
	PIDCut   string
}

// ParseRefParticles decodes the JSON form {"Bach": ["K", "DLLK > 4"]}
// into a prefix-sorted list, so iteration order is stable across runs.
func ParseRefParticles(data string) ([]RefParticle, error) {
	var raw map[string][]string
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, configErrorf("parsing reference particles: %v", err)
	}
	prefixes := make([]string, 0, len(raw))
	for prefix := range raw {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	specs := make([]RefParticle, 0, len(raw))
	for _, prefix := range prefixes {
		fields := raw[prefix]
		if len(fields) != 2 {
			return nil, configErrorf("reference particle %q needs [particle, pid-cut], got %d fields",
				prefix, len(fields))
		}
		specs = append(specs, RefParticle{Prefix: prefix, Particle: fields[0], PIDCut: fields[1]})
	}
	if len(specs) == 0 {
		return nil, configErrorf("no reference particles given")
	}
	return specs, nil
}

// ParseBinVarMap decodes the JSON form {"P": "mom", "ETA": "Eta"} mapping
// binning variables to their branch names in the reference sample.
func ParseBinVarMap(data string) (map[string]string, error) {
	var binVars map[string]string
	if err := json.Unmarshal([]byte(data), &binVars); err != nil {
		return nil, configErrorf("parsing binning variable map: %v", err)
	}
	if len(binVars) == 0 {
		return nil, configErrorf("no binning variables given")
	}
	return binVars, nil
}

// ReferenceBranches returns the sorted, deduplicated reference-sample
// branches needed to look up efficiencies for all particle specs.
func ReferenceBranches(specs []RefParticle, binVars map[string]string) []string {
	seen := map[string]bool{}
	for _, spec := range specs {
		for binVar, branch := range binVars {
			seen[ReferenceBranchName(spec.Prefix, binVar, branch)] = true
		}
	}
	return sortedKeys(seen)
}

// ApplyEfficiencies assigns each reference event the product of the
// per-particle bin efficiencies, with relative uncertainties combined in
// quadrature. An out-of-range particle or one landing in an empty
// calibration bin poisons the whole event: both outputs become Sentinel
// regardless of the other particles. A particle with a valid efficiency
// but an uncomputable uncertainty keeps contributing to the efficiency
// product; only the event uncertainty becomes Sentinel. The returned
// series align with the batch rows and leave the input untouched.
func ApplyEfficiencies(batch *Batch, specs []RefParticle, binVars map[string]string,
	hists map[string]*EffHist) ([]float64, []float64, error) {

	type boundSpec struct {
		hist *EffHist
		cols [][]float64 // one column per axis, in axis order
	}
	bound := make([]boundSpec, len(specs))
	for si, spec := range specs {
		hist, ok := hists[spec.Prefix]
		if !ok {
			return nil, nil, configErrorf("no efficiency histogram for reference particle %q", spec.Prefix)
		}
		cols := make([][]float64, len(hist.Axes))
		for d, ax := range hist.Axes {
			branch, ok := binVars[ax.Name]
			if !ok {
				return nil, nil, configErrorf("no reference branch mapping for binning variable %q", ax.Name)
			}
			name := ReferenceBranchName(spec.Prefix, ax.Name, branch)
			col, ok := batch.Column(name)
			if !ok {
				return nil, nil, &UnknownVariableError{Name: name, Columns: batch.ColumnNames()}
			}
			cols[d] = col
		}
		bound[si] = boundSpec{hist: hist, cols: cols}
	}

	maxDims := 0
	for _, bs := range bound {
		if len(bs.cols) > maxDims {
			maxDims = len(bs.cols)
		}
	}

	effs := make([]float64, batch.Len())
	errs := make([]float64, batch.Len())
	coords := make([]float64, maxDims)
	for i := 0; i < batch.Len(); i++ {
		eff := 1.0
		relVar := 0.0
		valid := true
		errValid := true
		for _, bs := range bound {
			coords = coords[:len(bs.cols)]
			for d, col := range bs.cols {
				coords[d] = col[i]
			}
			pEff, pErr := bs.hist.Lookup(coords)
			if pEff == Sentinel {
				valid = false
				break
			}
			eff *= pEff
			if pErr == Sentinel {
				errValid = false
				continue
			}
			// pEff is never 0 here: a zero-efficiency bin carries a
			// Sentinel uncertainty.
			rel := pErr / pEff
			relVar += rel * rel
		}
		if !valid {
			effs[i] = Sentinel
			errs[i] = Sentinel
			continue
		}
		effs[i] = eff
		if errValid {
			errs[i] = eff * math.Sqrt(relVar)
		} else {
			errs[i] = Sentinel
		}
	}
	return effs, errs, nil
}

// AverageEff returns the mean of the valid (non-Sentinel) entries of an
// efficiency series and the number of invalid entries, logging the
// out-of-range fraction.
func AverageEff(effs []float64) (avg float64, invalid int) {
	valid := make([]float64, 0, len(effs))
	for _, e := range effs {
		if e != Sentinel {
			valid = append(valid, e)
		}
	}
	invalid = len(effs) - len(valid)
	if invalid > 0 {
		log.Printf("warning: events out of binning range: %d (%.2f%%)",
			invalid, 100*float64(invalid)/float64(len(effs)))
	}
	if len(valid) == 0 {
		return math.NaN(), invalid
	}
	return stat.Mean(valid, nil), invalid
}
