package pidcalib

import (
	"encoding/json"
	"log"
	"os"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// DefaultUniformBins is the bin count used when falling back to a uniform
// binning over the observed data range.
const DefaultUniformBins = 50

// sparseBinThreshold is the total bin count above which a warning about
// likely sparse or empty bins is logged.
const sparseBinThreshold = 5000

// Binning maps particle type and variable name to an ordered sequence of
// strictly increasing bin edges. N edges define N-1 bins.
type Binning map[string]map[string][]float64

// Span is an observed data range used for uniform fallback binnings.
type Span struct {
	Min float64
	Max float64
}

func uniformEdges(n int, lo, hi float64) []float64 {
	return floats.Span(make([]float64, n+1), lo, hi)
}

// pBinning returns the momentum binning in MeV. The lowest edges for
// hadrons sit on the RICH radiator kaon thresholds.
func pBinning(particle string) []float64 {
	switch particle {
	case "Pi", "K", "P":
		edges := []float64{
			3000,
			9300,  // R1 kaon threshold
			15600, // R2 kaon threshold
		}
		return append(edges, uniformEdges(15, 19000, 100000)...)
	case "Mu":
		return []float64{
			3000, 6000, 8000, 10000, 12000, 14500, 17500,
			21500, 27000, 32000, 40000, 60000, 70000, 100000,
		}
	}
	return nil
}

// DefaultBinnings returns the built-in binning table for the standard
// calibration particle types and binning variables.
func DefaultBinnings() Binning {
	binnings := Binning{}
	for _, particle := range []string{"Pi", "K", "P", "Mu"} {
		eta := uniformEdges(4, 1.5, 5.0)
		ntracks := []float64{0, 50, 200, 300, 500}
		nspd := []float64{0, 200, 400, 600, 800, 1000}
		trchi2 := uniformEdges(3, 0.0, 3.0)
		binnings[particle] = map[string][]float64{
			"P":               pBinning(particle),
			"Brunel_P":        pBinning(particle),
			"ETA":             eta,
			"Brunel_ETA":      eta,
			"nTracks":         ntracks,
			"nTracks_Brunel":  ntracks,
			"nSPDhits":        nspd,
			"nSPDhits_Brunel": nspd,
			"TRCHI2NDOF":      trchi2,
		}
	}
	return binnings
}

// LoadBinnings reads user binning overrides from a JSON file of the form
// {"Pi": {"P": [3000, 9300, 100000]}}.
func LoadBinnings(path string) (Binning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrorf("reading binning file: %v", err)
	}
	var binnings Binning
	if err := json.Unmarshal(data, &binnings); err != nil {
		return nil, configErrorf("parsing binning file %s: %v", path, err)
	}
	for particle, vars := range binnings {
		for variable, edges := range vars {
			if err := validateEdges(particle, variable, edges); err != nil {
				return nil, err
			}
		}
	}
	return binnings, nil
}

func validateEdges(particle, variable string, edges []float64) error {
	if len(edges) < 2 {
		return configErrorf("binning for %s/%s has %d edges, need at least 2",
			particle, variable, len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return configErrorf("binning for %s/%s is not strictly increasing at edge %d",
				particle, variable, i)
		}
	}
	return nil
}

// ResolveBinning returns the bin edges for one (particle, variable)
// dimension. User overrides win over the built-in table; with neither
// available a uniform binning over the observed range is constructed.
// nUniform <= 0 selects DefaultUniformBins.
func ResolveBinning(particle, variable string, overrides Binning, observed *Span, nUniform int) ([]float64, error) {
	if vars, ok := overrides[particle]; ok {
		if edges, ok := vars[variable]; ok {
			if err := validateEdges(particle, variable, edges); err != nil {
				return nil, err
			}
			out := make([]float64, len(edges))
			copy(out, edges)
			return out, nil
		}
	}
	if vars, ok := DefaultBinnings()[particle]; ok {
		if edges, ok := vars[variable]; ok && edges != nil {
			return edges, nil
		}
	}
	if observed == nil {
		return nil, configErrorf("no binning known for %s/%s and no observed range given",
			particle, variable)
	}
	if observed.Min >= observed.Max {
		return nil, configErrorf("cannot build uniform binning for %s/%s: degenerate range [%g, %g]",
			particle, variable, observed.Min, observed.Max)
	}
	if nUniform <= 0 {
		nUniform = DefaultUniformBins
	}
	log.Printf("no binning known for %s/%s, using %d uniform bins over [%g, %g]",
		particle, variable, nUniform, observed.Min, observed.Max)
	return uniformEdges(nUniform, observed.Min, observed.Max), nil
}

// checkBinCount warns when the Cartesian product of the per-dimension bin
// counts is large enough to leave many bins sparse or empty.
func checkBinCount(axes []Axis) {
	total := 1
	for _, ax := range axes {
		total *= ax.NBins()
	}
	if total > sparseBinThreshold {
		log.Printf("warning: binning has %d bins in total; expect sparse or empty bins", total)
	}
}

// FindBin returns the index of the bin containing x, with bins closed on
// the left edge and open on the right. It returns -1 when x falls outside
// the outer edges.
func FindBin(edges []float64, x float64) int {
	if x < edges[0] || x >= edges[len(edges)-1] {
		return -1
	}
	i := sort.SearchFloat64s(edges, x)
	if i < len(edges) && edges[i] == x {
		return i
	}
	return i - 1
}
