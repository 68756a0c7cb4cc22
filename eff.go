package pidcalib

import "math"

// Sentinel marks bins and events whose efficiency or uncertainty cannot
// be computed. The value is part of the persisted-artifact format and of
// the reference output, so it must not change.
const Sentinel = -999.0

// EffHist is a derived, read-only efficiency histogram. Eff and Err share
// the flat bin layout of the total and passing histograms it came from.
type EffHist struct {
	Axes []Axis    `json:"axes"`
	Eff  []float64 `json:"eff"`
	Err  []float64 `json:"err"`
}

// ComputeEff derives the per-bin efficiency and its binomial uncertainty
// from a total/passing histogram pair.
//
// Empty bins (zero total weight) get Sentinel for both values. A nonempty
// bin with zero passing weight keeps efficiency 0 but gets a Sentinel
// uncertainty; the two conditions are tracked separately even though the
// efficiency collapses them to different values. Negative efficiencies,
// possible only with negative-weight calibration events, are clamped to
// Sentinel rather than zeroed.
func ComputeEff(total, passing *Hist) (*EffHist, error) {
	if err := sameShape(total.Axes, passing.Axes); err != nil {
		return nil, err
	}
	out := &EffHist{
		Axes: total.Axes,
		Eff:  make([]float64, total.NBins()),
		Err:  make([]float64, total.NBins()),
	}
	for i := range out.Eff {
		tot := total.Counts[i]
		pass := passing.Counts[i]
		if tot == 0 {
			out.Eff[i] = Sentinel
			out.Err[i] = Sentinel
			continue
		}
		eff := pass / tot
		if eff < 0 {
			out.Eff[i] = Sentinel
			out.Err[i] = Sentinel
			continue
		}
		out.Eff[i] = eff
		out.Err[i] = binomialErr(eff, tot, pass)
	}
	return out, nil
}

// binomialErr returns sqrt(eff*(1-eff)/total) where that estimator is
// defined, Sentinel otherwise. A bin with events but no passing weight has
// an undefined uncertainty under this estimator, distinct from the
// empty-bin case handled by the caller.
func binomialErr(eff, total, passing float64) float64 {
	if passing == 0 || eff > 1 {
		return Sentinel
	}
	return math.Sqrt(eff * (1 - eff) / total)
}

// NBins returns the total number of bins.
func (e *EffHist) NBins() int { return len(e.Eff) }

// Index maps event coordinates to a flat bin index, false when any
// coordinate is out of range.
func (e *EffHist) Index(coords []float64) (int, bool) {
	idx := 0
	for d, ax := range e.Axes {
		bin := FindBin(ax.Edges, coords[d])
		if bin < 0 {
			return -1, false
		}
		idx = idx*ax.NBins() + bin
	}
	return idx, true
}

// Lookup returns the efficiency and uncertainty of the bin containing the
// given coordinates, or Sentinel for both when the event is out of range.
func (e *EffHist) Lookup(coords []float64) (eff, err float64) {
	idx, ok := e.Index(coords)
	if !ok {
		return Sentinel, Sentinel
	}
	return e.Eff[idx], e.Err[idx]
}
