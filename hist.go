package pidcalib

import "fmt"

// Axis is one binning dimension of a histogram.
type Axis struct {
	Name  string    `json:"name"`
	Edges []float64 `json:"edges"`
}

// NBins returns the number of bins on the axis.
func (a Axis) NBins() int { return len(a.Edges) - 1 }

// Hist is an N-dimensional weighted histogram. Counts hold the sum of
// event weights per bin and SumW2 the sum of squared weights, both in a
// flat row-major layout over the axes.
type Hist struct {
	Axes   []Axis    `json:"axes"`
	Counts []float64 `json:"counts"`
	SumW2  []float64 `json:"sumw2"`
}

// NewHist returns an empty histogram over the given axes.
func NewHist(axes ...Axis) *Hist {
	n := 1
	for _, ax := range axes {
		n *= ax.NBins()
	}
	return &Hist{
		Axes:   axes,
		Counts: make([]float64, n),
		SumW2:  make([]float64, n),
	}
}

// NBins returns the total number of bins.
func (h *Hist) NBins() int { return len(h.Counts) }

// Index maps one event's coordinates to a flat bin index. The second
// return value is false when any coordinate is outside its axis range.
func (h *Hist) Index(coords []float64) (int, bool) {
	idx := 0
	for d, ax := range h.Axes {
		bin := FindBin(ax.Edges, coords[d])
		if bin < 0 {
			return -1, false
		}
		idx = idx*ax.NBins() + bin
	}
	return idx, true
}

// Fill adds one weighted event. Out-of-range events are dropped, not
// clipped; the return value reports whether the event was binned.
func (h *Hist) Fill(coords []float64, w float64) bool {
	idx, ok := h.Index(coords)
	if !ok {
		return false
	}
	h.Counts[idx] += w
	h.SumW2[idx] += w * w
	return true
}

// FillBatch bins every event of a batch, reading one column per axis, and
// returns the number of out-of-range events that were dropped.
func (h *Hist) FillBatch(b *Batch, columns []string) (dropped int, err error) {
	cols := make([][]float64, len(columns))
	for d, name := range columns {
		col, ok := b.Column(name)
		if !ok {
			return 0, &UnknownVariableError{Name: name, Columns: b.ColumnNames()}
		}
		cols[d] = col
	}
	weights := b.Weights()
	coords := make([]float64, len(cols))
	for i := 0; i < b.Len(); i++ {
		for d := range cols {
			coords[d] = cols[d][i]
		}
		if !h.Fill(coords, weights[i]) {
			dropped++
		}
	}
	return dropped, nil
}

// Sum returns the total weight in the histogram.
func (h *Hist) Sum() float64 {
	sum := 0.0
	for _, c := range h.Counts {
		sum += c
	}
	return sum
}

// ZeroBins returns the number of bins holding exactly zero weight.
func (h *Hist) ZeroBins() int {
	n := 0
	for _, c := range h.Counts {
		if c == 0 {
			n++
		}
	}
	return n
}

// Add accumulates another histogram of identical shape into h.
func (h *Hist) Add(other *Hist) error {
	if err := sameShape(h.Axes, other.Axes); err != nil {
		return err
	}
	for i, c := range other.Counts {
		h.Counts[i] += c
		h.SumW2[i] += other.SumW2[i]
	}
	return nil
}

func sameShape(a, b []Axis) error {
	if len(a) != len(b) {
		return configErrorf("histogram shape mismatch: %d vs %d axes", len(a), len(b))
	}
	for d := range a {
		if a[d].Name != b[d].Name {
			return configErrorf("histogram axis %d mismatch: %s vs %s", d, a[d].Name, b[d].Name)
		}
		if len(a[d].Edges) != len(b[d].Edges) {
			return configErrorf("histogram axis %s has mismatched edges", a[d].Name)
		}
		for i := range a[d].Edges {
			if a[d].Edges[i] != b[d].Edges[i] {
				return configErrorf("histogram axis %s has mismatched edges", a[d].Name)
			}
		}
	}
	return nil
}

func (h *Hist) String() string {
	return fmt.Sprintf("Hist(%d axes, %d bins, sum=%g)", len(h.Axes), h.NBins(), h.Sum())
}
