package pidcalib

import (
	"fmt"
	"sort"
)

// Batch is one chunk of calibration or reference data: a rectangular set
// of named float64 columns plus one weight column, all of the same length.
// A Batch is immutable once built; filtering produces a new Batch.
type Batch struct {
	cols    map[string][]float64
	weights []float64
	n       int
}

// NewBatch builds a batch from named columns and optional per-event
// weights. A nil weights slice means every event carries unit weight.
func NewBatch(cols map[string][]float64, weights []float64) (*Batch, error) {
	n := -1
	for name, col := range cols {
		if n < 0 {
			n = len(col)
		} else if len(col) != n {
			return nil, fmt.Errorf("column %q has %d rows, want %d", name, len(col), n)
		}
	}
	if n < 0 {
		n = len(weights)
	}
	if weights == nil {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1
		}
	} else if len(weights) != n {
		return nil, fmt.Errorf("weight column has %d rows, want %d", len(weights), n)
	}
	return &Batch{cols: cols, weights: weights, n: n}, nil
}

// Len returns the number of events in the batch.
func (b *Batch) Len() int { return b.n }

// Column returns the values of a named column.
func (b *Batch) Column(name string) ([]float64, bool) {
	col, ok := b.cols[name]
	return col, ok
}

// Weights returns the per-event weight column.
func (b *Batch) Weights() []float64 { return b.weights }

// ColumnNames returns the sorted names of all columns.
func (b *Batch) ColumnNames() []string {
	names := make([]string, 0, len(b.cols))
	for name := range b.cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns a new batch containing only the rows where mask is true.
func (b *Batch) Select(mask []bool) *Batch {
	nsel := 0
	for _, keep := range mask {
		if keep {
			nsel++
		}
	}
	cols := make(map[string][]float64, len(b.cols))
	for name, col := range b.cols {
		sel := make([]float64, 0, nsel)
		for i, keep := range mask {
			if keep {
				sel = append(sel, col[i])
			}
		}
		cols[name] = sel
	}
	weights := make([]float64, 0, nsel)
	for i, keep := range mask {
		if keep {
			weights = append(weights, b.weights[i])
		}
	}
	return &Batch{cols: cols, weights: weights, n: nsel}
}
