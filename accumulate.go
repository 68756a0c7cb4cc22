package pidcalib

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
)

// AccumConfig configures one accumulation unit: a single (sample, magnet,
// particle) worth of calibration files histogrammed under one binning.
type AccumConfig struct {
	Particle  string
	BinVars   []string // user-level binning variable names, in axis order
	Binnings  Binning  // user overrides; nil uses the built-in table
	Cuts      []string // selection cuts applied to every event
	PIDCuts   []string // one passing histogram per entry
	Aliases   map[string]string
	WeightCol string // defaults to DefaultWeightColumn
	Table     string // defaults to DefaultEventTable
	ChunkSize int
}

// HistSet holds the accumulated histograms of one unit: the total over
// all selected events and one passing histogram per PID cut, keyed by the
// cut's original expression.
type HistSet struct {
	Total   *Hist
	Passing map[string]*Hist
}

// CutStats counts events before and after each named cut across all
// processed chunks.
type CutStats struct {
	names  []string
	counts map[string][2]int // before, after
}

func newCutStats() *CutStats {
	return &CutStats{counts: map[string][2]int{}}
}

func (s *CutStats) add(name string, before, after int) {
	if _, ok := s.counts[name]; !ok {
		s.names = append(s.names, name)
	}
	c := s.counts[name]
	c[0] += before
	c[1] += after
	s.counts[name] = c
}

// Log writes the pass fractions of all cuts to the standard logger.
func (s *CutStats) Log() {
	for _, name := range s.names {
		c := s.counts[name]
		if c[0] == 0 {
			continue
		}
		log.Printf("%d/%d (%.1f%%) events passed %s cut",
			c[1], c[0], 100*float64(c[1])/float64(c[0]), name)
	}
}

// Counts returns the (before, after) event counts of a named cut.
func (s *CutStats) Counts(name string) (before, after int) {
	c := s.counts[name]
	return c[0], c[1]
}

// Accumulate streams the given calibration files chunk by chunk and
// builds the total and passing histograms for every PID cut. All cuts are
// compiled and all binnings resolved before any file is opened, so
// configuration errors surface without touching the data. An unreadable
// file or one missing required columns aborts the unit with a
// DataSourceError.
func Accumulate(ctx context.Context, files []string, cfg AccumConfig) (*HistSet, *CutStats, error) {
	if len(files) == 0 {
		return nil, nil, configErrorf("no calibration files to process")
	}
	if len(cfg.BinVars) == 0 {
		return nil, nil, configErrorf("no binning variables given")
	}
	if len(cfg.PIDCuts) == 0 {
		return nil, nil, configErrorf("no PID cuts given")
	}

	compiler := NewCutCompiler(cfg.Aliases)
	axes := make([]Axis, len(cfg.BinVars))
	axisCols := make([]string, len(cfg.BinVars))
	for d, binVar := range cfg.BinVars {
		edges, err := ResolveBinning(cfg.Particle, binVar, cfg.Binnings, nil, 0)
		if err != nil {
			return nil, nil, err
		}
		axes[d] = Axis{Name: binVar, Edges: edges}
		axisCols[d] = compiler.resolve(binVar)
	}
	checkBinCount(axes)

	var globalCuts []*Cut
	for _, expr := range cfg.Cuts {
		cut, err := compiler.Compile(expr)
		if err != nil {
			return nil, nil, err
		}
		globalCuts = append(globalCuts, cut)
	}
	pidCuts := make([]*Cut, len(cfg.PIDCuts))
	for i, expr := range cfg.PIDCuts {
		cut, err := compiler.Compile(expr)
		if err != nil {
			return nil, nil, err
		}
		pidCuts[i] = cut
	}

	set := &HistSet{
		Total:   NewHist(axes...),
		Passing: make(map[string]*Hist, len(pidCuts)),
	}
	passing := make([]*Hist, len(pidCuts))
	for i, cut := range pidCuts {
		passing[i] = NewHist(axes...)
		set.Passing[cut.Expr] = passing[i]
	}

	columns := requiredColumns(axisCols, globalCuts, pidCuts)
	weightCol := cfg.WeightCol
	if weightCol == "" {
		weightCol = DefaultWeightColumn
	}

	stats := newCutStats()
	for _, path := range files {
		if err := accumulateFile(ctx, path, columns, weightCol, cfg,
			axisCols, globalCuts, pidCuts, set.Total, passing, stats); err != nil {
			return nil, nil, err
		}
	}

	if zero := set.Total.ZeroBins(); zero > 0 {
		log.Printf("warning: %d empty bins in the total histogram; consider changing the binning", zero)
	}
	stats.Log()
	return set, stats, nil
}

func requiredColumns(axisCols []string, cutSets ...[]*Cut) []string {
	seen := map[string]bool{}
	for _, col := range axisCols {
		seen[col] = true
	}
	for _, cuts := range cutSets {
		for _, cut := range cuts {
			for _, v := range cut.Variables() {
				seen[v] = true
			}
		}
	}
	cols := make([]string, 0, len(seen))
	for col := range seen {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func accumulateFile(ctx context.Context, path string, columns []string, weightCol string,
	cfg AccumConfig, axisCols []string, globalCuts, pidCuts []*Cut,
	total *Hist, passing []*Hist, stats *CutStats) error {

	reader, err := OpenSample(path, cfg.Table, columns, weightCol, cfg.ChunkSize)
	if err != nil {
		return err
	}
	defer reader.Close()

	for batch := range reader.ScanChunks(ctx) {
		selected := batch
		for _, cut := range globalCuts {
			mask, err := cut.Evaluate(selected)
			if err != nil {
				return &DataSourceError{Path: path, Err: err}
			}
			before := selected.Len()
			selected = selected.Select(mask)
			stats.add(fmt.Sprintf("%q", cut.Expr), before, selected.Len())
		}

		dropped, err := total.FillBatch(selected, axisCols)
		if err != nil {
			return &DataSourceError{Path: path, Err: err}
		}
		stats.add("binning range", selected.Len(), selected.Len()-dropped)

		// PID cuts run against the same immutable chunk and fill
		// disjoint histograms, one goroutine per cut.
		errs := make([]error, len(pidCuts))
		nPass := make([]int, len(pidCuts))
		var wg sync.WaitGroup
		for i, cut := range pidCuts {
			wg.Add(1)
			go func(i int, cut *Cut) {
				defer wg.Done()
				mask, err := cut.Evaluate(selected)
				if err != nil {
					errs[i] = err
					return
				}
				pass := selected.Select(mask)
				nPass[i] = pass.Len()
				if _, err := passing[i].FillBatch(pass, axisCols); err != nil {
					errs[i] = err
				}
			}(i, cut)
		}
		wg.Wait()
		for i, err := range errs {
			if err != nil {
				return &DataSourceError{Path: path, Err: err}
			}
			stats.add(fmt.Sprintf("%q", pidCuts[i].Expr), selected.Len(), nPass[i])
		}
	}
	if err := reader.Err(); err != nil {
		return err
	}
	return nil
}
