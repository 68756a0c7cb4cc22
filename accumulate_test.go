package pidcalib

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulate(t *testing.T) {
	// Two files so cross-file accumulation is exercised. Binning override
	// keeps the histograms small enough to check bin by bin.
	fileA := writeCalibFile(t, "a.db", map[string][]float64{
		"probe_P":       {5, 15, 5, 50},
		"probe_PIDK":    {10, 10, -10, 10},
		"probe_sWeight": {1, 2, 1, 7},
	})
	fileB := writeCalibFile(t, "b.db", map[string][]float64{
		"probe_P":       {15, 15},
		"probe_PIDK":    {-10, 10},
		"probe_sWeight": {3, 4},
	})

	cfg := AccumConfig{
		Particle: "Pi",
		BinVars:  []string{"P"},
		Binnings: Binning{"Pi": {"P": {0, 10, 20}}},
		PIDCuts:  []string{"DLLK > 0"},
		Aliases:  DefaultAliases(),
	}
	set, stats, err := Accumulate(context.Background(), []string{fileA, fileB}, cfg)
	require.NoError(t, err)

	// Total: bin [0,10) gets weights 1+1, bin [10,20) gets 2+3+4. The
	// P=50 event falls outside the binning and is dropped.
	assert.Equal(t, []float64{2, 9}, set.Total.Counts)

	passing, ok := set.Passing["DLLK > 0"]
	require.True(t, ok)
	assert.Equal(t, []float64{1, 6}, passing.Counts)

	before, after := stats.Counts("binning range")
	assert.Equal(t, 6, before)
	assert.Equal(t, 5, after)
	before, after = stats.Counts(`"DLLK > 0"`)
	assert.Equal(t, 6, before)
	assert.Equal(t, 4, after)
}

func TestAccumulateGlobalCuts(t *testing.T) {
	file := writeCalibFile(t, "a.db", map[string][]float64{
		"probe_P":       {5, 5, 15},
		"probe_PIDK":    {10, 10, 10},
		"probe_isMuon":  {0, 1, 0},
		"probe_sWeight": {1, 1, 1},
	})

	cfg := AccumConfig{
		Particle: "Pi",
		BinVars:  []string{"P"},
		Binnings: Binning{"Pi": {"P": {0, 10, 20}}},
		Cuts:     []string{"IsMuon == 0"},
		PIDCuts:  []string{"DLLK > 0"},
		Aliases:  DefaultAliases(),
	}
	set, stats, err := Accumulate(context.Background(), []string{file}, cfg)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 1}, set.Total.Counts)
	before, after := stats.Counts(`"IsMuon == 0"`)
	assert.Equal(t, 3, before)
	assert.Equal(t, 2, after)
}

func TestAccumulateMultiplePIDCuts(t *testing.T) {
	file := writeCalibFile(t, "a.db", map[string][]float64{
		"probe_P":       {5, 5, 5, 5},
		"probe_PIDK":    {-5, 2, 6, 10},
		"probe_sWeight": {1, 1, 1, 1},
	})

	cfg := AccumConfig{
		Particle: "Pi",
		BinVars:  []string{"P"},
		Binnings: Binning{"Pi": {"P": {0, 10}}},
		PIDCuts:  []string{"DLLK > 0", "DLLK > 4", "DLLK > 8"},
		Aliases:  DefaultAliases(),
	}
	set, _, err := Accumulate(context.Background(), []string{file}, cfg)
	require.NoError(t, err)

	assert.Equal(t, []float64{4}, set.Total.Counts)
	assert.Equal(t, []float64{3}, set.Passing["DLLK > 0"].Counts)
	assert.Equal(t, []float64{2}, set.Passing["DLLK > 4"].Counts)
	assert.Equal(t, []float64{1}, set.Passing["DLLK > 8"].Counts)
}

func TestAccumulateIdempotent(t *testing.T) {
	// Two runs over the same files must produce bit-identical histograms
	// and efficiencies, regardless of the per-cut goroutine scheduling.
	fileA := writeCalibFile(t, "a.db", map[string][]float64{
		"probe_P":       {5, 15, 5, 50, 8, 12},
		"probe_PIDK":    {10, 10, -10, 10, 3, 7},
		"probe_sWeight": {1, 2, 1, 7, 0.5, -0.3},
	})
	fileB := writeCalibFile(t, "b.db", map[string][]float64{
		"probe_P":       {15, 15, 3},
		"probe_PIDK":    {-10, 10, 5},
		"probe_sWeight": {3, 4, 1.25},
	})

	cfg := AccumConfig{
		Particle: "Pi",
		BinVars:  []string{"P"},
		Binnings: Binning{"Pi": {"P": {0, 5, 10, 20}}},
		PIDCuts:  []string{"DLLK > 0", "DLLK > 4", "DLLK > 8"},
		Aliases:  DefaultAliases(),
	}
	run := func() (*HistSet, map[string]*EffHist) {
		set, _, err := Accumulate(context.Background(), []string{fileA, fileB}, cfg)
		require.NoError(t, err)
		effs := make(map[string]*EffHist, len(set.Passing))
		for cut, passing := range set.Passing {
			eff, err := ComputeEff(set.Total, passing)
			require.NoError(t, err)
			effs[cut] = eff
		}
		return set, effs
	}

	setA, effsA := run()
	setB, effsB := run()

	assert.Equal(t, setA.Total.Counts, setB.Total.Counts)
	assert.Equal(t, setA.Total.SumW2, setB.Total.SumW2)
	for cut := range setA.Passing {
		assert.Equal(t, setA.Passing[cut].Counts, setB.Passing[cut].Counts, "cut %s", cut)
		assert.Equal(t, setA.Passing[cut].SumW2, setB.Passing[cut].SumW2, "cut %s", cut)
		assert.Equal(t, effsA[cut].Eff, effsB[cut].Eff, "cut %s", cut)
		assert.Equal(t, effsA[cut].Err, effsB[cut].Err, "cut %s", cut)
	}
}

func TestAccumulateConfigErrors(t *testing.T) {
	file := writeCalibFile(t, "a.db", map[string][]float64{
		"probe_P": {5},
	})
	base := AccumConfig{
		Particle: "Pi",
		BinVars:  []string{"P"},
		PIDCuts:  []string{"DLLK > 0"},
		Aliases:  DefaultAliases(),
	}

	var cfgErr *ConfigError
	_, _, err := Accumulate(context.Background(), nil, base)
	require.ErrorAs(t, err, &cfgErr)

	cfg := base
	cfg.BinVars = nil
	_, _, err = Accumulate(context.Background(), []string{file}, cfg)
	require.ErrorAs(t, err, &cfgErr)

	cfg = base
	cfg.PIDCuts = nil
	_, _, err = Accumulate(context.Background(), []string{file}, cfg)
	require.ErrorAs(t, err, &cfgErr)

	// A malformed cut fails before any file is opened.
	cfg = base
	cfg.PIDCuts = []string{"DLLK >> 0"}
	var synErr *CutSyntaxError
	_, _, err = Accumulate(context.Background(), []string{"/does/not/exist.db"}, cfg)
	require.ErrorAs(t, err, &synErr)
}

func TestAccumulateMissingColumn(t *testing.T) {
	// The file has no PIDK branch, so the unit aborts with the missing
	// columns named.
	file := writeCalibFile(t, "a.db", map[string][]float64{
		"probe_P":       {5},
		"probe_sWeight": {1},
	})
	cfg := AccumConfig{
		Particle: "Pi",
		BinVars:  []string{"P"},
		Binnings: Binning{"Pi": {"P": {0, 10}}},
		PIDCuts:  []string{"DLLK > 0"},
		Aliases:  DefaultAliases(),
	}
	_, _, err := Accumulate(context.Background(), []string{file}, cfg)
	var srcErr *DataSourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, []string{"probe_PIDK"}, srcErr.Missing)
}
