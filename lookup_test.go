package pidcalib

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oneBinHist builds a single-bin 1D efficiency histogram over [0, 100).
func oneBinHist(eff, err float64) *EffHist {
	return &EffHist{
		Axes: []Axis{{Name: "P", Edges: []float64{0, 100}}},
		Eff:  []float64{eff},
		Err:  []float64{err},
	}
}

func lookupFixture(t *testing.T) ([]RefParticle, map[string]string, *Batch) {
	t.Helper()
	specs := []RefParticle{
		{Prefix: "h1", Particle: "K", PIDCut: "DLLK > 4"},
		{Prefix: "h2", Particle: "Pi", PIDCut: "DLLK < 0"},
	}
	binVars := map[string]string{"P": "P"}
	batch, err := NewBatch(map[string][]float64{
		"h1_P": {50, 50, 200},
		"h2_P": {50, 200, 50},
	}, nil)
	require.NoError(t, err)
	return specs, binVars, batch
}

func TestApplyEfficienciesProduct(t *testing.T) {
	specs, binVars, batch := lookupFixture(t)
	hists := map[string]*EffHist{
		"h1": oneBinHist(0.8, 0.05),
		"h2": oneBinHist(0.9, 0.03),
	}

	effs, errs, err := ApplyEfficiencies(batch, specs, binVars, hists)
	require.NoError(t, err)
	require.Len(t, effs, 3)

	// Independent particles combine multiplicatively, relative
	// variances add in quadrature.
	assert.InDelta(t, 0.72, effs[0], 1e-12)
	wantRel := math.Sqrt(math.Pow(0.05/0.8, 2) + math.Pow(0.03/0.9, 2))
	assert.InDelta(t, 0.72*wantRel, errs[0], 1e-12)

	// Any out-of-range particle poisons the whole event.
	assert.Equal(t, Sentinel, effs[1])
	assert.Equal(t, Sentinel, errs[1])
	assert.Equal(t, Sentinel, effs[2])
	assert.Equal(t, Sentinel, errs[2])
}

func TestApplyEfficienciesSentinelPropagation(t *testing.T) {
	specs, binVars, batch := lookupFixture(t)
	hists := map[string]*EffHist{
		"h1": oneBinHist(Sentinel, Sentinel), // e.g. empty calibration bin
		"h2": oneBinHist(0.9, 0.03),
	}

	effs, errs, err := ApplyEfficiencies(batch, specs, binVars, hists)
	require.NoError(t, err)
	assert.Equal(t, Sentinel, effs[0])
	assert.Equal(t, Sentinel, errs[0])
}

func TestApplyEfficienciesInvalidUncertaintyOnly(t *testing.T) {
	// A valid efficiency with an uncomputable uncertainty keeps the
	// efficiency product; only the event uncertainty is invalidated.
	specs, binVars, batch := lookupFixture(t)
	hists := map[string]*EffHist{
		"h1": oneBinHist(0.8, Sentinel),
		"h2": oneBinHist(0.9, 0.03),
	}

	effs, errs, err := ApplyEfficiencies(batch, specs, binVars, hists)
	require.NoError(t, err)
	assert.InDelta(t, 0.72, effs[0], 1e-12)
	assert.Equal(t, Sentinel, errs[0])
}

func TestApplyEfficienciesZeroEfficiencyBin(t *testing.T) {
	// A nonempty calibration bin with no passing weight yields efficiency
	// exactly 0 with a Sentinel uncertainty; the event efficiency is then
	// a valid 0, distinct from the uncomputable case.
	specs, binVars, batch := lookupFixture(t)
	hists := map[string]*EffHist{
		"h1": oneBinHist(0, Sentinel),
		"h2": oneBinHist(0.9, 0.03),
	}

	effs, errs, err := ApplyEfficiencies(batch, specs, binVars, hists)
	require.NoError(t, err)
	assert.Equal(t, 0.0, effs[0])
	assert.Equal(t, Sentinel, errs[0])
}

func TestApplyEfficienciesMissingBranch(t *testing.T) {
	specs, binVars, _ := lookupFixture(t)
	batch, err := NewBatch(map[string][]float64{"h1_P": {50}}, nil)
	require.NoError(t, err)

	hists := map[string]*EffHist{
		"h1": oneBinHist(0.8, 0.05),
		"h2": oneBinHist(0.9, 0.03),
	}
	_, _, err = ApplyEfficiencies(batch, specs, binVars, hists)
	var unkErr *UnknownVariableError
	require.ErrorAs(t, err, &unkErr)
	assert.Equal(t, "h2_P", unkErr.Name)
}

func TestApplyEfficienciesGlobalBranch(t *testing.T) {
	// Event-level variables like nTracks are shared, not prefixed.
	specs := []RefParticle{{Prefix: "Bach", Particle: "K", PIDCut: "DLLK > 4"}}
	binVars := map[string]string{"nTracks": "nTracks"}
	hist := &EffHist{
		Axes: []Axis{{Name: "nTracks", Edges: []float64{0, 100, 200}}},
		Eff:  []float64{0.5, 0.6},
		Err:  []float64{0.01, 0.01},
	}
	batch, err := NewBatch(map[string][]float64{"nTracks": {50, 150}}, nil)
	require.NoError(t, err)

	effs, _, err := ApplyEfficiencies(batch, specs, binVars, map[string]*EffHist{"Bach": hist})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.6}, effs)
}

func TestParseRefParticles(t *testing.T) {
	specs, err := ParseRefParticles(`{"SPi": ["Pi", "DLLK < 0"], "Bach": ["K", "DLLK > 4"]}`)
	require.NoError(t, err)
	// Prefix-sorted for stable iteration.
	require.Len(t, specs, 2)
	assert.Equal(t, RefParticle{Prefix: "Bach", Particle: "K", PIDCut: "DLLK > 4"}, specs[0])
	assert.Equal(t, RefParticle{Prefix: "SPi", Particle: "Pi", PIDCut: "DLLK < 0"}, specs[1])

	_, err = ParseRefParticles(`{"Bach": ["K"]}`)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)

	_, err = ParseRefParticles(`not json`)
	require.ErrorAs(t, err, &cfgErr)
}

func TestReferenceBranches(t *testing.T) {
	specs := []RefParticle{
		{Prefix: "D0_K", Particle: "K"},
		{Prefix: "D0_Pi", Particle: "Pi"},
	}
	binVars := map[string]string{"P": "mom", "nTracks": "nTracks"}
	branches := ReferenceBranches(specs, binVars)
	assert.Equal(t, []string{"D0_K_mom", "D0_Pi_mom", "nTracks"}, branches)
}

func TestAverageEff(t *testing.T) {
	avg, invalid := AverageEff([]float64{0.5, 0.7, Sentinel})
	assert.InDelta(t, 0.6, avg, 1e-12)
	assert.Equal(t, 1, invalid)

	avg, invalid = AverageEff([]float64{Sentinel})
	assert.True(t, math.IsNaN(avg))
	assert.Equal(t, 1, invalid)
}
