package pidcalib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistFilename(t *testing.T) {
	name := HistFilename("Turbo18", "up", "Pi", "DLLK > 4", []string{"P", "ETA"})
	assert.Equal(t, "effhists-Turbo18-up-Pi-DLLK>4-P.ETA.json", name)
}

func sampleArtifact(t *testing.T) *EffHistFile {
	t.Helper()
	ax := Axis{Name: "P", Edges: []float64{0, 10, 20}}
	total := NewHist(ax)
	passing := NewHist(ax)
	total.Fill([]float64{5}, 10)
	total.Fill([]float64{15}, 4)
	passing.Fill([]float64{5}, 5)
	eff, err := ComputeEff(total, passing)
	require.NoError(t, err)
	return NewEffHistFile("Turbo18", "up", "Pi", "DLLK > 4", []string{"P"}, eff, total, passing)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	artifact := sampleArtifact(t)

	path, err := SaveEffHist(dir, artifact)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "effhists-Turbo18-up-Pi-DLLK>4-P.json"), path)

	loaded, err := LoadEffHist(path)
	require.NoError(t, err)
	if diff := cmp.Diff(artifact, loaded); diff != "" {
		t.Errorf("artifact roundtrip mismatch (-want +got):\n%s", diff)
	}

	// No temporary files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFindEffHist(t *testing.T) {
	dir := t.TempDir()
	artifact := sampleArtifact(t)
	_, err := SaveEffHist(dir, artifact)
	require.NoError(t, err)

	// Exact key, whitespace-insensitive cut.
	found, err := FindEffHist(dir, "Turbo18", "up", "Pi", "DLLK>4", []string{"P"})
	require.NoError(t, err)
	assert.Equal(t, artifact.Cut, found.Cut)

	found, err = FindEffHist(dir, "Turbo18", "up", "Pi", "DLLK > 4", []string{"P"})
	require.NoError(t, err)
	assert.Equal(t, artifact.Cut, found.Cut)

	_, err = FindEffHist(dir, "Turbo18", "down", "Pi", "DLLK>4", []string{"P"})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadEffHistInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "effhists-bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"axes": [{"name": "P", "edges": [0, 1]}], "eff": [1, 2, 3]}`), 0o644))
	_, err := LoadEffHist(path)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)

	_, err = LoadEffHist(filepath.Join(dir, "missing.json"))
	var srcErr *DataSourceError
	require.ErrorAs(t, err, &srcErr)
}

func TestStripWhitespace(t *testing.T) {
	assert.Equal(t, "DLLK>4&IsMuon==0", StripWhitespace(" DLLK > 4 & IsMuon == 0 "))
}
