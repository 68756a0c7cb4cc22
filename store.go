package pidcalib

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var whitespace = regexp.MustCompile(`\s+`)

// StripWhitespace removes all whitespace from a cut expression, giving
// the canonical form used in artifact names and histogram keys.
func StripWhitespace(cut string) string {
	return whitespace.ReplaceAllString(cut, "")
}

// HistFilename returns the artifact name for one efficiency histogram.
// The composite (sample, magnet, particle, cut, binning variables) key
// identifies the histogram; ref_calib reconstructs the same name to find
// it.
func HistFilename(sample, magnet, particle, cut string, binVars []string) string {
	return "effhists-" + sample + "-" + magnet + "-" + particle + "-" +
		StripWhitespace(cut) + "-" + strings.Join(binVars, ".") + ".json"
}

// EffHistFile is the persisted form of one efficiency histogram together
// with the counting histograms it was derived from.
type EffHistFile struct {
	Sample   string   `json:"sample"`
	Magnet   string   `json:"magnet"`
	Particle string   `json:"particle"`
	Cut      string   `json:"cut"`
	BinVars  []string `json:"bin_vars"`

	Axes      []Axis    `json:"axes"`
	Eff       []float64 `json:"eff"`
	Err       []float64 `json:"err"`
	Total     []float64 `json:"total"`
	TotalW2   []float64 `json:"total_sumw2"`
	Passing   []float64 `json:"passing"`
	PassingW2 []float64 `json:"passing_sumw2"`
}

// NewEffHistFile bundles an efficiency histogram and its source counting
// histograms under a composite key for persistence.
func NewEffHistFile(sample, magnet, particle, cut string, binVars []string,
	eff *EffHist, total, passing *Hist) *EffHistFile {
	return &EffHistFile{
		Sample:    sample,
		Magnet:    magnet,
		Particle:  particle,
		Cut:       StripWhitespace(cut),
		BinVars:   binVars,
		Axes:      eff.Axes,
		Eff:       eff.Eff,
		Err:       eff.Err,
		Total:     total.Counts,
		TotalW2:   total.SumW2,
		Passing:   passing.Counts,
		PassingW2: passing.SumW2,
	}
}

// EffHist rebuilds the lookup structure from a loaded artifact.
func (f *EffHistFile) EffHist() *EffHist {
	return &EffHist{Axes: f.Axes, Eff: f.Eff, Err: f.Err}
}

// SaveEffHist writes the artifact into dir under its composite-key name.
// The file is written completely to a temporary name and renamed into
// place, so a cancelled run never leaves a partial artifact.
func SaveEffHist(dir string, f *EffHistFile) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, HistFilename(f.Sample, f.Magnet, f.Particle, f.Cut, f.BinVars))
	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return path, nil
}

// FindEffHist locates and loads the artifact for a composite key inside
// dir. The exact filename is tried first; failing that, all effhists
// artifacts in the directory are inspected so a binning-variable ordering
// different from the original make_eff_hists invocation still matches.
func FindEffHist(dir, sample, magnet, particle, cut string, binVars []string) (*EffHistFile, error) {
	exact := filepath.Join(dir, HistFilename(sample, magnet, particle, cut, binVars))
	if _, err := os.Stat(exact); err == nil {
		return LoadEffHist(exact)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "effhists-*.json"))
	want := StripWhitespace(cut)
	for _, path := range matches {
		f, err := LoadEffHist(path)
		if err != nil {
			continue
		}
		if f.Sample == sample && f.Magnet == magnet && f.Particle == particle &&
			f.Cut == want && sameVarSet(f.BinVars, binVars) {
			return f, nil
		}
	}
	return nil, configErrorf("no efficiency histogram for %s-%s-%s with cut %q in %s; "+
		"run make_eff_hists with matching parameters first",
		sample, magnet, particle, cut, dir)
}

func sameVarSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
	}
	return true
}

// LoadEffHist reads a persisted efficiency histogram artifact.
func LoadEffHist(path string) (*EffHistFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DataSourceError{Path: path, Err: err}
	}
	var f EffHistFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &DataSourceError{Path: path, Err: err}
	}
	n := 1
	for _, ax := range f.Axes {
		if ax.NBins() < 1 {
			return nil, configErrorf("artifact %s has a degenerate axis %q", path, ax.Name)
		}
		n *= ax.NBins()
	}
	if len(f.Eff) != n || len(f.Err) != n {
		return nil, configErrorf("artifact %s has %d bins of data for a %d-bin shape",
			path, len(f.Eff), n)
	}
	return &f, nil
}
