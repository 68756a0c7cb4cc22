package pidcalib

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
)

// Sample describes one calibration sample: its event files plus optional
// hard-coded cuts that must always be applied when histogramming it. A
// sample may link to another entry to share its file list.
type Sample struct {
	Files []string `json:"files"`
	Cuts  []string `json:"cuts,omitempty"`
	Link  string   `json:"link,omitempty"`
}

// SampleKey builds the registry key for a (sample, magnet, particle)
// combination, e.g. "Turbo18-MagUp-Pi".
func SampleKey(sample, magnet, particle string) string {
	switch magnet {
	case "up":
		magnet = "MagUp"
	case "down":
		magnet = "MagDown"
	}
	return fmt.Sprintf("%s-%s-%s", sample, magnet, particle)
}

// LoadSamples reads a sample registry from a JSON file keyed by
// SampleKey-style names.
func LoadSamples(path string) (map[string]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrorf("reading samples file: %v", err)
	}
	var samples map[string]Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, configErrorf("parsing samples file %s: %v", path, err)
	}
	return samples, nil
}

// GetCalibrationSample resolves one (sample, magnet, particle) entry from
// the registry, following links and truncating the file list to maxFiles
// (0 means all files). Truncation keeps the registry order, so repeated
// runs see the same files.
func GetCalibrationSample(samples map[string]Sample, sample, magnet, particle string, maxFiles int) (Sample, error) {
	key := SampleKey(sample, magnet, particle)
	entry, ok := samples[key]
	if !ok {
		return Sample{}, configErrorf("sample %q not found in the registry", key)
	}
	if entry.Link != "" {
		linked, ok := samples[entry.Link]
		if !ok {
			return Sample{}, configErrorf("sample %q links to unknown sample %q", key, entry.Link)
		}
		entry.Files = linked.Files
		if entry.Cuts == nil {
			entry.Cuts = linked.Cuts
		}
	}
	if len(entry.Files) == 0 {
		return Sample{}, configErrorf("sample %q has no files", key)
	}
	if maxFiles > 0 && maxFiles < len(entry.Files) {
		log.Printf("warning: limiting %q to the first %d of %d files; use only for testing",
			key, maxFiles, len(entry.Files))
		entry.Files = entry.Files[:maxFiles]
	}
	return entry, nil
}

// ReadFileList reads newline-separated file paths, skipping blank lines.
func ReadFileList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrorf("reading file list: %v", err)
	}
	var files []string
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := string(data[start:i])
			if line != "" && line != "\r" {
				files = append(files, line)
			}
			start = i + 1
		}
	}
	if len(files) == 0 {
		return nil, configErrorf("file list %s is empty", path)
	}
	return files, nil
}
