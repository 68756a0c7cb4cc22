// Command plot_calib_distributions draws 1-D distributions of calibration
// sample variables, weighted by the per-event sWeights. It shares the
// binning resolution of make_eff_hists, so a plot shows the range the
// efficiency histograms will cover.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"

	pidcalib "github.com/umd-lhcb/pidcalib2"
)

var (
	sample      = flag.String("sample", "", "calibration sample (Turbo18, Electron16, ...)")
	magnet      = flag.String("magnet", "", "magnet polarity (up, down)")
	particle    = flag.String("particle", "", "particle type (Pi, K, P, Mu, ...)")
	binningFile = flag.String("binning-file", "", "JSON file with user binning overrides")
	outputDir   = flag.String("output-dir", "pidcalib_output", "directory where to save the plots")
	samplesFile = flag.String("samples-file", "", "JSON file with the calibration sample registry")
	fileList    = flag.String("file-list", "", "(debug) read calibration file paths from a text file")
	maxFiles    = flag.Int("max-files", 0, "(debug) max number of files to read")
	nBins       = flag.Int("bins", 50, "number of uniform bins per plot")
	format      = flag.String("format", "png", "plot format (png, pdf)")
	title       = flag.String("title", "", "plot title")
	chunkSize   = flag.Int("chunk-size", 0, "events per chunk (0 = default)")

	binVars pidcalib.StringArrayFlags
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: `+os.Args[0]+` [options]

options:
`,
	)
	flag.PrintDefaults()
}

func main() {
	flag.Var(&binVars, "bin-var", "variable to plot (repeatable)")
	flag.Usage = printUsage
	flag.Parse()

	if *sample == "" || *particle == "" || len(binVars.Array) == 0 {
		printUsage()
		log.Fatal("-sample, -magnet, -particle and -bin-var are required")
	}
	if *magnet != "up" && *magnet != "down" {
		log.Fatalf("invalid -magnet %q: must be up or down", *magnet)
	}
	if *format != "png" && *format != "pdf" {
		log.Fatalf("invalid -format %q: must be png or pdf", *format)
	}

	var binnings pidcalib.Binning
	if *binningFile != "" {
		var err error
		binnings, err = pidcalib.LoadBinnings(*binningFile)
		if err != nil {
			log.Fatal(err)
		}
	}

	files, err := resolveFiles()
	if err != nil {
		log.Fatal(err)
	}

	aliases := pidcalib.DefaultAliases()
	columns := make([]string, len(binVars.Array))
	for i, binVar := range binVars.Array {
		if raw, ok := aliases[binVar]; ok {
			columns[i] = raw
		} else {
			columns[i] = binVar
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	spans, err := variableSpans(ctx, files, binVars.Array, columns, binnings)
	if err != nil {
		log.Fatal(err)
	}

	hists := make([]*hbook.H1D, len(binVars.Array))
	for i := range binVars.Array {
		hists[i] = hbook.NewH1D(*nBins, spans[i].Min, spans[i].Max)
	}

	for _, path := range files {
		if err := fillFile(ctx, path, columns, hists); err != nil {
			log.Fatal(err)
		}
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatal(err)
	}
	for i, binVar := range binVars.Array {
		p, _ := plot.New()
		p.Title.Text = *title
		p.X.Label.Text = binVar
		p.Y.Label.Text = "sWeighted events"
		p.X.Tick.Marker = pidcalib.PreciseTicks{NSuggestedTicks: 5}
		p.Y.Tick.Marker = pidcalib.PreciseTicks{NSuggestedTicks: 5}

		p.Add(hplot.NewH1D(hists[i]))

		out := filepath.Join(*outputDir, fmt.Sprintf("%s-%s-%s-%s.%s",
			*sample, *magnet, *particle, binVar, *format))
		if err := p.Save(6*vg.Inch, 4*vg.Inch, out); err != nil {
			log.Fatal(err)
		}
		log.Printf("plot saved to %s", out)
	}
}

// variableSpans returns the plot range for every variable: the outer
// edges of its resolved binning where one exists, the observed data range
// otherwise.
func variableSpans(ctx context.Context, files []string, vars, columns []string,
	binnings pidcalib.Binning) ([]pidcalib.Span, error) {

	spans := make([]pidcalib.Span, len(vars))
	var unknown []int
	for i, binVar := range vars {
		edges, err := pidcalib.ResolveBinning(*particle, binVar, binnings, nil, 0)
		if err != nil {
			unknown = append(unknown, i)
			continue
		}
		spans[i] = pidcalib.Span{Min: edges[0], Max: edges[len(edges)-1]}
	}
	if len(unknown) == 0 {
		return spans, nil
	}

	for _, i := range unknown {
		spans[i] = pidcalib.Span{Min: math.Inf(1), Max: math.Inf(-1)}
	}
	for _, path := range files {
		reader, err := pidcalib.OpenSample(path, "", columns, pidcalib.DefaultWeightColumn, *chunkSize)
		if err != nil {
			return nil, err
		}
		for batch := range reader.ScanChunks(ctx) {
			for _, i := range unknown {
				col, _ := batch.Column(columns[i])
				for _, v := range col {
					spans[i].Min = math.Min(spans[i].Min, v)
					spans[i].Max = math.Max(spans[i].Max, v)
				}
			}
		}
		err = reader.Err()
		reader.Close()
		if err != nil {
			return nil, err
		}
	}
	for _, i := range unknown {
		if !(spans[i].Min < spans[i].Max) {
			return nil, fmt.Errorf("cannot plot %s: degenerate data range", vars[i])
		}
	}
	return spans, nil
}

func fillFile(ctx context.Context, path string, columns []string, hists []*hbook.H1D) error {
	reader, err := pidcalib.OpenSample(path, "", columns, pidcalib.DefaultWeightColumn, *chunkSize)
	if err != nil {
		return err
	}
	defer reader.Close()
	for batch := range reader.ScanChunks(ctx) {
		weights := batch.Weights()
		for i, col := range columns {
			vals, _ := batch.Column(col)
			for j, v := range vals {
				hists[i].Fill(v, weights[j])
			}
		}
	}
	return reader.Err()
}

func resolveFiles() ([]string, error) {
	if *fileList != "" {
		files, err := pidcalib.ReadFileList(*fileList)
		if err != nil {
			return nil, err
		}
		if *maxFiles > 0 && *maxFiles < len(files) {
			files = files[:*maxFiles]
		}
		return files, nil
	}
	if *samplesFile == "" {
		return nil, fmt.Errorf("either -samples-file or -file-list is required")
	}
	samples, err := pidcalib.LoadSamples(*samplesFile)
	if err != nil {
		return nil, err
	}
	entry, err := pidcalib.GetCalibrationSample(samples, *sample, *magnet, *particle, *maxFiles)
	if err != nil {
		return nil, err
	}
	return entry.Files, nil
}
