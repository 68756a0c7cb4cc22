// Command make_eff_hists creates PID efficiency histograms from
// calibration samples and saves them to disk, one artifact per PID cut.
//
// Most of the run is spent reading calibration data, so passing several
// -pid-cut options in one invocation is much faster than running the
// command once per cut.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/profile"

	pidcalib "github.com/umd-lhcb/pidcalib2"
)

var (
	sample      = flag.String("sample", "", "calibration sample (Turbo18, Electron16, ...)")
	magnet      = flag.String("magnet", "", "magnet polarity (up, down)")
	particle    = flag.String("particle", "", "particle type (Pi, K, P, Mu, ...)")
	binningFile = flag.String("binning-file", "", "JSON file with user binning overrides")
	outputDir   = flag.String("output-dir", "pidcalib_output", "directory where to save output files")
	samplesFile = flag.String("samples-file", "", "JSON file with the calibration sample registry")
	fileList    = flag.String("file-list", "", "(debug) read calibration file paths from a text file")
	maxFiles    = flag.Int("max-files", 0, "(debug) max number of files to read")
	chunkSize   = flag.Int("chunk-size", 0, "events per chunk (0 = default)")
	doProfile   = flag.Bool("profile", false, "write a CPU profile to the output directory")

	pidCuts pidcalib.StringArrayFlags
	cuts    pidcalib.StringArrayFlags
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
	flag.Var(&pidCuts, "pid-cut", "PID cut, e.g. 'DLLK > 4' (repeatable)")
	flag.Var(&cuts, "cut", "arbitrary selection cut, e.g. 'IsMuon == 0' (repeatable)")
	flag.Var(&binVars, "bin-var", "binning variable, e.g. P (repeatable)")
	flag.Usage = printUsage
	flag.Parse()

	if *sample == "" || *particle == "" || len(pidCuts.Array) == 0 || len(binVars.Array) == 0 {
		printUsage()
		log.Fatal("-sample, -magnet, -particle, -pid-cut and -bin-var are required")
	}
	if *magnet != "up" && *magnet != "down" {
		log.Fatalf("invalid -magnet %q: must be up or down", *magnet)
	}

	if *doProfile {
		defer profile.Start(profile.ProfilePath(*outputDir)).Stop()
	}

	log.Printf("make_eff_hists: sample=%s magnet=%s particle=%s", *sample, *magnet, *particle)
	log.Printf("  pid cuts: %v", pidCuts.Array)
	log.Printf("  cuts:     %v", cuts.Array)
	log.Printf("  bin vars: %v", binVars.Array)

	var binnings pidcalib.Binning
	if *binningFile != "" {
		var err error
		binnings, err = pidcalib.LoadBinnings(*binningFile)
		if err != nil {
			log.Fatal(err)
		}
	}

	files, hardCuts, err := resolveFiles()
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("%d calibration files will be processed", len(files))

	cfg := pidcalib.AccumConfig{
		Particle:  *particle,
		BinVars:   binVars.Array,
		Binnings:  binnings,
		Cuts:      append(hardCuts, cuts.Array...),
		PIDCuts:   pidCuts.Array,
		Aliases:   pidcalib.DefaultAliases(),
		ChunkSize: *chunkSize,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	set, _, err := pidcalib.Accumulate(ctx, files, cfg)
	if err != nil {
		log.Fatal(err)
	}

	for cut, passing := range set.Passing {
		eff, err := pidcalib.ComputeEff(set.Total, passing)
		if err != nil {
			log.Fatal(err)
		}
		artifact := pidcalib.NewEffHistFile(*sample, *magnet, *particle, cut,
			binVars.Array, eff, set.Total, passing)
		path, err := pidcalib.SaveEffHist(*outputDir, artifact)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("efficiency histograms saved to '%s'", path)
	}
}

func resolveFiles() (files []string, hardCuts []string, err error) {
	if *fileList != "" {
		files, err = pidcalib.ReadFileList(*fileList)
		if err != nil {
			return nil, nil, err
		}
		if *maxFiles > 0 && *maxFiles < len(files) {
			files = files[:*maxFiles]
		}
		return files, nil, nil
	}
	if *samplesFile == "" {
		return nil, nil, fmt.Errorf("either -samples-file or -file-list is required")
	}
	samples, err := pidcalib.LoadSamples(*samplesFile)
	if err != nil {
		return nil, nil, err
	}
	entry, err := pidcalib.GetCalibrationSample(samples, *sample, *magnet, *particle, *maxFiles)
	if err != nil {
		return nil, nil, err
	}
	return entry.Files, entry.Cuts, nil
}
