// Command ref_calib assigns PID efficiencies to the events of a user's
// reference sample, using histograms previously created by
// make_eff_hists with matching parameters.
//
// Each named particle of an event is looked up in its efficiency
// histogram; the event efficiency is the product over particles. The
// resulting efficiency and uncertainty series are written as a
// rowid-aligned table in a separate output database, leaving the
// reference file untouched.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	pidcalib "github.com/umd-lhcb/pidcalib2"
)

var (
	sample    = flag.String("sample", "", "calibration sample the histograms were made from")
	magnet    = flag.String("magnet", "", "magnet polarity (up, down)")
	refFile   = flag.String("ref-file", "", "reference sample file")
	refTable  = flag.String("ref-table", "ref", "reference sample table name")
	binVarsIn = flag.String("bin-vars", `{"P": "P", "ETA": "ETA", "nTracks": "nTracks"}`,
		"JSON map of binning variables to their reference branch names")
	refParsIn = flag.String("ref-pars", "",
		`JSON map of particle branch prefixes to [particle, pid-cut], e.g. {"Bach": ["K", "DLLK > 4"]}`)
	outputDir = flag.String("output-dir", "pidcalib_output",
		"directory holding the efficiency histograms and receiving the output")
	chunkSize = flag.Int("chunk-size", 0, "events per chunk (0 = default)")
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: `+os.Args[0]+` [options]

options:
`,
	)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if *sample == "" || *refFile == "" || *refParsIn == "" {
		printUsage()
		log.Fatal("-sample, -magnet, -ref-file and -ref-pars are required")
	}
	if *magnet != "up" && *magnet != "down" {
		log.Fatalf("invalid -magnet %q: must be up or down", *magnet)
	}

	specs, err := pidcalib.ParseRefParticles(*refParsIn)
	if err != nil {
		log.Fatal(err)
	}
	binVars, err := pidcalib.ParseBinVarMap(*binVarsIn)
	if err != nil {
		log.Fatal(err)
	}
	binVarNames := make([]string, 0, len(binVars))
	for name := range binVars {
		binVarNames = append(binVarNames, name)
	}
	sort.Strings(binVarNames)

	hists := make(map[string]*pidcalib.EffHist, len(specs))
	for _, spec := range specs {
		artifact, err := pidcalib.FindEffHist(*outputDir, *sample, *magnet,
			spec.Particle, spec.PIDCut, binVarNames)
		if err != nil {
			log.Fatal(err)
		}
		hists[spec.Prefix] = artifact.EffHist()
	}

	branches := pidcalib.ReferenceBranches(specs, binVars)
	log.Printf("loading reference sample '%s' (branches: %s)", *refFile, strings.Join(branches, ", "))

	reader, err := pidcalib.OpenSample(*refFile, *refTable, branches, "", *chunkSize)
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var effs, errs []float64
	for batch := range reader.ScanChunks(ctx) {
		chunkEffs, chunkErrs, err := pidcalib.ApplyEfficiencies(batch, specs, binVars, hists)
		if err != nil {
			log.Fatal(err)
		}
		effs = append(effs, chunkEffs...)
		errs = append(errs, chunkErrs...)
	}
	if err := reader.Err(); err != nil {
		log.Fatal(err)
	}
	log.Printf("%d reference events processed", len(effs))

	avg, _ := pidcalib.AverageEff(effs)
	log.Printf("average per-event PID efficiency: %.2f%%", 100*avg)

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatal(err)
	}
	base := filepath.Base(*refFile)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	outPath := filepath.Join(*outputDir, base+"_PID_eff.db")
	tmpPath := filepath.Join(*outputDir, "."+uuid.NewString()+".tmp")
	if err := pidcalib.WriteEffTable(tmpPath, effs, errs); err != nil {
		os.Remove(tmpPath)
		log.Fatal(err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		log.Fatal(err)
	}
	log.Printf("efficiency table saved to %s", outPath)
}
