package pidcalib

// DefaultAliases maps user-level variable names to the raw column names
// of the calibration samples. Names missing from the table are used raw
// with a warning.
func DefaultAliases() map[string]string {
	return map[string]string{
		"DLLK":                  "probe_PIDK",
		"DLLd":                  "probe_PIDd",
		"DLLe":                  "probe_PIDe",
		"DLLmu":                 "probe_PIDmu",
		"DLLp":                  "probe_PIDp",
		"ETA":                   "probe_ETA",
		"P":                     "probe_P",
		"PT":                    "probe_PT",
		"HasRich":               "probe_hasRich",
		"IPCHI2":                "probe_IPCHI2",
		"InMuonAcc":             "probe_InMuonAcc",
		"IsMuon":                "probe_isMuon",
		"MuonUnbiased":          "probe_MuonUnbiased",
		"TRACK_GHOSTPROB":       "probe_TRACK_GHOSTPROB",
		"TRCHI2NDOF":            "probe_TRCHI2NDOF",
		"MC15TuneV1_ProbNNe":    "probe_MC15TuneV1_ProbNNe",
		"MC15TuneV1_ProbNNghost": "probe_MC15TuneV1_ProbNNghost",
		"MC15TuneV1_ProbNNk":    "probe_MC15TuneV1_ProbNNk",
		"MC15TuneV1_ProbNNmu":   "probe_MC15TuneV1_ProbNNmu",
		"MC15TuneV1_ProbNNp":    "probe_MC15TuneV1_ProbNNp",
		"MC15TuneV1_ProbNNpi":   "probe_MC15TuneV1_ProbNNpi",
		"Brunel_DLLK":           "probe_Brunel_PIDK",
		"Brunel_DLLe":           "probe_Brunel_PIDe",
		"Brunel_DLLmu":          "probe_Brunel_PIDmu",
		"Brunel_DLLp":           "probe_Brunel_PIDp",
		"Brunel_ETA":            "probe_Brunel_ETA",
		"Brunel_P":              "probe_Brunel_P",
		"Brunel_PT":             "probe_Brunel_PT",
		"Brunel_IsMuon":         "probe_Brunel_isMuon",
		"Brunel_TRCHI2NDOF":     "probe_Brunel_TRCHI2NDOF",
		"nSPDhits":              "nSPDhits",
		"nSPDhits_Brunel":       "nSPDhits_Brunel",
		"nTracks":               "nTracks",
		"nTracks_Brunel":        "nTracks_Brunel",
		"trackcharge":           "probe_trackcharge",
	}
}

// DefaultWeightColumn is the per-event sWeight column of the calibration
// samples. Samples without it fall back to unit weights.
const DefaultWeightColumn = "probe_sWeight"

// globalBranches are event-level variables that are not prefixed with a
// particle branch name in reference samples.
var globalBranches = map[string]bool{
	"nTracks":         true,
	"nTracks_Brunel":  true,
	"nSPDhits":        true,
	"nSPDhits_Brunel": true,
}

// ReferenceBranchName returns the reference-sample branch holding a
// binning variable for the particle with the given branch prefix.
// Event-level variables are shared by all particles and carry no prefix.
func ReferenceBranchName(prefix, binVar, branch string) string {
	if globalBranches[binVar] {
		return branch
	}
	return prefix + "_" + branch
}
