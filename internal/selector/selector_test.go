package selector

import (
	"testing"

	"github.com/bikeshrana/awfes/pkg/types"
)

func wfe(v float64) *float64 { return &v }

func defaultConfig() Config {
	return Config{StabilityMargin: 0.10, WFERejectThreshold: 0.30}
}

func TestClassify_BandBoundaries(t *testing.T) {
	tests := []struct {
		wfe  float64
		want Band
	}{
		{0.90, BandExcellent},
		{0.70, BandExcellent},
		{0.69, BandAcceptable},
		{0.50, BandAcceptable},
		{0.49, BandInvestigate},
		{0.30, BandInvestigate},
		{0.29, BandReject},
		{0.0, BandReject},
	}
	for _, tt := range tests {
		if got := ClassifyBand(tt.wfe); got != tt.want {
			t.Errorf("ClassifyBand(%v) = %v, want %v", tt.wfe, got, tt.want)
		}
	}
}

func TestSelect_NoValidCandidatesRejects(t *testing.T) {
	sweep := []types.EpochSweepResult{
		{Epoch: 5, WFE: nil, Status: types.SweepISTooLow},
		{Epoch: 10, WFE: nil, Status: types.SweepISTooLow},
	}
	result := Select(sweep, nil, defaultConfig(), nil)
	if result.Status != types.FoldReject {
		t.Errorf("Status = %v, want FoldReject", result.Status)
	}
	if result.RejectReason != "no_valid_candidates" {
		t.Errorf("RejectReason = %q, want no_valid_candidates", result.RejectReason)
	}
}

func TestSelect_MaxWFEBelowThresholdRejects(t *testing.T) {
	sweep := []types.EpochSweepResult{
		{Epoch: 5, WFE: wfe(0.1)},
		{Epoch: 10, WFE: wfe(0.2)},
	}
	result := Select(sweep, nil, defaultConfig(), nil)
	if result.Status != types.FoldReject {
		t.Errorf("Status = %v, want FoldReject", result.Status)
	}
	if result.RejectReason != "max_wfe_below_threshold" {
		t.Errorf("RejectReason = %q, want max_wfe_below_threshold", result.RejectReason)
	}
}

func TestSelect_PicksHighestWFEOnFrontierWhenNoHistory(t *testing.T) {
	sweep := []types.EpochSweepResult{
		{Epoch: 5, WFE: wfe(0.60), TrainingCost: 1.0},
		{Epoch: 10, WFE: wfe(0.80), TrainingCost: 2.0},
		{Epoch: 20, WFE: wfe(0.75), TrainingCost: 3.0},
	}
	result := Select(sweep, nil, defaultConfig(), nil)
	if result.Status != types.FoldNormal {
		t.Fatalf("Status = %v, want FoldNormal", result.Status)
	}
	if result.SelectedEpoch != 10 {
		t.Errorf("SelectedEpoch = %v, want 10 (highest WFE)", result.SelectedEpoch)
	}
	if !result.Changed {
		t.Error("first-ever selection should report Changed = true")
	}
}

func TestSelect_InvestigateBandAddsWarning(t *testing.T) {
	sweep := []types.EpochSweepResult{
		{Epoch: 5, WFE: wfe(0.35), TrainingCost: 1.0},
	}
	result := Select(sweep, nil, defaultConfig(), nil)
	found := false
	for _, w := range result.Warnings {
		if w == "wfe_in_investigate_band" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected wfe_in_investigate_band warning, got %v", result.Warnings)
	}
}

func TestSelect_SwitchesWhenPreviousEpochOffFrontier(t *testing.T) {
	sweep := []types.EpochSweepResult{
		{Epoch: 5, WFE: wfe(0.60), TrainingCost: 1.0},
		{Epoch: 10, WFE: wfe(0.80), TrainingCost: 2.0},
	}
	prev := types.EpochCandidate(999) // never evaluated this fold
	result := Select(sweep, &prev, defaultConfig(), nil)
	if result.SelectedEpoch != 10 {
		t.Errorf("SelectedEpoch = %v, want 10 when previous epoch is not on the frontier", result.SelectedEpoch)
	}
	if !result.Changed {
		t.Error("expected Changed = true when the previous epoch could not be held")
	}
}

func TestSelect_HoldsPreviousEpochWhenImprovementBelowMargin(t *testing.T) {
	// Previous epoch sits on the frontier with a WFE close enough to the
	// new best that the relative improvement doesn't clear the margin. The
	// new best costs more, so it doesn't dominate the previous epoch off
	// the frontier outright.
	sweep := []types.EpochSweepResult{
		{Epoch: 10, WFE: wfe(0.70), TrainingCost: 1.0},
		{Epoch: 5, WFE: wfe(0.71), TrainingCost: 2.0},
	}
	prev := types.EpochCandidate(10)
	result := Select(sweep, &prev, defaultConfig(), nil)
	if result.Changed {
		t.Errorf("expected stability hold (Changed = false), got Changed = true, selected %v", result.SelectedEpoch)
	}
	if result.SelectedEpoch != 10 {
		t.Errorf("SelectedEpoch = %v, want held-over previous epoch 10", result.SelectedEpoch)
	}
}

func TestSelect_SwitchesWhenImprovementClearsMargin(t *testing.T) {
	sweep := []types.EpochSweepResult{
		{Epoch: 5, WFE: wfe(0.50), TrainingCost: 1.0},
		{Epoch: 10, WFE: wfe(0.90), TrainingCost: 2.0},
	}
	prev := types.EpochCandidate(5)
	result := Select(sweep, &prev, defaultConfig(), nil)
	if !result.Changed {
		t.Error("expected Changed = true when improvement clearly exceeds the stability margin")
	}
	if result.SelectedEpoch != 10 {
		t.Errorf("SelectedEpoch = %v, want 10", result.SelectedEpoch)
	}
}

func TestParetoFrontier_ExcludesDominatedCandidates(t *testing.T) {
	candidates := []Candidate{
		{Epoch: 5, WFE: 0.5, Cost: 3.0},  // dominated: worse WFE, worse cost than epoch 10
		{Epoch: 10, WFE: 0.8, Cost: 2.0}, // dominates epoch 5 outright
		{Epoch: 20, WFE: 0.9, Cost: 5.0}, // higher WFE, higher cost: non-dominated tradeoff
	}
	frontier := paretoFrontier(candidates)

	for _, c := range frontier {
		if c.Epoch == 5 {
			t.Error("epoch 5 is strictly dominated by epoch 10 and should not be on the frontier")
		}
	}
	var has10, has20 bool
	for _, c := range frontier {
		if c.Epoch == 10 {
			has10 = true
		}
		if c.Epoch == 20 {
			has20 = true
		}
	}
	if !has10 || !has20 {
		t.Errorf("expected both non-dominated tradeoff points on the frontier, got %+v", frontier)
	}
}

func TestDominates_RequiresAtLeastOneStrictInequality(t *testing.T) {
	a := Candidate{WFE: 0.5, Cost: 1.0}
	b := Candidate{WFE: 0.5, Cost: 1.0}
	if dominates(a, b) {
		t.Error("identical candidates should not dominate one another")
	}
}

func TestAdaptiveMargin_ShortHistoryUsesFixedBase(t *testing.T) {
	got := adaptiveMargin(0.10, []float64{0.5, 0.6})
	if got != 0.10 {
		t.Errorf("adaptiveMargin with <5 history points = %v, want fixed base 0.10", got)
	}
}

func TestAdaptiveMargin_WidensWithVariability(t *testing.T) {
	stable := adaptiveMargin(0.10, []float64{0.6, 0.6, 0.6, 0.6, 0.6})
	volatile := adaptiveMargin(0.10, []float64{0.2, 0.9, 0.3, 0.8, 0.1})

	if stable != 0.10 {
		t.Errorf("zero-variance history should leave margin at the base, got %v", stable)
	}
	if !(volatile > stable) {
		t.Errorf("volatile WFE history should widen the margin above the stable case: volatile=%v stable=%v",
			volatile, stable)
	}
}

func TestAdaptiveMargin_ZeroMeanFallsBackToBase(t *testing.T) {
	got := adaptiveMargin(0.10, []float64{-1, 1, -1, 1, 0})
	if got != 0.10 {
		t.Errorf("zero-mean history should fall back to the fixed base, got %v", got)
	}
}

func TestFindEpoch_ReportsMembership(t *testing.T) {
	frontier := []Candidate{{Epoch: 5, WFE: 0.5}, {Epoch: 10, WFE: 0.8}}
	if _, ok := findEpoch(frontier, 10); !ok {
		t.Error("expected epoch 10 to be found on the frontier")
	}
	if _, ok := findEpoch(frontier, 999); ok {
		t.Error("epoch 999 was never on the frontier")
	}
}
