package aggregate

import (
	"math"
	"testing"

	"github.com/bikeshrana/awfes/pkg/types"
)

func wfe(v float64) *float64 { return &v }

// outcome builds a fold result whose sweep table spans a fixed [5,200]
// candidate range so a mid-range selection never trips the boundary-hit
// (peak-picking) diagnostic in tests that aren't specifically exercising it.
func outcome(epoch int, sharpe float64, status types.FoldStatus) types.FoldOutcome {
	return types.FoldOutcome{
		SelectedEpoch: types.EpochCandidate(epoch),
		TestMetrics:   types.MetricBundle{SharpeTW: sharpe},
		Status:        status,
		SweepTable: []types.EpochSweepResult{
			{Epoch: 5, WFE: wfe(0.8)},
			{Epoch: types.EpochCandidate(epoch), WFE: wfe(0.8)},
			{Epoch: 200, WFE: wfe(0.8)},
		},
	}
}

func TestBuild_EmptyOutcomesRejectsAll(t *testing.T) {
	report := Build(nil, Config{})
	if report.Verdict != types.VerdictRejectAll {
		t.Errorf("Verdict = %v, want VerdictRejectAll", report.Verdict)
	}
	if len(report.ReasonCodes) == 0 || report.ReasonCodes[0] != "no_folds" {
		t.Errorf("ReasonCodes = %v, want [no_folds]", report.ReasonCodes)
	}
}

func TestBuild_MedianSharpeIsRobustToOutlier(t *testing.T) {
	outcomes := []types.FoldOutcome{
		outcome(10, 1.0, types.FoldNormal),
		outcome(10, 1.1, types.FoldNormal),
		outcome(10, 100.0, types.FoldNormal), // outlier shouldn't move the median
	}
	report := Build(outcomes, Config{KEpochCandidates: 10})
	if math.Abs(report.MedianSharpeTW-1.1) > 1e-9 {
		t.Errorf("MedianSharpeTW = %v, want 1.1", report.MedianSharpeTW)
	}
	if report.MeanSharpeTW <= report.MedianSharpeTW {
		t.Errorf("mean (%v) should be pulled above the median (%v) by the outlier", report.MeanSharpeTW, report.MedianSharpeTW)
	}
}

func TestBuild_EpochHistogramCountsSelections(t *testing.T) {
	outcomes := []types.FoldOutcome{
		outcome(10, 1.0, types.FoldNormal),
		outcome(10, 1.0, types.FoldNormal),
		outcome(20, 1.0, types.FoldNormal),
	}
	report := Build(outcomes, Config{KEpochCandidates: 10})
	if report.EpochHistogram[10] != 2 {
		t.Errorf("EpochHistogram[10] = %d, want 2", report.EpochHistogram[10])
	}
	if report.ModeEpoch != 10 {
		t.Errorf("ModeEpoch = %d, want 10", report.ModeEpoch)
	}
}

func TestBuild_ChangeRateCountsEpochTransitions(t *testing.T) {
	outcomes := []types.FoldOutcome{
		outcome(10, 1.0, types.FoldNormal),
		outcome(10, 1.0, types.FoldNormal),
		outcome(20, 1.0, types.FoldNormal),
		outcome(20, 1.0, types.FoldNormal),
	}
	report := Build(outcomes, Config{KEpochCandidates: 10})
	want := 1.0 / 3.0 // one change out of three fold-to-fold transitions
	if math.Abs(report.ChangeRate-want) > 1e-9 {
		t.Errorf("ChangeRate = %v, want %v", report.ChangeRate, want)
	}
}

func TestBuild_HighRejectFractionForcesRejectAll(t *testing.T) {
	outcomes := []types.FoldOutcome{
		outcome(10, 1.0, types.FoldReject),
		outcome(10, 1.0, types.FoldReject),
		outcome(10, 1.0, types.FoldNormal),
	}
	report := Build(outcomes, Config{KEpochCandidates: 10})
	if report.Verdict != types.VerdictRejectAll {
		t.Errorf("Verdict = %v, want VerdictRejectAll with 2/3 folds rejected", report.Verdict)
	}
}

func TestBuild_PeakPickingFractionFlagsBoundaryHugging(t *testing.T) {
	// Every fold lands on the sweep's min or max epoch: a textbook boundary-
	// hugging selector.
	outcomes := []types.FoldOutcome{
		{SelectedEpoch: 5, TestMetrics: types.MetricBundle{SharpeTW: 1}, Status: types.FoldNormal,
			SweepTable: []types.EpochSweepResult{{Epoch: 5, WFE: wfe(0.8)}, {Epoch: 200, WFE: wfe(0.8)}}},
		{SelectedEpoch: 200, TestMetrics: types.MetricBundle{SharpeTW: 1}, Status: types.FoldNormal,
			SweepTable: []types.EpochSweepResult{{Epoch: 5, WFE: wfe(0.8)}, {Epoch: 200, WFE: wfe(0.8)}}},
	}
	report := Build(outcomes, Config{KEpochCandidates: 2})
	if report.PeakPickingFraction != 1.0 {
		t.Errorf("PeakPickingFraction = %v, want 1.0", report.PeakPickingFraction)
	}
	if report.Verdict != types.VerdictRejectAll {
		t.Errorf("Verdict = %v, want VerdictRejectAll when peak-picking exceeds 0.5", report.Verdict)
	}
}

func TestBuild_AcceptWhenEveryGateClears(t *testing.T) {
	outcomes := make([]types.FoldOutcome, 12)
	for i := range outcomes {
		epoch := 50
		if i < 2 {
			epoch = 55 // a couple of dissenting folds so the epoch
			// histogram isn't perfectly uniform across a single bucket,
			// which would otherwise itself read as a meta-overfit signal
		}
		outcomes[i] = outcome(epoch, 1.5, types.FoldNormal)
	}
	report := Build(outcomes, Config{KEpochCandidates: 1})
	if report.Verdict != types.VerdictAccept {
		t.Errorf("Verdict = %v, want VerdictAccept; reasons=%v nEff=%v medianWFE=%v posFrac=%v",
			report.Verdict, report.ReasonCodes, report.NEff, report.MedianWFE, report.PositiveSharpeFrac)
	}
}

func TestBuild_LowMedianWFEWarns(t *testing.T) {
	outcomes := make([]types.FoldOutcome, 12)
	for i := range outcomes {
		outcomes[i] = types.FoldOutcome{
			SelectedEpoch: 50,
			TestMetrics:   types.MetricBundle{SharpeTW: 1.5},
			Status:        types.FoldNormal,
			SweepTable: []types.EpochSweepResult{
				{Epoch: 5, WFE: wfe(0.35)},
				{Epoch: 50, WFE: wfe(0.35)},
				{Epoch: 200, WFE: wfe(0.35)},
			},
		}
	}
	report := Build(outcomes, Config{KEpochCandidates: 1})
	if report.Verdict != types.VerdictWarning {
		t.Errorf("Verdict = %v, want VerdictWarning for median WFE below 0.50", report.Verdict)
	}
}

func TestNEff_DecreasesWithHigherAutocorrelation(t *testing.T) {
	outcomes := make([]types.FoldOutcome, 10)
	for i := range outcomes {
		outcomes[i] = outcome(50, 1.0, types.FoldNormal)
	}
	low := Build(outcomes, Config{KEpochCandidates: 10, Rho: 0.0})
	high := Build(outcomes, Config{KEpochCandidates: 10, Rho: 0.8})
	if !(high.NEff < low.NEff) {
		t.Errorf("higher fold autocorrelation should reduce effective sample size: low=%v high=%v", low.NEff, high.NEff)
	}
}

func TestMedian_EvenAndOddCounts(t *testing.T) {
	if got := median([]float64{1, 2, 3}); got != 2 {
		t.Errorf("median of odd slice = %v, want 2", got)
	}
	if got := median([]float64{1, 2, 3, 4}); got != 2.5 {
		t.Errorf("median of even slice = %v, want 2.5", got)
	}
	if got := median(nil); got != 0 {
		t.Errorf("median of empty slice = %v, want 0", got)
	}
}

func TestMode_PicksHighestCountLowestKeyOnTie(t *testing.T) {
	histogram := map[int]int{10: 2, 20: 2, 30: 1}
	if got := mode(histogram); got != 10 {
		t.Errorf("mode() = %d, want 10 (lowest key among tied counts)", got)
	}
}

func TestChiSquareUniformityP_SingleBucketIsDegenerate(t *testing.T) {
	if got := chiSquareUniformityP(map[int]int{5: 10}); got != 1 {
		t.Errorf("chiSquareUniformityP with one bucket = %v, want 1", got)
	}
}

func TestChiSquareUniformityP_UniformHistogramHasHighPValue(t *testing.T) {
	histogram := map[int]int{5: 10, 10: 10, 15: 10, 20: 10}
	p := chiSquareUniformityP(histogram)
	if p < 0.9 {
		t.Errorf("perfectly uniform histogram should have a high p-value, got %v", p)
	}
}

func TestCoefficientOfVariation_ZeroMeanReturnsZero(t *testing.T) {
	if got := coefficientOfVariation([]float64{0, 0, 0}); got != 0 {
		t.Errorf("coefficientOfVariation of all-zero input = %v, want 0", got)
	}
}
