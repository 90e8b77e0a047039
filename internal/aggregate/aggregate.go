// Package aggregate rolls a run's FoldOutcomes into the cross-fold
// AggregateReport: medians for robustness, selection and WFE
// distributions, and the peak-picking/stability/N_eff/meta-overfitting
// diagnostics. The median-first approach and the overall shape of
// calculateAggregateStats in the inherited walk-forward analyzer are kept;
// the statistics themselves are new, per-fold WFE/epoch diagnostics rather
// than per-period return/Sharpe summaries.
package aggregate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bikeshrana/awfes/pkg/types"
)

// Config carries the run inputs the N_eff diagnostic needs; the verdict
// thresholds themselves are fixed in applyVerdict.
type Config struct {
	KEpochCandidates int     // number of epoch candidates swept per fold
	Rho              float64 // fold autocorrelation, supplied by the caller
}

// Build aggregates a run's FoldOutcomes into an AggregateReport.
func Build(outcomes []types.FoldOutcome, cfg Config) types.AggregateReport {
	report := types.AggregateReport{
		NFolds:         len(outcomes),
		EpochHistogram: make(map[int]int),
	}
	if len(outcomes) == 0 {
		report.Verdict = types.VerdictRejectAll
		report.ReasonCodes = append(report.ReasonCodes, "no_folds")
		return report
	}

	var sharpes, wfes []float64
	var epochs []float64
	rejectedOrFailed := 0
	changes := 0
	var prevEpoch *types.EpochCandidate
	boundaryHits := 0

	var minEpoch, maxEpoch types.EpochCandidate
	first := true

	for _, o := range outcomes {
		if o.Status == types.FoldReject || o.Status == types.FoldFailed {
			rejectedOrFailed++
		}
		sharpes = append(sharpes, o.TestMetrics.SharpeTW)
		for _, sw := range o.SweepTable {
			if sw.WFE != nil {
				wfes = append(wfes, *sw.WFE)
			}
			if first || sw.Epoch < minEpoch {
				minEpoch = sw.Epoch
			}
			if first || sw.Epoch > maxEpoch {
				maxEpoch = sw.Epoch
			}
			first = false
		}

		epoch := o.SelectedEpoch
		epochs = append(epochs, float64(epoch))
		report.EpochHistogram[int(epoch)]++

		if prevEpoch != nil && *prevEpoch != epoch {
			changes++
		}
		e := epoch
		prevEpoch = &e
	}

	for _, o := range outcomes {
		if o.SelectedEpoch == minEpoch || o.SelectedEpoch == maxEpoch {
			boundaryHits++
		}
	}

	report.MedianSharpeTW = median(sharpes)
	report.MeanSharpeTW = mean(sharpes)
	report.StdSharpeTW = stddev(sharpes, report.MeanSharpeTW)
	report.PositiveSharpeFrac = fractionPositive(sharpes)
	report.MedianWFE = median(wfes)
	report.ModeEpoch = mode(report.EpochHistogram)
	report.PeakPickingFraction = float64(boundaryHits) / float64(len(outcomes))
	report.ChangeRate = float64(changes) / math.Max(float64(len(outcomes)-1), 1)
	report.EpochCV = coefficientOfVariation(epochs)

	kEpochs := cfg.KEpochCandidates
	if kEpochs < 1 {
		kEpochs = 1
	}
	rho := cfg.Rho
	report.NEff = float64(len(outcomes)) * (1 / math.Sqrt(float64(kEpochs))) * ((1 - rho) / (1 + rho))

	report.ChiSquarePValue = chiSquareUniformityP(report.EpochHistogram)
	report.MetaOverfitFlag = report.ChiSquarePValue > 0.5 || report.EpochCV > 0.5

	report = applyVerdict(report, rejectedOrFailed, len(outcomes))
	return report
}

func applyVerdict(report types.AggregateReport, rejectedOrFailed, nFolds int) types.AggregateReport {
	var reasons []string

	rejectFrac := float64(rejectedOrFailed) / math.Max(float64(nFolds), 1)
	if rejectFrac >= 0.5 {
		reasons = append(reasons, "max_wfe_below_threshold")
	}
	if report.NEff < 10 {
		reasons = append(reasons, "n_eff_below_floor")
	}
	if report.PeakPickingFraction > 0.5 {
		reasons = append(reasons, "peak_picking_exceeded")
	}

	if len(reasons) > 0 {
		report.Verdict = types.VerdictRejectAll
		report.ReasonCodes = reasons
		return report
	}

	if report.MedianWFE < 0.50 || report.PositiveSharpeFrac <= 0.55 || report.MetaOverfitFlag {
		report.Verdict = types.VerdictWarning
		if report.MedianWFE < 0.50 {
			report.ReasonCodes = append(report.ReasonCodes, "median_wfe_below_target")
		}
		if report.PositiveSharpeFrac <= 0.55 {
			report.ReasonCodes = append(report.ReasonCodes, "positive_sharpe_fraction_below_target")
		}
		if report.MetaOverfitFlag {
			report.ReasonCodes = append(report.ReasonCodes, "meta_overfit_flagged")
		}
		return report
	}

	report.Verdict = types.VerdictAccept
	return report
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func stddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var variance float64
	for _, x := range xs {
		d := x - m
		variance += d * d
	}
	variance /= float64(len(xs) - 1)
	return math.Sqrt(variance)
}

func fractionPositive(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	count := 0
	for _, x := range xs {
		if x > 0 {
			count++
		}
	}
	return float64(count) / float64(len(xs))
}

func coefficientOfVariation(xs []float64) float64 {
	m := mean(xs)
	if m == 0 {
		return 0
	}
	return stddev(xs, m) / math.Abs(m)
}

func mode(histogram map[int]int) int {
	best, bestCount := 0, -1
	keys := make([]int, 0, len(histogram))
	for k := range histogram {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if histogram[k] > bestCount {
			best, bestCount = k, histogram[k]
		}
	}
	return best
}

// chiSquareUniformityP tests the selected-epoch histogram against a
// uniform distribution. A high p-value means the selections look scattered
// evenly across epochs, which Build treats as a meta-overfitting signal
// (p > 0.5). A histogram with fewer than two distinct epochs returns 1.
func chiSquareUniformityP(histogram map[int]int) float64 {
	if len(histogram) < 2 {
		return 1
	}
	total := 0
	for _, c := range histogram {
		total += c
	}
	expected := float64(total) / float64(len(histogram))
	if expected == 0 {
		return 1
	}

	stat := 0.0
	for _, observed := range histogram {
		d := float64(observed) - expected
		stat += d * d / expected
	}

	df := float64(len(histogram) - 1)
	dist := distuv.ChiSquared{K: df}
	return 1 - dist.CDF(stat)
}
