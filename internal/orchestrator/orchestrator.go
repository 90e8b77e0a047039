// Package orchestrator drives the fold stream end to end: partition,
// query the smoother, apply its selection out of sample, sweep epoch
// candidates, run the frontier selector, fold the validation-optimal
// epoch back into the smoother, and append the fold's outcome. The
// sequential per-fold loop and its logging shape are adapted from the
// inherited walk-forward analyzer's Analyze method; everything inside
// one iteration is new.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/awfes/internal/aggregate"
	"github.com/bikeshrana/awfes/internal/events"
	"github.com/bikeshrana/awfes/internal/fold"
	"github.com/bikeshrana/awfes/internal/oos"
	"github.com/bikeshrana/awfes/internal/selector"
	"github.com/bikeshrana/awfes/internal/smoother"
	"github.com/bikeshrana/awfes/internal/sweep"
	"github.com/bikeshrana/awfes/pkg/types"
)

// Config carries the run-level tunables the Orchestrator needs, on top
// of the Fold Partitioner's own Policy and the Selector's own Config.
type Config struct {
	FoldPolicy      fold.Policy
	EpochCandidates []types.EpochCandidate
	Selector        selector.Config
	Annualize       types.AnnualizationFactor
	MaxWorkers      int
	Seed            int64
	AggregateCfg    aggregate.Config
}

// Orchestrator owns one run's Bayesian state and FoldOutcome history.
type Orchestrator struct {
	cfg      Config
	sweeper  *sweep.Runner
	oosEval  *oos.Evaluator
	smoother smoother.Smoother
	bus      *events.Bus
	logger   zerolog.Logger
}

// New returns an Orchestrator wired to run against bars.
func New(cfg Config, sweeper *sweep.Runner, oosEval *oos.Evaluator, sm smoother.Smoother, bus *events.Bus, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, sweeper: sweeper, oosEval: oosEval, smoother: sm, bus: bus, logger: logger}
}

// Run partitions bars into folds and processes them sequentially,
// returning every fold's outcome plus the cross-fold aggregate report.
// A fold-level infrastructure failure does not abort the run: the fold
// is marked FAILED, the smoother is left untouched, and the loop
// continues to the next fold.
func (o *Orchestrator) Run(ctx context.Context, bars []types.Bar) ([]types.FoldOutcome, types.AggregateReport, error) {
	startTime := time.Now()
	o.bus.Publish(ctx, events.NewRunStatusEvent("STARTING", "partitioning bar stream"))

	partitioner, err := fold.New(bars, o.cfg.FoldPolicy)
	if err != nil {
		return nil, types.AggregateReport{}, fmt.Errorf("orchestrator: %w", err)
	}
	foldResult := partitioner.Folds()

	o.logger.Info().
		Int("folds", len(foldResult.Folds)).
		Int("dropped", foldResult.Dropped).
		Bool("below_significance_floor", foldResult.BelowSignificanceFloor).
		Msg("fold partition complete")

	var (
		outcomes   []types.FoldOutcome
		wfeHistory []float64
		prevEpoch  *types.EpochCandidate
	)

	o.bus.Publish(ctx, events.NewRunStatusEvent("RUNNING", "processing folds"))

	for _, f := range foldResult.Folds {
		if err := ctx.Err(); err != nil {
			o.logger.Warn().Err(err).Msg("run canceled mid-fold")
			break
		}

		o.bus.Publish(ctx, events.NewFoldStartedEvent(f))
		o.logger.Info().Int("fold", f.Index).Msg("processing fold")

		outcome := o.runFold(ctx, bars, f, prevEpoch, wfeHistory)
		outcomes = append(outcomes, outcome)

		o.bus.Publish(ctx, events.NewFoldCompletedEvent(outcome))
		o.logger.Info().
			Int("fold", f.Index).
			Str("status", string(outcome.Status)).
			Int("selected_epoch", int(outcome.SelectedEpoch)).
			Float64("test_sharpe_tw", outcome.TestMetrics.SharpeTW).
			Msg("fold complete")

		if outcome.Status == types.FoldNormal || outcome.Status == types.FoldFallback {
			e := outcome.SelectedEpoch
			prevEpoch = &e
		}
		for _, sw := range outcome.SweepTable {
			if sw.WFE != nil {
				wfeHistory = append(wfeHistory, *sw.WFE)
			}
		}
	}

	report := aggregate.Build(outcomes, o.cfg.AggregateCfg)
	o.logger.Info().
		Str("verdict", string(report.Verdict)).
		Dur("duration", time.Since(startTime)).
		Msg("run complete")
	o.bus.Publish(ctx, events.NewRunStatusEvent("COMPLETE", string(report.Verdict)))

	return outcomes, report, nil
}

// runFold executes the per-fold sequence in the core spec's literal step
// order: query the smoother for its prior belief, apply that belief OOS,
// THEN sweep epoch candidates and run the selector. OOS evaluation always
// runs on the epoch the smoother held BEFORE this fold's sweep is folded
// in, never on the sweep's own validation-optimal epoch directly: the
// smoother's belief is what is actually deployed, and updating it before
// evaluating would let the fold see its own answer. Because the OOS
// evaluation is independent of this fold's own sweep/selector verdict, it
// runs — and TestMetrics gets populated — for every fold that does not hit
// an infrastructure failure, REJECT included; only a FAILED fold is
// permitted to carry an empty TestMetrics.
func (o *Orchestrator) runFold(ctx context.Context, bars []types.Bar, f types.FoldSpec, prevEpoch *types.EpochCandidate, wfeHistory []float64) types.FoldOutcome {
	outcome := types.FoldOutcome{Fold: f}

	selectedEpoch := o.smoother.CurrentEpoch(o.cfg.EpochCandidates)
	priorState := o.smoother.State()
	outcome.SelectedEpoch = selectedEpoch
	outcome.PosteriorMean = priorState.Mean
	outcome.PosteriorVariance = priorState.Variance

	metrics, err := o.oosEval.Evaluate(ctx, bars, f, selectedEpoch, o.cfg.Seed+int64(f.Index))
	if err != nil {
		outcome.Status = types.FoldFailed
		outcome.FailureReason = err.Error()
		o.logger.Error().Err(err).Int("fold", f.Index).Msg("oos evaluation failed, smoother left untouched")
		return outcome
	}
	outcome.TestMetrics = metrics

	sweepResults, err := o.sweeper.Run(ctx, bars, f, o.cfg.EpochCandidates, o.cfg.Seed+int64(f.Index))
	if err != nil {
		outcome.Status = types.FoldFailed
		outcome.FailureReason = err.Error()
		o.logger.Error().Err(err).Int("fold", f.Index).Msg("sweep failed, smoother left untouched")
		return outcome
	}
	outcome.SweepTable = sweepResults
	o.bus.Publish(ctx, events.NewSweepCompletedEvent(f.Index, sweepResults))

	selResult := selector.Select(sweepResults, prevEpoch, o.cfg.Selector, wfeHistory)
	outcome.Status = selResult.Status

	if selResult.Status == types.FoldReject {
		outcome.FailureReason = selResult.RejectReason
		outcome.SelectedEpoch = fallbackEpoch(prevEpoch, sweepResults, o.cfg.EpochCandidates)
		outcome.ValidationOptimalEpoch = outcome.SelectedEpoch
		return outcome
	}

	if !selResult.Changed {
		outcome.Status = types.FoldFallback
	}

	outcome.ValidationOptimalEpoch = selResult.SelectedEpoch

	o.smoother.Update(float64(selResult.SelectedEpoch), selResult.SelectedWFE)
	newState := o.smoother.State()
	outcome.PosteriorMean = newState.Mean
	outcome.PosteriorVariance = newState.Variance
	o.bus.Publish(ctx, events.NewSmootherUpdatedEvent(f.Index, newState))

	return outcome
}

// fallbackEpoch implements the reject cascade: the prior fold's selection
// if there is one, else this sweep's mode, else the median of the
// configured candidate list. It never leaves a fold without a selected
// epoch to record.
func fallbackEpoch(prevEpoch *types.EpochCandidate, sweepResults []types.EpochSweepResult, candidates []types.EpochCandidate) types.EpochCandidate {
	if prevEpoch != nil {
		return *prevEpoch
	}
	if epoch, ok := sweepMode(sweepResults); ok {
		return epoch
	}
	return medianCandidate(candidates)
}

// sweepMode picks the modal WFE-quality band across this sweep's
// WFE-valid candidates and returns the highest-WFE candidate within that
// band. A sweep's candidates are unique epochs, so the mode is taken over
// the categorical band each candidate falls into rather than over epoch
// values directly; ties between bands favor the higher-quality one.
func sweepMode(results []types.EpochSweepResult) (types.EpochCandidate, bool) {
	bandOrder := []selector.Band{selector.BandExcellent, selector.BandAcceptable, selector.BandInvestigate, selector.BandReject}
	counts := make(map[selector.Band]int, len(bandOrder))

	var withWFE []types.EpochSweepResult
	for _, r := range results {
		if r.WFE == nil {
			continue
		}
		withWFE = append(withWFE, r)
		counts[selector.ClassifyBand(*r.WFE)]++
	}
	if len(withWFE) == 0 {
		return 0, false
	}

	modalBand := bandOrder[0]
	modalCount := -1
	for _, b := range bandOrder {
		if counts[b] > modalCount {
			modalCount = counts[b]
			modalBand = b
		}
	}

	var best types.EpochSweepResult
	found := false
	for _, r := range withWFE {
		if selector.ClassifyBand(*r.WFE) != modalBand {
			continue
		}
		if !found || *r.WFE > *best.WFE {
			best = r
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return best.Epoch, true
}

// medianCandidate returns the median of the configured epoch candidates,
// snapped down to the lower of the two middle values on an even-length
// list (matching the smoother's own snap-to-nearest-candidate convention).
func medianCandidate(candidates []types.EpochCandidate) types.EpochCandidate {
	if len(candidates) == 0 {
		return 0
	}
	sorted := append([]types.EpochCandidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	lo, hi := float64(sorted[mid-1]), float64(sorted[mid])
	median := (lo + hi) / 2
	if median-lo <= hi-median {
		return sorted[mid-1]
	}
	return sorted[mid]
}
