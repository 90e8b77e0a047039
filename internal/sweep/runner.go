// Package sweep runs the per-fold epoch sweep: for every candidate epoch
// count it trains a fresh model on the fold's training slice, scores it
// in-sample and on the validation slice, and computes Walk-Forward
// Efficiency. Candidates are evaluated concurrently, bounded by a worker
// limit, the same shape as the inherited grid-search optimizer but driven
// by golang.org/x/sync/errgroup instead of a hand-rolled semaphore.
package sweep

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bikeshrana/awfes/internal/circuitbreaker"
	"github.com/bikeshrana/awfes/internal/metricskernel"
	"github.com/bikeshrana/awfes/internal/model"
	"github.com/bikeshrana/awfes/pkg/types"
)

// Runner evaluates an ordered list of epoch candidates against one fold.
type Runner struct {
	factory    model.Factory
	maxWorkers int
	annualize  types.AnnualizationFactor
	breaker    *circuitbreaker.CircuitBreaker
}

// New returns a Runner bounded to maxWorkers concurrent training calls. A
// circuit breaker wraps every Factory.Fit call so a systematically broken
// factory opens after a handful of consecutive failures instead of paying
// the full training cost for every remaining candidate.
func New(factory model.Factory, maxWorkers int, annualize types.AnnualizationFactor, breaker *circuitbreaker.CircuitBreaker) *Runner {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Runner{factory: factory, maxWorkers: maxWorkers, annualize: annualize, breaker: breaker}
}

// Run trains and evaluates every candidate against the fold's train and
// validation slices. Results are returned in the same order as candidates
// regardless of completion order, the deterministic join the core spec
// requires before the Selector runs. An error here means the fold's
// ModelFactory failed and the caller must mark the fold FAILED rather than
// trust any partial results.
func (r *Runner) Run(ctx context.Context, bars []types.Bar, foldSpec types.FoldSpec, candidates []types.EpochCandidate, seed int64) ([]types.EpochSweepResult, error) {
	results := make([]types.EpochSweepResult, len(candidates))

	trainX, trainY, trainDur := slice(bars, foldSpec.Train)
	valX, valY, valDur := slice(bars, foldSpec.Validation)
	_ = valY // validation targets are passed to evaluate, which builds the validation pnl

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxWorkers)

	for i, epoch := range candidates {
		i, epoch := i, epoch
		g.Go(func() error {
			result, err := r.evaluate(gctx, trainX, trainY, trainDur, valX, valY, valDur, epoch, seed)
			if err != nil {
				return fmt.Errorf("sweep: candidate epoch %d: %w", epoch, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) evaluate(
	ctx context.Context,
	trainX [][]float64, trainY []float64, trainDur []int64,
	valX [][]float64, valY []float64, valDur []int64,
	epoch types.EpochCandidate, seed int64,
) (types.EpochSweepResult, error) {
	var m model.Model
	fit := func() error {
		fitted, err := r.factory.Fit(ctx, trainX, trainY, int(epoch), seed)
		if err != nil {
			return err
		}
		m = fitted
		return nil
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Execute(fit)
	} else {
		err = fit()
	}
	if err != nil {
		return types.EpochSweepResult{}, err
	}

	// pnl is the signal-weighted realized return: prediction times the
	// realized target, the simplest convention that makes Sharpe on
	// predictions meaningful without committing to a position-sizing
	// policy (that belongs to the external trading layer, not this core).
	trainPnL := signalPnL(m, trainX, trainY)
	valPnL := signalPnL(m, valX, valY)

	isBundle := metricskernel.New(trainPnL, trainDur, r.annualize).CalculateAll()
	valBundle := metricskernel.New(valPnL, valDur, r.annualize).CalculateAll()

	tau := metricskernel.ISThreshold(len(trainPnL))
	isSharpe := isBundle.SharpeTW
	valSharpe := valBundle.SharpeTW

	result := types.EpochSweepResult{
		Epoch:            epoch,
		ISSharpe:         isSharpe,
		ValidationSharpe: valSharpe,
		TrainingCost:     float64(epoch),
		Status:           types.SweepValid,
	}

	if absFloat(isSharpe) <= tau {
		result.Status = types.SweepISTooLow
		return result, nil
	}

	wfe := valSharpe / isSharpe
	result.WFE = &wfe
	if valSharpe < 0 {
		result.Status = types.SweepNegativeValidation
	}
	return result, nil
}

func signalPnL(m model.Model, x [][]float64, y []float64) []float64 {
	pnl := make([]float64, len(x))
	for i, row := range x {
		pnl[i] = m.Predict(row) * y[i]
	}
	return pnl
}

func slice(bars []types.Bar, r types.Range) ([][]float64, []float64, []int64) {
	x := make([][]float64, 0, r.Len())
	y := make([]float64, 0, r.Len())
	dur := make([]int64, 0, r.Len())
	for i := r.Start; i < r.End && i < len(bars); i++ {
		x = append(x, bars[i].X)
		y = append(y, bars[i].Y)
		dur = append(dur, bars[i].DurationUS)
	}
	return x, y, dur
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
