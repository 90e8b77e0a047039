// Package oos applies the Smoother's already-selected epoch out of sample:
// retrain on train+validation, then score on the held-out test slice. This
// adapts the inherited walk-forward analyzer's in-sample-then-out-of-sample
// run loop, but the epoch is fixed by the Smoother rather than chosen by
// whatever scored best in-sample.
package oos

import (
	"context"
	"fmt"

	"github.com/bikeshrana/awfes/internal/circuitbreaker"
	"github.com/bikeshrana/awfes/internal/metricskernel"
	"github.com/bikeshrana/awfes/internal/model"
	"github.com/bikeshrana/awfes/pkg/types"
)

// Evaluator retrains at a fixed epoch and scores on test.
type Evaluator struct {
	factory   model.Factory
	annualize types.AnnualizationFactor
	breaker   *circuitbreaker.CircuitBreaker
}

// New returns an Evaluator.
func New(factory model.Factory, annualize types.AnnualizationFactor, breaker *circuitbreaker.CircuitBreaker) *Evaluator {
	return &Evaluator{factory: factory, annualize: annualize, breaker: breaker}
}

// Evaluate retrains on train ∪ validation at exactly selectedEpoch and
// evaluates with sharpe_tw (and the rest of the metric bundle) on test.
// Range-bar test data must use sharpe_tw, never the legacy equal-weight
// bar_sharpe, which the returned bundle only carries for comparison.
func (e *Evaluator) Evaluate(ctx context.Context, bars []types.Bar, fold types.FoldSpec, selectedEpoch types.EpochCandidate, seed int64) (types.MetricBundle, error) {
	trainX, trainY := sliceXY(bars, fold.Train)
	valX, valY := sliceXY(bars, fold.Validation)
	x := append(append([][]float64{}, trainX...), valX...)
	y := append(append([]float64{}, trainY...), valY...)

	var m model.Model
	fit := func() error {
		fitted, err := e.factory.Fit(ctx, x, y, int(selectedEpoch), seed)
		if err != nil {
			return err
		}
		m = fitted
		return nil
	}

	var err error
	if e.breaker != nil {
		err = e.breaker.Execute(fit)
	} else {
		err = fit()
	}
	if err != nil {
		return types.MetricBundle{}, fmt.Errorf("oos: retrain at epoch %d: %w", selectedEpoch, err)
	}

	testX, testY, testDur := sliceXYD(bars, fold.Test)
	pnl := make([]float64, len(testX))
	for i, row := range testX {
		pnl[i] = m.Predict(row) * testY[i]
	}

	return metricskernel.New(pnl, testDur, e.annualize).CalculateAll(), nil
}

func sliceXY(bars []types.Bar, r types.Range) ([][]float64, []float64) {
	x := make([][]float64, 0, r.Len())
	y := make([]float64, 0, r.Len())
	for i := r.Start; i < r.End && i < len(bars); i++ {
		x = append(x, bars[i].X)
		y = append(y, bars[i].Y)
	}
	return x, y
}

func sliceXYD(bars []types.Bar, r types.Range) ([][]float64, []float64, []int64) {
	x, y := sliceXY(bars, r)
	dur := make([]int64, 0, r.Len())
	for i := r.Start; i < r.End && i < len(bars); i++ {
		dur = append(dur, bars[i].DurationUS)
	}
	return x, y, dur
}
