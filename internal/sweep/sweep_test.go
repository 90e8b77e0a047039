package sweep

import (
	"context"
	"fmt"
	"testing"

	"github.com/bikeshrana/awfes/internal/model"
	"github.com/bikeshrana/awfes/pkg/types"
)

// stubModel predicts a fixed value regardless of input.
type stubModel struct{ value float64 }

func (m stubModel) Predict(x []float64) float64 { return m.value }

// stubFactory returns a stubModel whose prediction is keyed off the epoch
// count, so different candidates produce observably different pnl series.
type stubFactory struct {
	predictFor func(epochs int) float64
	failFor    map[int]bool
}

func (f *stubFactory) Fit(ctx context.Context, x [][]float64, y []float64, epochs int, seed int64) (model.Model, error) {
	if f.failFor[epochs] {
		return nil, fmt.Errorf("stub: forced failure for epoch %d", epochs)
	}
	return stubModel{value: f.predictFor(epochs)}, nil
}

func makeBars(n int, y float64) []types.Bar {
	bars := make([]types.Bar, n)
	for i := range bars {
		bars[i] = types.Bar{X: []float64{1.0}, Y: y, DurationUS: 1_000_000}
	}
	return bars
}

func testFold(trainN, valN int) types.FoldSpec {
	return types.FoldSpec{
		Train:      types.Range{Start: 0, End: trainN},
		Validation: types.Range{Start: trainN, End: trainN + valN},
	}
}

func TestNew_ClampsMaxWorkersToAtLeastOne(t *testing.T) {
	r := New(nil, 0, types.AnnualizeEquityDaily, nil)
	if r.maxWorkers != 1 {
		t.Errorf("maxWorkers = %d, want 1", r.maxWorkers)
	}
}

func TestRun_ReturnsResultsInCandidateOrder(t *testing.T) {
	factory := &stubFactory{predictFor: func(epochs int) float64 { return 1.0 }}
	r := New(factory, 4, types.AnnualizeEquityDaily, nil)

	bars := makeBars(40, 1.0)
	fold := testFold(20, 20)
	candidates := []types.EpochCandidate{50, 10, 100, 5}

	results, err := r.Run(context.Background(), bars, fold, candidates, 42)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != len(candidates) {
		t.Fatalf("got %d results, want %d", len(results), len(candidates))
	}
	for i, c := range candidates {
		if results[i].Epoch != c {
			t.Errorf("result[%d].Epoch = %v, want %v (order must match candidates regardless of completion order)",
				i, results[i].Epoch, c)
		}
	}
}

func TestRun_PropagatesFactoryErrorForAnyCandidate(t *testing.T) {
	factory := &stubFactory{
		predictFor: func(epochs int) float64 { return 1.0 },
		failFor:    map[int]bool{10: true},
	}
	r := New(factory, 2, types.AnnualizeEquityDaily, nil)

	bars := makeBars(40, 1.0)
	fold := testFold(20, 20)

	_, err := r.Run(context.Background(), bars, fold, []types.EpochCandidate{5, 10}, 1)
	if err == nil {
		t.Fatal("expected an error when the factory fails for one candidate")
	}
}

func TestEvaluate_LowISSharpeMarksISTooLow(t *testing.T) {
	// A model with zero signal strength produces zero pnl, so IS-Sharpe is
	// zero and must fall under any positive significance threshold.
	factory := &stubFactory{predictFor: func(epochs int) float64 { return 0.0 }}
	r := New(factory, 1, types.AnnualizeEquityDaily, nil)

	bars := makeBars(60, 1.0)
	fold := testFold(30, 30)

	results, err := r.Run(context.Background(), bars, fold, []types.EpochCandidate{10}, 1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if results[0].Status != types.SweepISTooLow {
		t.Errorf("Status = %v, want SweepISTooLow for a zero-signal model", results[0].Status)
	}
	if results[0].WFE != nil {
		t.Error("WFE should be nil when the IS-Sharpe threshold is not cleared")
	}
}

func TestEvaluate_TrainingCostTracksEpochCount(t *testing.T) {
	factory := &stubFactory{predictFor: func(epochs int) float64 { return 1.0 }}
	r := New(factory, 1, types.AnnualizeEquityDaily, nil)

	bars := makeBars(40, 1.0)
	fold := testFold(20, 20)

	results, err := r.Run(context.Background(), bars, fold, []types.EpochCandidate{77}, 1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if results[0].TrainingCost != 77.0 {
		t.Errorf("TrainingCost = %v, want 77", results[0].TrainingCost)
	}
}

func TestSlice_RespectsRangeAndBarsLength(t *testing.T) {
	bars := makeBars(10, 2.0)
	x, y, dur := slice(bars, types.Range{Start: 3, End: 8})
	if len(x) != 5 || len(y) != 5 || len(dur) != 5 {
		t.Fatalf("slice of [3,8) should have length 5, got x=%d y=%d dur=%d", len(x), len(y), len(dur))
	}
	for _, v := range y {
		if v != 2.0 {
			t.Errorf("unexpected y value %v", v)
		}
	}
}

func TestSlice_ClampsToAvailableBars(t *testing.T) {
	bars := makeBars(5, 1.0)
	x, _, _ := slice(bars, types.Range{Start: 3, End: 100})
	if len(x) != 2 {
		t.Errorf("slice past the end of the bar stream should clamp, got len %d, want 2", len(x))
	}
}

func TestAbsFloat(t *testing.T) {
	if absFloat(-3.5) != 3.5 {
		t.Errorf("absFloat(-3.5) = %v, want 3.5", absFloat(-3.5))
	}
	if absFloat(3.5) != 3.5 {
		t.Errorf("absFloat(3.5) = %v, want 3.5", absFloat(3.5))
	}
}
