package model

import (
	"context"
	"math"
	"testing"
)

func linearData() ([][]float64, []float64) {
	x := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}, {6}, {7}}
	y := make([]float64, len(x))
	for i, row := range x {
		y[i] = 2.0*row[0] + 1.0
	}
	return x, y
}

func TestLinearFactory_FitRejectsEmptyData(t *testing.T) {
	f := NewLinearFactory()
	_, err := f.Fit(context.Background(), nil, nil, 10, 1)
	if err == nil {
		t.Fatal("expected an error for empty training data")
	}
}

func TestLinearFactory_FitRejectsMismatchedLengths(t *testing.T) {
	f := NewLinearFactory()
	x := [][]float64{{1}, {2}}
	y := []float64{1}
	_, err := f.Fit(context.Background(), x, y, 10, 1)
	if err == nil {
		t.Fatal("expected an error for mismatched x/y lengths")
	}
}

func TestLinearFactory_FitRejectsNonPositiveEpochs(t *testing.T) {
	f := NewLinearFactory()
	x, y := linearData()
	_, err := f.Fit(context.Background(), x, y, 0, 1)
	if err == nil {
		t.Fatal("expected an error for epochs < 1")
	}
}

func TestLinearFactory_FitIsDeterministicGivenSameSeed(t *testing.T) {
	f := NewLinearFactory()
	x, y := linearData()

	m1, err := f.Fit(context.Background(), x, y, 50, 42)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	m2, err := f.Fit(context.Background(), x, y, 50, 42)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	for _, row := range x {
		p1 := m1.Predict(row)
		p2 := m2.Predict(row)
		if math.Abs(p1-p2) > 1e-12 {
			t.Errorf("same seed/epochs/data should produce bit-identical predictions, got %v vs %v", p1, p2)
		}
	}
}

func TestLinearFactory_DifferentSeedsDiverge(t *testing.T) {
	f := NewLinearFactory()
	x, y := linearData()

	m1, err := f.Fit(context.Background(), x, y, 5, 1)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	m2, err := f.Fit(context.Background(), x, y, 5, 2)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	same := true
	for _, row := range x {
		if math.Abs(m1.Predict(row)-m2.Predict(row)) > 1e-9 {
			same = false
		}
	}
	if same {
		t.Error("different seeds should produce different initial weights and therefore different predictions after few epochs")
	}
}

func TestLinearFactory_MoreEpochsImprovesFit(t *testing.T) {
	f := NewLinearFactory()
	x, y := linearData()

	few, err := f.Fit(context.Background(), x, y, 2, 7)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	many, err := f.Fit(context.Background(), x, y, 500, 7)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	fewErr := sumSquaredError(few, x, y)
	manyErr := sumSquaredError(many, x, y)
	if !(manyErr < fewErr) {
		t.Errorf("training longer should reduce squared error on this linear target: few=%v many=%v", fewErr, manyErr)
	}
}

func TestLinearFactory_RespectsContextCancellation(t *testing.T) {
	f := NewLinearFactory()
	x, y := linearData()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fit(ctx, x, y, 1000, 1)
	if err == nil {
		t.Fatal("expected Fit to abort on an already-canceled context")
	}
}

func sumSquaredError(m Model, x [][]float64, y []float64) float64 {
	sum := 0.0
	for i, row := range x {
		d := m.Predict(row) - y[i]
		sum += d * d
	}
	return sum
}
