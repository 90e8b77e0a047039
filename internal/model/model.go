// Package model defines the Model/ModelFactory collaborator capability the
// core spec deliberately keeps external, plus one deterministic reference
// implementation used by the test suite and by any caller that has not yet
// wired a real sequence model.
package model

import (
	"context"
	"fmt"
	"math/rand"
)

// Model is the capability a trained model exposes to the rest of the core:
// fit happens once, outside this interface, via ModelFactory.Fit; from then
// on the core only ever calls Predict.
type Model interface {
	Predict(x []float64) float64
}

// Factory trains a fresh Model for exactly the requested epoch count. Fit
// must be deterministic given the same seed, epoch count, and data slice,
// and must never apply early stopping internally — epoch count is the
// decision variable the rest of the core is choosing.
type Factory interface {
	Fit(ctx context.Context, x [][]float64, y []float64, epochs int, seed int64) (Model, error)
}

// LinearModel is a deterministic ridge-regularized linear model trained by
// fixed-step batch gradient descent. It exists so the core is runnable and
// testable without a real sequence model wired in; a production deployment
// supplies its own Factory (BiLSTM/sLSTM/mLSTM, out of scope for this core).
type LinearModel struct {
	weights []float64
	bias    float64
}

// Predict returns the dot product of weights and x plus bias.
func (m *LinearModel) Predict(x []float64) float64 {
	sum := m.bias
	for i, w := range m.weights {
		if i >= len(x) {
			break
		}
		sum += w * x[i]
	}
	return sum
}

// LinearFactory produces LinearModels. LearningRate and L2 mirror the
// hyperparameters a real sequence-model factory would fix externally; only
// the epoch count varies per call, matching the core's decision variable.
type LinearFactory struct {
	LearningRate float64
	L2           float64
}

// NewLinearFactory returns a factory with sensible defaults.
func NewLinearFactory() *LinearFactory {
	return &LinearFactory{LearningRate: 0.01, L2: 1e-4}
}

// Fit trains a LinearModel for exactly `epochs` passes of batch gradient
// descent. The only source of randomness is the initial weight vector,
// drawn from a seed-derived PRNG so two calls with identical (seed, epochs,
// data) always produce bit-identical weights.
func (f *LinearFactory) Fit(ctx context.Context, x [][]float64, y []float64, epochs int, seed int64) (Model, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("model: fit requires aligned, non-empty x/y, got %d/%d", len(x), len(y))
	}
	if epochs < 1 {
		return nil, fmt.Errorf("model: epochs must be >= 1, got %d", epochs)
	}

	nFeatures := len(x[0])
	rng := rand.New(rand.NewSource(seed))
	weights := make([]float64, nFeatures)
	for i := range weights {
		weights[i] = (rng.Float64() - 0.5) * 0.02
	}
	bias := 0.0

	lr := f.LearningRate
	if lr <= 0 {
		lr = 0.01
	}

	n := float64(len(x))
	for epoch := 0; epoch < epochs; epoch++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		gradWeights := make([]float64, nFeatures)
		gradBias := 0.0

		for i, row := range x {
			pred := bias
			for j, xv := range row {
				if j < nFeatures {
					pred += weights[j] * xv
				}
			}
			errTerm := pred - y[i]
			for j, xv := range row {
				if j < nFeatures {
					gradWeights[j] += errTerm * xv
				}
			}
			gradBias += errTerm
		}

		for j := range weights {
			weights[j] -= lr * (gradWeights[j]/n + f.L2*weights[j])
		}
		bias -= lr * gradBias / n
	}

	return &LinearModel{weights: weights, bias: bias}, nil
}
