// Package smoother carries epoch beliefs forward across folds. Smoother is
// a polymorphic capability set — update/current/credible-interval — the
// same update/value/ready/reset shape the inherited technical-indicator
// interface uses for its own streaming state, adapted here to carry a
// single scalar belief plus an uncertainty band instead of a plain value.
package smoother

import (
	"math"
	"sort"

	"github.com/bikeshrana/awfes/pkg/types"
)

// Smoother is implemented by BAYESIAN, EMA, SMA, and MEDIAN variants.
type Smoother interface {
	// Update observes a validation-optimal epoch with reliability wfe,
	// clamped internally to [0.1, 2.0].
	Update(x float64, wfe float64)
	CurrentEpoch(candidates []types.EpochCandidate) types.EpochCandidate
	CredibleInterval(level float64, candidates []types.EpochCandidate) (lo, hi types.EpochCandidate)
	State() types.BayesianState
}

const (
	minWFEWeight = 0.1
	maxWFEWeight = 2.0
)

func clampWFE(wfe float64) float64 {
	if wfe < minWFEWeight {
		return minWFEWeight
	}
	if wfe > maxWFEWeight {
		return maxWFEWeight
	}
	return wfe
}

func snap(value float64, candidates []types.EpochCandidate) types.EpochCandidate {
	if len(candidates) == 0 {
		return types.EpochCandidate(math.Round(value))
	}
	best := candidates[0]
	bestDist := math.Abs(float64(best) - value)
	for _, c := range candidates[1:] {
		d := math.Abs(float64(c) - value)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// Bayesian maintains a Normal-Normal conjugate posterior over the latent
// optimal epoch. This is the default smoother the core spec prescribes.
type Bayesian struct {
	mean      float64
	variance  float64
	obsVar    float64
	nObs      int
}

// NewBayesian initializes the prior from the candidate search space:
// mean0 is the midpoint, variance0 is sized so the 95% prior interval
// spans [eMin, eMax], and observation variance is a quarter of the prior
// variance.
func NewBayesian(eMin, eMax float64) *Bayesian {
	mean0 := (eMin + eMax) / 2
	variance0 := math.Pow((eMax-eMin)/3.92, 2)
	return &Bayesian{
		mean:     mean0,
		variance: variance0,
		obsVar:   variance0 / 4,
	}
}

// Update folds in one observation x with reliability wfe via precision-
// weighted conjugate updating: 1/var_post = 1/var_prior + wfe/obs_var,
// mean_post = (mean_prior/var_prior + x*wfe/obs_var) / (1/var_post).
func (b *Bayesian) Update(x float64, wfe float64) {
	w := clampWFE(wfe)

	priorPrecision := 1 / b.variance
	obsPrecision := w / b.obsVar // 1 / (obsVar/wfe), the effective obs variance
	postPrecision := priorPrecision + obsPrecision
	postVariance := 1 / postPrecision
	postMean := (b.mean/b.variance + x*w/b.obsVar) / postPrecision

	b.mean = postMean
	b.variance = postVariance
	b.nObs++
}

func (b *Bayesian) CurrentEpoch(candidates []types.EpochCandidate) types.EpochCandidate {
	return snap(b.mean, candidates)
}

func (b *Bayesian) CredibleInterval(level float64, candidates []types.EpochCandidate) (types.EpochCandidate, types.EpochCandidate) {
	z := 1.96 // 95%; any other level picks its z through zFromLevel
	if level != 0.95 {
		z = zFromLevel(level)
	}
	spread := z * math.Sqrt(b.variance)
	return snap(b.mean-spread, candidates), snap(b.mean+spread, candidates)
}

func (b *Bayesian) State() types.BayesianState {
	return types.BayesianState{Mean: b.mean, Variance: b.variance, NObservations: b.nObs}
}

func zFromLevel(level float64) float64 {
	switch {
	case level >= 0.99:
		return 2.576
	case level >= 0.95:
		return 1.96
	case level >= 0.90:
		return 1.645
	default:
		return 1.96
	}
}

// EMA is the exponential-moving-average fallback: no WFE weighting, no
// uncertainty, but cheap and monotone in observation order.
type EMA struct {
	alpha   float64
	value   float64
	ready   bool
	nObs    int
}

// NewEMA mirrors the inherited EMA indicator's multiplier convention
// (2/(period+1)) but takes alpha directly since the smoother has no
// natural "period" — callers translate from the smoother(ema(alpha))
// configuration tag.
func NewEMA(alpha float64, seed float64) *EMA {
	return &EMA{alpha: alpha, value: seed}
}

func (e *EMA) Update(x float64, _ float64) {
	if !e.ready {
		e.value = x
		e.ready = true
	} else {
		e.value = e.alpha*x + (1-e.alpha)*e.value
	}
	e.nObs++
}

func (e *EMA) CurrentEpoch(candidates []types.EpochCandidate) types.EpochCandidate {
	return snap(e.value, candidates)
}

func (e *EMA) CredibleInterval(_ float64, candidates []types.EpochCandidate) (types.EpochCandidate, types.EpochCandidate) {
	c := e.CurrentEpoch(candidates)
	return c, c
}

func (e *EMA) State() types.BayesianState {
	return types.BayesianState{Mean: e.value, Variance: 0, NObservations: e.nObs}
}

// SMA is the simple-moving-average fallback over the last `window`
// observations, grounded in the same moving-average arithmetic the
// inherited strategy package uses for its crossover signal.
type SMA struct {
	window int
	values []float64
}

func NewSMA(window int) *SMA {
	if window < 1 {
		window = 1
	}
	return &SMA{window: window}
}

func (s *SMA) Update(x float64, _ float64) {
	s.values = append(s.values, x)
	if len(s.values) > s.window {
		s.values = s.values[1:]
	}
}

func (s *SMA) mean() float64 {
	if len(s.values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s.values {
		sum += v
	}
	return sum / float64(len(s.values))
}

func (s *SMA) CurrentEpoch(candidates []types.EpochCandidate) types.EpochCandidate {
	return snap(s.mean(), candidates)
}

func (s *SMA) CredibleInterval(_ float64, candidates []types.EpochCandidate) (types.EpochCandidate, types.EpochCandidate) {
	c := s.CurrentEpoch(candidates)
	return c, c
}

func (s *SMA) State() types.BayesianState {
	return types.BayesianState{Mean: s.mean(), Variance: 0, NObservations: len(s.values)}
}

// Median is the rolling-median fallback over the last `window` observations.
type Median struct {
	window int
	values []float64
}

func NewMedian(window int) *Median {
	if window < 1 {
		window = 1
	}
	return &Median{window: window}
}

func (m *Median) Update(x float64, _ float64) {
	m.values = append(m.values, x)
	if len(m.values) > m.window {
		m.values = m.values[1:]
	}
}

func (m *Median) median() float64 {
	if len(m.values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), m.values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func (m *Median) CurrentEpoch(candidates []types.EpochCandidate) types.EpochCandidate {
	return snap(m.median(), candidates)
}

func (m *Median) CredibleInterval(_ float64, candidates []types.EpochCandidate) (types.EpochCandidate, types.EpochCandidate) {
	c := m.CurrentEpoch(candidates)
	return c, c
}

func (m *Median) State() types.BayesianState {
	return types.BayesianState{Mean: m.median(), Variance: 0, NObservations: len(m.values)}
}
