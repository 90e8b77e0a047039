// Package fold partitions an ordered bar stream into walk-forward folds
// with a fixed sliding training window and two embargo gaps, rejecting at
// construction time any policy that would produce an expanding window.
package fold

import (
	"errors"
	"fmt"
	"time"

	"github.com/bikeshrana/awfes/pkg/types"
)

// Policy declares how to carve a bar stream into folds. TrainPct, ValPct
// and TestPct are proportions of one fold's own span and should sum to 1.
// Anchored mirrors the inherited walk-forward config's expanding-window
// flag; AWFES never honors it — construction fails instead.
type Policy struct {
	NFolds       int
	TrainPct     float64
	ValPct       float64
	TestPct      float64
	EmbargoHours float64
	Anchored     bool
}

var (
	// ErrExpandingWindow is returned when the caller asks for an
	// anchored (expanding) window, which this core forbids outright.
	ErrExpandingWindow = errors.New("fold: fixed sliding window required, anchored/expanding window is not supported")
	ErrTooFewFolds      = errors.New("fold: n_folds must be at least 2")
	ErrBadProportions   = errors.New("fold: train/validation/test proportions must be positive and sum to 1")
	ErrBadEmbargo       = errors.New("fold: embargo_hours must be positive")
	ErrInsufficientData = errors.New("fold: insufficient bars for the requested fold policy")
)

// Partitioner produces FoldSpecs from a bar stream under a fixed Policy.
type Partitioner struct {
	bars      []types.Bar
	policy    Policy
	trainSize int
	testSize  int
	valSize   int
	step      int
}

// New validates the policy and bar stream and returns a Partitioner ready
// to emit folds. Configuration errors fail fast here; no fold ever runs
// against a bad policy.
func New(bars []types.Bar, policy Policy) (*Partitioner, error) {
	if policy.Anchored {
		return nil, ErrExpandingWindow
	}
	if policy.NFolds < 2 {
		return nil, ErrTooFewFolds
	}
	if policy.TrainPct <= 0 || policy.ValPct <= 0 || policy.TestPct <= 0 {
		return nil, ErrBadProportions
	}
	sum := policy.TrainPct + policy.ValPct + policy.TestPct
	if sum < 0.999 || sum > 1.001 {
		return nil, ErrBadProportions
	}
	if policy.EmbargoHours <= 0 {
		return nil, ErrBadEmbargo
	}
	if len(bars) < 2 {
		return nil, ErrInsufficientData
	}
	if span := bars[len(bars)-1].CloseTS.Sub(bars[0].CloseTS); span < 2*365*24*time.Hour {
		return nil, fmt.Errorf("%w: data span %s is below the 2-year floor", ErrInsufficientData, span)
	}

	// step = test_size: the training window advances by exactly one
	// test-window's worth of bars each fold, so test windows tile the
	// tail of the stream without overlap, the same rolling convention
	// the inherited analyzer uses in wall-clock time.
	ratio := policy.TrainPct/policy.TestPct + policy.ValPct/policy.TestPct + float64(policy.NFolds)
	testSize := int(float64(len(bars)) / ratio)
	if testSize < 1 {
		return nil, fmt.Errorf("%w: not enough bars to form %d folds", ErrInsufficientData, policy.NFolds)
	}
	trainSize := int(float64(testSize) * policy.TrainPct / policy.TestPct)
	valSize := int(float64(testSize) * policy.ValPct / policy.TestPct)
	if trainSize < 1 || valSize < 1 {
		return nil, fmt.Errorf("%w: derived train/validation window is empty", ErrInsufficientData)
	}

	return &Partitioner{
		bars:      bars,
		policy:    policy,
		trainSize: trainSize,
		testSize:  testSize,
		valSize:   valSize,
		step:      testSize,
	}, nil
}

// Result is the set of folds produced, plus how many requested folds had
// to be dropped for want of bars to satisfy the embargo.
type Result struct {
	Folds               []types.FoldSpec
	Dropped             int
	BelowSignificanceFloor bool
}

// Folds generates every usable fold in temporal order. A fold that cannot
// satisfy its embargo within the remaining bars is dropped rather than
// failing the whole run; the Result reports how many were dropped.
func (p *Partitioner) Folds() Result {
	var folds []types.FoldSpec
	dropped := 0

	for i := 0; i < p.policy.NFolds; i++ {
		spec, ok := p.buildFold(i)
		if !ok {
			dropped++
			continue
		}
		folds = append(folds, spec)
	}

	return Result{
		Folds:                  folds,
		Dropped:                dropped,
		BelowSignificanceFloor: len(folds) < 30,
	}
}

func (p *Partitioner) buildFold(i int) (types.FoldSpec, bool) {
	n := len(p.bars)
	trainStart := i * p.step
	trainEnd := trainStart + p.trainSize
	if trainEnd >= n {
		return types.FoldSpec{}, false
	}

	embargoDur := time.Duration(p.policy.EmbargoHours * float64(time.Hour))

	validationStart, ok := p.scanForward(trainEnd, p.bars[trainEnd-1].CloseTS.Add(embargoDur))
	if !ok {
		return types.FoldSpec{}, false
	}
	validationEnd := validationStart + p.valSize
	if validationEnd >= n {
		return types.FoldSpec{}, false
	}

	testStart, ok := p.scanForward(validationEnd, p.bars[validationEnd-1].CloseTS.Add(embargoDur))
	if !ok {
		return types.FoldSpec{}, false
	}
	testEnd := testStart + p.testSize
	if testEnd > n {
		return types.FoldSpec{}, false
	}

	return types.FoldSpec{
		Index:      i,
		Train:      types.Range{Start: trainStart, End: trainEnd},
		EmbargoA:   types.Range{Start: trainEnd, End: validationStart},
		Validation: types.Range{Start: validationStart, End: validationEnd},
		EmbargoB:   types.Range{Start: validationEnd, End: testStart},
		Test:       types.Range{Start: testStart, End: testEnd},
	}, true
}

// scanForward returns the first bar index at or after `from` whose close
// timestamp is at or past `notBefore`, the embargo algorithm of the core
// spec's 4.3. It never looks backward and it always leaves at least one
// bar of separation from the preceding range.
func (p *Partitioner) scanForward(from int, notBefore time.Time) (int, bool) {
	for j := from; j < len(p.bars); j++ {
		if !p.bars[j].CloseTS.Before(notBefore) {
			if j == from {
				j++ // at least one bar separates boundaries
			}
			if j >= len(p.bars) {
				return 0, false
			}
			return j, true
		}
	}
	return 0, false
}
