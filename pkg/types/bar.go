// Package types holds the data model shared across the AWFES pipeline:
// bars, fold specifications, sweep results, and the Bayesian state and
// outcome records that flow out of an orchestrator run.
package types

import "time"

// Bar is a single upstream observation. Bars must be strictly ordered by
// CloseTS and DurationUS must never be negative; range bars carry variable
// DurationUS, time bars a constant one.
type Bar struct {
	CloseTS    time.Time `json:"close_ts"`
	DurationUS int64     `json:"duration_us"`
	X          []float64 `json:"x"`
	Y          float64   `json:"y"`
}

// Range is a half-open index range [Start, End) into a bar stream.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bars covered by the range.
func (r Range) Len() int { return r.End - r.Start }

// FoldSpec defines one walk-forward fold as five contiguous, non-overlapping
// half-open index ranges into the bar stream.
type FoldSpec struct {
	Index     int   `json:"fold_idx"`
	Train     Range `json:"train_range"`
	EmbargoA  Range `json:"embargo_a_range"`
	Validation Range `json:"validation_range"`
	EmbargoB  Range `json:"embargo_b_range"`
	Test      Range `json:"test_range"`
}

// EpochCandidate is an integer training-epoch count under consideration.
type EpochCandidate int

// SweepStatus classifies the outcome of one epoch candidate's evaluation.
type SweepStatus string

const (
	SweepValid              SweepStatus = "VALID"
	SweepISTooLow           SweepStatus = "IS_TOO_LOW"
	SweepNegativeValidation SweepStatus = "NEGATIVE_VALIDATION"
)

// EpochSweepResult is the outcome of training and evaluating one epoch
// candidate within one fold. WFE is nil whenever the IS-Sharpe magnitude
// does not clear the sample-size-adaptive threshold.
type EpochSweepResult struct {
	Epoch            EpochCandidate `json:"epoch"`
	ISSharpe         float64        `json:"is_sharpe"`
	ValidationSharpe float64        `json:"validation_sharpe"`
	WFE              *float64       `json:"wfe"`
	TrainingCost     float64        `json:"training_cost"`
	Status           SweepStatus    `json:"status"`
}

// BayesianState is the smoother's carried belief about the latent optimal
// epoch count. It is owned exclusively by the Orchestrator.
type BayesianState struct {
	Mean          float64 `json:"mean"`
	Variance      float64 `json:"variance"`
	NObservations int     `json:"n_observations"`
}

// FoldStatus classifies how a fold concluded.
type FoldStatus string

const (
	FoldNormal   FoldStatus = "NORMAL"
	FoldFallback FoldStatus = "FALLBACK"
	FoldReject   FoldStatus = "REJECT"
	FoldFailed   FoldStatus = "FAILED"
)

// FoldOutcome records everything produced while processing one fold.
type FoldOutcome struct {
	Fold                   FoldSpec           `json:"fold"`
	SelectedEpoch          EpochCandidate     `json:"selected_epoch"`
	ValidationOptimalEpoch EpochCandidate     `json:"validation_optimal_epoch"`
	PosteriorMean          float64            `json:"posterior_mean"`
	PosteriorVariance      float64            `json:"posterior_variance"`
	SweepTable             []EpochSweepResult `json:"sweep_table"`
	TestMetrics            MetricBundle       `json:"test_metrics"`
	Status                 FoldStatus         `json:"status"`
	FailureReason          string             `json:"failure_reason,omitempty"`
}

// Verdict is the aggregate-level accept/reject decision.
type Verdict string

const (
	VerdictAccept    Verdict = "ACCEPT"
	VerdictWarning   Verdict = "WARNING"
	VerdictRejectAll Verdict = "REJECT_ALL"
)

// AggregateReport is the cross-fold view produced by the Aggregator.
type AggregateReport struct {
	NFolds              int            `json:"n_folds"`
	PositiveSharpeFrac  float64        `json:"positive_sharpe_fraction"`
	MedianSharpeTW      float64        `json:"median_sharpe_tw"`
	MeanSharpeTW        float64        `json:"mean_sharpe_tw"`
	StdSharpeTW         float64        `json:"std_sharpe_tw"`
	MedianWFE           float64        `json:"median_wfe"`
	EpochHistogram      map[int]int    `json:"epoch_histogram"`
	ModeEpoch           int            `json:"mode_epoch"`
	PeakPickingFraction float64        `json:"peak_picking_fraction"`
	ChangeRate          float64        `json:"change_rate"`
	EpochCV             float64        `json:"epoch_cv"`
	NEff                float64        `json:"n_eff"`
	ChiSquarePValue     float64        `json:"chi_square_p_value"`
	MetaOverfitFlag     bool           `json:"meta_overfit_flag"`
	Verdict             Verdict        `json:"verdict"`
	ReasonCodes         []string       `json:"reason_codes"`
}
