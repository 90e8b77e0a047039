// Package selector implements the Frontier + Stability Selector: a Pareto
// frontier over (WFE, cost) guarded by a reject threshold, followed by a
// stability penalty against the previous fold's selection. The gate-then-
// accumulate-reasons shape mirrors the inherited risk manager's
// ValidateOrder, which runs a sequence of checks and accumulates warnings
// and rejections into one result rather than short-circuiting on the first
// finding.
package selector

import (
	"math"
	"sort"

	"github.com/bikeshrana/awfes/pkg/types"
)

// Band is the normative WFE quality classification this core adopts,
// resolving the two conflicting label sets seen upstream.
type Band string

const (
	BandExcellent    Band = "EXCELLENT"
	BandAcceptable   Band = "ACCEPTABLE"
	BandInvestigate  Band = "INVESTIGATE"
	BandReject       Band = "REJECT"
)

// ClassifyBand maps a WFE value to its quality band. Exported so other
// components (the orchestrator's reject-fallback cascade) can reuse the
// same banding instead of re-deriving the thresholds.
func ClassifyBand(wfe float64) Band {
	switch {
	case wfe >= 0.70:
		return BandExcellent
	case wfe >= 0.50:
		return BandAcceptable
	case wfe >= 0.30:
		return BandInvestigate
	default:
		return BandReject
	}
}

// Candidate is one frontier-eligible (epoch, wfe, cost) triple.
type Candidate struct {
	Epoch types.EpochCandidate
	WFE   float64
	Cost  float64
}

// Result is the Selector's verdict for one fold.
type Result struct {
	Status         types.FoldStatus
	Band           Band
	Frontier       []Candidate
	SelectedEpoch  types.EpochCandidate
	SelectedWFE    float64
	Changed        bool
	Warnings       []string
	RejectReason   string
}

// Config carries the tunables from the configuration enumeration.
type Config struct {
	StabilityMargin    float64 // relative margin, default 0.10
	WFERejectThreshold float64 // default 0.30
}

// Select runs the threshold gate, builds the Pareto frontier, and applies
// the stability penalty against previousEpoch (nil when no earlier fold has
// produced a NORMAL or FALLBACK selection). wfeHistory is the cross-fold WFE series observed
// so far, used only to scale the stability margin adaptively; a nil or
// short history falls back to the configured fixed margin.
func Select(sweep []types.EpochSweepResult, previousEpoch *types.EpochCandidate, cfg Config, wfeHistory []float64) Result {
	var valid []Candidate
	for _, s := range sweep {
		if s.WFE == nil {
			continue
		}
		valid = append(valid, Candidate{Epoch: s.Epoch, WFE: *s.WFE, Cost: s.TrainingCost})
	}

	if len(valid) == 0 {
		return Result{Status: types.FoldReject, Band: BandReject, RejectReason: "no_valid_candidates"}
	}

	maxWFE := valid[0].WFE
	for _, c := range valid[1:] {
		if c.WFE > maxWFE {
			maxWFE = c.WFE
		}
	}
	if maxWFE < cfg.WFERejectThreshold {
		return Result{Status: types.FoldReject, Band: BandReject, RejectReason: "max_wfe_below_threshold"}
	}

	frontier := paretoFrontier(valid)
	sort.Slice(frontier, func(i, j int) bool {
		if frontier[i].WFE != frontier[j].WFE {
			return frontier[i].WFE > frontier[j].WFE
		}
		if frontier[i].Cost != frontier[j].Cost {
			return frontier[i].Cost < frontier[j].Cost
		}
		return frontier[i].Epoch < frontier[j].Epoch
	})

	best := frontier[0]
	result := Result{
		Status:        types.FoldNormal,
		Band:          ClassifyBand(maxWFE),
		Frontier:      frontier,
		SelectedEpoch: best.Epoch,
		SelectedWFE:   best.WFE,
		Changed:       true,
	}
	if result.Band == BandInvestigate {
		result.Warnings = append(result.Warnings, "wfe_in_investigate_band")
	}

	if previousEpoch == nil {
		return result
	}

	prevCandidate, onFrontier := findEpoch(frontier, *previousEpoch)
	if !onFrontier {
		return result
	}

	margin := adaptiveMargin(cfg.StabilityMargin, wfeHistory)
	improvement := 0.0
	if prevCandidate.WFE != 0 {
		improvement = (best.WFE - prevCandidate.WFE) / math.Abs(prevCandidate.WFE)
	} else if best.WFE > 0 {
		improvement = math.Inf(1)
	}

	if improvement > margin {
		return result
	}

	result.SelectedEpoch = prevCandidate.Epoch
	result.SelectedWFE = prevCandidate.WFE
	result.Changed = false
	return result
}

// paretoFrontier returns the non-dominated candidates: a dominates b iff
// wfe(a) >= wfe(b) and cost(a) <= cost(b) with at least one strict
// inequality.
func paretoFrontier(candidates []Candidate) []Candidate {
	var frontier []Candidate
	for i, a := range candidates {
		dominated := false
		for j, b := range candidates {
			if i == j {
				continue
			}
			if dominates(b, a) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, a)
		}
	}
	return frontier
}

func dominates(a, b Candidate) bool {
	if a.WFE < b.WFE || a.Cost > b.Cost {
		return false
	}
	return a.WFE > b.WFE || a.Cost < b.Cost
}

func findEpoch(candidates []Candidate, epoch types.EpochCandidate) (Candidate, bool) {
	for _, c := range candidates {
		if c.Epoch == epoch {
			return c, true
		}
	}
	return Candidate{}, false
}

// adaptiveMargin scales the base stability margin by the coefficient of
// variation of observed cross-fold WFE once enough history exists; a short
// history is too noisy to trust and uses the fixed margin instead.
func adaptiveMargin(base float64, history []float64) float64 {
	if len(history) < 5 {
		return base
	}
	mean := 0.0
	for _, w := range history {
		mean += w
	}
	mean /= float64(len(history))
	if mean == 0 {
		return base
	}
	variance := 0.0
	for _, w := range history {
		d := w - mean
		variance += d * d
	}
	variance /= float64(len(history))
	cv := math.Sqrt(variance) / math.Abs(mean)
	return base * (1 + cv)
}
