// Package barsource loads a fixed, already-ordered bar stream for one
// AWFES run. Unlike the inherited marketdata backfill manager, which
// pulls from a live provider on a rolling lookback window, a run here
// consumes a complete historical file decided up front, so the loader is
// a single read-and-validate pass rather than a long-lived manager.
package barsource

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bikeshrana/awfes/pkg/types"
)

// LoadJSON reads a JSON array of bars from path and validates strict
// CloseTS ordering and non-negative DurationUS, the two invariants every
// downstream component assumes without re-checking.
func LoadJSON(path string) ([]types.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("barsource: open %s: %w", path, err)
	}
	defer f.Close()

	var bars []types.Bar
	if err := json.NewDecoder(f).Decode(&bars); err != nil {
		return nil, fmt.Errorf("barsource: decode %s: %w", path, err)
	}

	for i, b := range bars {
		if b.DurationUS < 0 {
			return nil, fmt.Errorf("barsource: bar %d has negative duration_us", i)
		}
		if i > 0 && !b.CloseTS.After(bars[i-1].CloseTS) {
			return nil, fmt.Errorf("barsource: bar %d close_ts does not strictly follow bar %d", i, i-1)
		}
	}

	return bars, nil
}
