// Package report renders a run's fold outcomes and aggregate diagnostics,
// both as a banded console summary and as an NDJSON stream of per-fold
// records. The section layout and the banner/separator style are adapted
// from the inherited backtest report generator; the content is entirely
// the AWFES fold/aggregate model instead of trade P&L.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bikeshrana/awfes/pkg/types"
)

// Generator renders one run's outcomes and report.
type Generator struct {
	outcomes []types.FoldOutcome
	report   types.AggregateReport
}

// New returns a Generator over a completed run.
func New(outcomes []types.FoldOutcome, agg types.AggregateReport) *Generator {
	return &Generator{outcomes: outcomes, report: agg}
}

// Console renders the banded ACCEPT/WARNING/REJECT_ALL summary.
func (g *Generator) Console() string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	sb.WriteString("                    ADAPTIVE WALK-FORWARD EPOCH SELECTION                         \n")
	sb.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	sb.WriteString("FOLD SUMMARY\n")
	sb.WriteString("─────────────────────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("%-6s %-10s %-8s %-10s %-10s\n", "Fold", "Status", "Epoch", "ValOptEpoch", "SharpeTW"))
	sb.WriteString("─────────────────────────────────────────────────────────────────────────────\n")
	for _, o := range g.outcomes {
		sb.WriteString(fmt.Sprintf("%-6d %-10s %-8d %-10d %.4f\n",
			o.Fold.Index, o.Status, o.SelectedEpoch, o.ValidationOptimalEpoch, o.TestMetrics.SharpeTW))
	}
	sb.WriteString("\n")

	sb.WriteString("AGGREGATE DIAGNOSTICS\n")
	sb.WriteString("─────────────────────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("Folds:                  %d\n", g.report.NFolds))
	sb.WriteString(fmt.Sprintf("Positive Sharpe Frac:   %.2f%%\n", g.report.PositiveSharpeFrac*100))
	sb.WriteString(fmt.Sprintf("Median Sharpe(TW):      %.4f\n", g.report.MedianSharpeTW))
	sb.WriteString(fmt.Sprintf("Mean / Std Sharpe(TW):  %.4f / %.4f\n", g.report.MeanSharpeTW, g.report.StdSharpeTW))
	sb.WriteString(fmt.Sprintf("Median WFE:             %.4f\n", g.report.MedianWFE))
	sb.WriteString(fmt.Sprintf("Mode Epoch:             %d\n", g.report.ModeEpoch))
	sb.WriteString(fmt.Sprintf("Peak-Picking Fraction:  %.2f%%\n", g.report.PeakPickingFraction*100))
	sb.WriteString(fmt.Sprintf("Change Rate:            %.2f%%\n", g.report.ChangeRate*100))
	sb.WriteString(fmt.Sprintf("Epoch CV:               %.4f\n", g.report.EpochCV))
	sb.WriteString(fmt.Sprintf("N_eff:                  %.2f\n", g.report.NEff))
	sb.WriteString(fmt.Sprintf("Chi-Square p-value:     %.4f\n", g.report.ChiSquarePValue))
	sb.WriteString(fmt.Sprintf("Meta-Overfit Flagged:   %t\n", g.report.MetaOverfitFlag))
	sb.WriteString("\n")

	sb.WriteString("VERDICT\n")
	sb.WriteString("─────────────────────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("%s\n", g.report.Verdict))
	if len(g.report.ReasonCodes) > 0 {
		sb.WriteString(fmt.Sprintf("Reasons: %s\n", strings.Join(g.report.ReasonCodes, ", ")))
	}
	sb.WriteString("\n")
	sb.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return sb.String()
}

// WriteNDJSON streams one JSON object per fold outcome, followed by one
// final object holding the aggregate report, to w.
func (g *Generator) WriteNDJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, o := range g.outcomes {
		if err := enc.Encode(o); err != nil {
			return fmt.Errorf("report: encode fold outcome: %w", err)
		}
	}
	wrapper := struct {
		Aggregate types.AggregateReport `json:"aggregate"`
	}{Aggregate: g.report}
	if err := enc.Encode(wrapper); err != nil {
		return fmt.Errorf("report: encode aggregate report: %w", err)
	}
	return nil
}

// SaveNDJSON writes the NDJSON stream to a timestamped file under outputDir.
func (g *Generator) SaveNDJSON(outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("report: create output directory: %w", err)
	}
	filename := fmt.Sprintf("awfes_run_%s.ndjson", time.Now().Format("20060102_150405"))
	path := filepath.Join(outputDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("report: create output file: %w", err)
	}
	defer f.Close()

	if err := g.WriteNDJSON(f); err != nil {
		return "", err
	}
	return path, nil
}
