package subtest

import (
	"fmt"
	"io"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-subtest/metrics"
	"github.com/ethereum-optimism/infra/op-subtest/types"
)

// MetricsReporter is responsible for reporting metrics from a directory result.
type MetricsReporter interface {
	ReportResults(runID string, result *types.DirectoryResult) error
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct {
	// Textfile, when set, receives the registry in the node-exporter textfile format
	Textfile string
}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter(textfile string) *DefaultMetricsReporter {
	return &DefaultMetricsReporter{Textfile: textfile}
}

// ReportResults reports the directory result to metrics systems.
func (r *DefaultMetricsReporter) ReportResults(runID string, result *types.DirectoryResult) error {
	metrics.RecordRun(result.Dir, runID, runResultString(result), result.Stats, result.Duration)
	if r.Textfile == "" {
		return nil
	}
	return metrics.WriteTextfile(r.Textfile)
}

func runResultString(result *types.DirectoryResult) string {
	if result.Failed() {
		return "fail"
	}
	return "pass"
}

// renderResultsTable writes the per-record table to w and returns it without colours
func renderResultsTable(w io.Writer, result *types.DirectoryResult) string {
	t := table.NewWriter()
	if w != nil {
		t.SetOutputMirror(w)
	}
	t.SetTitle(fmt.Sprintf("Subtest Results %s (%s)", result.Dir, formatDuration(result.Duration)))

	t.AppendHeader(table.Row{"Test", "Phase", "Duration", "Status", "Future", "Detail"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Future", WidthMax: 30, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Detail", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, rec := range result.Records {
		t.AppendRow(table.Row{
			rec.DisplayName(),
			string(rec.Phase),
			formatDuration(rec.Duration),
			getOutcomeString(rec),
			rec.Future,
			rec.Detail,
		})
	}

	switch {
	case result.Failed():
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case result.Stats.Passed == 0 && result.Stats.Total > 0:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
	t.Style().Format.Footer = text.FormatDefault

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.Duration),
		fmt.Sprintf("%d passed, %d failed", result.Stats.Passed, result.Stats.Failed),
		fmt.Sprintf("%d futures", result.Stats.Futures),
		fmt.Sprintf("%d skipped", result.Stats.Skipped),
	})

	return stripansi.Strip(t.Render())
}

// getOutcomeString returns a short marker and the outcome name
func getOutcomeString(rec types.OutcomeRecord) string {
	switch {
	case rec.Outcome == types.OutcomeSuccess:
		return "✓ pass"
	case rec.Outcome == types.OutcomeSkipped:
		return "- skip"
	case rec.IsFuture():
		return "~ " + string(rec.Outcome)
	default:
		return "✗ " + string(rec.Outcome)
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
