package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/torosent/loadgate/internal/metrics"
	"github.com/torosent/loadgate/internal/threshold"
)

var (
	colorTitle   = lipgloss.Color("#7D56F4")
	colorSuccess = lipgloss.Color("#04B575")
	colorError   = lipgloss.Color("#FF5F87")
)

// Report is everything printed at the end of a run.
type Report struct {
	RunID        string             `json:"run_id"`
	Target       string             `json:"target"`
	RatePolicy   string             `json:"rate_policy"`
	PeakInFlight int64              `json:"peak_in_flight"`
	Stats        metrics.Stats      `json:"stats"`
	Thresholds   []threshold.Result `json:"thresholds,omitempty"`
}

// PrintReport outputs a human-readable summary report. Styling is dropped
// automatically when w is not a terminal.
func PrintReport(w io.Writer, report Report) {
	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Foreground(colorTitle).Bold(true)
	pass := r.NewStyle().Foreground(colorSuccess)
	fail := r.NewStyle().Foreground(colorError)

	stats := report.Stats
	fmt.Fprintln(w, "\n"+title.Render("--- Load Test Results ---"))
	if report.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", report.RunID)
	}
	if report.Target != "" {
		fmt.Fprintf(w, "Target:            %s\n", report.Target)
	}
	if report.RatePolicy != "" {
		fmt.Fprintf(w, "Rate Policy:       %s\n", report.RatePolicy)
	}
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	if stats.Expected > 0 && stats.Total != stats.Expected {
		fmt.Fprintf(w, "Not Completed:     %d\n", stats.Expected-stats.Total)
	}
	fmt.Fprintf(w, "Successful:        %s\n", pass.Render(fmt.Sprint(stats.Successes)))
	failed := fmt.Sprint(stats.Failures)
	if stats.Failures > 0 {
		failed = fail.Render(failed)
	}
	fmt.Fprintf(w, "Failed:            %s\n", failed)
	if report.PeakInFlight > 0 {
		fmt.Fprintf(w, "Peak In Flight:    %d\n", report.PeakInFlight)
	}
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)

	fmt.Fprintln(w, "\nLatency:")
	if stats.Samples == 0 {
		fmt.Fprintln(w, "  Mean:            n/a (no latency samples)")
	} else {
		fmt.Fprintf(w, "  Samples:         %d\n", stats.Samples)
		fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
		fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
		fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
		fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
		fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
		fmt.Fprintf(w, "  P95:             %s\n", stats.P95Latency)
		fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)
	}

	if rows := stats.FailureBreakdown(); len(rows) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		for _, row := range rows {
			fmt.Fprintf(w, "  %-17s %d\n", metrics.FriendlyReason(row.Reason)+":", row.Count)
		}
	}

	if len(report.Thresholds) > 0 {
		passed := 0
		for _, res := range report.Thresholds {
			if res.Pass {
				passed++
			}
		}
		fmt.Fprintf(w, "\nThresholds (%d/%d passed):\n", passed, len(report.Thresholds))
		for _, res := range report.Thresholds {
			style := pass
			if !res.Pass {
				style = fail
			}
			fmt.Fprintf(w, "  %s\n", style.Render(res.Message))
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
