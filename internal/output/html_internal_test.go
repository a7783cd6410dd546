package output

import (
	"strings"
	"testing"
	"time"
)

func TestBuildOutcomeChartScalesToLargest(t *testing.T) {
	chart := buildOutcomeChart(8, 2)
	if len(chart.Bars) != 2 {
		t.Fatalf("bars = %d, want 2", len(chart.Bars))
	}
	success, failure := chart.Bars[0], chart.Bars[1]
	plotHeight := float64(chartHeight - 2*chartPadding)
	if success.Height != plotHeight {
		t.Errorf("success height = %v, want %v", success.Height, plotHeight)
	}
	if failure.Height != plotHeight/4 {
		t.Errorf("failure height = %v, want %v", failure.Height, plotHeight/4)
	}
	if success.Y+success.Height != failure.Y+failure.Height {
		t.Error("bars should share a baseline")
	}
	if failure.X <= success.X {
		t.Error("failure bar should be right of the success bar")
	}
}

func TestBuildOutcomeChartEmpty(t *testing.T) {
	chart := buildOutcomeChart(0, 0)
	for _, bar := range chart.Bars {
		if bar.Height != 0 {
			t.Errorf("%s height = %v, want 0", bar.Label, bar.Height)
		}
	}
}

func TestBuildLatencyChart(t *testing.T) {
	latencies := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	chart := buildLatencyChart(latencies, 200*time.Millisecond)

	points := strings.Fields(chart.Points)
	if len(points) != len(latencies) {
		t.Fatalf("points = %d, want %d", len(points), len(latencies))
	}
	if !strings.HasPrefix(points[0], "40.0,") {
		t.Errorf("first point = %q, want x=40.0", points[0])
	}
	if !strings.HasPrefix(points[2], "600.0,") {
		t.Errorf("last point = %q, want x=600.0", points[2])
	}
	// The maximum sits on the top edge of the plot area.
	if !strings.HasSuffix(points[2], ",40.0") {
		t.Errorf("max point = %q, want y=40.0", points[2])
	}
	wantMeanY := float64(chartHeight-chartPadding) - float64(chartHeight-2*chartPadding)/2
	if chart.MeanY != wantMeanY {
		t.Errorf("MeanY = %v, want %v", chart.MeanY, wantMeanY)
	}
	if chart.MaxLabel != "0.40s" {
		t.Errorf("MaxLabel = %q, want 0.40s", chart.MaxLabel)
	}
}

func TestBuildLatencyChartSingleAndEmpty(t *testing.T) {
	empty := buildLatencyChart(nil, 0)
	if empty.Samples != 0 || empty.Points != "" {
		t.Errorf("empty chart = %+v", empty)
	}

	single := buildLatencyChart([]time.Duration{0}, 0)
	if single.Samples != 1 {
		t.Fatalf("Samples = %d, want 1", single.Samples)
	}
	if single.Points != "320.0,260.0" {
		t.Errorf("Points = %q, want centered point on the baseline", single.Points)
	}
}
