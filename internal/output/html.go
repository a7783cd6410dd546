package output

import (
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/torosent/loadgate/internal/metrics"
)

const (
	chartWidth   = 640
	chartHeight  = 300
	chartPadding = 40
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Report           Report
	ThresholdsPassed int
	Outcomes         BarChart
	Latency          LineChart
}

// BarChart is the outcome panel: one bar for successes, one for failures.
type BarChart struct {
	Width  int
	Height int
	Bars   []Bar
}

// Bar is a single rectangle of a BarChart in SVG coordinates.
type Bar struct {
	Label  string
	Value  int64
	X      float64
	Y      float64
	Width  float64
	Height float64
	Fill   string
}

// LineChart is the latency panel: latency by request position with a
// horizontal line at the mean.
type LineChart struct {
	Width     int
	Height    int
	Points    string
	Samples   int
	MeanY     float64
	MeanLabel string
	MaxLabel  string
}

// GenerateHTMLReport generates a standalone HTML report with the outcome bar
// chart and the latency line chart rendered as inline SVG.
func GenerateHTMLReport(w io.Writer, report Report, run metrics.RunResult) error {
	passed := 0
	for _, r := range report.Thresholds {
		if r.Pass {
			passed++
		}
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Report:           report,
		ThresholdsPassed: passed,
		Outcomes:         buildOutcomeChart(run.Successes, run.Failures),
		Latency:          buildLatencyChart(run.Latencies, run.MeanLatency()),
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.Round(time.Microsecond).String()
		},
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatPercent": func(part, total int64) string {
			if total == 0 {
				return "0.0"
			}
			return fmt.Sprintf("%.1f", (float64(part)/float64(total))*100)
		},
		"friendlyReason": func(r metrics.Reason) string {
			return metrics.FriendlyReason(r)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

func buildOutcomeChart(successes, failures int64) BarChart {
	chart := BarChart{Width: chartWidth, Height: chartHeight}
	maxValue := successes
	if failures > maxValue {
		maxValue = failures
	}

	plotHeight := float64(chartHeight - 2*chartPadding)
	slot := float64(chartWidth-2*chartPadding) / 2
	barWidth := slot * 0.6
	values := []struct {
		label string
		value int64
		fill  string
	}{
		{"Successes", successes, "#10b981"},
		{"Failures", failures, "#ef4444"},
	}
	for i, v := range values {
		height := 0.0
		if maxValue > 0 {
			height = plotHeight * float64(v.value) / float64(maxValue)
		}
		chart.Bars = append(chart.Bars, Bar{
			Label:  v.label,
			Value:  v.value,
			X:      float64(chartPadding) + slot*float64(i) + (slot-barWidth)/2,
			Y:      float64(chartHeight-chartPadding) - height,
			Width:  barWidth,
			Height: height,
			Fill:   v.fill,
		})
	}
	return chart
}

func buildLatencyChart(latencies []time.Duration, mean time.Duration) LineChart {
	chart := LineChart{Width: chartWidth, Height: chartHeight, Samples: len(latencies)}
	if len(latencies) == 0 {
		return chart
	}

	maxLatency := latencies[0]
	for _, l := range latencies {
		if l > maxLatency {
			maxLatency = l
		}
	}
	if maxLatency <= 0 {
		maxLatency = time.Millisecond
	}

	plotWidth := float64(chartWidth - 2*chartPadding)
	plotHeight := float64(chartHeight - 2*chartPadding)
	baseline := float64(chartHeight - chartPadding)
	y := func(d time.Duration) float64 {
		return baseline - plotHeight*float64(d)/float64(maxLatency)
	}

	step := 0.0
	if len(latencies) > 1 {
		step = plotWidth / float64(len(latencies)-1)
	}
	points := make([]string, len(latencies))
	for i, l := range latencies {
		x := float64(chartPadding) + step*float64(i)
		if len(latencies) == 1 {
			x = float64(chartPadding) + plotWidth/2
		}
		points[i] = strconv.FormatFloat(x, 'f', 1, 64) + "," + strconv.FormatFloat(y(l), 'f', 1, 64)
	}

	chart.Points = strings.Join(points, " ")
	chart.MeanY = y(mean)
	chart.MeanLabel = fmt.Sprintf("mean %.2fs", mean.Seconds())
	chart.MaxLabel = fmt.Sprintf("%.2fs", maxLatency.Seconds())
	return chart
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>loadgate Report</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 { font-size: 2rem; margin-bottom: 10px; }
        header .meta { opacity: 0.9; font-size: 0.9rem; }
        .content { padding: 40px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #667eea;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value { font-size: 2rem; font-weight: bold; }
        .card .subvalue { font-size: 0.85rem; color: #6c757d; margin-top: 5px; }
        .card.success { border-left-color: #10b981; }
        .card.error { border-left-color: #ef4444; }
        .section { margin-bottom: 40px; }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        .charts { display: grid; grid-template-columns: repeat(auto-fit, minmax(480px, 1fr)); gap: 20px; }
        .chart-container { border: 1px solid #e5e7eb; border-radius: 8px; padding: 20px; }
        .chart-container h3 { font-size: 1.1rem; margin-bottom: 15px; color: #4b5563; }
        svg { width: 100%; height: auto; }
        svg text { font-size: 12px; fill: #4b5563; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 12px; border-bottom: 1px solid #e5e7eb; }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
        }
        .badge { display: inline-block; padding: 4px 12px; border-radius: 12px; font-size: 0.85rem; font-weight: 600; }
        .badge-success { background: #d1fae5; color: #065f46; }
        .badge-error { background: #fee2e2; color: #991b1b; }
        .no-data { text-align: center; padding: 40px; color: #6c757d; font-style: italic; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>loadgate Report</h1>
            {{if .Report.Target}}<div class="meta">Target: {{.Report.Target}}</div>{{end}}
            {{if .Report.RunID}}<div class="meta">Run: {{.Report.RunID}}</div>{{end}}
            <div class="meta">Generated: {{.GeneratedAt}} | Duration: {{formatDuration .Report.Stats.Duration}}</div>
        </header>

        <div class="content">
            <div class="grid">
                <div class="card">
                    <h3>Total Requests</h3>
                    <div class="value">{{.Report.Stats.Total}}</div>
                </div>
                <div class="card success">
                    <h3>Successful</h3>
                    <div class="value">{{.Report.Stats.Successes}}</div>
                    <div class="subvalue">{{formatPercent .Report.Stats.Successes .Report.Stats.Total}}%</div>
                </div>
                <div class="card error">
                    <h3>Failed</h3>
                    <div class="value">{{.Report.Stats.Failures}}</div>
                    <div class="subvalue">{{formatPercent .Report.Stats.Failures .Report.Stats.Total}}%</div>
                </div>
                <div class="card">
                    <h3>Mean Latency</h3>
                    <div class="value">{{if .Report.Stats.Samples}}{{formatDuration .Report.Stats.MeanLatency}}{{else}}n/a{{end}}</div>
                    <div class="subvalue">{{.Report.Stats.Samples}} samples</div>
                </div>
            </div>

            <div class="section">
                <h2>Results</h2>
                <div class="charts">
                    <div class="chart-container">
                        <h3>Outcomes</h3>
                        <svg id="outcome-chart" viewBox="0 0 {{.Outcomes.Width}} {{.Outcomes.Height}}" xmlns="http://www.w3.org/2000/svg">
                            {{range .Outcomes.Bars}}
                            <rect class="bar" x="{{formatFloat .X}}" y="{{formatFloat .Y}}" width="{{formatFloat .Width}}" height="{{formatFloat .Height}}" fill="{{.Fill}}"></rect>
                            <text x="{{formatFloat .X}}" y="{{$.Outcomes.Height}}" dy="-20">{{.Label}}: {{.Value}}</text>
                            {{end}}
                        </svg>
                    </div>
                    <div class="chart-container">
                        <h3>Latency by Request</h3>
                        {{if .Latency.Samples}}
                        <svg id="latency-chart" viewBox="0 0 {{.Latency.Width}} {{.Latency.Height}}" xmlns="http://www.w3.org/2000/svg">
                            <polyline class="latency" points="{{.Latency.Points}}" fill="none" stroke="#667eea" stroke-width="2"></polyline>
                            <line class="mean" x1="40" x2="{{.Latency.Width}}" y1="{{formatFloat .Latency.MeanY}}" y2="{{formatFloat .Latency.MeanY}}" stroke="#ef4444" stroke-dasharray="6 4"></line>
                            <text x="44" y="{{formatFloat .Latency.MeanY}}" dy="-6">{{.Latency.MeanLabel}}</text>
                            <text x="4" y="44">{{.Latency.MaxLabel}}</text>
                        </svg>
                        {{else}}
                        <div class="no-data">No latency samples were recorded.</div>
                        {{end}}
                    </div>
                </div>
            </div>

            {{if .Report.Stats.Errors}}
            <div class="section">
                <h2>Failures</h2>
                <table>
                    <thead><tr><th>Reason</th><th>Count</th></tr></thead>
                    <tbody>
                        {{range .Report.Stats.FailureBreakdown}}
                        <tr><td>{{friendlyReason .Reason}}</td><td>{{.Count}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Report.Thresholds}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdsPassed}}/{{len .Report.Thresholds}} Passed)</h2>
                <table>
                    <thead><tr><th>Threshold</th><th>Actual</th><th>Status</th></tr></thead>
                    <tbody>
                        {{range .Report.Thresholds}}
                        <tr>
                            <td>{{.Raw}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>{{if .Pass}}<span class="badge badge-success">PASS</span>{{else}}<span class="badge badge-error">FAIL</span>{{end}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>
</body>
</html>
`
