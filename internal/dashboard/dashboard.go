package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/loadgate/internal/metrics"
)

// plotWindow is how many of the most recent latency samples the plot shows.
const plotWindow = 120

// RunConfig holds run parameters for display.
type RunConfig struct {
	RunID       string
	TargetURL   string
	Total       int
	Concurrency int
	Rate        int
	RateWindow  time.Duration
	RatePolicy  string
	Timeout     time.Duration
	ConfigFile  string
}

// Source is the live view of a run. *metrics.Aggregator satisfies it.
type Source interface {
	Stats(elapsed time.Duration) metrics.Stats
	Snapshot() metrics.RunResult
}

// Dashboard renders a live terminal UI for a run: outcome bars, a latency
// plot with its running mean, and the failure breakdown.
type Dashboard struct {
	source       Source
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid         *ui.Grid
	summaryPara  *widgets.Paragraph
	progress     *widgets.Gauge
	outcomeBars  *widgets.BarChart
	latencyPlot  *widgets.Plot
	latencyPara  *widgets.Paragraph
	failureList  *widgets.List
	startTime    time.Time
	testDuration time.Duration
	cfg          RunConfig
}

// New creates a new Dashboard. shutdownFunc is invoked when the user presses
// q or Ctrl+C.
func New(source Source, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		source:       source,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		startTime:    time.Now(),
		cfg:          cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.progress = widgets.NewGauge()
	d.progress.Title = "Progress"
	d.progress.BarColor = ui.ColorBlue
	d.progress.BorderStyle.Fg = ui.ColorCyan
	d.progress.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.outcomeBars = widgets.NewBarChart()
	d.outcomeBars.Title = "Outcomes"
	d.outcomeBars.Labels = []string{"Successes", "Failures"}
	d.outcomeBars.Data = []float64{0, 0}
	d.outcomeBars.MaxVal = 1
	d.outcomeBars.BarWidth = 11
	d.outcomeBars.BarGap = 4
	d.outcomeBars.BarColors = []ui.Color{ui.ColorGreen, ui.ColorRed}
	d.outcomeBars.LabelStyles = []ui.Style{ui.NewStyle(ui.ColorWhite)}
	d.outcomeBars.NumStyles = []ui.Style{ui.NewStyle(ui.ColorBlack)}
	d.outcomeBars.NumFormatter = func(v float64) string { return fmt.Sprintf("%.0f", v) }
	d.outcomeBars.BorderStyle.Fg = ui.ColorCyan

	d.latencyPlot = widgets.NewPlot()
	d.latencyPlot.Title = "Latency (ms) by request"
	d.latencyPlot.Data = [][]float64{{0, 0}, {0, 0}}
	d.latencyPlot.MaxVal = 1
	d.latencyPlot.LineColors = []ui.Color{ui.ColorGreen, ui.ColorRed}
	d.latencyPlot.AxesColor = ui.ColorWhite
	d.latencyPlot.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency"
	d.latencyPara.Text = "No samples yet"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.failureList = widgets.NewList()
	d.failureList.Title = "Failures"
	d.failureList.Rows = []string{"[No failures](fg:green)"}
	d.failureList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.failureList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.18,
			ui.NewCol(0.65, d.summaryPara),
			ui.NewCol(0.35, d.progress),
		),
		ui.NewRow(0.52,
			ui.NewCol(0.3, d.outcomeBars),
			ui.NewCol(0.7, d.latencyPlot),
		),
		ui.NewRow(0.30,
			ui.NewCol(0.5, d.latencyPara),
			ui.NewCol(0.5, d.failureList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	d.testDuration = time.Since(d.startTime)
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// FinalStats returns the statistics of the run as of Stop.
func (d *Dashboard) FinalStats() metrics.Stats {
	return d.source.Stats(d.testDuration)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop cancels the context once the run has drained.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	stats := d.source.Stats(elapsed)
	snapshot := d.source.Snapshot()

	d.summaryPara.Text = fmt.Sprintf("Target: %s\n%s\nElapsed: %s | Completed: %d/%d | RPS: %.1f",
		d.cfg.TargetURL,
		formatRunParams(d.cfg),
		elapsed.Round(time.Second),
		stats.Total,
		stats.Expected,
		stats.RequestsPerSec,
	)

	d.progress.Percent = progressPercent(stats.Total, stats.Expected)
	d.progress.Label = fmt.Sprintf("%d%% (%d/%d)", d.progress.Percent, stats.Total, stats.Expected)

	d.outcomeBars.Data, d.outcomeBars.MaxVal = outcomeBars(snapshot)

	series, mean := latencySeries(snapshot.Latencies, plotWindow)
	d.latencyPlot.Data = [][]float64{series, mean}
	d.latencyPlot.MaxVal = plotMax(series)
	if len(snapshot.Latencies) > 0 {
		d.latencyPlot.Title = fmt.Sprintf("Latency (ms) by request | last %d of %d | mean %.2fms",
			min(len(snapshot.Latencies), plotWindow), len(snapshot.Latencies), stats.MeanLatencyMs)
	}

	d.latencyPara.Text = formatLatency(stats)
	d.failureList.Rows = formatFailureRows(stats)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func progressPercent(done, expected int64) int {
	if expected <= 0 {
		return 100
	}
	p := int(done * 100 / expected)
	if p > 100 {
		p = 100
	}
	return p
}

// outcomeBars returns bar values and a non-zero scale; termui divides by the
// scale.
func outcomeBars(run metrics.RunResult) ([]float64, float64) {
	data := []float64{float64(run.Successes), float64(run.Failures)}
	maxVal := data[0]
	if data[1] > maxVal {
		maxVal = data[1]
	}
	if maxVal == 0 {
		maxVal = 1
	}
	return data, maxVal
}

// latencySeries returns the last window latencies in milliseconds and a flat
// line at their mean. The plot reads two points per line, so short series are
// padded.
func latencySeries(latencies []time.Duration, window int) ([]float64, []float64) {
	if window > 0 && len(latencies) > window {
		latencies = latencies[len(latencies)-window:]
	}
	series := make([]float64, 0, max(len(latencies), 2))
	var sum float64
	for _, l := range latencies {
		ms := float64(l) / float64(time.Millisecond)
		series = append(series, ms)
		sum += ms
	}
	mean := 0.0
	if len(series) > 0 {
		mean = sum / float64(len(series))
	}
	for len(series) < 2 {
		if len(series) == 0 {
			series = append(series, 0)
		} else {
			series = append(series, series[0])
		}
	}
	meanLine := make([]float64, len(series))
	for i := range meanLine {
		meanLine[i] = mean
	}
	return series, meanLine
}

func plotMax(series []float64) float64 {
	maxVal := 0.0
	for _, v := range series {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal == 0 {
		return 1
	}
	return maxVal * 1.1
}

func formatLatency(stats metrics.Stats) string {
	if stats.Samples == 0 {
		return "No samples yet"
	}
	return fmt.Sprintf("Samples: %d\nMin:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP95:  %.2fms\nP99:  %.2fms\nMax:  %.2fms",
		stats.Samples,
		stats.MinLatencyMs,
		stats.MeanLatencyMs,
		stats.P50LatencyMs,
		stats.P95LatencyMs,
		stats.P99LatencyMs,
		stats.MaxLatencyMs,
	)
}

func formatFailureRows(stats metrics.Stats) []string {
	rows := stats.FailureBreakdown()
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d", metrics.FriendlyReason(row.Reason), row.Count))
	}
	return formatted
}

// formatRunParams formats the run configuration for display.
func formatRunParams(cfg RunConfig) string {
	var parts []string

	if cfg.RunID != "" {
		parts = append(parts, fmt.Sprintf("Run: %s", cfg.RunID))
	}
	if cfg.Total > 0 {
		parts = append(parts, fmt.Sprintf("Total: %d", cfg.Total))
	}
	if cfg.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("Concurrency: %d", cfg.Concurrency))
	}
	if cfg.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %d/%s", cfg.Rate, cfg.RateWindow))
	} else {
		parts = append(parts, "Rate: unlimited")
	}
	if cfg.RatePolicy != "" {
		parts = append(parts, fmt.Sprintf("Policy: %s", cfg.RatePolicy))
	}
	if cfg.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", cfg.Timeout))
	}
	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
