package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/torosent/loadgate/internal/metrics"
)

// StatsSource supplies a point-in-time view of the run. *metrics.Aggregator
// satisfies it.
type StatsSource interface {
	Stats(elapsed time.Duration) metrics.Stats
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   StatsSource
	bar      progress.Model
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	start    time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(source StatsSource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		source: source,
		bar: progress.New(
			progress.WithWidth(24),
			progress.WithoutPercentage(),
			progress.WithSolidFill(string(colorSuccess)),
		),
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		start:    time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and prints a final line so the terminal ends
// on the completed state.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer, p.line())
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	stats := p.source.Stats(time.Since(p.start))
	return "\r" + formatProgress(p.bar, stats)
}

func formatProgress(bar progress.Model, stats metrics.Stats) string {
	percent := 0.0
	if stats.Expected > 0 {
		percent = float64(stats.Total) / float64(stats.Expected)
	}
	return fmt.Sprintf("%s %3.0f%% | Requests: %d/%d | Successes: %d | Failures: %d | RPS: %.1f",
		bar.ViewAs(percent), percent*100, stats.Total, stats.Expected, stats.Successes, stats.Failures, stats.RequestsPerSec)
}
