package metrics

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// ErrInvariant marks a misuse of the Aggregator. It is a programming error,
// never a request level failure.
var ErrInvariant = errors.New("aggregator invariant violated")

// State is the lifecycle position of a run.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateComplete State = "complete"
)

// RunResult is the run level state owned by the Aggregator.
type RunResult struct {
	Successes int64            `json:"successes" yaml:"successes"`
	Failures  int64            `json:"failures" yaml:"failures"`
	Latencies []time.Duration  `json:"latencies_ns" yaml:"latencies_ns"`
	ByReason  map[Reason]int64 `json:"failures_by_reason,omitempty" yaml:"failures_by_reason,omitempty"`
}

// Completed returns the number of recorded outcomes.
func (r RunResult) Completed() int64 {
	return r.Successes + r.Failures
}

// MeanLatency returns the arithmetic mean of the latency samples, or zero
// when there are none.
func (r RunResult) MeanLatency() time.Duration {
	if len(r.Latencies) == 0 {
		return 0
	}
	var sum time.Duration
	for _, l := range r.Latencies {
		sum += l
	}
	return sum / time.Duration(len(r.Latencies))
}

// Aggregator records request outcomes in a thread-safe manner. Every Record
// call is a single critical section so counters and the latency series are
// never observed half updated.
type Aggregator struct {
	mu         sync.Mutex
	expected   int
	seen       []bool
	hist       *hdrhistogram.Histogram
	successes  int64
	failures   int64
	latencies  []time.Duration
	byReason   map[Reason]int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
	start      time.Time
}

// NewAggregator creates an Aggregator expecting exactly expected outcomes,
// one per request index in 1..expected.
func NewAggregator(expected int) *Aggregator {
	if expected < 0 {
		expected = 0
	}
	// Track latencies from 1µs up to 10min with 3 significant figures.
	h := hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
	return &Aggregator{
		expected:  expected,
		seen:      make([]bool, expected+1),
		hist:      h,
		latencies: make([]time.Duration, 0, expected),
		byReason:  make(map[Reason]int64),
		start:     time.Now(),
	}
}

// Start resets the start time used for throughput calculations.
func (a *Aggregator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.start = time.Now()
}

// Expected returns the number of outcomes the run must record.
func (a *Aggregator) Expected() int {
	return a.expected
}

// Record stores one outcome. It returns an error wrapping ErrInvariant when the
// outcome is malformed, duplicates an index, or arrives after completion.
func (a *Aggregator) Record(o Outcome) error {
	if err := validateOutcome(o); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	recorded := a.successes + a.failures
	if recorded >= int64(a.expected) {
		return fmt.Errorf("%w: request %d recorded after run completed (%d of %d)", ErrInvariant, o.Index, recorded, a.expected)
	}
	if o.Index < 1 || o.Index > a.expected {
		return fmt.Errorf("%w: request index %d outside 1..%d", ErrInvariant, o.Index, a.expected)
	}
	if a.seen[o.Index] {
		return fmt.Errorf("%w: request %d recorded twice", ErrInvariant, o.Index)
	}
	a.seen[o.Index] = true

	if o.Kind == KindSuccess {
		a.successes++
	} else {
		a.failures++
		a.byReason[o.Reason]++
	}

	if o.HasLatency {
		a.recordLatency(o.Latency)
	}
	return nil
}

func (a *Aggregator) recordLatency(latency time.Duration) {
	a.latencies = append(a.latencies, latency)
	a.sumLatency += latency

	us := latency.Microseconds()
	if us < a.hist.LowestTrackableValue() {
		us = a.hist.LowestTrackableValue()
	}
	if us > a.hist.HighestTrackableValue() {
		us = a.hist.HighestTrackableValue()
	}
	_ = a.hist.RecordValue(us)

	if len(a.latencies) == 1 || latency < a.minLatency {
		a.minLatency = latency
	}
	if latency > a.maxLatency {
		a.maxLatency = latency
	}
}

func validateOutcome(o Outcome) error {
	switch o.Kind {
	case KindSuccess:
		if o.Reason != ReasonNone {
			return fmt.Errorf("%w: request %d is a success with reason %q", ErrInvariant, o.Index, o.Reason)
		}
	case KindFailure:
		switch o.Reason {
		case ReasonUnexpectedStatus, ReasonTransportError, ReasonTimeout:
		default:
			return fmt.Errorf("%w: request %d failed with unknown reason %q", ErrInvariant, o.Index, o.Reason)
		}
	default:
		return fmt.Errorf("%w: request %d has unknown kind %q", ErrInvariant, o.Index, o.Kind)
	}
	if o.HasLatency && o.Latency < 0 {
		return fmt.Errorf("%w: request %d has negative latency %s", ErrInvariant, o.Index, o.Latency)
	}
	return nil
}

// State reports the lifecycle position of the run.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *Aggregator) stateLocked() State {
	recorded := a.successes + a.failures
	switch {
	case recorded >= int64(a.expected):
		return StateComplete
	case recorded == 0:
		return StateIdle
	default:
		return StateRunning
	}
}

// Completed returns how many outcomes have been recorded so far.
func (a *Aggregator) Completed() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.successes + a.failures
}

// Snapshot returns a copy of the current run result. It is safe to call while
// the run is in progress.
func (a *Aggregator) Snapshot() RunResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	res := RunResult{
		Successes: a.successes,
		Failures:  a.failures,
		Latencies: append([]time.Duration(nil), a.latencies...),
	}
	if len(a.byReason) > 0 {
		res.ByReason = make(map[Reason]int64, len(a.byReason))
		for k, v := range a.byReason {
			res.ByReason[k] = v
		}
	}
	return res
}

// Stats computes aggregated statistics. When elapsed is zero the time since
// Start is used.
func (a *Aggregator) Stats(elapsed time.Duration) Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	if elapsed <= 0 {
		elapsed = time.Since(a.start)
	}

	total := a.successes + a.failures
	stats := Stats{
		Expected:   int64(a.expected),
		Total:      total,
		Successes:  a.successes,
		Failures:   a.failures,
		Samples:    int64(len(a.latencies)),
		MinLatency: a.minLatency,
		MaxLatency: a.maxLatency,
		State:      a.stateLocked(),
	}

	if n := len(a.latencies); n > 0 {
		stats.MeanLatency = a.sumLatency / time.Duration(n)
	}
	if a.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(a.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(a.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P95Latency = time.Duration(a.hist.ValueAtQuantile(95)) * time.Microsecond
		stats.P99Latency = time.Duration(a.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.Duration = elapsed
	if total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(a.byReason) > 0 {
		stats.Errors = make(map[string]int64, len(a.byReason))
		for k, v := range a.byReason {
			stats.Errors[string(k)] = v
		}
	}

	stats.fillMillis()
	return stats
}
