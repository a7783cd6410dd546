package metrics_test

import (
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/torosent/loadgate/internal/metrics"
)

func TestAggregatorLatencyStats(t *testing.T) {
	agg := metrics.NewAggregator(5)

	for i := 1; i <= 5; i++ {
		if err := agg.Record(metrics.Success(i, 200, time.Duration(i*10)*time.Millisecond)); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	stats := agg.Stats(time.Second)

	if stats.Total != 5 {
		t.Errorf("expected total 5, got %d", stats.Total)
	}
	if stats.Successes != 5 {
		t.Errorf("expected successes 5, got %d", stats.Successes)
	}
	if stats.Failures != 0 {
		t.Errorf("expected failures 0, got %d", stats.Failures)
	}
	if stats.MinLatency != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", stats.MinLatency)
	}
	if stats.MaxLatency != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", stats.MaxLatency)
	}
	if stats.MeanLatency != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", stats.MeanLatency)
	}
	if stats.State != metrics.StateComplete {
		t.Errorf("expected state complete, got %s", stats.State)
	}
}

func TestPercentilesCalculations(t *testing.T) {
	agg := metrics.NewAggregator(100)

	for i := 1; i <= 100; i++ {
		if err := agg.Record(metrics.Success(i, 200, time.Duration(i)*time.Millisecond)); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	stats := agg.Stats(time.Second)

	if stats.P50Latency < 49*time.Millisecond || stats.P50Latency > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", stats.P50Latency)
	}
	if stats.P90Latency < 89*time.Millisecond || stats.P90Latency > 91*time.Millisecond {
		t.Errorf("expected P90 ~90ms, got %s", stats.P90Latency)
	}
	if stats.P99Latency < 98*time.Millisecond || stats.P99Latency > 101*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", stats.P99Latency)
	}
}

func TestFailuresWithoutLatencyKeepMeanOfSamples(t *testing.T) {
	agg := metrics.NewAggregator(4)
	outcomes := []metrics.Outcome{
		metrics.Success(1, 200, 20*time.Millisecond),
		metrics.UnexpectedStatus(2, 500, 40*time.Millisecond),
		metrics.TransportFailure(3, errors.New("connection refused")),
		metrics.Timeout(4, errors.New("deadline exceeded")),
	}
	for _, o := range outcomes {
		if err := agg.Record(o); err != nil {
			t.Fatalf("Record(%d) error = %v", o.Index, err)
		}
	}

	res := agg.Snapshot()
	if res.Successes != 1 || res.Failures != 3 {
		t.Fatalf("expected 1/3, got %d/%d", res.Successes, res.Failures)
	}
	if len(res.Latencies) != 2 {
		t.Fatalf("expected 2 latency samples, got %d", len(res.Latencies))
	}
	if res.MeanLatency() != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", res.MeanLatency())
	}
	for _, reason := range metrics.Reasons {
		if res.ByReason[reason] != 1 {
			t.Errorf("expected one %s failure, got %d", reason, res.ByReason[reason])
		}
	}
}

func TestEmptyRunHasZeroMean(t *testing.T) {
	agg := metrics.NewAggregator(0)

	if agg.State() != metrics.StateComplete {
		t.Fatalf("expected empty run to be complete, got %s", agg.State())
	}
	stats := agg.Stats(time.Second)
	if stats.MeanLatency != 0 || stats.MeanLatencyMs != 0 {
		t.Errorf("expected zero mean, got %s", stats.MeanLatency)
	}
	if got := agg.Snapshot().MeanLatency(); got != 0 {
		t.Errorf("expected zero mean from snapshot, got %s", got)
	}
}

func TestStateTransitions(t *testing.T) {
	agg := metrics.NewAggregator(2)
	if agg.State() != metrics.StateIdle {
		t.Fatalf("expected idle, got %s", agg.State())
	}
	_ = agg.Record(metrics.Success(2, 200, time.Millisecond))
	if agg.State() != metrics.StateRunning {
		t.Fatalf("expected running, got %s", agg.State())
	}
	_ = agg.Record(metrics.Success(1, 200, time.Millisecond))
	if agg.State() != metrics.StateComplete {
		t.Fatalf("expected complete, got %s", agg.State())
	}
}

func TestRecordRejectsInvariantViolations(t *testing.T) {
	tests := []struct {
		name    string
		prepare []metrics.Outcome
		outcome metrics.Outcome
	}{
		{
			name:    "duplicate index",
			prepare: []metrics.Outcome{metrics.Success(1, 200, time.Millisecond)},
			outcome: metrics.Success(1, 200, time.Millisecond),
		},
		{
			name:    "index out of range",
			outcome: metrics.Success(4, 200, time.Millisecond),
		},
		{
			name:    "index zero",
			outcome: metrics.Success(0, 200, time.Millisecond),
		},
		{
			name: "after completion",
			prepare: []metrics.Outcome{
				metrics.Success(1, 200, time.Millisecond),
				metrics.Success(2, 200, time.Millisecond),
				metrics.Success(3, 200, time.Millisecond),
			},
			outcome: metrics.Success(3, 200, time.Millisecond),
		},
		{
			name:    "failure without reason",
			outcome: metrics.Outcome{Index: 1, Kind: metrics.KindFailure},
		},
		{
			name:    "unknown kind",
			outcome: metrics.Outcome{Index: 1, Kind: "maybe"},
		},
		{
			name:    "negative latency",
			outcome: metrics.Success(1, 200, -time.Millisecond),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := metrics.NewAggregator(3)
			for _, o := range tt.prepare {
				if err := agg.Record(o); err != nil {
					t.Fatalf("prepare Record(%d) error = %v", o.Index, err)
				}
			}
			before := agg.Snapshot()
			err := agg.Record(tt.outcome)
			if !errors.Is(err, metrics.ErrInvariant) {
				t.Fatalf("expected ErrInvariant, got %v", err)
			}
			after := agg.Snapshot()
			if after.Completed() != before.Completed() {
				t.Errorf("rejected record changed counts: %d -> %d", before.Completed(), after.Completed())
			}
		})
	}
}

func TestConcurrentRecordingNoLostUpdates(t *testing.T) {
	const trials = 20
	for trial := 0; trial < trials; trial++ {
		workers := 16 + rand.Intn(48)
		agg := metrics.NewAggregator(workers)
		start := make(chan struct{})

		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 1; i <= workers; i++ {
			go func(idx int) {
				defer wg.Done()
				<-start
				if jitter := rand.Intn(200); jitter > 0 {
					time.Sleep(time.Duration(jitter) * time.Microsecond)
				}
				var o metrics.Outcome
				if idx%3 == 0 {
					o = metrics.TransportFailure(idx, errors.New("reset"))
				} else {
					o = metrics.Success(idx, 200, time.Duration(idx)*time.Microsecond)
				}
				if err := agg.Record(o); err != nil {
					t.Errorf("Record(%d) error = %v", idx, err)
				}
			}(i)
		}
		close(start)
		wg.Wait()

		res := agg.Snapshot()
		if res.Completed() != int64(workers) {
			t.Fatalf("trial %d: expected %d recorded, got %d", trial, workers, res.Completed())
		}
		wantFailures := int64(workers / 3)
		if res.Failures != wantFailures {
			t.Fatalf("trial %d: expected %d failures, got %d", trial, wantFailures, res.Failures)
		}
		if int64(len(res.Latencies)) != res.Successes {
			t.Fatalf("trial %d: expected %d latencies, got %d", trial, res.Successes, len(res.Latencies))
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	agg := metrics.NewAggregator(2)
	_ = agg.Record(metrics.Success(1, 200, time.Millisecond))

	snap := agg.Snapshot()
	snap.Latencies[0] = time.Hour

	if got := agg.Snapshot().Latencies[0]; got != time.Millisecond {
		t.Fatalf("snapshot mutation leaked into aggregator: %s", got)
	}
}

func TestJSONStatsSchema(t *testing.T) {
	agg := metrics.NewAggregator(2)
	_ = agg.Record(metrics.Success(1, 200, 15*time.Millisecond))
	_ = agg.Record(metrics.UnexpectedStatus(2, 503, 25*time.Millisecond))

	data, err := json.Marshal(agg.Stats(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("failed to marshal stats: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	requiredFields := []string{"total", "successes", "failures", "latency_samples", "min_latency_ms", "max_latency_ms", "mean_latency_ms", "p50_latency_ms", "p90_latency_ms", "p99_latency_ms", "duration_ms", "requests_per_sec", "errors"}
	for _, field := range requiredFields {
		if _, ok := parsed[field]; !ok {
			t.Errorf("missing field %q in JSON output", field)
		}
	}
}

func TestFailureBreakdownOrdering(t *testing.T) {
	stats := metrics.Stats{Errors: map[string]int64{
		"timeout":           2,
		"transport_error":   5,
		"unexpected_status": 2,
	}}

	rows := stats.FailureBreakdown()
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Reason != metrics.ReasonTransportError {
		t.Errorf("expected transport_error first, got %s", rows[0].Reason)
	}
	if rows[1].Reason != metrics.ReasonTimeout || rows[2].Reason != metrics.ReasonUnexpectedStatus {
		t.Errorf("expected ties sorted by reason, got %s then %s", rows[1].Reason, rows[2].Reason)
	}
}

func TestOutcomeDetail(t *testing.T) {
	tests := []struct {
		name    string
		outcome metrics.Outcome
		want    string
	}{
		{"success", metrics.Success(1, 200, 1500*time.Millisecond), "1.50s"},
		{"status", metrics.UnexpectedStatus(1, 404, time.Millisecond), "Status: 404"},
		{"transport", metrics.TransportFailure(1, errors.New("refused")), "Transport error: refused"},
		{"timeout without error", metrics.Timeout(1, nil), "Timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.Detail(); got != tt.want {
				t.Errorf("Detail() = %q, want %q", got, tt.want)
			}
		})
	}
}
