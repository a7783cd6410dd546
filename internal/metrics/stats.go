package metrics

import (
	"sort"
	"time"
)

// Stats represents aggregated metrics.
type Stats struct {
	Expected       int64         `json:"expected"`
	Total          int64         `json:"total"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	Samples        int64         `json:"latency_samples"`
	State          State         `json:"state"`
	MinLatency     time.Duration `json:"-"`
	MaxLatency     time.Duration `json:"-"`
	MeanLatency    time.Duration `json:"-"`
	P50Latency     time.Duration `json:"-"`
	P90Latency     time.Duration `json:"-"`
	P95Latency     time.Duration `json:"-"`
	P99Latency     time.Duration `json:"-"`
	Duration       time.Duration `json:"-"`
	RequestsPerSec float64       `json:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64          `json:"min_latency_ms"`
	MaxLatencyMs  float64          `json:"max_latency_ms"`
	MeanLatencyMs float64          `json:"mean_latency_ms"`
	P50LatencyMs  float64          `json:"p50_latency_ms"`
	P90LatencyMs  float64          `json:"p90_latency_ms"`
	P95LatencyMs  float64          `json:"p95_latency_ms"`
	P99LatencyMs  float64          `json:"p99_latency_ms"`
	DurationMs    float64          `json:"duration_ms"`
	Errors        map[string]int64 `json:"errors,omitempty"`
}

func (s *Stats) fillMillis() {
	s.MinLatencyMs = millis(s.MinLatency)
	s.MaxLatencyMs = millis(s.MaxLatency)
	s.MeanLatencyMs = millis(s.MeanLatency)
	s.P50LatencyMs = millis(s.P50Latency)
	s.P90LatencyMs = millis(s.P90Latency)
	s.P95LatencyMs = millis(s.P95Latency)
	s.P99LatencyMs = millis(s.P99Latency)
	s.DurationMs = millis(s.Duration)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// ReasonCount is one row of the failure breakdown.
type ReasonCount struct {
	Reason Reason
	Count  int64
}

// FailureBreakdown returns failure counts sorted by descending count, then by
// reason for stability.
func (s Stats) FailureBreakdown() []ReasonCount {
	if len(s.Errors) == 0 {
		return nil
	}
	rows := make([]ReasonCount, 0, len(s.Errors))
	for reason, count := range s.Errors {
		rows = append(rows, ReasonCount{Reason: Reason(reason), Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Reason < rows[j].Reason
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
