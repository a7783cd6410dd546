// Package metrics aggregates request outcomes for a load test run.
//
// The central [Aggregator] type is the single owner of mutable run state:
// success and failure counters, the ordered latency series, and an HDR
// histogram used for percentiles. Executors report into it concurrently:
//
//	agg := metrics.NewAggregator(total)
//	agg.Start()
//
//	if err := agg.Record(metrics.Success(1, 200, latency)); err != nil {
//		// programming error: duplicate index, record after completion, ...
//	}
//
//	result := agg.Snapshot()
//	stats := agg.Stats(elapsed)
//
// # Outcomes
//
// Every request produces exactly one [Outcome]. Failures carry a [Reason]:
//   - [ReasonUnexpectedStatus]: a response arrived with a status other than 200
//   - [ReasonTransportError]: the connection failed before a status was read
//   - [ReasonTimeout]: the request deadline expired
//
// Only outcomes that obtained a response keep a latency sample.
//
// # Thread Safety
//
// Each Record call is a single mutex-guarded critical section, so concurrent
// executors never lose updates. Snapshot and Stats may be called while the run
// is in progress.
package metrics
