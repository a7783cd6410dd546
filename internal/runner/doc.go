// Package runner provides the dispatch and rate-control engine for loadgate.
//
// A [Dispatcher] executes a fixed number of requests, numbered 1..N, and
// enforces two independent gates on each of them:
//   - a rate quota: at most RatePerWindow admissions per Window
//   - a concurrency cap: at most Concurrency requests in flight
//
// # Basic Usage
//
//	d := runner.New(runner.Options{
//		TotalRequests: 100,
//		Concurrency:   40,
//		RatePerWindow: 500,
//		Executor:      exec,
//		Recorder:      aggregator,
//	})
//	result, err := d.Run(ctx)
//
// # Rate Policies
//
// [PolicyBurst] makes the whole quota available at start and never refills
// it; it is only used when the run fits in one quota. [PolicySustained] spaces
// admissions Window/RatePerWindow apart using golang.org/x/time/rate.
// [PolicyAuto] picks between them from the run size.
//
// # Ordering
//
// Requests are admitted in increasing index order. Completion order is not
// guaranteed unless Concurrency is 1.
//
// # Middleware
//
// [WithOutcomeLogging] logs every outcome as it completes.
package runner
