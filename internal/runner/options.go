package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/loadgate/internal/metrics"
)

// DefaultWindow is the quota window the rate limit is expressed against.
const DefaultWindow = time.Minute

// Executor performs one logical request and classifies its result.
// Implementations must not return until the request reached a terminal state.
type Executor interface {
	Execute(ctx context.Context, index int) metrics.Outcome
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, index int) metrics.Outcome

// Execute calls f(ctx, index).
func (f ExecutorFunc) Execute(ctx context.Context, index int) metrics.Outcome {
	return f(ctx, index)
}

// Recorder receives exactly one outcome per request. A returned error is a
// programming error and halts the run.
type Recorder interface {
	Record(o metrics.Outcome) error
}

// RatePolicy selects how the rate quota is enforced.
type RatePolicy string

const (
	// PolicyAuto picks PolicyBurst when the whole run fits in the quota and
	// PolicySustained otherwise.
	PolicyAuto RatePolicy = "auto"
	// PolicyBurst makes the full quota available at start and never refills it.
	PolicyBurst RatePolicy = "burst"
	// PolicySustained spaces admissions window/rate apart.
	PolicySustained RatePolicy = "sustained"
	// PolicyUnlimited disables the rate gate. It is selected when the rate is 0.
	PolicyUnlimited RatePolicy = "unlimited"
)

// Options configure the Dispatcher.
type Options struct {
	TotalRequests  int                                                  // requests to execute
	Concurrency    int                                                  // max requests in flight
	RatePerWindow  int                                                  // max admissions per window (0 means unlimited)
	Window         time.Duration                                        // quota window (defaults to one minute)
	Policy         RatePolicy                                           // rate enforcement policy
	Executor       Executor                                             // request executor (required)
	Recorder       Recorder                                             // outcome sink (defaults to a metrics.Aggregator)
	LimiterFactory func(perWindow int, window time.Duration) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.TotalRequests < 0 {
		o.TotalRequests = 0
	}
	if o.RatePerWindow < 0 {
		o.RatePerWindow = 0
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	o.Policy = resolvePolicy(o.Policy, o.TotalRequests, o.RatePerWindow)
	if o.LimiterFactory == nil {
		o.LimiterFactory = newSpacingLimiter
	}
}

// resolvePolicy turns the requested policy into the one the run will use.
// A burst pool that cannot cover the run would stall once drained, so it is
// upgraded to the sustained policy.
func resolvePolicy(p RatePolicy, total, perWindow int) RatePolicy {
	if perWindow == 0 {
		return PolicyUnlimited
	}
	switch p {
	case PolicySustained:
		return PolicySustained
	case PolicyBurst, PolicyAuto, "":
		if total <= perWindow {
			return PolicyBurst
		}
		return PolicySustained
	default:
		return PolicySustained
	}
}

// newSpacingLimiter admits one request every window/perWindow with no burst
// allowance.
func newSpacingLimiter(perWindow int, window time.Duration) *rate.Limiter {
	if perWindow <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(perWindow)), 1)
}
