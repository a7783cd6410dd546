package runner_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/loadgate/internal/metrics"
	"github.com/torosent/loadgate/internal/runner"
)

// fakeExecutor simulates performing a request with a controllable delay and
// tracks how many executions overlap.
type fakeExecutor struct {
	delay    func(index int) time.Duration
	outcome  func(index int) metrics.Outcome
	inFlight int64
	peak     int64
	calls    int64

	mu    sync.Mutex
	order []int
}

func (f *fakeExecutor) Execute(ctx context.Context, index int) metrics.Outcome {
	atomic.AddInt64(&f.calls, 1)
	current := atomic.AddInt64(&f.inFlight, 1)
	for {
		seen := atomic.LoadInt64(&f.peak)
		if current <= seen || atomic.CompareAndSwapInt64(&f.peak, seen, current) {
			break
		}
	}
	defer atomic.AddInt64(&f.inFlight, -1)

	var latency time.Duration
	if f.delay != nil {
		latency = f.delay(index)
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return metrics.Timeout(index, ctx.Err())
		}
	}

	f.mu.Lock()
	f.order = append(f.order, index)
	f.mu.Unlock()

	if f.outcome != nil {
		return f.outcome(index)
	}
	return metrics.Success(index, 200, latency)
}

func (f *fakeExecutor) completionOrder() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.order...)
}

func randomDelay(max time.Duration) func(int) time.Duration {
	var mu sync.Mutex
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func(int) time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return time.Duration(rnd.Int63n(int64(max)))
	}
}

func TestDispatcherConservation(t *testing.T) {
	for _, total := range []int{0, 1, 7, 50} {
		t.Run(fmt.Sprintf("N=%d", total), func(t *testing.T) {
			exec := &fakeExecutor{
				delay: randomDelay(2 * time.Millisecond),
				outcome: func(i int) metrics.Outcome {
					if i%4 == 0 {
						return metrics.UnexpectedStatus(i, 500, time.Millisecond)
					}
					return metrics.Success(i, 200, time.Millisecond)
				},
			}
			agg := metrics.NewAggregator(total)
			d := runner.New(runner.Options{
				TotalRequests: total,
				Concurrency:   3,
				Executor:      exec,
				Recorder:      agg,
			})

			res, err := d.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Completed != int64(total) {
				t.Fatalf("expected %d completed, got %d", total, res.Completed)
			}
			if got := res.Run.Successes + res.Run.Failures; got != int64(total) {
				t.Fatalf("expected successes+failures = %d, got %d", total, got)
			}
			if agg.State() != metrics.StateComplete {
				t.Fatalf("expected aggregator complete, got %s", agg.State())
			}
			if atomic.LoadInt64(&exec.calls) != int64(total) {
				t.Fatalf("expected executor called %d times, got %d", total, exec.calls)
			}
		})
	}
}

func TestDispatcherRespectsConcurrencyCap(t *testing.T) {
	for _, concurrency := range []int{1, 4, 9} {
		t.Run(fmt.Sprintf("C=%d", concurrency), func(t *testing.T) {
			exec := &fakeExecutor{delay: randomDelay(3 * time.Millisecond)}
			d := runner.New(runner.Options{
				TotalRequests: 60,
				Concurrency:   concurrency,
				Executor:      exec,
			})

			res, err := d.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if peak := atomic.LoadInt64(&exec.peak); peak > int64(concurrency) {
				t.Fatalf("observed %d concurrent executions, cap is %d", peak, concurrency)
			}
			if res.PeakInFlight > int64(concurrency) {
				t.Fatalf("dispatcher reported peak %d above cap %d", res.PeakInFlight, concurrency)
			}
			if res.Completed != 60 {
				t.Fatalf("expected 60 completed, got %d", res.Completed)
			}
		})
	}
}

func TestDispatcherMixedOutcomesScenario(t *testing.T) {
	exec := &fakeExecutor{
		delay: func(i int) time.Duration {
			if i > 8 {
				return 0
			}
			return time.Duration(i) * time.Millisecond
		},
		outcome: func(i int) metrics.Outcome {
			if i > 8 {
				return metrics.TransportFailure(i, errors.New("connection refused"))
			}
			return metrics.Success(i, 200, time.Duration(i)*time.Millisecond)
		},
	}
	agg := metrics.NewAggregator(10)
	d := runner.New(runner.Options{
		TotalRequests: 10,
		Concurrency:   3,
		RatePerWindow: 500,
		Executor:      exec,
		Recorder:      agg,
	})
	if d.Policy() != runner.PolicyBurst {
		t.Fatalf("expected burst policy for a run inside the quota, got %s", d.Policy())
	}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Run.Successes != 8 {
		t.Errorf("expected 8 successes, got %d", res.Run.Successes)
	}
	if res.Run.Failures != 2 {
		t.Errorf("expected 2 failures, got %d", res.Run.Failures)
	}
	if len(res.Run.Latencies) != 8 {
		t.Errorf("expected 8 latencies, got %d", len(res.Run.Latencies))
	}
	if res.Run.ByReason[metrics.ReasonTransportError] != 2 {
		t.Errorf("expected 2 transport errors, got %d", res.Run.ByReason[metrics.ReasonTransportError])
	}
}

func TestDispatcherSerializedCompletionOrder(t *testing.T) {
	exec := &fakeExecutor{delay: randomDelay(2 * time.Millisecond)}
	d := runner.New(runner.Options{
		TotalRequests: 5,
		Concurrency:   1,
		Executor:      exec,
	})

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Completed != 5 {
		t.Fatalf("expected 5 completed, got %d", res.Completed)
	}
	order := exec.completionOrder()
	for i, idx := range order {
		if idx != i+1 {
			t.Fatalf("expected completion order 1..5, got %v", order)
		}
	}
}

func TestDispatcherAdmitsInIncreasingOrder(t *testing.T) {
	exec := &fakeExecutor{delay: randomDelay(time.Millisecond)}
	d := runner.New(runner.Options{
		TotalRequests: 40,
		Concurrency:   8,
		Executor:      exec,
	})

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.AdmissionTimes) != 40 {
		t.Fatalf("expected 40 admission times, got %d", len(res.AdmissionTimes))
	}
	for i := 1; i < len(res.AdmissionTimes); i++ {
		if res.AdmissionTimes[i].Before(res.AdmissionTimes[i-1]) {
			t.Fatalf("admission %d happened before admission %d", i+1, i)
		}
	}
}

func TestSustainedPolicyRateBound(t *testing.T) {
	const (
		perWindow = 4
		window    = 100 * time.Millisecond
		total     = 12
	)
	exec := &fakeExecutor{}
	d := runner.New(runner.Options{
		TotalRequests: total,
		Concurrency:   total,
		RatePerWindow: perWindow,
		Window:        window,
		Policy:        runner.PolicySustained,
		Executor:      exec,
	})

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Policy != runner.PolicySustained {
		t.Fatalf("expected sustained policy, got %s", res.Policy)
	}
	times := res.AdmissionTimes
	if len(times) != total {
		t.Fatalf("expected %d admissions, got %d", total, len(times))
	}
	// Any perWindow+1 consecutive admissions must span at least one window,
	// minus scheduling jitter.
	minSpan := window - window/10
	for i := 0; i+perWindow < len(times); i++ {
		if span := times[i+perWindow].Sub(times[i]); span < minSpan {
			t.Fatalf("admissions %d..%d spanned %s, want >= %s", i+1, i+perWindow+1, span, minSpan)
		}
	}
}

func TestAutoPolicyPicksSustainedWhenRunExceedsQuota(t *testing.T) {
	tests := []struct {
		name      string
		policy    runner.RatePolicy
		total     int
		perWindow int
		want      runner.RatePolicy
	}{
		{"fits quota", runner.PolicyAuto, 10, 10, runner.PolicyBurst},
		{"exceeds quota", runner.PolicyAuto, 11, 10, runner.PolicySustained},
		{"burst upgraded", runner.PolicyBurst, 11, 10, runner.PolicySustained},
		{"explicit sustained", runner.PolicySustained, 5, 10, runner.PolicySustained},
		{"no quota", runner.PolicyAuto, 5, 0, runner.PolicyUnlimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := runner.New(runner.Options{
				TotalRequests: tt.total,
				RatePerWindow: tt.perWindow,
				Policy:        tt.policy,
				Executor:      &fakeExecutor{},
			})
			if d.Policy() != tt.want {
				t.Fatalf("Policy() = %s, want %s", d.Policy(), tt.want)
			}
		})
	}
}

func TestBurstPolicyDoesNotWait(t *testing.T) {
	exec := &fakeExecutor{}
	d := runner.New(runner.Options{
		TotalRequests: 20,
		Concurrency:   20,
		RatePerWindow: 20,
		Window:        time.Hour,
		Executor:      exec,
	})

	start := time.Now()
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("burst run took %s", elapsed)
	}
	if res.Admitted > 20 {
		t.Fatalf("burst admitted %d, quota is 20", res.Admitted)
	}
}

type failingRecorder struct {
	failAt int
	agg    *metrics.Aggregator
}

func (f *failingRecorder) Record(o metrics.Outcome) error {
	if o.Index == f.failAt {
		return fmt.Errorf("%w: simulated", metrics.ErrInvariant)
	}
	return f.agg.Record(o)
}

func TestRecorderErrorHaltsRun(t *testing.T) {
	rec := &failingRecorder{failAt: 3, agg: metrics.NewAggregator(20)}
	d := runner.New(runner.Options{
		TotalRequests: 20,
		Concurrency:   1,
		Executor:      &fakeExecutor{},
		Recorder:      rec,
	})

	res, err := d.Run(context.Background())
	if !errors.Is(err, metrics.ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
	if res.Admitted >= 20 {
		t.Fatalf("expected admission to stop early, admitted %d", res.Admitted)
	}
	if res.Completed != 2 {
		t.Fatalf("expected 2 completed before the failure, got %d", res.Completed)
	}
}

func TestMismatchedIndexIsFatal(t *testing.T) {
	exec := &fakeExecutor{outcome: func(int) metrics.Outcome {
		return metrics.Success(1, 200, time.Millisecond)
	}}
	d := runner.New(runner.Options{
		TotalRequests: 5,
		Concurrency:   1,
		Executor:      exec,
	})

	_, err := d.Run(context.Background())
	if !errors.Is(err, metrics.ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestExecutorPanicReleasesPermit(t *testing.T) {
	exec := runner.ExecutorFunc(func(_ context.Context, index int) metrics.Outcome {
		if index == 2 {
			panic("boom")
		}
		return metrics.Success(index, 200, time.Millisecond)
	})
	d := runner.New(runner.Options{
		TotalRequests: 4,
		Concurrency:   1,
		Executor:      exec,
	})

	done := make(chan error, 1)
	go func() {
		_, err := d.Run(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected panic to surface as an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher deadlocked after executor panic")
	}
}

func TestCancelStopsAdmission(t *testing.T) {
	exec := &fakeExecutor{delay: func(int) time.Duration { return 5 * time.Millisecond }}
	d := runner.New(runner.Options{
		TotalRequests: 1000,
		Concurrency:   2,
		Executor:      exec,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res, err := d.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if res.Admitted >= 1000 {
		t.Fatalf("expected admission to stop, admitted %d", res.Admitted)
	}
	if res.Completed != res.Admitted {
		t.Fatalf("in-flight requests must still complete: admitted %d, completed %d", res.Admitted, res.Completed)
	}
}

func TestRunWithoutExecutor(t *testing.T) {
	d := runner.New(runner.Options{TotalRequests: 1})
	if _, err := d.Run(context.Background()); !errors.Is(err, runner.ErrNoExecutor) {
		t.Fatalf("expected ErrNoExecutor, got %v", err)
	}
}

type captureLogger struct {
	mu       sync.Mutex
	outcomes []metrics.Outcome
}

func (c *captureLogger) LogOutcome(o metrics.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, o)
}

func TestWithOutcomeLogging(t *testing.T) {
	logger := &captureLogger{}
	exec := runner.WithOutcomeLogging(&fakeExecutor{}, logger)
	d := runner.New(runner.Options{
		TotalRequests: 6,
		Concurrency:   2,
		Executor:      exec,
	})

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(logger.outcomes) != 6 {
		t.Fatalf("expected 6 logged outcomes, got %d", len(logger.outcomes))
	}
}

func TestWithOutcomeLoggingNilLogger(t *testing.T) {
	inner := &fakeExecutor{}
	if got := runner.WithOutcomeLogging(inner, nil); got != runner.Executor(inner) {
		t.Fatal("expected nil logger to return the executor unchanged")
	}
}
