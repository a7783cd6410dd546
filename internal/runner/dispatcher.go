package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/torosent/loadgate/internal/metrics"
)

// ErrNoExecutor is returned by Run when no Executor was configured.
var ErrNoExecutor = errors.New("runner: executor is required")

// Result captures execution summary.
type Result struct {
	Admitted       int64
	Completed      int64
	PeakInFlight   int64
	Duration       time.Duration
	Policy         RatePolicy
	AdmissionTimes []time.Time
	Run            metrics.RunResult
}

// Dispatcher admits requests 1..N in order, subject to a rate quota and a
// concurrency cap, and reports every outcome to a Recorder.
type Dispatcher struct {
	opt  Options
	gate admissionGate
}

// New creates a Dispatcher from normalized options.
func New(opt Options) *Dispatcher {
	opt.normalize()
	if opt.Recorder == nil {
		opt.Recorder = metrics.NewAggregator(opt.TotalRequests)
	}
	return &Dispatcher{opt: opt, gate: newAdmissionGate(opt)}
}

// Policy returns the rate policy the dispatcher resolved to.
func (d *Dispatcher) Policy() RatePolicy {
	return d.opt.Policy
}

// Run blocks until every admitted request has reported its outcome.
//
// Cancelling ctx stops further admissions; requests already in flight keep
// their own deadlines and still report. A Recorder error stops admissions the
// same way and is returned once in-flight requests drain.
func (d *Dispatcher) Run(ctx context.Context) (Result, error) {
	if d.opt.Executor == nil {
		return Result{Policy: d.opt.Policy}, ErrNoExecutor
	}

	start := time.Now()
	admitCtx, stopAdmission := context.WithCancel(ctx)
	defer stopAdmission()
	// In-flight requests are bounded by their own timeouts, not by the run.
	execCtx := context.WithoutCancel(ctx)

	sem := semaphore.NewWeighted(int64(d.opt.Concurrency))
	admitted := make([]time.Time, 0, d.opt.TotalRequests)

	var (
		wg        sync.WaitGroup
		inFlight  int64
		peak      int64
		completed int64
		fatalOnce sync.Once
		fatalErr  error
	)
	fail := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			stopAdmission()
		})
	}

	var admitErr error
	for i := 1; i <= d.opt.TotalRequests; i++ {
		// The concurrency permit is taken before the rate permit so that the
		// admission instant is also the start instant.
		if err := sem.Acquire(admitCtx, 1); err != nil {
			admitErr = err
			break
		}
		if err := d.gate.Wait(admitCtx); err != nil {
			sem.Release(1)
			admitErr = err
			break
		}
		admitted = append(admitted, time.Now())

		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					fail(fmt.Errorf("request %d: executor panic: %v", index, r))
				}
			}()

			current := atomic.AddInt64(&inFlight, 1)
			updatePeak(&peak, current)
			outcome := d.opt.Executor.Execute(execCtx, index)
			atomic.AddInt64(&inFlight, -1)

			if outcome.Index == 0 {
				outcome.Index = index
			}
			if outcome.Index != index {
				fail(fmt.Errorf("%w: executor for request %d reported index %d", metrics.ErrInvariant, index, outcome.Index))
				return
			}
			if err := d.opt.Recorder.Record(outcome); err != nil {
				fail(fmt.Errorf("record request %d: %w", index, err))
				return
			}
			atomic.AddInt64(&completed, 1)
		}(i)
	}
	wg.Wait()

	result := Result{
		Admitted:       int64(len(admitted)),
		Completed:      atomic.LoadInt64(&completed),
		PeakInFlight:   atomic.LoadInt64(&peak),
		Duration:       time.Since(start),
		Policy:         d.opt.Policy,
		AdmissionTimes: admitted,
	}
	if snap, ok := d.opt.Recorder.(interface{ Snapshot() metrics.RunResult }); ok {
		result.Run = snap.Snapshot()
	}

	if fatalErr != nil {
		return result, fatalErr
	}
	if admitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, fmt.Errorf("admit request %d: %w", result.Admitted+1, admitErr)
	}
	return result, nil
}

func updatePeak(peak *int64, current int64) {
	for {
		seen := atomic.LoadInt64(peak)
		if current <= seen || atomic.CompareAndSwapInt64(peak, seen, current) {
			return
		}
	}
}
