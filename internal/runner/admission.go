package runner

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// ErrQuotaExhausted is returned when a burst pool has no permits left.
var ErrQuotaExhausted = errors.New("rate quota exhausted")

// admissionGate decides when the next request may start.
type admissionGate interface {
	Wait(ctx context.Context) error
}

func newAdmissionGate(opt Options) admissionGate {
	switch opt.Policy {
	case PolicyBurst:
		return &burstGate{remaining: int64(opt.RatePerWindow)}
	case PolicySustained:
		return &sustainedGate{limiter: opt.LimiterFactory(opt.RatePerWindow, opt.Window)}
	default:
		return unlimitedGate{}
	}
}

// burstGate hands out a fixed pool of permits that is never refilled.
type burstGate struct {
	remaining int64
}

func (b *burstGate) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if atomic.AddInt64(&b.remaining, -1) < 0 {
		atomic.AddInt64(&b.remaining, 1)
		return ErrQuotaExhausted
	}
	return nil
}

// sustainedGate delegates pacing to a rate.Limiter (uniform spacing).
type sustainedGate struct {
	limiter *rate.Limiter
}

func (s *sustainedGate) Wait(ctx context.Context) error {
	if s == nil || s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

type unlimitedGate struct{}

func (unlimitedGate) Wait(ctx context.Context) error {
	return ctx.Err()
}
