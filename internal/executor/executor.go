// Package executor performs the single GET issued for each admitted request
// slot and turns whatever happens into a metrics.Outcome.
package executor

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/loadgate/internal/httpclient"
	"github.com/torosent/loadgate/internal/metrics"
	"github.com/torosent/loadgate/internal/tracing"
)

// HTTPExecutor issues one GET per call. It is safe for concurrent use.
type HTTPExecutor struct {
	client  httpclient.Doer
	builder *httpclient.RequestBuilder
	timeout time.Duration
	tracer  trace.Tracer
	now     func() time.Time
}

// Option customizes an HTTPExecutor.
type Option func(*HTTPExecutor)

// WithTracer creates a client span for every request using tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *HTTPExecutor) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithClock replaces the clock used to measure latency.
func WithClock(now func() time.Time) Option {
	return func(e *HTTPExecutor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewHTTPExecutor returns an executor that sends GET requests built by builder
// through client. A timeout of zero disables the per-request deadline.
func NewHTTPExecutor(client httpclient.Doer, builder *httpclient.RequestBuilder, timeout time.Duration, opts ...Option) *HTTPExecutor {
	e := &HTTPExecutor{
		client:  client,
		builder: builder,
		timeout: timeout,
		tracer:  noop.NewTracerProvider().Tracer("loadgate"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute performs the GET for request index and classifies it:
//   - 200 is a success
//   - any other status is unexpected_status
//   - an expired deadline is timeout
//   - everything else is transport_error
//
// Latency runs from just before the call until the body has been fully read.
// Failures that never produced a response carry no latency.
func (e *HTTPExecutor) Execute(ctx context.Context, index int) metrics.Outcome {
	ctx, span := tracing.StartRequestSpan(ctx, e.tracer, index, e.builder.Target())

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	outcome := e.do(ctx, index)
	finishSpan(span, outcome)
	return outcome
}

func (e *HTTPExecutor) do(ctx context.Context, index int) metrics.Outcome {
	req, err := e.builder.Build(ctx)
	if err != nil {
		return metrics.TransportFailure(index, err)
	}

	start := e.now()
	resp, err := e.client.Do(req)
	if err != nil {
		return classifyError(index, err)
	}

	_, copyErr := io.Copy(io.Discard, resp.Body)
	closeErr := resp.Body.Close()
	latency := e.now().Sub(start)
	if latency < 0 {
		latency = 0
	}

	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return classifyError(index, copyErr)
	}

	if resp.StatusCode == http.StatusOK {
		return metrics.Success(index, resp.StatusCode, latency)
	}
	return metrics.UnexpectedStatus(index, resp.StatusCode, latency)
}

func classifyError(index int, err error) metrics.Outcome {
	if isTimeout(err) {
		return metrics.Timeout(index, err)
	}
	return metrics.TransportFailure(index, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func finishSpan(span trace.Span, o metrics.Outcome) {
	var err error
	outcome := "success"
	if !o.Succeeded() {
		outcome = string(o.Reason)
		err = o.Err
		if err == nil {
			err = errors.New(o.Detail())
		}
	}
	if o.StatusCode > 0 {
		tracing.EndSpan(span, err, tracing.StatusCode(o.StatusCode), tracing.OutcomeKey.String(outcome))
		return
	}
	tracing.EndSpan(span, err, tracing.OutcomeKey.String(outcome))
}
