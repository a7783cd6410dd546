package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// RequestIndexKey is the 1-based slot index of the request.
	RequestIndexKey = attribute.Key("loadgate.request.index")
	// OutcomeKey is "success" or the failure reason of the request.
	OutcomeKey = attribute.Key("loadgate.outcome")
)

// StartRequestSpan starts a client span for the GET issued for request index.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, index int, target string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, http.MethodGet,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		semconv.HTTPRequestMethodGet,
		RequestIndexKey.Int(index),
	)
	if target != "" {
		span.SetAttributes(semconv.URLFull(target))
	}
	return ctx, span
}

// StatusCode returns the response status attribute for a span.
func StatusCode(code int) attribute.KeyValue {
	return semconv.HTTPResponseStatusCode(code)
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
