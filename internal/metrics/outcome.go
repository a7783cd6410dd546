package metrics

import (
	"fmt"
	"time"
)

// Kind is the terminal classification of a single request.
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
)

// Reason explains why a request failed.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonUnexpectedStatus Reason = "unexpected_status"
	ReasonTransportError   Reason = "transport_error"
	ReasonTimeout          Reason = "timeout"
)

// Reasons lists every failure reason in display order.
var Reasons = []Reason{ReasonUnexpectedStatus, ReasonTransportError, ReasonTimeout}

// Outcome is the result of one logical request. Exactly one Outcome is
// produced per request index.
type Outcome struct {
	Index      int
	Kind       Kind
	Reason     Reason
	StatusCode int
	Latency    time.Duration
	HasLatency bool
	Err        error
}

// Success builds a successful outcome with a latency sample.
func Success(index, status int, latency time.Duration) Outcome {
	return Outcome{
		Index:      index,
		Kind:       KindSuccess,
		StatusCode: status,
		Latency:    latency,
		HasLatency: true,
	}
}

// UnexpectedStatus builds a failure for a response whose status was not 200.
// The response was received, so the latency sample is kept.
func UnexpectedStatus(index, status int, latency time.Duration) Outcome {
	return Outcome{
		Index:      index,
		Kind:       KindFailure,
		Reason:     ReasonUnexpectedStatus,
		StatusCode: status,
		Latency:    latency,
		HasLatency: true,
	}
}

// TransportFailure builds a failure for a connection level error.
func TransportFailure(index int, err error) Outcome {
	return Outcome{Index: index, Kind: KindFailure, Reason: ReasonTransportError, Err: err}
}

// Timeout builds a failure for a request that did not finish before its deadline.
func Timeout(index int, err error) Outcome {
	return Outcome{Index: index, Kind: KindFailure, Reason: ReasonTimeout, Err: err}
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool {
	return o.Kind == KindSuccess
}

// Detail returns a short human readable description of the outcome.
func (o Outcome) Detail() string {
	switch o.Reason {
	case ReasonNone:
		return fmt.Sprintf("%.2fs", o.Latency.Seconds())
	case ReasonUnexpectedStatus:
		return fmt.Sprintf("Status: %d", o.StatusCode)
	default:
		if o.Err != nil {
			return fmt.Sprintf("%s: %v", FriendlyReason(o.Reason), o.Err)
		}
		return FriendlyReason(o.Reason)
	}
}

// FriendlyReason returns a display label for a failure reason.
func FriendlyReason(r Reason) string {
	switch r {
	case ReasonUnexpectedStatus:
		return "Unexpected status"
	case ReasonTransportError:
		return "Transport error"
	case ReasonTimeout:
		return "Timeout"
	case ReasonNone:
		return "None"
	default:
		return string(r)
	}
}
