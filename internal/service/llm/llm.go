// Package llm generates natural-language replies constrained to a menu.
// Replies are presentational only; they never decide order placement.
package llm

import (
	"context"
	"time"

	"voice-order-service/internal/observability/metrics"
)

// Error is a reply-service failure that callers can match with errors.Is.
type Error struct {
	kind string
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Kind is the metrics label for the failure.
func (e *Error) Kind() string { return e.kind }

var (
	ErrServiceUnavailable = &Error{kind: "unavailable", msg: "reply service unavailable"}
	ErrEmptyReply         = &Error{kind: "empty", msg: "reply service returned no text"}
	ErrCircuitOpen        = &Error{kind: "circuit_open", msg: "reply service circuit open"}
)

// Request is one reply generation call.
type Request struct {
	SystemConstraints string
	Vocabulary        []string
	Transcript        string
	RestaurantName    string
	PendingItem       string
}

// Replier produces an advisory reply for a caller's utterance.
type Replier interface {
	GenerateReply(ctx context.Context, req Request) (string, error)
	Name() string
}

type instrumented struct {
	next    Replier
	metrics *metrics.Metrics
}

// Instrument wraps a replier with latency and error metrics.
func Instrument(r Replier) Replier {
	return &instrumented{next: r, metrics: metrics.DefaultMetrics}
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) GenerateReply(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := i.next.GenerateReply(ctx, req)
	i.metrics.RecordLLM(i.next.Name(), err, time.Since(start).Seconds())
	return text, err
}
