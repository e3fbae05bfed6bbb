package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig controls when the reply service is skipped.
type BreakerConfig struct {
	MaxConsecutiveFailures uint32
	OpenFor                time.Duration
}

// Breaker short-circuits calls to a failing reply service so turns fall
// back to deterministic replies without waiting on timeouts.
type Breaker struct {
	next Replier
	cb   *gobreaker.CircuitBreaker[string]
}

// WithBreaker wraps r in a circuit breaker.
func WithBreaker(r Replier, cfg BreakerConfig) *Breaker {
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "llm-" + r.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// A cancelled turn says nothing about the provider's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Reply service circuit state changed")
		},
	}
	return &Breaker{next: r, cb: gobreaker.NewCircuitBreaker[string](settings)}
}

// Name returns the wrapped provider label.
func (b *Breaker) Name() string { return b.next.Name() }

// State returns the breaker state, for readiness reporting.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// GenerateReply calls through unless the circuit is open.
func (b *Breaker) GenerateReply(ctx context.Context, req Request) (string, error) {
	text, err := b.cb.Execute(func() (string, error) {
		return b.next.GenerateReply(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return text, err
}
