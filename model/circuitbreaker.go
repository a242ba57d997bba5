package model

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerModel wraps a Model with a circuit breaker that opens after
// a run of consecutive failures, shedding load from a misbehaving provider
// instead of letting every agent turn time out against it.
type CircuitBreakerModel struct {
	inner   Model
	breaker *gobreaker.CircuitBreaker[*Response]
}

// CircuitBreakerConfig tunes the breaker. Zero values fall back to sensible
// defaults (5 consecutive failures, 30s open interval).
type CircuitBreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// NewCircuitBreakerModel returns a Model guarded by a circuit breaker.
func NewCircuitBreakerModel(inner Model, cfg CircuitBreakerConfig) *CircuitBreakerModel {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:    inner.Info().Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}
	return &CircuitBreakerModel{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[*Response](settings),
	}
}

// Chat executes the inner call through the breaker. An open breaker is
// reported as a TransportError so callers treat it like an unreachable
// provider.
func (m *CircuitBreakerModel) Chat(ctx context.Context, req Request) (*Response, error) {
	resp, err := m.breaker.Execute(func() (*Response, error) {
		return m.inner.Chat(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &TransportError{Provider: m.inner.Info().Provider, Err: err}
		}
		return nil, err
	}
	return resp, nil
}

// Info implements Model.
func (m *CircuitBreakerModel) Info() Info { return m.inner.Info() }
