package model

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedModel wraps a Model with a token-bucket limiter so concurrent
// agents cannot exceed a provider's request budget.
type RateLimitedModel struct {
	inner   Model
	limiter *rate.Limiter
}

// NewRateLimitedModel returns a Model that allows at most rps requests per
// second with the given burst size.
func NewRateLimitedModel(inner Model, rps float64, burst int) *RateLimitedModel {
	return &RateLimitedModel{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Chat blocks until the limiter grants a slot, then delegates to the inner
// model. Context cancellation while waiting is reported as a TransportError.
func (m *RateLimitedModel) Chat(ctx context.Context, req Request) (*Response, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Provider: m.inner.Info().Provider, Err: err}
	}
	return m.inner.Chat(ctx, req)
}

// Info implements Model.
func (m *RateLimitedModel) Info() Info { return m.inner.Info() }
