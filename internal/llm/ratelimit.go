package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outgoing provider calls with a token bucket so a
// burst of concurrent article activities cannot blow through the provider's
// request quota. Safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows ratePerSecond sustained requests with the given
// burst headroom.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow consumes a token if one is available without blocking.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}
