package adapter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter enforces an "N calls per minute" budget shared across all
// callers of an adapter's underlying API.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter builds a limiter that permits callsPerMinute calls per
// minute, with a burst of one (callers always wait for a fresh token rather
// than bursting ahead).
func NewRateLimiter(callsPerMinute int) *RateLimiter {
	if callsPerMinute <= 0 {
		callsPerMinute = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), 1),
	}
}

// Wait blocks until a call is permitted under the configured budget, or
// until ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
