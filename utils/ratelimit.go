package utils

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimiter spaces outbound requests at least 1/requestsPerSecond apart.
// One instance is one clock: share it between every caller that must be
// throttled together.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter permitting requestsPerSecond calls per
// second with no burst. A non-positive rate disables throttling.
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, 1)}
}

// BeforeRequest blocks until the next request is permitted.
func (r *RateLimiter) BeforeRequest(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
