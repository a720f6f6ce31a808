package utils

import (
	"context"
	"math/rand"
	"time"
)

// RandomDuration returns a duration in [min, max). It returns min when the
// range is empty.
func RandomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// RandomDelay sleeps for a random duration between min and max, returning
// early with the context error if ctx is done.
func RandomDelay(ctx context.Context, min, max time.Duration) error {
	return SleepContext(ctx, RandomDuration(min, max))
}

// SleepContext sleeps for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
