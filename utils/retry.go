package utils

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// DefaultMaxJitter bounds the random delay added on top of each backoff step.
const DefaultMaxJitter = time.Second

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
	Logger      *Logger

	// BeforeRetry runs after the backoff sleep and before the next attempt.
	// attempt is the number of the attempt about to run.
	BeforeRetry func(ctx context.Context, attempt int) error

	// Sleep and Jitter default to a context-aware sleep and math/rand.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(max time.Duration) time.Duration
}

// permanentError marks a failure that another attempt cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do returns it at once instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// NewRetryConfig returns a RetryConfig with the default jitter bound.
func NewRetryConfig(maxAttempts int, baseDelay time.Duration, logger *Logger) *RetryConfig {
	return &RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxJitter:   DefaultMaxJitter,
		Logger:      logger,
	}
}

// Backoff returns the jitter-free delay applied after the given failed attempt:
// BaseDelay × 2^(attempt−1).
func (r *RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return r.BaseDelay * time.Duration(1<<uint(attempt-1))
}

// Do executes fn with exponential back-off retry logic.
func (r *RetryConfig) Do(ctx context.Context, operationName string, fn func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		delay := r.Backoff(attempt) + r.jitter()
		r.warn("[retry] %s failed (attempt %d/%d): %v, retrying in %v",
			operationName, attempt, attempts, lastErr, delay)

		if err := r.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s aborted after %d attempts: %w", operationName, attempt, lastErr)
		}

		if r.BeforeRetry != nil {
			if err := r.BeforeRetry(ctx, attempt+1); err != nil {
				r.warn("[retry] %s: preparing attempt %d failed: %v", operationName, attempt+1, err)
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, attempts, lastErr)
}

func (r *RetryConfig) jitter() time.Duration {
	if r.Jitter != nil {
		return r.Jitter(r.MaxJitter)
	}
	if r.MaxJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(r.MaxJitter)))
}

func (r *RetryConfig) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (r *RetryConfig) warn(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Warn(format, args...)
	}
}
