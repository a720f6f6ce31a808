package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noJitter(time.Duration) time.Duration { return 0 }

func TestRetryBackoffDoubles(t *testing.T) {
	r := NewRetryConfig(6, 2*time.Second, NewDiscardLogger())

	if got := r.Backoff(1); got != 2*time.Second {
		t.Errorf("Backoff(1) = %v; want 2s", got)
	}
	for k := 1; k < 6; k++ {
		prev, next := r.Backoff(k), r.Backoff(k+1)
		if next != 2*prev {
			t.Errorf("Backoff(%d) = %v; want double of %v", k+1, next, prev)
		}
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var slept []time.Duration
	r := &RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Logger:      NewDiscardLogger(),
		Jitter:      noJitter,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	calls := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(slept) != len(want) {
		t.Fatalf("sleeps: got %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d: got %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestRetryReturnsLastErrorOnExhaustion(t *testing.T) {
	sentinel := errors.New("still down")
	r := &RetryConfig{
		MaxAttempts: 3,
		Logger:      NewDiscardLogger(),
		Jitter:      noJitter,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}

	calls := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("expected wrapped sentinel, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestRetryRunsBeforeRetryBetweenAttempts(t *testing.T) {
	var prepared []int
	r := &RetryConfig{
		MaxAttempts: 3,
		Logger:      NewDiscardLogger(),
		Jitter:      noJitter,
		Sleep:       func(context.Context, time.Duration) error { return nil },
		BeforeRetry: func(_ context.Context, attempt int) error {
			prepared = append(prepared, attempt)
			return nil
		},
	}

	_ = r.Do(context.Background(), "op", func(context.Context) error { return errors.New("boom") })

	if len(prepared) != 2 || prepared[0] != 2 || prepared[1] != 3 {
		t.Errorf("BeforeRetry attempts: got %v, want [2 3]", prepared)
	}
}

func TestRetryJitterWithinBound(t *testing.T) {
	r := NewRetryConfig(2, 0, NewDiscardLogger())
	for i := 0; i < 100; i++ {
		j := r.jitter()
		if j < 0 || j >= DefaultMaxJitter {
			t.Fatalf("jitter %v outside [0, %v)", j, DefaultMaxJitter)
		}
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, Logger: NewDiscardLogger(), Jitter: noJitter}
	calls := 0
	err := r.Do(ctx, "op", func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	sentinel := errors.New("status 401")
	r := &RetryConfig{
		MaxAttempts: 5,
		Logger:      NewDiscardLogger(),
		Jitter:      noJitter,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}

	calls := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) || err.Error() != "status 401" {
		t.Errorf("got %v, want the cause unchanged", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
