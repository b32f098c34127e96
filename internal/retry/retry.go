// Package retry runs an operation with capped exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Policy describes how many times an operation is attempted and how long to wait between attempts.
// The delay before retry n (starting at 0) is InitialBackoff * Multiplier^n, capped at MaxBackoff.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	// Retryable reports whether a failed attempt may be retried. Nil retries every error.
	Retryable func(error) bool
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait with the failed attempt number (1-based).
	OnRetry func(attempt int, delay time.Duration, err error)
}

// ExhaustedError is returned when an operation fails after its last permitted attempt, or fails with an
// error the policy does not retry.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Backoff returns the delay that follows the given failed attempt (0-based).
func (p Policy) Backoff(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	delay := float64(p.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if p.MaxBackoff > 0 && delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	return time.Duration(delay)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the policy runs out of attempts.
// Context cancellation during a wait is returned as is.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if attempt >= attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}

		delay := p.Backoff(attempt - 1)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
