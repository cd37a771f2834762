package reliability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrAttemptsExhausted = errors.New("attempts exhausted")
	ErrRetryAborted      = errors.New("retry aborted")
)

// Backoff returns the delay to wait after the given zero-based attempt
type Backoff func(attempt int) time.Duration

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context) error

// Retry calls fn up to attempts times, sleeping backoff(attempt) between
// failures. Context errors returned by fn stop the loop immediately.
func Retry(ctx context.Context, attempts int, backoff Backoff, fn RetryFunc) error {
	if attempts <= 0 {
		attempts = 1
	}
	if backoff == nil {
		backoff = ConstantBackoff(time.Second)
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrRetryAborted, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d tries: %w", ErrAttemptsExhausted, attempts, lastErr)
}

func isRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// ConstantBackoff waits the same duration after every attempt
func ConstantBackoff(d time.Duration) Backoff {
	return func(int) time.Duration {
		return d
	}
}

// ExponentialBackoff doubles (by multiplier) from initial, capped at max
func ExponentialBackoff(initial time.Duration, multiplier float64, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
		if d > max || d <= 0 {
			d = max
		}
		return d
	}
}
