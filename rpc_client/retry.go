package rpcClient

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// RetryPolicy controls how often a failing read is attempted and how long to
// wait between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// LinearBackoff waits base × attempt after each failed attempt.
func LinearBackoff(base time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// DefaultRetryPolicy makes three attempts with a linear one second backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(time.Second)}
}

// Retry runs fn until it succeeds, the attempts are exhausted or ctx is done.
// The error of the final attempt is returned.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return errors.Wrap(lastErr, err.Error())
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		var delay time.Duration
		if policy.Backoff != nil {
			delay = policy.Backoff(attempt)
		}
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(lastErr, ctx.Err().Error())
		case <-timer.C:
		}
	}
	return errors.Wrapf(lastErr, "failed after %d attempts", attempts)
}
