package transport

import (
	"context"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	maxRetryDelay      = 5 * time.Second
)

// withRetry runs fn up to maxAttempts times with exponential backoff.
// Only transient failures are retried; permanent failures and context
// cancellation return immediately. Retry lives here, at the transport layer,
// never inside the orchestrator's tier-selection logic.
func withRetry(ctx context.Context, maxAttempts int, baseDelay time.Duration, sleep func(ctx context.Context, d time.Duration) error, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	if sleep == nil {
		sleep = sleepWithContext
	}

	delay := baseDelay
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) || attempt == maxAttempts {
			return lastErr
		}

		if err := sleep(ctx, delay); err != nil {
			return lastErr
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}

	return lastErr
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
