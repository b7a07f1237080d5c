package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keyframes-backend/internal/apperr"
)

// StatusError is a non-2xx response from the render service.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to %s: status %d, body: %s", e.Op, e.StatusCode, e.Body)
}

// IsRetryable is true for server errors and throttling. Other client errors
// are permanent.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// Backoff is the delay before retry attempt n (0 based): base, 2*base,
// 4*base, capped at 30s.
func Backoff(base time.Duration, attempt int) time.Duration {
	d := base << uint(attempt)
	if d <= 0 || d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.IsRetryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !apperr.IsValidation(err) && !apperr.IsNotFound(err) && !apperr.IsConflict(err)
}

// RetryWithBackoff runs fn until it succeeds, fails permanently or has been
// retried maxRetries times. after provides the wait between attempts.
func RetryWithBackoff(ctx context.Context, after func(time.Duration) <-chan time.Time, base time.Duration, maxRetries int, fn func() error) error {
	if after == nil {
		after = time.After
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-after(Backoff(base, attempt-1)):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
