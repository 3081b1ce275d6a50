package resilience

import (
	"context"
	"errors"
	"time"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxAttempts int           // Total attempts including the first
	Delay       time.Duration // Fixed delay before each retry
}

// DefaultRetryConfig returns a default retry configuration: one retry after a second
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 2,
		Delay:       1 * time.Second,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// ShouldContinue is consulted after each delay; returning false abandons
// the remaining attempts.
type ShouldContinue func() bool

// ErrAbandoned is returned when ShouldContinue stops a retry sequence
var ErrAbandoned = errors.New("retry abandoned")

// Retry executes fn with a fixed delay between attempts
func Retry(ctx context.Context, fn RetryableFunc, config *RetryConfig, shouldContinue ShouldContinue) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == config.MaxAttempts-1 {
			break
		}

		if err := Sleep(ctx, config.Delay); err != nil {
			return err
		}

		if shouldContinue != nil && !shouldContinue() {
			return ErrAbandoned
		}
	}

	return lastErr
}

// After waits delay and then runs fn once, unless ctx ends or shouldContinue
// reports false first.
func After(ctx context.Context, delay time.Duration, fn RetryableFunc, shouldContinue ShouldContinue) error {
	if err := Sleep(ctx, delay); err != nil {
		return err
	}
	if shouldContinue != nil && !shouldContinue() {
		return ErrAbandoned
	}
	return fn(ctx)
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// PermanentError wraps an error that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as non-retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is a PermanentError
func IsPermanent(err error) bool {
	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}
