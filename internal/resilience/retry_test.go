package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_Success(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	}, DefaultRetryConfig(), nil)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_FailureThenSuccess(t *testing.T) {
	config := &RetryConfig{MaxAttempts: 3, Delay: 5 * time.Millisecond}

	attempts := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, config, nil)

	if err != nil {
		t.Errorf("Expected no error after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_MaxAttempts(t *testing.T) {
	config := &RetryConfig{MaxAttempts: 2, Delay: 10 * time.Millisecond}

	attempts := 0
	start := time.Now()
	err := Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("persistent error")
	}, config, nil)

	if err == nil {
		t.Error("Expected error after max attempts")
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Expected at least one delay, took %v", elapsed)
	}
}

func TestRetry_PermanentError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return Permanent(errors.New("bad credentials"))
	}, &RetryConfig{MaxAttempts: 3, Delay: time.Millisecond}, nil)

	if !IsPermanent(err) {
		t.Errorf("Expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for permanent error, got %d", attempts)
	}
}

func TestRetry_Abandoned(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("temporary error")
	}, &RetryConfig{MaxAttempts: 3, Delay: time.Millisecond}, func() bool { return false })

	if !errors.Is(err, ErrAbandoned) {
		t.Errorf("Expected ErrAbandoned, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, func(ctx context.Context) error {
		return errors.New("temporary error")
	}, &RetryConfig{MaxAttempts: 3, Delay: time.Second}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestAfter(t *testing.T) {
	called := false
	start := time.Now()
	err := After(context.Background(), 20*time.Millisecond, func(ctx context.Context) error {
		called = true
		return nil
	}, nil)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if !called {
		t.Error("Expected fn to be called")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Expected delay of 20ms, took %v", elapsed)
	}
}

func TestAfter_SkippedWhenNotLive(t *testing.T) {
	called := false
	err := After(context.Background(), time.Millisecond, func(ctx context.Context) error {
		called = true
		return nil
	}, func() bool { return false })

	if !errors.Is(err, ErrAbandoned) {
		t.Errorf("Expected ErrAbandoned, got %v", err)
	}
	if called {
		t.Error("Expected fn not to be called")
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Expected nil for nil error")
	}
}
