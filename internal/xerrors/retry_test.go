package xerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return NewTransientError(errors.New("boom"), "")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond}

	permanent := NewPermanentError(errors.New("bad selector"), "invalid selector syntax")
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error back, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("permanent error should not retry, got %d attempts", attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("connection refused")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("expected MaxAttempts+1 = 3 attempts, got %d", attempts)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func(ctx context.Context) error {
		t.Fatal("function should not run with cancelled context")
		return nil
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	if d := Backoff(0, cfg); d != 100*time.Millisecond {
		t.Fatalf("attempt 0 delay = %v", d)
	}
	if d := Backoff(1, cfg); d != 200*time.Millisecond {
		t.Fatalf("attempt 1 delay = %v", d)
	}
	if d := Backoff(5, cfg); d != 300*time.Millisecond {
		t.Fatalf("capped delay = %v", d)
	}
}

func TestClassification(t *testing.T) {
	if !IsTransient(errors.New("websocket: close 1006 (abnormal closure)")) {
		t.Fatal("websocket failure should be transient")
	}
	if !IsTransient(errors.New("Could not find node with given id")) {
		t.Fatal("stale node reference should be transient")
	}
	if IsTransient(errors.New("unsupported action type")) {
		t.Fatal("unsupported action should not be transient")
	}
	if !IsPermanent(errors.New("session not found: abc")) {
		t.Fatal("not-found should be permanent")
	}
	if GetErrorType(nil) != ErrorTypePermanent {
		t.Fatal("nil error should classify permanent")
	}
}
