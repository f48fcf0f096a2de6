package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, func(context.Context) error {
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
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	err := Do(context.Background(), 2, time.Millisecond, func(context.Context) error {
		return boom
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected cause preserved, got %v", err)
	}
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, 5, time.Second, func(context.Context) error {
		return errors.New("fail once")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoWithFallbackReturnsFallback(t *testing.T) {
	value, usedFallback, err := DoWithFallback(context.Background(), 2, time.Millisecond, "offline", func(context.Context) (string, error) {
		return "", errors.New("unreachable")
	})
	if err != nil {
		t.Fatalf("fallback path should swallow the error, got %v", err)
	}
	if !usedFallback {
		t.Fatalf("expected fallback to be used")
	}
	if value != "offline" {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestDoWithFallbackReturnsValue(t *testing.T) {
	value, usedFallback, err := DoWithFallback(context.Background(), 1, 0, "offline", func(context.Context) (string, error) {
		return "live", nil
	})
	if err != nil || usedFallback {
		t.Fatalf("unexpected result: %v fallback=%v", err, usedFallback)
	}
	if value != "live" {
		t.Fatalf("unexpected value %q", value)
	}
}
