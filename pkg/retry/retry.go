package retry

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned when every attempt failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Do runs fn up to attempts times, sleeping a fixed delay between failures.
// The last error is joined with ErrExhausted. Context cancellation aborts the
// wait between attempts.
func Do(ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}
	return errors.Join(ErrExhausted, lastErr)
}

// DoWithFallback runs fn with retries and falls back to a static value when
// every attempt fails. The boolean reports whether the fallback was used.
func DoWithFallback[T any](ctx context.Context, attempts int, delay time.Duration, fallback T, fn func(context.Context) (T, error)) (T, bool, error) {
	var result T
	err := Do(ctx, attempts, delay, func(ctx context.Context) error {
		value, err := fn(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err == nil {
		return result, false, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fallback, false, err
	}
	return fallback, true, nil
}
