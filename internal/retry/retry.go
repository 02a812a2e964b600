// Package retry runs network operations with per-attempt timeouts and
// bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config configures retry behaviour.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay grows after each attempt.
	Multiplier float64

	// AttemptTimeout bounds each attempt. Zero means no per-attempt timeout.
	AttemptTimeout time.Duration

	// Jitter randomises each delay within [delay/2, delay].
	Jitter bool
}

// DefaultConfig returns three attempts with 1s, 2s backoff and a 60s attempt timeout.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       16 * time.Second,
		Multiplier:     2.0,
		AttemptTimeout: 60 * time.Second,
		Jitter:         true,
	}
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do executes fn until it succeeds, returns a permanent error, or attempts run out.
// Each attempt gets its own context bounded by AttemptTimeout.
// If ctx is cancelled, Do returns the context error immediately.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := DoWithResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := runAttempt(ctx, cfg.AttemptTimeout, fn)
		if err == nil {
			return result, nil
		}
		if IsPermanent(err) {
			return zero, err
		}
		// The caller gave up; the attempt's own timeout is retryable.
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		wait := delay
		if cfg.Jitter && wait > 0 {
			wait = time.Duration(float64(wait) * (0.5 + rand.Float64()*0.5))
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
