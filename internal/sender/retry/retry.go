// Package retry re-runs pipeline steps that fail transiently (database lookups, cache
// writes, out-of-band sends) with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

// Config is a retry budget. MaxRetries counts retries after the first attempt.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64 // values below 1 are treated as 1
}

// DefaultConfig is the budget used when none is configured.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// Backoff returns the wait before retry number attempt+1, with ±25% jitter so workers
// failing together do not retry together.
func (c Config) Backoff(attempt int) time.Duration {
	factor := math.Max(c.BackoffFactor, 1)
	d := float64(c.InitialBackoff) * math.Pow(factor, float64(attempt))
	if c.MaxBackoff > 0 {
		d = math.Min(d, float64(c.MaxBackoff))
	}
	d += d * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(d)
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return "retries exhausted for " + e.Operation + ": " + e.Err.Error()
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Markers matched against lower-cased error text from providers and gateways that
// do not return typed errors. Permanent markers win.
var (
	permanentMarkers = []string{
		"not verified", // SES sandbox recipient
		"validation error",
		"invalid",
		"malformed",
		"email address is empty",
		"recipient is required",
	}
	transientMarkers = []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary",
		"rate limit",
		"throttl",
		"too many requests",
		"try again",
		"502",
		"503",
		"504",
	}
)

// IsRetryable reports whether a send error is worth another attempt: deadlines,
// network timeouts, throttling and gateway unavailability. Unknown errors are not.
func IsRetryable(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	text := strings.ToLower(err.Error())
	if containsAny(text, permanentMarkers) {
		return false
	}
	return containsAny(text, transientMarkers)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// WithRetry runs fn, retrying errors IsRetryable accepts.
func WithRetry(ctx context.Context, cfg Config, operation string, fn func() error) error {
	return WithRetryIf(ctx, cfg, operation, IsRetryable, fn)
}

// WithRetryIf runs fn until it succeeds, fails with an error retryable rejects, or the
// budget runs out. Running out returns an *ExhaustedError wrapping the last error.
// Cancelling ctx while waiting between attempts returns ctx.Err().
func WithRetryIf(ctx context.Context, cfg Config, operation string, retryable func(error) bool, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				slog.Info("Operation succeeded after retry", "operation", operation, "attempt", attempt+1)
			}
			return nil
		}
		if !retryable(err) {
			slog.Debug("Error is not retryable", "operation", operation, "error", err)
			return err
		}
		if attempt >= cfg.MaxRetries {
			slog.Warn("Retry budget exhausted", "operation", operation, "attempts", attempt+1, "error", err)
			return &ExhaustedError{Operation: operation, Attempts: attempt + 1, Err: err}
		}

		wait := cfg.Backoff(attempt)
		slog.Warn("Operation failed, retrying",
			"operation", operation,
			"attempt", attempt+1,
			"max_attempts", cfg.MaxRetries+1,
			"backoff", wait,
			"error", err,
		)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
