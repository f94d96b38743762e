// Package retry implements the generic retry executor (§4.8): fixed,
// linear, and exponential backoff strategies, the latter capped at a
// maximum delay, with circuit-open and context-cancellation errors treated
// as non-retriable. Grounded on the teacher's generic
// resilience.Retry[T any] in libs/go/core/resilience/retry.go, generalized
// from a single hardcoded exponential-with-jitter policy into the three
// selectable strategies this spec names, and made jitter-free and
// non-retriable-error-aware.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/VledicFranco/constellation-engine-sub007/internal/breaker"
)

// BackoffStrategy selects how the delay between attempts grows.
type BackoffStrategy int

const (
	Fixed BackoffStrategy = iota
	Linear
	Exponential
)

// Config tunes a retry run.
type Config struct {
	MaxAttempts int
	Strategy    BackoffStrategy
	BaseDelay   time.Duration
	MaxDelay    time.Duration // caps Exponential growth; defaults to 30s if zero
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

// delayFor returns the backoff delay before the (attempt+1)th try, where
// attempt is zero-based and counts completed failed attempts.
func (c Config) delayFor(attempt int) time.Duration {
	switch c.Strategy {
	case Fixed:
		return c.BaseDelay
	case Linear:
		return c.BaseDelay * time.Duration(attempt+1)
	case Exponential:
		d := c.BaseDelay
		for i := 0; i < attempt; i++ {
			d *= 2
			if d >= c.MaxDelay {
				return c.MaxDelay
			}
		}
		if d > c.MaxDelay {
			d = c.MaxDelay
		}
		return d
	default:
		return c.BaseDelay
	}
}

// nonRetriable reports whether err should abort retrying immediately
// regardless of remaining attempts: an open circuit breaker or a cancelled
// context are both signals the caller's situation will not improve by
// retrying sooner (§7).
func nonRetriable(err error) bool {
	return errors.Is(err, breaker.ErrOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Retry runs fn up to cfg.MaxAttempts times, waiting cfg.delayFor(attempt)
// between failures, unless fn returns a non-retriable error (circuit-open
// or context cancellation) in which case it returns immediately.
func Retry[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if nonRetriable(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		delay := cfg.delayFor(attempt)
		if delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}
