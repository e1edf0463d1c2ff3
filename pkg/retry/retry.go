// Package retry runs operations again after transient failures, with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	// MaxRetries is the number of calls after the first one; fn runs at most MaxRetries+1 times.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, +/- fraction applied to each delay
	// Clock drives the waits between attempts. Nil means the real clock.
	Clock clockwork.Clock
}

// DefaultConfig returns 3 retries starting at 100ms, doubling up to 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (c *Config) clock() clockwork.Clock {
	if c.Clock == nil {
		return clockwork.NewRealClock()
	}
	return c.Clock
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 || delay <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the retries are spent.
// fn receives the zero-based attempt number. Do returns the number of calls made and the
// last error. Context cancellation during a wait returns ctx.Err().
func Do(ctx context.Context, cfg *Config, fn func(attempt int) error) (int, error) {
	_, attempts, err := DoWithResult(ctx, cfg, func(attempt int) (struct{}, error) {
		return struct{}{}, fn(attempt)
	})
	return attempts, err
}

// DoWithResult is Do for functions that return a value. The last value is returned even on error.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func(attempt int) (T, error)) (T, int, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.clock()
	delay := cfg.InitialDelay

	var result T
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		attempts++
		r, err := fn(attempt)
		result = r
		if err == nil {
			return result, attempts, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-clock.After(applyJitter(delay, cfg.JitterFactor)):
			delay = nextDelay(delay, cfg)
		case <-ctx.Done():
			return result, attempts, ctx.Err()
		}
	}
	return result, attempts, lastErr
}

func nextDelay(delay time.Duration, cfg *Config) time.Duration {
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay = time.Duration(float64(delay) * mult)
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// RetryableError is an error that declares its own retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

type permanentError struct{ err error }

func (p *permanentError) Error() string     { return p.err.Error() }
func (p *permanentError) Unwrap() error     { return p.err }
func (p *permanentError) IsRetryable() bool { return false }

// Permanent marks err so that Do stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"network is unreachable",
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"overloaded",
	"service unavailable",
	"too many requests",
}

// IsRetryable reports whether err is worth another attempt. An error in the chain that
// implements RetryableError decides; otherwise the message is matched against known
// transient failures. Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
