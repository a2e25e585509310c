// Package retry provides the single backoff policy used by the retry ledger
// and by feed fetching.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"NewsRelay/internal/domain"
)

// ErrExhausted is returned by Do when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	// MaxAttempts bounds the attempts, including the first one.
	MaxAttempts int
	// Backoff is indexed by attempt number; the last value repeats.
	Backoff []time.Duration
	// Timeouts optionally bounds each attempt; the last value repeats.
	Timeouts []time.Duration
	// IsRetryable decides whether an error is worth another attempt.
	IsRetryable func(error) bool
}

// LedgerPolicy is the default publish retry policy.
func LedgerPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Backoff: []time.Duration{
			time.Minute, 5 * time.Minute, 15 * time.Minute, 60 * time.Minute, 360 * time.Minute,
		},
	}
}

// FetchPolicy retries a feed download once with a longer timeout.
func FetchPolicy(timeouts []time.Duration) Policy {
	if len(timeouts) == 0 {
		timeouts = []time.Duration{15 * time.Second, 30 * time.Second}
	}
	return Policy{
		MaxAttempts: len(timeouts),
		Timeouts:    timeouts,
		Backoff:     []time.Duration{time.Second},
	}
}

// DefaultIsRetryable rejects cancellation and permanent publish errors.
func DefaultIsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *domain.PublishError
	if errors.As(err, &pe) {
		return !pe.Type.Permanent()
	}
	return true
}

// Delay returns the wait after the given zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return pick(p.Backoff, attempt)
}

// Timeout returns the bound for the given zero-based attempt, or zero.
func (p Policy) Timeout(attempt int) time.Duration {
	return pick(p.Timeouts, attempt)
}

// Retryable reports whether err deserves another attempt.
func (p Policy) Retryable(err error) bool {
	if p.IsRetryable != nil {
		return p.IsRetryable(err)
	}
	return DefaultIsRetryable(err)
}

// Exhausted reports whether attempts used up the budget.
func (p Policy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// Do runs fn until it succeeds, returns a non-retryable error, or runs
// out of attempts. Each attempt gets its own timeout when configured.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = p.once(ctx, attempt, fn)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry interrupted: %w: %w", ctx.Err(), lastErr)
		}
		if !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry interrupted: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

func (p Policy) once(ctx context.Context, attempt int, fn func(context.Context, int) error) error {
	if d := p.Timeout(attempt); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return fn(ctx, attempt)
}

func pick(values []time.Duration, i int) time.Duration {
	if len(values) == 0 {
		return 0
	}
	if i < 0 {
		i = 0
	}
	if i >= len(values) {
		i = len(values) - 1
	}
	return values[i]
}
