// Package ratelimit enforces per-channel sliding-window call budgets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// waitBuffer pads the computed wait so the oldest call has surely left the window.
const waitBuffer = 100 * time.Millisecond

// Budget allows Calls within any trailing Period.
type Budget struct {
	Calls  int
	Period time.Duration
}

// window admits one waiter at a time through turn; mu guards calls.
type window struct {
	turn   *semaphore.Weighted
	mu     sync.Mutex
	budget Budget
	calls  []time.Time
}

// Limiter holds one window per configured channel.
type Limiter struct {
	windows map[string]*window
	now     func() time.Time
	onWait  func(channel string, d time.Duration)
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithWaitHook is called before the limiter suspends a caller.
func WithWaitHook(fn func(channel string, d time.Duration)) Option {
	return func(l *Limiter) { l.onWait = fn }
}

// New builds a limiter for the given budgets. Channels without a positive
// budget are unlimited.
func New(budgets map[string]Budget, opts ...Option) *Limiter {
	l := &Limiter{windows: make(map[string]*window, len(budgets)), now: time.Now}
	for name, b := range budgets {
		if b.Calls <= 0 || b.Period <= 0 {
			continue
		}
		l.windows[name] = &window{turn: semaphore.NewWeighted(1), budget: b}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until channel has capacity and records the call. Callers
// queue for their turn in order; a cancelled ctx releases a queued caller
// immediately.
func (l *Limiter) Acquire(ctx context.Context, channel string) error {
	w, ok := l.windows[channel]
	if !ok {
		return nil
	}

	if err := w.turn.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", channel, err)
	}
	defer w.turn.Release(1)

	for {
		wait, admitted := w.reserve(l.now())
		if admitted {
			return nil
		}
		if l.onWait != nil {
			l.onWait(channel, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait for %s: %w", channel, ctx.Err())
		case <-timer.C:
		}
	}
}

// reserve records a call at now if the window has room, otherwise it returns
// how long until the oldest call leaves the window.
func (w *window) reserve(now time.Time) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	if len(w.calls) < w.budget.Calls {
		w.calls = append(w.calls, now)
		return 0, true
	}
	return w.budget.Period - now.Sub(w.calls[0]) + waitBuffer, false
}

// InWindow returns how many calls the channel has in its current window.
func (l *Limiter) InWindow(channel string) int {
	w, ok := l.windows[channel]
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(l.now())
	return len(w.calls)
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.budget.Period)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}
