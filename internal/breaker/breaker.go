// Package breaker guards calls to a failing collaborator.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the state of the circuit breaker.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen admits a single trial call.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures a circuit breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before a trial.
	RecoveryTimeout time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
	// OnStateChange is an optional callback invoked under the breaker lock.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, RecoveryTimeout: 10 * time.Minute}
}

// Breaker implements the closed/open/half-open pattern. Callers ask Allow
// before the protected call and report the result with Success or Failure.
type Breaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	trialInFlight bool
	config        Config
}

// New creates a breaker, filling zero fields from DefaultConfig.
func New(config Config) *Breaker {
	def := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = def.RecoveryTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Breaker{state: StateClosed, config: config}
}

// Allow reports whether a call may proceed. In half-open state only the
// first caller is admitted until it reports back.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		elapsed := b.config.Now().Sub(b.openedAt)
		if elapsed < b.config.RecoveryTimeout {
			return fmt.Errorf("%w: retry in %v", ErrOpen, b.config.RecoveryTimeout-elapsed)
		}
		b.transitionTo(StateHalfOpen)
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return fmt.Errorf("%w: trial call in flight", ErrOpen)
		}
		b.trialInFlight = true
		return nil
	default:
		return nil
	}
}

// Success records a successful call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialInFlight = false
	if b.state != StateClosed {
		b.transitionTo(StateClosed)
	}
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false
	switch b.state {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.open()
		}
	case StateOpen:
		b.openedAt = b.config.Now()
	}
}

// State returns the current state without advancing it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) open() {
	b.openedAt = b.config.Now()
	b.transitionTo(StateOpen)
}

func (b *Breaker) transitionTo(next State) {
	prev := b.state
	b.state = next
	if next == StateClosed {
		b.failures = 0
	}
	if prev != next && b.config.OnStateChange != nil {
		b.config.OnStateChange(prev, next)
	}
}
