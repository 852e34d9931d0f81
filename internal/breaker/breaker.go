// Package breaker implements a circuit breaker that suppresses dependent
// calls after sustained failures and auto-probes after a cool-off window.
package breaker

import (
	"sync"
	"time"
)

// State is the tagged state of a Breaker.
type State int

const (
	StateDisabled State = iota
	StateClosed
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Hook is invoked on every state transition. It is called while the
// breaker's lock is held, so implementations must not block.
type Hook func(from, to State)

// Breaker is a mutex-guarded circuit breaker. Threshold <= 0 makes the
// breaker permanently disabled (Allow always true, no bookkeeping).
type Breaker struct {
	threshold int
	cooloff   time.Duration
	hook      Hook
	now       func() time.Time

	mu            sync.Mutex
	state         State
	failureCount  int
	openUntil     time.Time
	probeInFlight bool
}

// New constructs a Breaker. threshold<=0 disables the breaker entirely.
func New(threshold int, cooloff time.Duration, hook Hook) *Breaker {
	state := StateClosed
	if threshold <= 0 {
		state = StateDisabled
	}
	return &Breaker{
		threshold: threshold,
		cooloff:   cooloff,
		hook:      hook,
		now:       time.Now,
		state:     state,
	}
}

// State returns the current state without mutating it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow is the sole admission gate. It may transition open->half_open as a
// side effect (the cool-off has elapsed) and returns true exactly once per
// cool-off window while half-open, to admit a single probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateDisabled, StateClosed:
		return true
	case StateOpen:
		if b.now().Before(b.openUntil) {
			return false
		}
		b.transition(StateHalfOpen)
		b.probeInFlight = true
		return true
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess clears the failure count and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateDisabled {
		return
	}
	b.failureCount = 0
	b.probeInFlight = false
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// RecordFailure increments the failure count, opening the breaker once the
// threshold is reached (or immediately, from half-open).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateDisabled {
		return
	}

	b.probeInFlight = false

	if b.state == StateHalfOpen {
		b.openUntil = b.now().Add(b.cooloff)
		b.failureCount = 0
		b.transition(StateOpen)
		return
	}

	b.failureCount++
	if b.failureCount >= b.threshold {
		b.openUntil = b.now().Add(b.cooloff)
		b.failureCount = 0
		b.transition(StateOpen)
	}
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.hook != nil && from != to {
		b.hook(from, to)
	}
}

// Execute runs fn if Allow permits it, recording the outcome. If the
// breaker denies admission, Execute returns ErrOpen without calling fn.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if !b.Allow() {
		return zero, ErrOpen
	}
	result, err := fn()
	if err != nil {
		b.RecordFailure()
		return zero, err
	}
	b.RecordSuccess()
	return result, nil
}
