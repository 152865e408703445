// Package circuitbreaker stops calls to an external collaborator after
// repeated failures and lets a single probe through once a cooldown passes.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type endpoint struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

// CircuitBreaker tracks endpoints independently, keyed by an arbitrary name
// such as "transform" or a base URL.
type CircuitBreaker struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		endpoints: make(map[string]*endpoint),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// Allow returns ErrCircuitOpen while key is open, and while a half-open
// probe is in flight.
func (cb *CircuitBreaker) Allow(key string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	e, ok := cb.endpoints[key]
	if !ok {
		return nil
	}
	switch e.state {
	case stateOpen:
		if cb.now().Sub(e.openedAt) >= cb.cooldown {
			e.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if e, ok := cb.endpoints[key]; ok {
		e.state = stateClosed
		e.consecutiveFailures = 0
	}
}

// RecordFailure opens key at the threshold. A failed half-open probe opens
// it again immediately.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	e, ok := cb.endpoints[key]
	if !ok {
		e = &endpoint{}
		cb.endpoints[key] = e
	}
	e.consecutiveFailures++
	if e.state == stateHalfOpen || e.consecutiveFailures >= cb.threshold {
		e.state = stateOpen
		e.openedAt = cb.now()
	}
}

// State reports "closed", "open" or "half_open" for key.
func (cb *CircuitBreaker) State(key string) string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if e, ok := cb.endpoints[key]; ok {
		return e.state.String()
	}
	return stateClosed.String()
}
