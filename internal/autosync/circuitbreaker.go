package autosync

import (
	"sync"
	"time"
)

// DefaultFailureThreshold is the number of consecutive failed cycles before
// background syncing pauses.
const DefaultFailureThreshold = 3

// DefaultCooldown is how long background syncing stays paused before a
// single probe cycle is allowed.
const DefaultCooldown = 2 * time.Minute

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal state; cycles run.
	CircuitClosed CircuitState = iota
	// CircuitOpen means recent cycles failed; cycles are skipped.
	CircuitOpen
	// CircuitHalfOpen means the cooldown expired; one probe cycle runs.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker pauses background cycles after consecutive failures.
type CircuitBreaker struct {
	mu           sync.Mutex
	threshold    int
	cooldown     time.Duration
	failureCount int
	state        CircuitState
	openedAt     time.Time
	now          func() time.Time
}

// NewCircuitBreaker creates a breaker with the given threshold and cooldown.
// Non-positive values use the defaults.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     CircuitClosed,
		now:       time.Now,
	}
}

// Allow reports whether a cycle should run now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance()
	return cb.state != CircuitOpen
}

// RecordSuccess closes the circuit and resets the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failed cycle. A failed probe reopens the circuit
// immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	if cb.state == CircuitHalfOpen || cb.failureCount >= cb.threshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance()
	return cb.state
}

// FailureCount returns the current consecutive failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// advance moves an open circuit to half-open once the cooldown elapsed.
// Callers hold mu.
func (cb *CircuitBreaker) advance() {
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.state = CircuitHalfOpen
	}
}
