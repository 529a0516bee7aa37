package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call while the circuit rejects requests
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation
	StateOpen                         // Circuit is open, requests fail immediately
	StateHalfOpen                     // Testing if service has recovered
)

func (s CircuitState) String() string {
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

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name         string
	maxFailures  int           // Number of consecutive failures before opening circuit
	resetTimeout time.Duration // Time to wait before attempting half-open
	halfOpenMax  int           // Max trial requests (and successes needed) in half-open state

	// isFailure decides whether an error counts against the circuit.
	// Nil means every error does.
	isFailure     func(error) bool
	onStateChange func(name string, state CircuitState)

	mu                sync.Mutex
	state             CircuitState
	failureCount      int
	halfOpenCount     int
	successCount      int
	lastFailTime      time.Time
	requestCount      int64
	failureCountTotal int64
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  3,
		state:        StateClosed,
	}
}

// WithFailurePredicate sets which errors count as failures. Errors for which
// fn returns false are passed through and recorded as successes.
func (cb *CircuitBreaker) WithFailurePredicate(fn func(error) bool) *CircuitBreaker {
	cb.isFailure = fn
	return cb
}

// OnStateChange registers a hook invoked after every state transition
func (cb *CircuitBreaker) OnStateChange(fn func(name string, state CircuitState)) *CircuitBreaker {
	cb.onStateChange = fn
	return cb
}

// Name returns the name the breaker was created with
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Call executes a function with circuit breaker protection
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()

	failed := err != nil && (cb.isFailure == nil || cb.isFailure(err))
	cb.RecordResult(!failed)

	return err
}

// allowRequest checks if a request should be allowed
func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	var changed bool
	defer func() {
		cb.mu.Unlock()
		if changed {
			cb.notify(StateHalfOpen)
		}
	}()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.lastFailTime) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenCount = 1
			cb.successCount = 0
			changed = true
			return true
		}
		return false

	case StateHalfOpen:
		if cb.halfOpenCount < cb.halfOpenMax {
			cb.halfOpenCount++
			return true
		}
		return false
	}

	return false
}

// RecordResult records the result of a request
func (cb *CircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	before := cb.state

	cb.requestCount++
	if success {
		cb.recordSuccess()
	} else {
		cb.recordFailure()
	}

	after := cb.state
	cb.mu.Unlock()

	if after != before {
		cb.notify(after)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.halfOpenCount = 0
			cb.successCount = 0
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failureCountTotal++
	cb.lastFailTime = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}

	case StateHalfOpen:
		// Any failure in half-open immediately opens the circuit
		cb.state = StateOpen
		cb.halfOpenCount = 0
		cb.successCount = 0
	}
}

func (cb *CircuitBreaker) notify(state CircuitState) {
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, state)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() (state CircuitState, requestCount, failureCount int64, failureRate float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state = cb.state
	requestCount = cb.requestCount
	failureCount = cb.failureCountTotal

	if requestCount > 0 {
		failureRate = float64(failureCount) / float64(requestCount) * 100.0
	}

	return
}

// Reset manually resets the circuit breaker to closed state and clears its statistics
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	before := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.halfOpenCount = 0
	cb.successCount = 0
	cb.requestCount = 0
	cb.failureCountTotal = 0
	cb.mu.Unlock()

	if before != StateClosed {
		cb.notify(StateClosed)
	}
}
