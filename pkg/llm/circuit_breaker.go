package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until ResetAfter has passed.
	CircuitOpen
	// CircuitHalfOpen lets one probe call through.
	CircuitHalfOpen
)

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

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive provider failures that opens the circuit.
	Threshold  int
	ResetAfter time.Duration
	Clock      clockwork.Clock
}

// DefaultCircuitBreakerConfig opens after 5 failures and probes again after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker stops model calls while the provider is failing, so turns fail fast
// instead of spending their retries against a dead endpoint.
type CircuitBreaker struct {
	mu               sync.Mutex
	clock            clockwork.Clock
	threshold        int
	resetAfter       time.Duration
	consecutiveFails int
	lastFailure      time.Time
	state            CircuitState
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 1
	}
	return &CircuitBreaker{
		clock:      clock,
		threshold:  threshold,
		resetAfter: cfg.ResetAfter,
		state:      CircuitClosed,
	}
}

// Allow returns nil when a call may proceed, or a non-retryable *Error when the circuit is open.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		since := cb.clock.Since(cb.lastFailure)
		if since >= cb.resetAfter {
			cb.state = CircuitHalfOpen
			return nil
		}
		return NewError(ErrorTypeCircuit,
			fmt.Sprintf("model provider unavailable after %d consecutive failures, retry in %v",
				cb.consecutiveFails, (cb.resetAfter - since).Round(time.Second)),
			false, nil)
	default:
		return NewError(ErrorTypeCircuit, "model provider is being probed", false, nil)
	}
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a provider failure. A failed probe reopens the circuit at once.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.clock.Now()
	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
