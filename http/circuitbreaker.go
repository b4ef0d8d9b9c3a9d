package http

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState is the state of one host's circuit.
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen fails requests fast.
	CircuitOpen
	// CircuitHalfOpen lets a limited number of trials through.
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

const (
	DefaultFailureThreshold    = 5
	DefaultRecoveryTimeout     = 30 * time.Second
	DefaultHalfOpenMaxRequests = 1
)

// ErrCircuitOpen is matched by errors returned while a circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError names the host whose circuit rejected the request.
type CircuitOpenError struct {
	Host    string
	RetryIn time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s: circuit open, retry in %v", e.Host, e.RetryIn.Round(time.Millisecond))
}

func (e *CircuitOpenError) Is(target error) bool { return target == ErrCircuitOpen }

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before probing.
	RecoveryTimeout     time.Duration
	HalfOpenMaxRequests int
}

// DefaultCircuitBreakerConfig returns 5 failures, 30s recovery, 1 trial.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    DefaultFailureThreshold,
		RecoveryTimeout:     DefaultRecoveryTimeout,
		HalfOpenMaxRequests: DefaultHalfOpenMaxRequests,
	}
}

type circuit struct {
	state             CircuitState
	consecutiveErrors int
	lastError         time.Time
	openedAt          time.Time
	trials            int
}

// CircuitBreaker tracks consecutive failures per host.
type CircuitBreaker struct {
	circuits map[string]*circuit
	mu       sync.Mutex
	config   CircuitBreakerConfig
	now      func() time.Time
}

// NewCircuitBreaker creates a circuit breaker; zero fields take defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = DefaultHalfOpenMaxRequests
	}
	return &CircuitBreaker{
		circuits: make(map[string]*circuit),
		config:   cfg,
		now:      time.Now,
	}
}

// Allow returns nil if a request to host may proceed, or a
// *CircuitOpenError.
func (cb *CircuitBreaker) Allow(host string) error {
	if cb == nil {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuitFor(host)
	switch c.state {
	case CircuitOpen:
		elapsed := cb.now().Sub(c.openedAt)
		if elapsed < cb.config.RecoveryTimeout {
			return &CircuitOpenError{Host: host, RetryIn: cb.config.RecoveryTimeout - elapsed}
		}
		c.state = CircuitHalfOpen
		c.trials = 1
		return nil
	case CircuitHalfOpen:
		if c.trials < cb.config.HalfOpenMaxRequests {
			c.trials++
			return nil
		}
		return &CircuitOpenError{Host: host}
	}
	return nil
}

// RecordSuccess closes the circuit of host.
func (cb *CircuitBreaker) RecordSuccess(host string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuitFor(host)
	c.state = CircuitClosed
	c.consecutiveErrors = 0
	c.trials = 0
}

// RecordFailure counts a failure for host, opening the circuit at the
// threshold. A failed trial reopens it immediately.
func (cb *CircuitBreaker) RecordFailure(host string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuitFor(host)
	now := cb.now()
	c.consecutiveErrors++
	c.lastError = now

	switch c.state {
	case CircuitClosed:
		if c.consecutiveErrors >= cb.config.FailureThreshold {
			c.state = CircuitOpen
			c.openedAt = now
		}
	case CircuitHalfOpen:
		c.state = CircuitOpen
		c.openedAt = now
		c.trials = 0
	}
}

// State returns the state of host's circuit. An open circuit past its
// recovery timeout reports half-open.
func (cb *CircuitBreaker) State(host string) CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[host]
	if !ok {
		return CircuitClosed
	}
	if c.state == CircuitOpen && cb.now().Sub(c.openedAt) >= cb.config.RecoveryTimeout {
		return CircuitHalfOpen
	}
	return c.state
}

// Reset forgets host's circuit.
func (cb *CircuitBreaker) Reset(host string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.circuits, host)
}

// circuitFor must be called with mu held.
func (cb *CircuitBreaker) circuitFor(host string) *circuit {
	c, ok := cb.circuits[host]
	if !ok {
		c = &circuit{state: CircuitClosed}
		cb.circuits[host] = c
	}
	return c
}
