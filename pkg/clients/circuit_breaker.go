package clients

import (
	"sync"
	"time"

	"github.com/vortexdata/ferry/pkg/errors"
)

// CircuitBreakerConfig configures failure thresholds and recovery timing.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes that closes a half-open circuit
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing with half-open calls
	Timeout time.Duration
}

// CircuitBreakerState is a snapshot of the breaker for metrics reporting.
type CircuitBreakerState struct {
	State       string
	Failures    int64
	Successes   int64
	FailureRate float64
}

const (
	stateClosed   = "closed"
	stateOpen     = "open"
	stateHalfOpen = "half-open"
)

// CircuitBreaker prevents cascading failures by rejecting calls once the
// consecutive failure threshold is crossed. After the timeout it lets probe
// calls through; enough successes close the circuit again.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu              sync.Mutex
	state           string
	consecutiveFail int
	consecutiveOK   int
	openedAt        time.Time
	totalFailures   int64
	totalSuccesses  int64
}

// NewCircuitBreaker creates a circuit breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		config: config,
		state:  stateClosed,
	}
}

// Execute runs fn under circuit breaker protection. When the circuit is open
// the function is not executed and a rate_limit error is returned.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn()
	cb.record(err == nil)
	return err
}

// GetState returns the current state of the circuit breaker along with
// cumulative statistics.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	total := cb.totalFailures + cb.totalSuccesses
	rate := 0.0
	if total > 0 {
		rate = float64(cb.totalFailures) / float64(total)
	}
	return CircuitBreakerState{
		State:       cb.state,
		Failures:    cb.totalFailures,
		Successes:   cb.totalSuccesses,
		FailureRate: rate,
	}
}

// Reset returns the breaker to the closed state, clearing counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = stateClosed
	cb.consecutiveFail = 0
	cb.consecutiveOK = 0
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == stateOpen {
		if time.Since(cb.openedAt) < cb.config.Timeout {
			return errors.New(errors.ErrorTypeRateLimit, "circuit breaker is open")
		}
		cb.state = stateHalfOpen
		cb.consecutiveOK = 0
	}
	return nil
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.totalSuccesses++
		cb.consecutiveFail = 0
		if cb.state == stateHalfOpen {
			cb.consecutiveOK++
			if cb.consecutiveOK >= cb.config.SuccessThreshold {
				cb.state = stateClosed
			}
		}
		return
	}

	cb.totalFailures++
	cb.consecutiveFail++
	cb.consecutiveOK = 0
	if cb.state == stateHalfOpen || cb.consecutiveFail >= cb.config.FailureThreshold {
		cb.state = stateOpen
		cb.openedAt = time.Now()
	}
}
