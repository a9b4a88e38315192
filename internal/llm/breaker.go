package llm

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and the call
// is rejected without reaching the provider.
var ErrCircuitOpen = errors.New("llm: circuit breaker open")

// CircuitBreakerConfig configures the consecutive-failure circuit breaker.
type CircuitBreakerConfig struct {
	// ConsecutiveThreshold is the number of consecutive transient failures
	// that opens the circuit.
	ConsecutiveThreshold int
	// Cooldown is how long the circuit stays open before a probe call is
	// allowed through.
	Cooldown time.Duration
}

// Breaker states.
const (
	breakerClosed = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker trips after a run of consecutive transient failures and
// rejects calls until a cooldown elapses, then lets a single probe through.
// A successful probe closes the circuit; a failed probe reopens it for
// another cooldown.
//
// The breaker lives in activities (not workflows) because it uses sync.Mutex
// and time.Now(), which would violate workflow determinism. Workflows see
// ErrCircuitOpen as a transient failure and retry after backoff.
type CircuitBreaker struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	state    int
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewCircuitBreaker creates a breaker. A non-positive threshold defaults to 3
// and a non-positive cooldown to 30 seconds.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.ConsecutiveThreshold <= 0 {
		cfg.ConsecutiveThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a call may proceed. While open it returns false until
// the cooldown elapses, then moves to half-open and admits one probe; further
// calls are rejected until the probe reports its outcome.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.state = breakerHalfOpen
		return true
	default:
		// A probe is already in flight.
		return false
	}
}

// RecordSuccess closes the circuit and resets the failure run.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failures = 0
}

// RecordFailure counts one transient failure. Reaching the threshold, or
// failing the half-open probe, opens the circuit for a full cooldown.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = b.now()
		return
	}

	b.failures++
	if b.failures >= b.cfg.ConsecutiveThreshold {
		b.state = breakerOpen
		b.openedAt = b.now()
	}
}

// State returns "closed", "open", or "half-open" for logging and metrics.
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
