package backoff

import "sync"

// State is the circuit breaker's readable state (spec §4.7, for the
// gmail_circuit_state gauge).
type State int

const (
	Closed   State = 0
	HalfOpen State = 1
	Open     State = 2
)

const tripThreshold = 5

// CircuitBreaker trips after tripThreshold consecutive failed polls. While
// Open, Allow refuses immediately. A half-open transition (driven
// explicitly by the caller via AllowProbe) permits a single probe: success
// closes the breaker, failure re-opens it.
type CircuitBreaker struct {
	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	probing             bool
}

// NewCircuitBreaker builds a breaker starting Closed.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{state: Closed}
}

// Allow reports whether a call may proceed: true when Closed, true exactly
// once per open period when a probe is requested via AllowProbe, false
// otherwise.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Closed:
		return true
	case HalfOpen:
		if c.probing {
			return false
		}
		c.probing = true
		return true
	default:
		return false
	}
}

// AllowProbe transitions an Open breaker to HalfOpen so the next Allow call
// permits a single probe. Callers invoke this after their own cool-off
// period has elapsed (the breaker holds no timer itself, matching the
// spec's "current state is readable" contract without baking in a clock
// dependency here).
func (c *CircuitBreaker) AllowProbe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Open {
		c.state = HalfOpen
		c.probing = false
	}
}

// RecordSuccess closes the breaker and resets the failure counter.
func (c *CircuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Closed
	c.consecutiveFailures = 0
	c.probing = false
}

// RecordFailure increments the consecutive-failure counter. From Closed,
// reaching tripThreshold opens the breaker. From HalfOpen, any failure
// re-opens it immediately.
func (c *CircuitBreaker) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == HalfOpen {
		c.state = Open
		c.probing = false
		return
	}
	c.consecutiveFailures++
	if c.consecutiveFailures >= tripThreshold {
		c.state = Open
	}
}

// State reports the current breaker state for metrics.
func (c *CircuitBreaker) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
