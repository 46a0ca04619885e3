// SPDX-License-Identifier: Apache-2.0
// Package resilience provides circuit breaker, retry and fallback patterns
// for Chorus.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/chorusml/chorus/pkg/errors"
)

// State represents the state of a circuit breaker.
type State string

const (
	// StateClosed means calls pass through normally.
	StateClosed State = "closed"

	// StateOpen means calls are rejected without invoking the operation.
	StateOpen State = "open"

	// StateHalfOpen means a probe call is allowed to test recovery.
	StateHalfOpen State = "half_open"
)

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// Name identifies the protected service for logging/metrics.
	Name string

	// FailureThreshold is the number of failures within MonitorWindow
	// before the circuit opens.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before allowing
	// a half-open probe.
	ResetTimeout time.Duration

	// MonitorWindow is the sliding window over which failures count.
	MonitorWindow time.Duration
}

// CircuitBreaker prevents cascading failures to a named service.
// Failures are tracked in a sliding window; state transitions are
// linearizable per breaker.
type CircuitBreaker struct {
	config        BreakerConfig
	mu            sync.Mutex
	state         State
	failures      []time.Time
	nextAttemptAt time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout == 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.MonitorWindow == 0 {
		config.MonitorWindow = 120 * time.Second
	}
	if config.Name == "" {
		config.Name = "circuit_breaker"
	}
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Call executes fn if the circuit breaker allows it.
// While open and before the reset timeout, Call returns a
// CIRCUIT_OPEN error without invoking fn; such rejections are not
// counted as failures. The operation runs outside the breaker lock so
// concurrent calls to the same service do not serialize.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

// allow checks state, performing the open -> half_open transition when
// the reset timeout has elapsed.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.prune(now)

	if cb.state == StateOpen {
		if now.Before(cb.nextAttemptAt) {
			return errors.CircuitOpen(cb.config.Name, cb.nextAttemptAt)
		}
		cb.state = StateHalfOpen
	}
	return nil
}

// record updates breaker state from the outcome of an allowed call.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.prune(now)

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
			cb.failures = nil
		}
		return
	}

	cb.failures = append(cb.failures, now)

	switch cb.state {
	case StateHalfOpen:
		// Probe failed; re-arm.
		cb.state = StateOpen
		cb.nextAttemptAt = now.Add(cb.config.ResetTimeout)
	case StateClosed:
		if len(cb.failures) >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.nextAttemptAt = now.Add(cb.config.ResetTimeout)
		}
	}
}

// prune drops failures older than the monitor window. Must hold the lock.
func (cb *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-cb.config.MonitorWindow)
	i := 0
	for i < len(cb.failures) && cb.failures[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		cb.failures = cb.failures[i:]
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the protected service name.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// NextAttemptAt returns when a half-open probe will next be allowed.
// Zero when the circuit is closed.
func (cb *CircuitBreaker) NextAttemptAt() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return time.Time{}
	}
	return cb.nextAttemptAt
}

// FailureCount returns the number of failures inside the monitor window.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.prune(time.Now())
	return len(cb.failures)
}

// Reset manually resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = nil
	cb.nextAttemptAt = time.Time{}
}

// Trip manually forces the circuit breaker to open state.
func (cb *CircuitBreaker) Trip() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateOpen
	cb.nextAttemptAt = time.Now().Add(cb.config.ResetTimeout)
}
