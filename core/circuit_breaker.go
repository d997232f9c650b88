// Package core provides fundamental abstractions and interfaces for the GoMind framework.
// This file defines the CircuitBreaker interface and related types for implementing
// fault tolerance patterns in distributed systems.
//
// Purpose:
// - Defines the CircuitBreaker interface for protecting against cascading failures
// - Provides configuration structures for circuit breaker implementations
// - Establishes a standard API for circuit breaker state management and metrics
// - Enables resilient service communication through automatic failure detection
//
// Scope:
// - CircuitBreaker interface: Core contract for all circuit breaker implementations
// - CircuitBreakerParams: Configuration and dependency injection for implementations
// - State management: closed, open, and half-open states
// - Metrics collection for monitoring circuit breaker behavior
// - Timeout support for operations that might hang
//
// Circuit Breaker Pattern:
// The circuit breaker acts as a proxy that monitors failures and temporarily
// blocks requests when a failure threshold is reached. States:
// 1. Closed: Normal operation, requests pass through
// 2. Open: Threshold exceeded, requests fail immediately
// 3. Half-Open: Testing if service recovered, limited requests allowed
//
// Architecture:
// This interface enables:
// 1. Multiple implementation strategies (in-memory, distributed)
// 2. Pluggable failure detection algorithms
// 3. Integration with telemetry and logging systems
// 4. Graceful degradation of service functionality
//
// Usage:
// Implementations wrap service calls with Execute() or ExecuteWithTimeout()
// to automatically handle failures, timeouts, and circuit state transitions.
// The circuit breaker protects both the caller and the downstream service
// from cascading failures and overload conditions.
package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// CircuitBreaker provides circuit breaker functionality for fault tolerance.
// Implementations should protect against cascading failures by temporarily
// blocking requests when a threshold of failures is reached.
type CircuitBreaker interface {
	// Execute runs the provided function with circuit breaker protection.
	// If the circuit is open, it returns ErrCircuitBreakerOpen immediately.
	// If the circuit is closed or half-open, it executes the function and
	// records the result to update the circuit state.
	Execute(ctx context.Context, fn func() error) error

	// ExecuteWithTimeout runs the function with both circuit breaker protection
	// and a timeout. This is useful for operations that might hang.
	ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error

	// GetState returns the current circuit breaker state as a string.
	// Possible values: "closed", "open", "half-open"
	GetState() string

	// GetMetrics returns current metrics about the circuit breaker.
	// This typically includes success/failure counts, state transitions, etc.
	GetMetrics() map[string]interface{}

	// Reset manually resets the circuit breaker to closed state.
	// This clears all failure counts and metrics.
	Reset()

	// CanExecute returns true if the circuit breaker would allow execution.
	// This is useful for checking state without actually executing.
	CanExecute() bool
}

// CircuitBreakerParams provides parameters for circuit breaker implementations.
// This complements the existing CircuitBreakerConfig in config.go with
// implementation-specific fields like Logger and Telemetry.
type CircuitBreakerParams struct {
	// Name identifies the circuit breaker (for logging/metrics)
	Name string

	// Config embeds the basic configuration
	Config CircuitBreakerConfig

	// Optional: Logger for circuit breaker events
	Logger Logger

	// Optional: Telemetry for metrics
	Telemetry Telemetry
}

// DefaultCircuitBreakerParams returns sensible defaults for circuit breaker parameters
func DefaultCircuitBreakerParams(name string) CircuitBreakerParams {
	return CircuitBreakerParams{
		Name: name,
		Config: CircuitBreakerConfig{
			Enabled:          true,
			Threshold:        5,
			Timeout:          30 * time.Second,
			HalfOpenRequests: 3,
		},
	}
}

// cbState is one of closed/open/half-open.
type cbState int32

const (
	cbClosed cbState = iota
	cbOpen
	cbHalfOpen
)

func (s cbState) String() string {
	switch s {
	case cbOpen:
		return "open"
	case cbHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// simpleBreaker is the consecutive-failure circuit breaker every outbound
// client in this module wraps its calls with: it opens after Threshold
// consecutive failures, waits Timeout, then admits up to HalfOpenRequests
// probe calls before deciding whether to close or reopen. A request is
// disabled entirely (Execute/ExecuteWithTimeout just run fn) when
// params.Config.Enabled is false, so callers can construct one
// unconditionally and let configuration decide whether it does anything.
type simpleBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger Logger

	mu          sync.Mutex
	state       cbState
	openedAt    time.Time
	failures    int
	halfOpenOK  int
	halfOpenBad int
	halfOpenInF int32 // probes currently in flight, capped at HalfOpenRequests
}

// NewCircuitBreaker returns a CircuitBreaker implementation grounded on the
// consecutive-failure-threshold mode of the teacher's resilience package —
// this module only needs the Threshold/Timeout/HalfOpenRequests knobs
// CircuitBreakerConfig already exposes, not the teacher's full sliding-window
// error-rate machinery.
func NewCircuitBreaker(params CircuitBreakerParams) CircuitBreaker {
	logger := params.Logger
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if params.Config.Threshold <= 0 {
		params.Config.Threshold = 5
	}
	if params.Config.Timeout <= 0 {
		params.Config.Timeout = 30 * time.Second
	}
	if params.Config.HalfOpenRequests <= 0 {
		params.Config.HalfOpenRequests = 1
	}
	return &simpleBreaker{name: params.Name, config: params.Config, logger: logger, state: cbClosed}
}

func (cb *simpleBreaker) Execute(ctx context.Context, fn func() error) error {
	return cb.ExecuteWithTimeout(ctx, 0, fn)
}

func (cb *simpleBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	if !cb.config.Enabled {
		return fn()
	}

	half, err := cb.admit()
	if err != nil {
		return err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- fn() }()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		runErr = ctx.Err()
	}

	cb.report(half, runErr)
	return runErr
}

// admit decides whether a call may proceed, transitioning open->half-open
// once Timeout has elapsed. Returns half=true if this call is a half-open
// probe, so report() knows which counters to update.
func (cb *simpleBreaker) admit() (half bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case cbClosed:
		return false, nil
	case cbOpen:
		if time.Since(cb.openedAt) < cb.config.Timeout {
			return false, fmt.Errorf("circuit breaker %q: %w", cb.name, ErrCircuitBreakerOpen)
		}
		cb.transition(cbHalfOpen)
		fallthrough
	case cbHalfOpen:
		if int(atomic.LoadInt32(&cb.halfOpenInF)) >= cb.config.HalfOpenRequests {
			return false, fmt.Errorf("circuit breaker %q: %w", cb.name, ErrCircuitBreakerOpen)
		}
		atomic.AddInt32(&cb.halfOpenInF, 1)
		return true, nil
	default:
		return false, nil
	}
}

func (cb *simpleBreaker) report(half bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if half {
		atomic.AddInt32(&cb.halfOpenInF, -1)
		if err != nil {
			cb.halfOpenBad++
		} else {
			cb.halfOpenOK++
		}
		if cb.halfOpenOK+cb.halfOpenBad >= cb.config.HalfOpenRequests {
			if cb.halfOpenBad == 0 {
				cb.transition(cbClosed)
			} else {
				cb.transition(cbOpen)
			}
		}
		return
	}

	if err == nil {
		cb.failures = 0
		return
	}
	cb.failures++
	if cb.failures >= cb.config.Threshold {
		cb.transition(cbOpen)
	}
}

// transition must be called with cb.mu held.
func (cb *simpleBreaker) transition(to cbState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == cbOpen {
		cb.openedAt = time.Now()
	}
	if to == cbHalfOpen || to == cbClosed {
		cb.halfOpenOK, cb.halfOpenBad = 0, 0
		atomic.StoreInt32(&cb.halfOpenInF, 0)
	}
	if to == cbClosed {
		cb.failures = 0
	}
	cb.logger.Info("circuit breaker state changed", map[string]interface{}{
		"operation": "circuit_breaker_state_change",
		"name":      cb.name,
		"from":      from.String(),
		"to":        to.String(),
	})
}

func (cb *simpleBreaker) GetState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

func (cb *simpleBreaker) GetMetrics() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return map[string]interface{}{
		"name":                 cb.name,
		"state":                cb.state.String(),
		"consecutive_failures": cb.failures,
		"half_open_successes":  cb.halfOpenOK,
		"half_open_failures":   cb.halfOpenBad,
	}
}

func (cb *simpleBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(cbClosed)
	// transition is a no-op when already closed; clear the counters anyway.
	cb.failures = 0
	cb.halfOpenOK, cb.halfOpenBad = 0, 0
}

func (cb *simpleBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case cbClosed, cbHalfOpen:
		return true
	default:
		return time.Since(cb.openedAt) >= cb.config.Timeout
	}
}
