// Copyright 2025 Conduit
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"
)

// RetryPolicy configures retry behavior. A policy is immutable once
// created; share one per call site.
type RetryPolicy struct {
	MaxRetries   int           // retry attempts after the first call
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // upper clamp on any delay
	Factor       float64       // backoff multiplier
	Jitter       bool          // scale each delay by a uniform value in [0.5, 1.0]

	// RetryIf limits which errors are retried. Nil retries every failure.
	RetryIf func(error) bool
}

// DefaultRetryPolicy returns the standard policy: 3 retries starting at
// 1s, doubling, clamped at 10s, with jitter.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}
}

// TransientErrorCondition returns true for errors that look transient:
// network timeouts and well-known throttling/availability messages. Use it
// as a RetryPolicy.RetryIf to avoid retrying permanent failures.
func TransientErrorCondition(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timed out",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"429",
		"503",
		"504",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// RetryFunc is the function type that can be retried.
type RetryFunc[T any] func() (T, error)

// Retry executes fn up to MaxRetries+1 times with bounded exponential
// backoff. The delay before retry i is min(InitialDelay·Factor^i, MaxDelay),
// jitter-scaled when enabled. When every attempt fails, the error from the
// final attempt is returned unchanged; callers can match it with
// errors.Is/As without unwrapping an SDK type. Context cancellation aborts
// the wait and returns ctx.Err().
func Retry[T any](ctx context.Context, policy *RetryPolicy, fn RetryFunc[T]) (T, error) {
	var zero T

	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if policy.RetryIf != nil && !policy.RetryIf(err) {
			return zero, err
		}

		if attempt >= policy.MaxRetries {
			break
		}

		delay := backoffDelay(policy, attempt)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

// RetryVoid executes a void function with retry.
func RetryVoid(ctx context.Context, policy *RetryPolicy, fn func() error) error {
	_, err := Retry(ctx, policy, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// backoffDelay computes the clamped, optionally jittered delay for the
// given attempt index.
func backoffDelay(policy *RetryPolicy, attempt int) time.Duration {
	delay := float64(policy.InitialDelay) * math.Pow(policy.Factor, float64(attempt))
	if max := float64(policy.MaxDelay); delay > max || delay <= 0 {
		delay = max
	}

	if policy.Jitter {
		delay *= 0.5 + rand.Float64()*0.5
	}

	return time.Duration(delay)
}

// CircuitBreaker trips open after repeated failures so a struggling
// provider gets breathing room before the next burst of calls.
type CircuitBreaker struct {
	name            string
	maxFailures     int
	resetTimeout    time.Duration
	halfOpenMax     int
	failures        int
	state           circuitState
	lastFailureTime time.Time
	halfOpenSuccess int
	mu              sync.Mutex
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  3, // successful calls needed to close the circuit
		state:        circuitClosed,
	}
}

// Execute runs the function through the circuit breaker
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	cb.mu.Lock()

	if cb.state == circuitOpen {
		if time.Since(cb.lastFailureTime) > cb.resetTimeout {
			cb.state = circuitHalfOpen
			cb.halfOpenSuccess = 0
		} else {
			cb.mu.Unlock()
			return &CircuitBreakerOpenError{Name: cb.name}
		}
	}

	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failures++
	cb.lastFailureTime = time.Now()

	if cb.state == circuitHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = circuitOpen
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	if cb.state == circuitHalfOpen {
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.halfOpenMax {
			cb.state = circuitClosed
			cb.failures = 0
		}
	} else {
		cb.failures = 0
	}
}

// State returns the current circuit state as a string
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		return "closed"
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = circuitClosed
	cb.failures = 0
	cb.halfOpenSuccess = 0
}

// CircuitBreakerOpenError indicates the circuit is open
type CircuitBreakerOpenError struct {
	Name string
}

func (e *CircuitBreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open", e.Name)
}
