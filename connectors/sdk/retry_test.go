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
	"testing"
	"time"
)

// fastPolicy keeps test runtime negligible.
func fastPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Factor:       2.0,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(3), func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q, want ok", result)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(3), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if result != 42 {
		t.Errorf("result = %d, want 42", result)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustionReturnsOriginalError(t *testing.T) {
	sentinel := errors.New("provider down")
	calls := 0

	_, err := Retry(context.Background(), fastPolicy(2), func() (string, error) {
		calls++
		return "", fmt.Errorf("attempt %d: %w", calls, sentinel)
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
	// The final attempt's error comes back unchanged, with no SDK wrapper.
	if !errors.Is(err, sentinel) {
		t.Errorf("error = %v, want final attempt error", err)
	}
	if err.Error() != "attempt 3: provider down" {
		t.Errorf("error = %q, want the last attempt's message verbatim", err.Error())
	}
}

func TestRetryTwoFailuresThenSuccess(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func() (struct{}, error) {
		calls++
		if calls <= 2 {
			return struct{}{}, errors.New("flaky")
		}
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryIfStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad credentials")
	calls := 0

	_, err := Retry(context.Background(), &RetryPolicy{
		MaxRetries:   5,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Factor:       2.0,
		RetryIf:      func(err error) bool { return !errors.Is(err, permanent) },
	}, func() (string, error) {
		calls++
		return "", permanent
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries on permanent errors)", calls)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("error = %v, want the permanent error", err)
	}
}

func TestRetryNilRetryIfRetriesEverything(t *testing.T) {
	calls := 0
	_, _ = Retry(context.Background(), fastPolicy(2), func() (string, error) {
		calls++
		return "", errors.New("any failure")
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (nil RetryIf retries every failure)", calls)
	}
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := Retry(ctx, &RetryPolicy{
		MaxRetries:   5,
		InitialDelay: 10 * time.Second,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
	}, func() (string, error) {
		calls++
		cancel()
		return "", errors.New("fail")
	})

	if err != context.Canceled {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryNilPolicyUsesDefault(t *testing.T) {
	result, err := Retry(context.Background(), nil, func() (string, error) {
		return "ok", nil
	})
	if err != nil || result != "ok" {
		t.Errorf("Retry() = (%q, %v), want (ok, nil)", result, err)
	}
}

func TestRetryVoid(t *testing.T) {
	calls := 0
	err := RetryVoid(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 2 {
			return errors.New("once")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryVoid() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestBackoffDelay(t *testing.T) {
	policy := &RetryPolicy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Factor:       2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second}, // clamped
		{10, time.Second},
	}

	for _, tt := range tests {
		if got := backoffDelay(policy, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffDelayJitterRange(t *testing.T) {
	policy := &RetryPolicy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Factor:       2.0,
		Jitter:       true,
	}

	base := 100 * time.Millisecond
	for i := 0; i < 200; i++ {
		got := backoffDelay(policy, 0)
		if got < base/2 || got > base {
			t.Fatalf("jittered delay %v outside [%v, %v]", got, base/2, base)
		}
	}
}

func TestTransientErrorCondition(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limited", errors.New("429 too many requests"), true},
		{"service unavailable", errors.New("503 service unavailable"), true},
		{"permanent", errors.New("invalid API key"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TransientErrorCondition(tt.err); got != tt.want {
				t.Errorf("TransientErrorCondition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)
	ctx := context.Background()
	failing := func() error { return errors.New("fail") }

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, failing)
	}
	if cb.State() != "open" {
		t.Fatalf("State() = %q, want open", cb.State())
	}

	err := cb.Execute(ctx, func() error { return nil })
	var openErr *CircuitBreakerOpenError
	if !errors.As(err, &openErr) {
		t.Errorf("error = %v, want *CircuitBreakerOpenError", err)
	}
}

func TestCircuitBreakerRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errors.New("fail") })
	if cb.State() != "open" {
		t.Fatalf("State() = %q, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	// Half-open probes succeed until the circuit closes again.
	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, func() error { return nil }); err != nil {
			t.Fatalf("Execute %d error = %v", i, err)
		}
	}
	if cb.State() != "closed" {
		t.Errorf("State() = %q, want closed", cb.State())
	}
}
