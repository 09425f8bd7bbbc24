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
	"testing"
	"time"
)

func TestRateLimiterStartsFull(t *testing.T) {
	limiter := NewRateLimiter(3, time.Second)
	if got := limiter.Available(); got != 3 {
		t.Errorf("Available() = %d, want 3", got)
	}
}

func TestRateLimiterImmediateAcquires(t *testing.T) {
	limiter := NewRateLimiter(3, time.Second)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d error = %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first 3 acquires took %v, expected no waiting", elapsed)
	}
	if got := limiter.Available(); got != 0 {
		t.Errorf("Available() = %d, want 0", got)
	}
}

func TestRateLimiterBlocksUntilWindowEnds(t *testing.T) {
	window := 200 * time.Millisecond
	limiter := NewRateLimiter(2, window)
	ctx := context.Background()

	_ = limiter.Acquire(ctx)
	_ = limiter.Acquire(ctx)

	start := time.Now()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire error = %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < window/2 {
		t.Errorf("third acquire returned after %v, expected to wait close to %v", elapsed, window)
	}
}

func TestRateLimiterFullQuotaAfterWindow(t *testing.T) {
	window := 100 * time.Millisecond
	limiter := NewRateLimiter(3, window)

	for i := 0; i < 3; i++ {
		if !limiter.TryAcquire() {
			t.Fatalf("TryAcquire %d = false, want true", i)
		}
	}
	if limiter.TryAcquire() {
		t.Fatal("TryAcquire should fail with spent quota")
	}

	time.Sleep(window + 20*time.Millisecond)

	// The whole quota comes back at once, not one slot at a time.
	if got := limiter.Available(); got != 3 {
		t.Errorf("Available() after window = %d, want 3", got)
	}
}

func TestRateLimiterAcquireContextCancellation(t *testing.T) {
	limiter := NewRateLimiter(1, 10*time.Second)
	_ = limiter.Acquire(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := limiter.Acquire(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Acquire() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled acquire took %v, expected prompt return", elapsed)
	}
}

func TestRateLimiterReset(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	_ = limiter.TryAcquire()
	_ = limiter.TryAcquire()

	limiter.Reset()
	if got := limiter.Available(); got != 2 {
		t.Errorf("Available() after Reset = %d, want 2", got)
	}
}

func TestRateLimiterSetLimit(t *testing.T) {
	limiter := NewRateLimiter(5, time.Minute)

	limiter.SetLimit(2, time.Minute)
	if got := limiter.Available(); got != 2 {
		t.Errorf("Available() after shrinking = %d, want 2", got)
	}

	limiter.SetLimit(10, time.Minute)
	// Growing the quota does not mint new slots mid-window.
	if got := limiter.Available(); got != 2 {
		t.Errorf("Available() after growing = %d, want 2", got)
	}
}
