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
	"sync"
	"time"
)

// RateLimiter bounds the outbound call rate of one connector instance.
//
// Despite the historical "token bucket" framing, this is a fixed-window
// counter: the full quota is restored only once an entire window has
// elapsed since the last refill; there is no partial or continuous
// replenishment. State is mutex-guarded, but the check-then-sleep sequence
// in Acquire is intentionally not atomic, so concurrent acquirers at a
// window boundary can all be admitted when the window turns over.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	tokens      int
	lastRefill  time.Time
	mu          sync.Mutex
}

// NewRateLimiter creates a limiter allowing maxRequests per window. The
// limiter starts with a full quota.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		tokens:      maxRequests,
		lastRefill:  time.Now(),
	}
}

// Acquire consumes one slot, sleeping until the current window ends when
// the quota is exhausted. It returns early with ctx.Err() if the context
// is cancelled while waiting; pass context.Background() for the
// no-cancellation behavior.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	r.mu.Lock()
	r.refillLocked(time.Now())

	if r.tokens <= 0 {
		wait := r.window - time.Since(r.lastRefill)
		r.mu.Unlock()

		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		r.mu.Lock()
		r.refillLocked(time.Now())
	}

	r.tokens--
	r.mu.Unlock()
	return nil
}

// TryAcquire consumes a slot without blocking. Returns false when the
// current window's quota is spent.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refillLocked(time.Now())
	if r.tokens <= 0 {
		return false
	}
	r.tokens--
	return true
}

// Available returns the slots remaining in the current window.
func (r *RateLimiter) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refillLocked(time.Now())
	if r.tokens < 0 {
		return 0
	}
	return r.tokens
}

// Reset restores the full quota and restarts the window.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = r.maxRequests
	r.lastRefill = time.Now()
}

// SetLimit updates the quota and window. The available count is clamped
// to the new quota.
func (r *RateLimiter) SetLimit(maxRequests int, window time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxRequests = maxRequests
	r.window = window
	if r.tokens > maxRequests {
		r.tokens = maxRequests
	}
}

// refillLocked restores the full quota when the window has elapsed.
// Callers must hold r.mu.
func (r *RateLimiter) refillLocked(now time.Time) {
	if now.Sub(r.lastRefill) >= r.window {
		r.tokens = r.maxRequests
		r.lastRefill = now
	}
}
