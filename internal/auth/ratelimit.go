// Package auth implements one-time-code authentication for QTHLink:
// a sliding-window failure lockout and TOTP verification safe for
// cleartext links.
package auth

import (
	"strings"
	"sync"
	"time"
)

// RateLimiter tracks failed authentication attempts per identity within
// a trailing wall-clock window. Once the threshold is reached the
// identity stays locked until enough old failures age out of the window.
// State is process-lifetime only.
type RateLimiter struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	failures  map[string][]time.Time
	now       func() time.Time
}

// NewRateLimiter creates a limiter locking an identity after threshold
// failures within window.
func NewRateLimiter(threshold int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		threshold: threshold,
		window:    window,
		failures:  make(map[string][]time.Time),
		now:       time.Now,
	}
}

// RecordFailure records a failed authentication attempt for identity.
func (rl *RateLimiter) RecordFailure(identity string) {
	identity = strings.ToUpper(identity)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.failures[identity] = append(rl.prune(identity), rl.now())
}

// IsLocked reports whether identity has reached the failure threshold
// within the trailing window.
func (rl *RateLimiter) IsLocked(identity string) bool {
	identity = strings.ToUpper(identity)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := rl.prune(identity)
	if len(recent) == 0 {
		delete(rl.failures, identity)
		return false
	}
	rl.failures[identity] = recent
	return len(recent) >= rl.threshold
}

// RecordSuccess clears the failure window for identity.
func (rl *RateLimiter) RecordSuccess(identity string) {
	identity = strings.ToUpper(identity)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.failures, identity)
}

// prune returns identity's failures still inside the window.
// Caller must hold rl.mu.
func (rl *RateLimiter) prune(identity string) []time.Time {
	cutoff := rl.now().Add(-rl.window)
	var recent []time.Time
	for _, at := range rl.failures[identity] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	return recent
}
