// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ratelimit tracks attempt counts per identity and operation within
// a sliding window, using a rolling timestamp log for precision.
package ratelimit

import (
	"sync"
	"time"
)

// Operation names an independently rate-limited auth operation.
type Operation string

const (
	OpLogin        Operation = "login"
	OpRegister     Operation = "register"
	OpResetRequest Operation = "reset-request"
	OpResetVerify  Operation = "reset-verify"
)

const (
	// DefaultAttempts is the attempt cap per (identity, operation) pair.
	DefaultAttempts = 5
	// DefaultWindow is the sliding window length.
	DefaultWindow = 5 * time.Minute
)

// Result is the outcome of a single Allow call.
type Result struct {
	Allowed    bool
	Remaining  int           // attempts left after this call
	RetryAfter time.Duration // only set when blocked
}

type key struct {
	op       Operation
	identity string
}

// Limiter is an in-process sliding-window rate limiter. It is safe for
// concurrent use; prune, check and record happen as one unit under the lock.
type Limiter struct {
	mu       sync.Mutex
	attempts map[key][]time.Time
	cap      int
	window   time.Duration
	now      func() time.Time
}

// New creates a Limiter with the given cap and window.
func New(attempts int, window time.Duration) *Limiter {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		attempts: make(map[key][]time.Time),
		cap:      attempts,
		window:   window,
		now:      time.Now,
	}
}

// NewDefault creates a Limiter with the default cap and window.
func NewDefault() *Limiter {
	return New(DefaultAttempts, DefaultWindow)
}

// Allow records an attempt for the identity and operation if the cap has
// not been reached. When blocked, RetryAfter is the time until the oldest
// retained attempt leaves the window.
func (l *Limiter) Allow(op Operation, identity string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key{op: op, identity: identity}
	kept := l.prune(k, now)

	if len(kept) >= l.cap {
		return Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: kept[0].Add(l.window).Sub(now),
		}
	}

	l.attempts[k] = append(kept, now)
	return Result{
		Allowed:   true,
		Remaining: l.cap - len(kept) - 1,
	}
}

// Remaining returns the number of attempts left for the identity and
// operation without recording one.
func (l *Limiter) Remaining(op Operation, identity string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.prune(key{op: op, identity: identity}, l.now())
	if len(kept) >= l.cap {
		return 0
	}
	return l.cap - len(kept)
}

// Reset clears the attempt log for the identity and operation, e.g. after a
// confirmed correct reset-code verification.
func (l *Limiter) Reset(op Operation, identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.attempts, key{op: op, identity: identity})
}

// prune drops timestamps older than the window. Caller must hold the lock.
func (l *Limiter) prune(k key, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	kept := l.attempts[k][:0]
	for _, ts := range l.attempts[k] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.attempts, k)
		return nil
	}
	l.attempts[k] = kept
	return kept
}

// WithClock overrides the limiter's clock. Used in tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.now = now
	return l
}
