package ratelimit

import (
	"fmt"
	"log/slog"
	"time"
)

// Decision is the outcome of one admission evaluation.
type Decision struct {
	// Admitted reports whether the request may proceed.
	Admitted bool `json:"admitted"`

	// Limit is the policy ceiling for the window.
	Limit int `json:"limit"`

	// Remaining is the quota left in the current window; never negative.
	Remaining int `json:"remaining"`

	// ResetAt is when the current window expires. Zero on fail-open
	// admissions, where no window was consulted.
	ResetAt time.Time `json:"reset_at"`

	// RetryAfter is the whole seconds until retrying is worthwhile.
	// Set on rejections; strictly positive while the window is active.
	RetryAfter int `json:"retry_after,omitempty"`

	// Key is the store key the decision was evaluated under, scoped by
	// policy name. Feed it to Admin.ResetOne to clear the window.
	Key string `json:"key"`
}

// Limiter gates requests against a single policy over a shared window
// store. It is safe for concurrent use.
//
// By contract Allow never returns an error and never panics outward:
// internal failures are logged and the request is admitted.
type Limiter struct {
	policy Policy
	store  *Store
	clock  func() time.Time
}

// NewLimiter creates a limiter for the given policy. The policy is
// validated eagerly; limiters are only built from valid policies.
func NewLimiter(policy Policy, store *Store) (*Limiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy %q: %w", policy.Name, err)
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &Limiter{
		policy: policy,
		store:  store,
		clock:  time.Now,
	}, nil
}

// Policy returns the limiter's policy.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// Allow evaluates one request under the fixed-window algorithm:
//
//  1. Derive the partition key for the caller and scope it by policy name,
//     so policies sharing one store keep independent budgets.
//  2. Fetch the live window entry, starting a fresh window if the previous
//     one expired.
//  3. Reject without incrementing when the count has reached the ceiling;
//     otherwise increment and admit.
//
// The check and the increment are two separate store operations, so two
// concurrent requests for one key can both observe the same count before
// either increments. That over-admission window is accepted, not a bug.
func (l *Limiter) Allow(caller Caller) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Rate limit evaluation panicked, admitting request",
				"policy", l.policy.Name, "panic", r)
			decision = l.failOpen()
		}
	}()

	now := l.clock()

	key, err := l.policy.Strategy.Key(caller)
	if err != nil {
		slog.Error("Rate limit key derivation failed, admitting request",
			"policy", l.policy.Name, "error", err)
		return l.failOpen()
	}
	key = l.policy.Name + ":" + key

	entry := l.store.GetOrCreate(key, now, l.policy.Window)

	if entry.Count >= l.policy.Max {
		return Decision{
			Admitted:   false,
			Limit:      l.policy.Max,
			Remaining:  0,
			ResetAt:    entry.ResetAt,
			RetryAfter: retryAfterSeconds(entry.ResetAt, now),
			Key:        key,
		}
	}

	l.store.Increment(key)

	remaining := l.policy.Max - (entry.Count + 1)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Admitted:  true,
		Limit:     l.policy.Max,
		Remaining: remaining,
		ResetAt:   entry.ResetAt,
		Key:       key,
	}
}

// failOpen is the admit-everything decision used when evaluation itself
// fails. ResetAt stays zero so header emission is skipped.
func (l *Limiter) failOpen() Decision {
	return Decision{
		Admitted:  true,
		Limit:     l.policy.Max,
		Remaining: l.policy.Max,
	}
}

// retryAfterSeconds returns ceil((resetAt - now) / 1s): the whole seconds
// until the window expires, at least 1 while the window is active.
func retryAfterSeconds(resetAt, now time.Time) int {
	remaining := resetAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}
