// Copyright 2025 The Perch Authors
//
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

package ratelimit

import (
	"fmt"
	"time"
)

// Built-in policy names.
const (
	PolicyAuth          = "auth"
	PolicyPostCreate    = "post_create"
	PolicyFollow        = "follow"
	PolicyMediaUpload   = "media_upload"
	PolicyPasswordReset = "password_reset"
	PolicyAPI           = "api"
)

// Policy is a named, immutable rate-limit configuration. Policies are
// constructed once at startup; request paths only read them.
type Policy struct {
	// Name identifies the policy in config, logs, and metrics.
	Name string

	// Window is the length of the fixed window.
	Window time.Duration

	// Max is the admission ceiling per window.
	Max int

	// Strategy selects how partition keys are derived.
	Strategy Strategy

	// Headers controls emission of the standard RateLimit-* headers.
	Headers bool

	// LegacyHeaders additionally emits X-RateLimit-* headers.
	LegacyHeaders bool

	// Message is the human-readable rejection message for this policy.
	Message string
}

// NewPolicy creates a validated policy with headers enabled and a generic
// rejection message.
func NewPolicy(name string, window time.Duration, max int, strategy Strategy) (Policy, error) {
	p := Policy{
		Name:     name,
		Window:   window,
		Max:      max,
		Strategy: strategy,
		Headers:  true,
		Message:  "Too many requests. Please try again later.",
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks the policy fields. Limiters are only built from valid
// policies, so misconfiguration fails at startup rather than per request.
func (p Policy) Validate() error {
	if p.Name == "" {
		return NewValidationError("name", "policy name is required")
	}
	if p.Window <= 0 {
		return NewValidationError("window", "window must be positive")
	}
	if p.Max <= 0 {
		return NewValidationError("max", "max must be positive")
	}
	if !p.Strategy.Valid() {
		return NewValidationError("strategy", fmt.Sprintf("invalid key strategy %q", p.Strategy.Kind))
	}
	return nil
}

// DefaultPolicies returns the built-in policy table:
//
//	auth            1 minute    5   by address
//	post_create     1 hour      10  by identity
//	follow          1 hour      20  by identity
//	media_upload    1 hour      20  by identity
//	password_reset  1 hour      3   by address
//	api             15 minutes  100 by identity
//
// The returned map is a fresh copy; callers may adjust entries before
// building limiters.
func DefaultPolicies() map[string]Policy {
	table := map[string]Policy{
		PolicyAuth: {
			Name:     PolicyAuth,
			Window:   time.Minute,
			Max:      5,
			Strategy: ByAddress(),
		},
		PolicyPostCreate: {
			Name:     PolicyPostCreate,
			Window:   time.Hour,
			Max:      10,
			Strategy: ByIdentity(),
		},
		PolicyFollow: {
			Name:     PolicyFollow,
			Window:   time.Hour,
			Max:      20,
			Strategy: ByIdentity(),
		},
		PolicyMediaUpload: {
			Name:     PolicyMediaUpload,
			Window:   time.Hour,
			Max:      20,
			Strategy: ByIdentity(),
		},
		PolicyPasswordReset: {
			Name:     PolicyPasswordReset,
			Window:   time.Hour,
			Max:      3,
			Strategy: ByAddress(),
		},
		PolicyAPI: {
			Name:     PolicyAPI,
			Window:   15 * time.Minute,
			Max:      100,
			Strategy: ByIdentity(),
		},
	}

	for name, p := range table {
		p.Headers = true
		p.Message = defaultMessage(name, p.Window, p.Max)
		table[name] = p
	}

	return table
}

// MustPolicy returns the built-in policy by name, panicking on an unknown
// name. Intended for wiring code where the name is a constant.
func MustPolicy(name string) Policy {
	p, ok := DefaultPolicies()[name]
	if !ok {
		panic(fmt.Sprintf("ratelimit: unknown policy %q", name))
	}
	return p
}

// defaultMessage builds the rejection message for a built-in policy,
// reflecting the effective window and ceiling.
func defaultMessage(name string, window time.Duration, max int) string {
	switch name {
	case PolicyAuth:
		return "Too many authentication attempts. Please try again later."
	case PolicyPostCreate:
		return fmt.Sprintf("Post creation limit reached. You can create %d posts per %s.", max, humanWindow(window))
	case PolicyFollow:
		return fmt.Sprintf("Follow limit reached. You can perform %d follow operations per %s.", max, humanWindow(window))
	case PolicyMediaUpload:
		return fmt.Sprintf("Upload limit reached. You can upload %d files per %s.", max, humanWindow(window))
	case PolicyPasswordReset:
		return "Too many password reset requests. Please try again later."
	case PolicyAPI:
		return "Too many requests. Please slow down."
	default:
		return "Too many requests. Please try again later."
	}
}

// humanWindow renders a window duration for rejection messages.
func humanWindow(d time.Duration) string {
	switch {
	case d == time.Minute:
		return "minute"
	case d == time.Hour:
		return "hour"
	case d > time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d > time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
