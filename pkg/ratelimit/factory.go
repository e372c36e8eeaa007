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

	"github.com/perchsocial/perch/pkg/config"
)

// PoliciesFromConfig builds the effective policy table: the built-in
// defaults with per-name config overrides applied. Unknown policy names and
// invalid override values fail here, at load time.
//
// Example config:
//
//	rate_limiting:
//	  enabled: true
//	  legacy_headers: true
//	  policies:
//	    post_create:
//	      window: 30m
//	      max: 5
func PoliciesFromConfig(cfg *config.RateLimitConfig) (map[string]Policy, error) {
	policies := DefaultPolicies()
	if cfg == nil {
		return policies, nil
	}

	for name, override := range cfg.Policies {
		policy, ok := policies[name]
		if !ok {
			return nil, NewValidationError("policies."+name, "unknown policy name")
		}
		if override == nil {
			continue
		}

		if override.Window != 0 {
			policy.Window = override.Window.Duration()
		}
		if override.Max != 0 {
			policy.Max = override.Max
		}
		if override.Headers != nil {
			policy.Headers = *override.Headers
		}

		// Rejection messages quote the effective ceiling and window.
		policy.Message = defaultMessage(name, policy.Window, policy.Max)
		policies[name] = policy
	}

	legacy := config.BoolValue(cfg.LegacyHeaders, false)
	for name, policy := range policies {
		policy.LegacyHeaders = legacy
		policies[name] = policy
	}

	for name, policy := range policies {
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("policy %q: %w", name, err)
		}
	}

	return policies, nil
}

// LimitersFromConfig builds one limiter per effective policy over a shared
// window store. Returns nil when rate limiting is disabled.
func LimitersFromConfig(cfg *config.RateLimitConfig, store *Store) (map[string]*Limiter, error) {
	if cfg != nil && !cfg.IsEnabled() {
		return nil, nil
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	policies, err := PoliciesFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	limiters := make(map[string]*Limiter, len(policies))
	for name, policy := range policies {
		limiter, err := NewLimiter(policy, store)
		if err != nil {
			return nil, err
		}
		limiters[name] = limiter
	}

	return limiters, nil
}

// StoreFromConfig creates the window store with the configured sweep chance.
func StoreFromConfig(cfg *config.RateLimitConfig) *Store {
	if cfg == nil || cfg.SweepChance == 0 {
		return NewStore()
	}
	return NewStoreWithSweepChance(cfg.SweepChance)
}
