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

package config

import "fmt"

// RateLimitConfig defines rate limiting configuration.
//
// Limiting is enabled by default with a built-in policy table; the policies
// map overrides window/ceiling/header emission per policy name.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,default=true"`

	// LegacyHeaders additionally emits X-RateLimit-* headers alongside the
	// standard RateLimit-* family.
	LegacyHeaders *bool `yaml:"legacy_headers,omitempty" json:"legacy_headers,omitempty" jsonschema:"title=Legacy Headers,default=false"`

	// SweepChance is the probability (0..1) that a store access triggers a
	// sweep of expired entries.
	SweepChance float64 `yaml:"sweep_chance,omitempty" json:"sweep_chance,omitempty" jsonschema:"title=Sweep Chance,minimum=0,maximum=1"`

	// Policies overrides built-in policies by name (auth, post_create,
	// follow, media_upload, password_reset, api).
	Policies map[string]*RateLimitPolicyConfig `yaml:"policies,omitempty" json:"policies,omitempty" jsonschema:"title=Policy Overrides"`
}

// RateLimitPolicyConfig overrides a single named policy.
type RateLimitPolicyConfig struct {
	// Window is the fixed window length.
	Window Duration `yaml:"window,omitempty" json:"window,omitempty" jsonschema:"title=Window"`

	// Max is the admission ceiling per window.
	Max int `yaml:"max,omitempty" json:"max,omitempty" jsonschema:"title=Max,minimum=1"`

	// Headers controls RateLimit-* header emission for this policy.
	Headers *bool `yaml:"headers,omitempty" json:"headers,omitempty" jsonschema:"title=Headers"`
}

// IsEnabled returns true if rate limiting is enabled.
func (c *RateLimitConfig) IsEnabled() bool {
	return BoolValue(c.Enabled, true)
}

// SetDefaults sets default values for RateLimitConfig.
func (c *RateLimitConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.LegacyHeaders == nil {
		c.LegacyHeaders = BoolPtr(false)
	}
	if c.SweepChance == 0 {
		c.SweepChance = 0.01
	}
}

// Validate validates the RateLimitConfig.
func (c *RateLimitConfig) Validate() error {
	if c.SweepChance < 0 || c.SweepChance > 1 {
		return fmt.Errorf("sweep_chance must be between 0 and 1, got %g", c.SweepChance)
	}

	for name, policy := range c.Policies {
		if policy == nil {
			continue
		}
		if policy.Window < 0 {
			return fmt.Errorf("policies.%s.window must be positive", name)
		}
		if policy.Max < 0 {
			return fmt.Errorf("policies.%s.max must be positive", name)
		}
	}

	return nil
}
