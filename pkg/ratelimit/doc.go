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

// Package ratelimit provides fixed-window request rate limiting for Perch.
//
// Features:
//   - Fixed-window counters with lazy window rollover
//   - Pluggable key derivation (per-address, per-identity, per-identity-and-operation)
//   - A built-in policy table for endpoint classes (auth, posts, follows,
//     uploads, password resets, general API traffic)
//   - Fail-open evaluation: internal failures admit the request and log
//   - Standard RateLimit-* headers, optional legacy X-RateLimit-* headers
//   - Opportunistic sweeping of expired entries, no background goroutine
//
// # Basic Usage
//
//	store := ratelimit.NewStore()
//	limiter, err := ratelimit.NewLimiter(ratelimit.MustPolicy("api"), store)
//
//	decision := limiter.Allow(ratelimit.Caller{Identity: "u1", RemoteAddr: "10.0.0.1"})
//	if !decision.Admitted {
//	    // reject with 429, Retry-After: decision.RetryAfter seconds
//	}
//
// # HTTP Integration
//
//	mux.Use(ratelimit.Middleware(ratelimit.MiddlewareConfig{
//	    Limiter: limiter,
//	}))
//
// # Configuration
//
//	rate_limiting:
//	  enabled: true
//	  legacy_headers: false
//	  sweep_chance: 0.01
//	  policies:
//	    post_create:
//	      window: 1h
//	      max: 10
//
// # Semantics
//
// Fixed-window counting resets at window boundaries rather than sliding, so
// a client can burst up to twice a policy's ceiling across a boundary. The
// check and the increment are two separate store operations; concurrent
// requests for one key can both observe the same count before either
// increments. Neither is treated as a bug.
//
// All limiters share one store; keys are scoped by policy name so each
// policy keeps an independent budget per caller.
//
// Counters live in process memory only. Restarts clear them, and multiple
// instances each enforce their own budget.
package ratelimit
