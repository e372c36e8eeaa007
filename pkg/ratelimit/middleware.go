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
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// CallerFunc builds the rate-limit caller for an HTTP request.
type CallerFunc func(r *http.Request) Caller

// DefaultCallerFunc derives the caller from the network request alone.
// Wire a custom CallerFunc to attach the authenticated identity.
func DefaultCallerFunc(r *http.Request) Caller {
	return Caller{RemoteAddr: ClientIP(r)}
}

// ClientIP resolves the caller's IP address, preferring the first
// X-Forwarded-For hop over the socket address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// MiddlewareConfig configures the rate limiting middleware.
type MiddlewareConfig struct {
	// Limiter is the limiter to gate requests through. A nil limiter makes
	// the middleware a no-op, so disabled rate limiting needs no branching
	// at call sites.
	Limiter *Limiter

	// CallerFunc builds the caller from the request.
	// If nil, DefaultCallerFunc is used.
	CallerFunc CallerFunc

	// OnLimited is called when a request is rejected.
	// If nil, a structured 429 JSON response is sent.
	OnLimited func(w http.ResponseWriter, r *http.Request, policy Policy, d Decision)

	// OnDecision observes every decision, admitted or rejected. Optional.
	OnDecision func(r *http.Request, d Decision)
}

// Middleware creates an HTTP middleware that gates requests through the
// configured limiter. Headers are emitted on admissions and rejections per
// the policy's header flags; rejections additionally set Retry-After.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	if cfg.CallerFunc == nil {
		cfg.CallerFunc = DefaultCallerFunc
	}
	if cfg.OnLimited == nil {
		cfg.OnLimited = defaultOnLimited
	}

	policy := cfg.Limiter.Policy()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := cfg.Limiter.Allow(cfg.CallerFunc(r))

			if cfg.OnDecision != nil {
				cfg.OnDecision(r, decision)
			}

			setRateLimitHeaders(w, policy, decision)

			// Expose the decision to downstream handlers
			ctx := context.WithValue(r.Context(), decisionContextKey{}, decision)
			r = r.WithContext(ctx)

			if !decision.Admitted {
				cfg.OnLimited(w, r, policy, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// decisionContextKey is the context key for the rate-limit decision.
type decisionContextKey struct{}

// DecisionFromContext extracts the rate-limit decision from the request
// context. Returns false if no limiter ran for this request.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(Decision)
	return d, ok
}

// defaultOnLimited sends the structured 429 response.
func defaultOnLimited(w http.ResponseWriter, r *http.Request, policy Policy, d Decision) {
	w.Header().Set("Content-Type", "application/json")
	if d.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
	}
	w.WriteHeader(http.StatusTooManyRequests)

	response := map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"code":       "RATE_LIMIT_EXCEEDED",
			"message":    policy.Message,
			"retryAfter": fmt.Sprintf("%d seconds", d.RetryAfter),
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// setRateLimitHeaders emits the standard and legacy header families per the
// policy's flags. Fail-open decisions carry no window, so no headers.
func setRateLimitHeaders(w http.ResponseWriter, policy Policy, d Decision) {
	if d.ResetAt.IsZero() {
		return
	}

	limit := strconv.Itoa(d.Limit)
	remaining := strconv.Itoa(d.Remaining)
	reset := strconv.FormatInt(d.ResetAt.Unix(), 10)

	if policy.Headers {
		w.Header().Set("RateLimit-Limit", limit)
		w.Header().Set("RateLimit-Remaining", remaining)
		w.Header().Set("RateLimit-Reset", reset)
	}
	if policy.LegacyHeaders {
		w.Header().Set("X-RateLimit-Limit", limit)
		w.Header().Set("X-RateLimit-Remaining", remaining)
		w.Header().Set("X-RateLimit-Reset", reset)
	}
}
