package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_AdmitsAndSetsHeaders(t *testing.T) {
	limiter, _ := testLimiter(t, time.Minute, 5, ByAddress())

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter.clock = func() time.Time { return start }

	handler := Middleware(MiddlewareConfig{Limiter: limiter})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/posts", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("RateLimit-Limit"); got != "5" {
		t.Errorf("expected RateLimit-Limit 5, got %q", got)
	}
	if got := rec.Header().Get("RateLimit-Remaining"); got != "4" {
		t.Errorf("expected RateLimit-Remaining 4, got %q", got)
	}
	wantReset := strconv.FormatInt(start.Add(time.Minute).Unix(), 10)
	if got := rec.Header().Get("RateLimit-Reset"); got != wantReset {
		t.Errorf("expected RateLimit-Reset %s, got %q", wantReset, got)
	}

	// Legacy family is off by default
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "" {
		t.Errorf("expected no legacy headers, got X-RateLimit-Limit %q", got)
	}
}

func TestMiddleware_LegacyHeaders(t *testing.T) {
	policy, err := NewPolicy("test", time.Minute, 5, ByAddress())
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}
	policy.LegacyHeaders = true

	limiter, err := NewLimiter(policy, NewStoreWithSweepChance(0))
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	handler := Middleware(MiddlewareConfig{Limiter: limiter})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Errorf("expected X-RateLimit-Limit 5, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Errorf("expected X-RateLimit-Remaining 4, got %q", got)
	}
	if got := rec.Header().Get("RateLimit-Limit"); got != "5" {
		t.Errorf("expected standard headers alongside legacy, got %q", got)
	}
}

func TestMiddleware_HeadersDisabled(t *testing.T) {
	policy, err := NewPolicy("test", time.Minute, 5, ByAddress())
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}
	policy.Headers = false

	limiter, err := NewLimiter(policy, NewStoreWithSweepChance(0))
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	handler := Middleware(MiddlewareConfig{Limiter: limiter})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("RateLimit-Limit"); got != "" {
		t.Errorf("expected no headers when disabled, got RateLimit-Limit %q", got)
	}
}

func TestMiddleware_RejectsWithEnvelope(t *testing.T) {
	limiter, _ := testLimiter(t, time.Minute, 1, ByAddress())

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter.clock = func() time.Time { return start }

	handler := Middleware(MiddlewareConfig{Limiter: limiter})(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/posts", nil)
		req.RemoteAddr = "10.0.0.1:54321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i == 0 {
			if rec.Code != http.StatusOK {
				t.Fatalf("expected first request to pass, got %d", rec.Code)
			}
			continue
		}

		// Second request is rejected
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != "60" {
			t.Errorf("expected Retry-After 60, got %q", got)
		}
		if got := rec.Header().Get("Content-Type"); got != "application/json" {
			t.Errorf("expected JSON content type, got %q", got)
		}
		if got := rec.Header().Get("RateLimit-Remaining"); got != "0" {
			t.Errorf("expected RateLimit-Remaining 0 on rejection, got %q", got)
		}

		var body struct {
			Success bool `json:"success"`
			Error   struct {
				Code       string `json:"code"`
				Message    string `json:"message"`
				RetryAfter string `json:"retryAfter"`
			} `json:"error"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode 429 body: %v", err)
		}
		if body.Success {
			t.Error("expected success false")
		}
		if body.Error.Code != "RATE_LIMIT_EXCEEDED" {
			t.Errorf("expected code RATE_LIMIT_EXCEEDED, got %q", body.Error.Code)
		}
		if body.Error.Message == "" {
			t.Error("expected a policy message")
		}
		if body.Error.RetryAfter != "60 seconds" {
			t.Errorf("expected retryAfter '60 seconds', got %q", body.Error.RetryAfter)
		}
	}
}

func TestMiddleware_PolicyMessageInBody(t *testing.T) {
	policy := MustPolicy(PolicyPostCreate)
	policy.Window = time.Minute // keep the test fast to reason about

	limiter, err := NewLimiter(policy, NewStoreWithSweepChance(0))
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	handler := Middleware(MiddlewareConfig{
		Limiter: limiter,
		CallerFunc: func(r *http.Request) Caller {
			return Caller{Identity: "u1"}
		},
	})(okHandler())

	var rec *httptest.ResponseRecorder
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/posts", nil)
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on 11th request, got %d", rec.Code)
	}

	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	want := "Post creation limit reached. You can create 10 posts per hour."
	if body.Error.Message != want {
		t.Errorf("expected %q, got %q", want, body.Error.Message)
	}
}

func TestMiddleware_XForwardedFor(t *testing.T) {
	limiter, _ := testLimiter(t, time.Minute, 1, ByAddress())
	handler := Middleware(MiddlewareConfig{Limiter: limiter})(okHandler())

	// Two requests from the same socket but different forwarded clients
	// get independent budgets.
	for _, client := range []string{"203.0.113.7", "203.0.113.8"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:54321"
		req.Header.Set("X-Forwarded-For", client+", 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected client %s to have its own budget, got %d", client, rec.Code)
		}
	}
}

func TestMiddleware_NilLimiterPassthrough(t *testing.T) {
	handler := Middleware(MiddlewareConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected passthrough, got %d", rec.Code)
	}
	if got := rec.Header().Get("RateLimit-Limit"); got != "" {
		t.Errorf("expected no headers from a nil limiter, got %q", got)
	}
}

func TestMiddleware_DecisionInContext(t *testing.T) {
	limiter, _ := testLimiter(t, time.Minute, 5, ByAddress())

	var seen Decision
	var ok bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, ok = DecisionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	handler := Middleware(MiddlewareConfig{Limiter: limiter})(inner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !ok {
		t.Fatal("expected a decision in the request context")
	}
	if !seen.Admitted {
		t.Error("expected an admitted decision")
	}
	if seen.Key != "test:addr:10.0.0.1" {
		t.Errorf("expected key test:addr:10.0.0.1, got %q", seen.Key)
	}
}

func TestMiddleware_CustomOnLimited(t *testing.T) {
	limiter, _ := testLimiter(t, time.Minute, 1, ByAddress())

	called := false
	handler := Middleware(MiddlewareConfig{
		Limiter: limiter,
		OnLimited: func(w http.ResponseWriter, r *http.Request, policy Policy, d Decision) {
			called = true
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	})(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:54321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i == 1 {
			if !called {
				t.Error("expected custom OnLimited to be called")
			}
			if rec.Code != http.StatusServiceUnavailable {
				t.Errorf("expected custom status, got %d", rec.Code)
			}
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		expected   string
	}{
		{"socket address", "10.0.0.1:54321", "", "10.0.0.1"},
		{"forwarded single", "10.0.0.1:54321", "203.0.113.7", "203.0.113.7"},
		{"forwarded chain", "10.0.0.1:54321", "203.0.113.7, 10.0.0.2, 10.0.0.1", "203.0.113.7"},
		{"forwarded with spaces", "10.0.0.1:54321", "  203.0.113.7  ", "203.0.113.7"},
		{"no port", "10.0.0.1", "", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := ClientIP(req); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
