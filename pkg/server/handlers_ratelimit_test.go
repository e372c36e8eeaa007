package server

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/perchsocial/perch/pkg/config"
)

// badLogin burns one admission from the auth policy without creating
// anything; the credentials never match.
func (e *testEnv) badLogin() *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "nobody",
		"password": "wrong-password",
	})
}

func TestAuthPolicyEnforced(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RateLimit.Policies["auth"] = &config.RateLimitPolicyConfig{Max: 2}
	env := newTestEnvWithConfig(t, cfg)

	// Two attempts fit the window. Both fail authentication, which still
	// counts against the policy.
	for i := 0; i < 2; i++ {
		rec := env.badLogin()
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("RateLimit-Limit"); got != "2" {
			t.Errorf("attempt %d: expected RateLimit-Limit 2, got %q", i+1, got)
		}
		wantRemaining := strconv.Itoa(1 - i)
		if got := rec.Header().Get("RateLimit-Remaining"); got != wantRemaining {
			t.Errorf("attempt %d: expected RateLimit-Remaining %s, got %q", i+1, wantRemaining, got)
		}
	}

	// The third is rejected before the handler runs.
	rec := env.badLogin()
	resp := wantError(t, rec, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED")
	if resp.Error.Message != "Too many authentication attempts. Please try again later." {
		t.Errorf("unexpected message %q", resp.Error.Message)
	}

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 || retryAfter > 60 {
		t.Errorf("expected Retry-After within the minute window, got %q", rec.Header().Get("Retry-After"))
	}
	if got := rec.Header().Get("RateLimit-Remaining"); got != "0" {
		t.Errorf("expected RateLimit-Remaining 0 on rejection, got %q", got)
	}

	// Register shares the auth policy and the same address budget.
	rec = env.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": "late_arrival",
		"email":    "late@example.com",
		"password": "sturdy-password",
	})
	wantError(t, rec, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED")

	// A different source address has its own budget.
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		strings.NewReader(`{"username":"nobody","password":"wrong-password"}`))
	req.RemoteAddr = "198.51.100.9:4711"
	req.Header.Set("Content-Type", "application/json")
	rec2 := httptest.NewRecorder()
	env.handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusUnauthorized {
		t.Errorf("expected an unrelated address to be admitted, got %d", rec2.Code)
	}
}

func TestLegacyHeadersOptIn(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RateLimit.LegacyHeaders = config.BoolPtr(true)
	env := newTestEnvWithConfig(t, cfg)

	rec := env.badLogin()
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "1000" {
		t.Errorf("expected X-RateLimit-Limit 1000, got %q", got)
	}
	if got := rec.Header().Get("RateLimit-Limit"); got != "1000" {
		t.Errorf("expected the standard family alongside legacy, got %q", got)
	}
}

func TestRateLimitAdminStatusAndReset(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RateLimit.Policies["auth"] = &config.RateLimitPolicyConfig{Max: 2}
	env := newTestEnvWithConfig(t, cfg)
	_, adminToken := env.createAdmin("operator")

	for i := 0; i < 3; i++ {
		env.badLogin()
	}

	// httptest requests arrive from 192.0.2.1, so that is the window key.
	const key = "auth:addr:192.0.2.1"

	rec := env.do(http.MethodGet, "/v1/admin/ratelimit/"+key, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from status, got %d (%s)", rec.Code, rec.Body.String())
	}
	var status struct {
		Key     string    `json:"key"`
		Count   int       `json:"count"`
		ResetAt time.Time `json:"reset_at"`
	}
	decodeData(t, rec, &status)
	if status.Key != key {
		t.Errorf("expected key %q, got %q", key, status.Key)
	}
	// Two admissions; the rejected third never incremented.
	if status.Count != 2 {
		t.Errorf("expected count 2, got %d", status.Count)
	}
	if !status.ResetAt.After(time.Now()) {
		t.Errorf("expected a live window, reset_at %v", status.ResetAt)
	}

	// Resetting the window restores service for the caller.
	rec = env.do(http.MethodDelete, "/v1/admin/ratelimit/"+key, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from reset, got %d", rec.Code)
	}
	if rec = env.badLogin(); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected the next attempt to reach the handler, got %d", rec.Code)
	}

	rec = env.do(http.MethodGet, "/v1/admin/ratelimit/api:user:unknown", adminToken, nil)
	resp := wantError(t, rec, http.StatusNotFound, "NOT_FOUND")
	if resp.Error.Message != "No active window for key" {
		t.Errorf("unexpected message %q", resp.Error.Message)
	}
}

func TestRateLimitResetAll(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RateLimit.Policies["auth"] = &config.RateLimitPolicyConfig{Max: 1}
	env := newTestEnvWithConfig(t, cfg)
	_, adminToken := env.createAdmin("operator")

	env.badLogin()
	if rec := env.badLogin(); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected exhaustion, got %d", rec.Code)
	}

	rec := env.do(http.MethodDelete, "/v1/admin/ratelimit", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from reset-all, got %d", rec.Code)
	}

	if rec = env.badLogin(); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected a fresh budget after reset-all, got %d", rec.Code)
	}
}

func TestRateLimitAdminRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	regular := env.register("regular")

	rec := env.do(http.MethodGet, "/v1/admin/ratelimit/some:key", regular.Token, nil)
	wantError(t, rec, http.StatusForbidden, "FORBIDDEN")

	rec = env.do(http.MethodDelete, "/v1/admin/ratelimit", "", nil)
	wantError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestRateLimitingDisabled(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RateLimit.Enabled = config.BoolPtr(false)
	env := newTestEnvWithConfig(t, cfg)
	_, adminToken := env.createAdmin("operator")

	// No budget, no headers.
	for i := 0; i < 10; i++ {
		rec := env.badLogin()
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("RateLimit-Limit"); got != "" {
			t.Errorf("expected no rate limit headers when disabled, got %q", got)
		}
	}

	// The admin surface reports the feature as off.
	rec := env.do(http.MethodGet, "/v1/admin/ratelimit/auth:addr:192.0.2.1", adminToken, nil)
	resp := wantError(t, rec, http.StatusNotFound, "NOT_FOUND")
	if resp.Error.Message != "Rate limiting is disabled" {
		t.Errorf("unexpected message %q", resp.Error.Message)
	}
}

// A rejection by the narrow per-route policy must not consume from the
// broad api budget stacked after it.
func TestNarrowPolicyLeavesAPIBudgetUncharged(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RateLimit.Policies["post_create"] = &config.RateLimitPolicyConfig{Max: 1}
	env := newTestEnvWithConfig(t, cfg)
	session := env.register("writer")

	env.createPost(session.Token, "first")

	rec := env.do(http.MethodPost, "/v1/posts", session.Token, map[string]string{"body": "second"})
	resp := wantError(t, rec, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED")
	if resp.Error.Message != "Post creation limit reached. You can create 1 posts per hour." {
		t.Errorf("unexpected message %q", resp.Error.Message)
	}

	now := time.Now()
	if entry, ok := env.rlAdmin.StatusOf("post_create:user:"+session.User.ID, now); !ok || entry.Count != 1 {
		t.Errorf("expected post_create count 1, got %+v (live %v)", entry, ok)
	}
	if entry, ok := env.rlAdmin.StatusOf("api:user:"+session.User.ID, now); !ok || entry.Count != 1 {
		t.Errorf("expected api count 1 after a narrow rejection, got %+v (live %v)", entry, ok)
	}
}

// Anonymous reads fall back to per-address keys; authenticated callers get
// their own identity-keyed budget.
func TestAnonymousFallsBackToAddressBudget(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RateLimit.Policies["api"] = &config.RateLimitPolicyConfig{Max: 1}
	// Leave room on the auth policy for the register call.
	env := newTestEnvWithConfig(t, cfg)
	session := env.register("member")

	// First anonymous read consumes the address budget.
	rec := env.do(http.MethodGet, "/v1/users/member", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first anonymous read to pass, got %d", rec.Code)
	}
	rec = env.do(http.MethodGet, "/v1/users/member", "", nil)
	wantError(t, rec, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED")

	// The authenticated caller is keyed by identity and unaffected.
	rec = env.do(http.MethodGet, "/v1/users/member", session.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the authenticated read to pass, got %d (%s)", rec.Code, rec.Body.String())
	}
}
