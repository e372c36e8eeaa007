package ratelimit

import (
	"testing"
	"time"
)

func testLimiter(t *testing.T, window time.Duration, max int, strategy Strategy) (*Limiter, *Store) {
	t.Helper()

	policy, err := NewPolicy("test", window, max, strategy)
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}

	store := NewStoreWithSweepChance(0)
	limiter, err := NewLimiter(policy, store)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	return limiter, store
}

func TestLimiter_SequentialAdmissionsThenRejection(t *testing.T) {
	limiter, _ := testLimiter(t, time.Minute, 5, ByAddress())

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter.clock = func() time.Time { return start }

	caller := Caller{RemoteAddr: "ip-A"}

	// 5 sequential requests are admitted with remaining 4,3,2,1,0
	for i, want := range []int{4, 3, 2, 1, 0} {
		d := limiter.Allow(caller)
		if !d.Admitted {
			t.Fatalf("expected request %d to be admitted", i+1)
		}
		if d.Remaining != want {
			t.Errorf("request %d: expected remaining %d, got %d", i+1, want, d.Remaining)
		}
		if d.Limit != 5 {
			t.Errorf("request %d: expected limit 5, got %d", i+1, d.Limit)
		}
	}

	// 6th request is rejected with retryAfter = full window
	d := limiter.Allow(caller)
	if d.Admitted {
		t.Fatal("expected 6th request to be rejected")
	}
	if d.Remaining != 0 {
		t.Errorf("expected remaining 0 on rejection, got %d", d.Remaining)
	}
	if d.RetryAfter != 60 {
		t.Errorf("expected retryAfter 60, got %d", d.RetryAfter)
	}
	if !d.ResetAt.Equal(start.Add(time.Minute)) {
		t.Errorf("expected resetAt %v, got %v", start.Add(time.Minute), d.ResetAt)
	}
}

func TestLimiter_IndependentKeys(t *testing.T) {
	limiter, _ := testLimiter(t, time.Hour, 10, ByIdentity())

	u1 := Caller{Identity: "u1", RemoteAddr: "10.0.0.1"}
	u2 := Caller{Identity: "u2", RemoteAddr: "10.0.0.2"}

	// u1 exhausts its budget
	for i := 0; i < 10; i++ {
		d := limiter.Allow(u1)
		if !d.Admitted {
			t.Fatalf("expected u1 request %d to be admitted", i+1)
		}
	}
	if d := limiter.Allow(u1); d.Admitted {
		t.Fatal("expected u1 to be rejected after exhausting budget")
	}

	// u2 is unaffected
	d := limiter.Allow(u2)
	if !d.Admitted {
		t.Fatal("expected u2 to be admitted with an independent counter")
	}
	if d.Remaining != 9 {
		t.Errorf("expected u2 remaining 9, got %d", d.Remaining)
	}
}

func TestLimiter_WindowExpiryResetsCounter(t *testing.T) {
	limiter, _ := testLimiter(t, time.Minute, 5, ByAddress())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter.clock = func() time.Time { return now }

	caller := Caller{RemoteAddr: "ip-A"}

	for i := 0; i < 5; i++ {
		if d := limiter.Allow(caller); !d.Admitted {
			t.Fatalf("expected request %d to be admitted", i+1)
		}
	}
	if d := limiter.Allow(caller); d.Admitted {
		t.Fatal("expected rejection after exhausting the window")
	}

	// 61 seconds later the window has rolled over
	now = now.Add(61 * time.Second)

	d := limiter.Allow(caller)
	if !d.Admitted {
		t.Fatal("expected admission after window expiry")
	}
	if d.Remaining != 4 {
		t.Errorf("expected remaining 4 in the fresh window, got %d", d.Remaining)
	}
}

func TestLimiter_ResetOneRestoresBudget(t *testing.T) {
	limiter, store := testLimiter(t, time.Minute, 5, ByAddress())

	caller := Caller{RemoteAddr: "ip-A"}

	for i := 0; i < 5; i++ {
		limiter.Allow(caller)
	}
	if d := limiter.Allow(caller); d.Admitted {
		t.Fatal("expected rejection after exhausting the window")
	}

	admin := NewAdmin(store)
	admin.ResetOne("test:addr:ip-A")

	d := limiter.Allow(caller)
	if !d.Admitted {
		t.Fatal("expected admission after reset")
	}
	if d.Remaining != 4 {
		t.Errorf("expected remaining 4 after reset, got %d", d.Remaining)
	}

	// Resetting an absent key is a no-op
	admin.ResetOne("test:addr:never-seen")
}

func TestLimiter_KeyDerivationFailureFailsOpen(t *testing.T) {
	// A corrupt strategy can only exist by bypassing policy validation;
	// the gate must still admit and log rather than error or panic.
	limiter := &Limiter{
		policy: Policy{
			Name:     "corrupt",
			Window:   time.Minute,
			Max:      1,
			Strategy: Strategy{Kind: "bogus"},
			Message:  "nope",
		},
		store: NewStoreWithSweepChance(0),
		clock: time.Now,
	}

	for i := 0; i < 10; i++ {
		d := limiter.Allow(Caller{RemoteAddr: "ip-A"})
		if !d.Admitted {
			t.Fatalf("expected fail-open admission on request %d", i+1)
		}
		if !d.ResetAt.IsZero() {
			t.Error("expected zero resetAt on fail-open decision")
		}
	}
}

func TestLimiter_PanicFailsOpen(t *testing.T) {
	policy, err := NewPolicy("test", time.Minute, 5, ByAddress())
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}

	// A nil store panics on first access; the recover guard must convert
	// that into an admission.
	limiter := &Limiter{policy: policy, store: nil, clock: time.Now}

	d := limiter.Allow(Caller{RemoteAddr: "ip-A"})
	if !d.Admitted {
		t.Fatal("expected fail-open admission when evaluation panics")
	}
}

func TestLimiter_RetryAfterCeiling(t *testing.T) {
	limiter, _ := testLimiter(t, time.Minute, 1, ByAddress())

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := start
	limiter.clock = func() time.Time { return now }

	caller := Caller{RemoteAddr: "ip-A"}
	limiter.Allow(caller)

	// 30.2s into the window: 29.8s remain, ceil to 30
	now = start.Add(30*time.Second + 200*time.Millisecond)
	d := limiter.Allow(caller)
	if d.Admitted {
		t.Fatal("expected rejection")
	}
	if d.RetryAfter != 30 {
		t.Errorf("expected retryAfter 30, got %d", d.RetryAfter)
	}

	// 59.999s into the window: 1ms remains, still strictly positive
	now = start.Add(59*time.Second + 999*time.Millisecond)
	d = limiter.Allow(caller)
	if d.Admitted {
		t.Fatal("expected rejection")
	}
	if d.RetryAfter != 1 {
		t.Errorf("expected retryAfter 1, got %d", d.RetryAfter)
	}
}

func TestLimiter_RemainingNeverNegative(t *testing.T) {
	limiter, _ := testLimiter(t, time.Minute, 3, ByAddress())

	caller := Caller{RemoteAddr: "ip-A"}
	for i := 0; i < 10; i++ {
		d := limiter.Allow(caller)
		if d.Remaining < 0 {
			t.Fatalf("remaining went negative on request %d: %d", i+1, d.Remaining)
		}
	}
}

func TestNewLimiter_RejectsInvalidPolicy(t *testing.T) {
	store := NewStore()

	tests := []struct {
		name   string
		policy Policy
	}{
		{"zero window", Policy{Name: "p", Window: 0, Max: 5, Strategy: ByAddress()}},
		{"negative window", Policy{Name: "p", Window: -time.Minute, Max: 5, Strategy: ByAddress()}},
		{"zero max", Policy{Name: "p", Window: time.Minute, Max: 0, Strategy: ByAddress()}},
		{"negative max", Policy{Name: "p", Window: time.Minute, Max: -1, Strategy: ByAddress()}},
		{"missing name", Policy{Window: time.Minute, Max: 5, Strategy: ByAddress()}},
		{"invalid strategy", Policy{Name: "p", Window: time.Minute, Max: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLimiter(tt.policy, store); err == nil {
				t.Error("expected policy validation error")
			}
		})
	}
}

func TestDefaultPolicies_Table(t *testing.T) {
	policies := DefaultPolicies()

	tests := []struct {
		name     string
		window   time.Duration
		max      int
		strategy StrategyKind
	}{
		{PolicyAuth, time.Minute, 5, KindByAddress},
		{PolicyPostCreate, time.Hour, 10, KindByIdentity},
		{PolicyFollow, time.Hour, 20, KindByIdentity},
		{PolicyMediaUpload, time.Hour, 20, KindByIdentity},
		{PolicyPasswordReset, time.Hour, 3, KindByAddress},
		{PolicyAPI, 15 * time.Minute, 100, KindByIdentity},
	}

	if len(policies) != len(tests) {
		t.Errorf("expected %d policies, got %d", len(tests), len(policies))
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := policies[tt.name]
			if !ok {
				t.Fatalf("missing policy %q", tt.name)
			}
			if p.Window != tt.window {
				t.Errorf("expected window %v, got %v", tt.window, p.Window)
			}
			if p.Max != tt.max {
				t.Errorf("expected max %d, got %d", tt.max, p.Max)
			}
			if p.Strategy.Kind != tt.strategy {
				t.Errorf("expected strategy %s, got %s", tt.strategy, p.Strategy.Kind)
			}
			if !p.Headers {
				t.Error("expected headers enabled by default")
			}
			if p.Message == "" {
				t.Error("expected a rejection message")
			}
			if err := p.Validate(); err != nil {
				t.Errorf("default policy failed validation: %v", err)
			}
		})
	}
}

func TestDefaultPolicies_PostCreateMessage(t *testing.T) {
	p := MustPolicy(PolicyPostCreate)
	want := "Post creation limit reached. You can create 10 posts per hour."
	if p.Message != want {
		t.Errorf("expected %q, got %q", want, p.Message)
	}
}

func TestMustPolicy_UnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown policy name")
		}
	}()
	MustPolicy("no-such-policy")
}

func TestAdmin_StatusOf(t *testing.T) {
	limiter, store := testLimiter(t, time.Minute, 5, ByAddress())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter.clock = func() time.Time { return now }

	caller := Caller{RemoteAddr: "ip-A"}
	limiter.Allow(caller)
	limiter.Allow(caller)

	admin := NewAdmin(store)

	entry, ok := admin.StatusOf("test:addr:ip-A", now)
	if !ok {
		t.Fatal("expected a live entry")
	}
	if entry.Count != 2 {
		t.Errorf("expected count 2, got %d", entry.Count)
	}
	if !entry.ResetAt.Equal(now.Add(time.Minute)) {
		t.Errorf("expected resetAt %v, got %v", now.Add(time.Minute), entry.ResetAt)
	}

	if _, ok := admin.StatusOf("test:addr:never-seen", now); ok {
		t.Error("expected no entry for an unseen key")
	}

	// After expiry the entry is no longer reported
	if _, ok := admin.StatusOf("test:addr:ip-A", now.Add(2*time.Minute)); ok {
		t.Error("expected no live entry after expiry")
	}

	admin.ResetAll()
	if _, ok := admin.StatusOf("test:addr:ip-A", now); ok {
		t.Error("expected no entry after ResetAll")
	}
}
