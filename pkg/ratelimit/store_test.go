package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestStore_GetOrCreate(t *testing.T) {
	store := NewStoreWithSweepChance(0)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	entry := store.GetOrCreate("k1", now, time.Minute)
	if entry.Count != 0 {
		t.Errorf("expected fresh entry count 0, got %d", entry.Count)
	}
	if !entry.ResetAt.Equal(now.Add(time.Minute)) {
		t.Errorf("expected resetAt %v, got %v", now.Add(time.Minute), entry.ResetAt)
	}

	store.Increment("k1")

	// Same window: entry is returned as-is
	entry = store.GetOrCreate("k1", now.Add(30*time.Second), time.Minute)
	if entry.Count != 1 {
		t.Errorf("expected count 1 within the window, got %d", entry.Count)
	}

	// Past ResetAt: a fresh entry replaces the stale one
	later := now.Add(2 * time.Minute)
	entry = store.GetOrCreate("k1", later, time.Minute)
	if entry.Count != 0 {
		t.Errorf("expected count 0 after rollover, got %d", entry.Count)
	}
	if !entry.ResetAt.Equal(later.Add(time.Minute)) {
		t.Errorf("expected resetAt %v, got %v", later.Add(time.Minute), entry.ResetAt)
	}
}

func TestStore_GetOrCreate_ExactBoundary(t *testing.T) {
	store := NewStoreWithSweepChance(0)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	store.GetOrCreate("k1", now, time.Minute)
	store.Increment("k1")

	// resetAt <= now counts as expired, so the boundary instant rolls over
	boundary := now.Add(time.Minute)
	entry := store.GetOrCreate("k1", boundary, time.Minute)
	if entry.Count != 0 {
		t.Errorf("expected rollover at the exact boundary, got count %d", entry.Count)
	}
}

func TestStore_Increment_MissingKey(t *testing.T) {
	store := NewStoreWithSweepChance(0)

	// Incrementing an absent key must not create an entry
	store.Increment("ghost")
	if store.Size() != 0 {
		t.Errorf("expected empty store, got %d entries", store.Size())
	}
}

func TestStore_RemoveAndRemoveAll(t *testing.T) {
	store := NewStoreWithSweepChance(0)
	now := time.Now()

	store.GetOrCreate("k1", now, time.Minute)
	store.GetOrCreate("k2", now, time.Minute)

	store.Remove("k1")
	if _, ok := store.Peek("k1", now); ok {
		t.Error("expected k1 to be removed")
	}
	if _, ok := store.Peek("k2", now); !ok {
		t.Error("expected k2 to survive")
	}

	// Removing an absent key is a no-op
	store.Remove("k1")

	store.RemoveAll()
	if store.Size() != 0 {
		t.Errorf("expected empty store after RemoveAll, got %d entries", store.Size())
	}
}

func TestStore_Peek(t *testing.T) {
	store := NewStoreWithSweepChance(0)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, ok := store.Peek("k1", now); ok {
		t.Error("expected no entry before first access")
	}

	store.GetOrCreate("k1", now, time.Minute)
	store.Increment("k1")

	entry, ok := store.Peek("k1", now.Add(30*time.Second))
	if !ok {
		t.Fatal("expected a live entry")
	}
	if entry.Count != 1 {
		t.Errorf("expected count 1, got %d", entry.Count)
	}

	// Peek must not mutate
	entry2, _ := store.Peek("k1", now.Add(30*time.Second))
	if entry2.Count != 1 {
		t.Errorf("expected peek to be read-only, got count %d", entry2.Count)
	}

	// Expired entries are not reported, and remain until swept
	if _, ok := store.Peek("k1", now.Add(2*time.Minute)); ok {
		t.Error("expected no live entry after expiry")
	}
	if store.Size() != 1 {
		t.Errorf("expected the stale entry to remain in the store, got size %d", store.Size())
	}
}

func TestStore_SweepRemovesExpired(t *testing.T) {
	// Chance 1 sweeps on every access
	store := NewStoreWithSweepChance(1)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	store.GetOrCreate("old1", now, time.Minute)
	store.GetOrCreate("old2", now, time.Minute)
	store.GetOrCreate("fresh", now, time.Hour)

	if store.Size() != 3 {
		t.Fatalf("expected 3 entries, got %d", store.Size())
	}

	// An access past the short windows sweeps the stale entries
	store.GetOrCreate("trigger", now.Add(2*time.Minute), time.Minute)

	if store.Size() != 2 {
		t.Errorf("expected 2 entries after sweep (fresh + trigger), got %d", store.Size())
	}
	if _, ok := store.Peek("fresh", now.Add(2*time.Minute)); !ok {
		t.Error("expected the long-window entry to survive the sweep")
	}
}

func TestStore_SweepDisabled(t *testing.T) {
	store := NewStoreWithSweepChance(0)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	store.GetOrCreate("old", now, time.Minute)
	store.GetOrCreate("trigger", now.Add(time.Hour), time.Minute)

	if store.Size() != 2 {
		t.Errorf("expected stale entries to remain with sweeping disabled, got %d", store.Size())
	}
}

func TestStore_InvalidSweepChanceFallsBack(t *testing.T) {
	store := NewStoreWithSweepChance(1.5)
	if store.sweepChance != DefaultSweepChance {
		t.Errorf("expected fallback to default sweep chance, got %g", store.sweepChance)
	}

	store = NewStoreWithSweepChance(-0.1)
	if store.sweepChance != DefaultSweepChance {
		t.Errorf("expected fallback to default sweep chance, got %g", store.sweepChance)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.GetOrCreate("shared", now, time.Minute)
				store.Increment("shared")
				store.Peek("shared", now)
			}
		}()
	}
	wg.Wait()

	entry, ok := store.Peek("shared", now)
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if entry.Count != 50*100 {
		t.Errorf("expected count %d, got %d", 50*100, entry.Count)
	}
}

func TestEntry_Live(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	entry := Entry{Count: 1, ResetAt: now.Add(time.Minute)}

	if !entry.Live(now) {
		t.Error("expected entry to be live before resetAt")
	}
	if entry.Live(now.Add(time.Minute)) {
		t.Error("expected entry to be stale at resetAt")
	}
	if entry.Live(now.Add(2 * time.Minute)) {
		t.Error("expected entry to be stale after resetAt")
	}
}
