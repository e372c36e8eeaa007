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
	"math/rand"
	"sync"
	"time"
)

// DefaultSweepChance is the default probability that a store access sweeps
// expired entries.
const DefaultSweepChance = 0.01

// Entry is the counting state for one key within one active window.
type Entry struct {
	// Count is the number of requests admitted so far in the current window.
	Count int

	// ResetAt marks when the current window expires.
	ResetAt time.Time
}

// Live reports whether the entry's window is still active at the given time.
func (e Entry) Live(now time.Time) bool {
	return e.ResetAt.After(now)
}

// Store holds the current counting state per key.
//
// The store exclusively owns all entries; callers receive copies. It is
// thread-safe and suitable for single-instance deployments. Counters are
// held in memory only and do not survive restarts.
type Store struct {
	mu          sync.Mutex
	entries     map[string]Entry
	sweepChance float64
}

// NewStore creates an empty window store with the default sweep chance.
func NewStore() *Store {
	return NewStoreWithSweepChance(DefaultSweepChance)
}

// NewStoreWithSweepChance creates an empty window store that sweeps expired
// entries on the given fraction of accesses. 0 disables sweeping, 1 sweeps
// on every access. Values outside [0, 1] fall back to the default.
func NewStoreWithSweepChance(chance float64) *Store {
	if chance < 0 || chance > 1 {
		chance = DefaultSweepChance
	}
	return &Store{
		entries:     make(map[string]Entry),
		sweepChance: chance,
	}
}

// GetOrCreate returns the live entry for key. If none exists, or the stored
// entry expired at or before now, a fresh entry with Count 0 and
// ResetAt now+window replaces it.
func (s *Store) GetOrCreate(key string, now time.Time, window time.Duration) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSweep(now)

	entry, ok := s.entries[key]
	if !ok || !entry.ResetAt.After(now) {
		entry = Entry{
			Count:   0,
			ResetAt: now.Add(window),
		}
		s.entries[key] = entry
	}

	return entry
}

// Increment adds 1 to the current entry for key. The caller must have
// already checked the admission decision. A missing key is a no-op.
func (s *Store) Increment(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return
	}
	entry.Count++
	s.entries[key] = entry
}

// Remove deletes the entry for key. Removing an absent key is a no-op.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
}

// RemoveAll clears the entire store.
func (s *Store) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]Entry)
}

// Peek returns a copy of the entry for key if it is still live at now.
// It never mutates the store.
func (s *Store) Peek(key string, now time.Time) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !entry.ResetAt.After(now) {
		return Entry{}, false
	}
	return entry, true
}

// Size returns the number of entries in the store, expired or not.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// maybeSweep deletes all expired entries on a random fraction of calls,
// bounding memory growth without a timer goroutine. Caller holds the lock.
func (s *Store) maybeSweep(now time.Time) {
	if s.sweepChance <= 0 {
		return
	}
	if s.sweepChance < 1 && rand.Float64() >= s.sweepChance {
		return
	}

	for key, entry := range s.entries {
		if !entry.ResetAt.After(now) {
			delete(s.entries, key)
		}
	}
}
