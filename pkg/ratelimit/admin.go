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

import "time"

// Admin exposes manual controls over a window store, for operational use
// and tests. HTTP routes built on it must sit behind admin-role auth; none
// of these operations belong on an unauthenticated path.
type Admin struct {
	store *Store
}

// NewAdmin creates admin utilities over the given store.
func NewAdmin(store *Store) *Admin {
	return &Admin{store: store}
}

// ResetOne removes the counter for key. Idempotent: resetting an absent
// key is a no-op, and the next request for that key behaves as the first
// ever.
func (a *Admin) ResetOne(key string) {
	a.store.Remove(key)
}

// ResetAll clears every counter in the store.
func (a *Admin) ResetAll() {
	a.store.RemoveAll()
}

// StatusOf returns a copy of the live entry for key, or false when no live
// entry exists. Never mutates the store.
func (a *Admin) StatusOf(key string, now time.Time) (Entry, bool) {
	return a.store.Peek(key, now)
}
