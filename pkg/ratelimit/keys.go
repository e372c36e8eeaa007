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

import "fmt"

// Caller carries the per-request inputs to key derivation. It is built once
// per request from HTTP specifics (auth claims, X-Forwarded-For/RemoteAddr)
// and passed by value.
type Caller struct {
	// Identity is the authenticated subject identifier, empty when anonymous.
	Identity string

	// RemoteAddr is the caller's resolved IP address.
	RemoteAddr string
}

// StrategyKind tags a key-derivation variant.
type StrategyKind string

const (
	// KindByAddress partitions counters by the caller's network address.
	KindByAddress StrategyKind = "by_address"

	// KindByIdentity partitions counters by authenticated identity, falling
	// back to the network address for anonymous callers.
	KindByIdentity StrategyKind = "by_identity"

	// KindByIdentityOp partitions like KindByIdentity but prefixes a fixed
	// operation label, giving one identity independent budgets per
	// operation class.
	KindByIdentityOp StrategyKind = "by_identity_op"
)

// Strategy is a tagged key-derivation variant. Strategies are plain data so
// policies stay serializable; dispatch happens in Key. The zero value is
// invalid; use ByAddress, ByIdentity, or ByIdentityOp.
type Strategy struct {
	Kind StrategyKind
	Op   string
}

// ByAddress derives keys from the caller's network address.
func ByAddress() Strategy {
	return Strategy{Kind: KindByAddress}
}

// ByIdentity derives keys from the authenticated identity, falling back to
// the network address.
func ByIdentity() Strategy {
	return Strategy{Kind: KindByIdentity}
}

// ByIdentityOp derives keys like ByIdentity, prefixed with a fixed
// operation label.
func ByIdentityOp(op string) Strategy {
	return Strategy{Kind: KindByIdentityOp, Op: op}
}

// Valid reports whether the strategy is a usable variant.
func (s Strategy) Valid() bool {
	switch s.Kind {
	case KindByAddress, KindByIdentity:
		return true
	case KindByIdentityOp:
		return s.Op != ""
	default:
		return false
	}
}

// Key derives the partition key for a caller. It is a pure function of the
// caller value; it never touches rate-limit state. The limiter scopes the
// returned key by policy name before storing it.
func (s Strategy) Key(c Caller) (string, error) {
	switch s.Kind {
	case KindByAddress:
		return addressKey(c), nil

	case KindByIdentity:
		return identityKey(c), nil

	case KindByIdentityOp:
		if s.Op == "" {
			return "", fmt.Errorf("strategy %s requires an operation label", s.Kind)
		}
		return s.Op + ":" + identityKey(c), nil

	default:
		return "", fmt.Errorf("unknown key strategy %q", s.Kind)
	}
}

func addressKey(c Caller) string {
	if c.RemoteAddr == "" {
		return "addr:unknown"
	}
	return "addr:" + c.RemoteAddr
}

func identityKey(c Caller) string {
	if c.Identity == "" {
		return addressKey(c)
	}
	return "user:" + c.Identity
}
