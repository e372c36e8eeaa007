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

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AuthConfig configures password hashing and token issuance/validation.
//
// Two modes are supported:
//
//   - "local": tokens are signed and verified with a shared HS256 secret.
//     This is the default and requires only `secret`.
//   - "jwks": tokens are verified against a remote JWKS endpoint. Token
//     issuance is disabled in this mode (an external IdP issues tokens).
type AuthConfig struct {
	// Mode selects token verification: "local" or "jwks".
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty" jsonschema:"title=Mode,enum=local,enum=jwks,default=local"`

	// Secret is the HS256 signing secret for local mode.
	Secret string `yaml:"secret,omitempty" json:"secret,omitempty" jsonschema:"title=Secret,description=HS256 signing secret (local mode)"`

	// JWKSURL is the JWKS endpoint for jwks mode.
	JWKSURL string `yaml:"jwks_url,omitempty" json:"jwks_url,omitempty" jsonschema:"title=JWKS URL"`

	// Issuer is the expected/emitted token issuer.
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty" jsonschema:"title=Issuer,default=perch"`

	// Audience is the expected/emitted token audience.
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty" jsonschema:"title=Audience,default=perch"`

	// TokenTTL is the lifetime of issued tokens (local mode).
	TokenTTL Duration `yaml:"token_ttl,omitempty" json:"token_ttl,omitempty" jsonschema:"title=Token TTL,default=24h"`

	// BcryptCost is the bcrypt cost parameter for password hashing.
	BcryptCost int `yaml:"bcrypt_cost,omitempty" json:"bcrypt_cost,omitempty" jsonschema:"title=Bcrypt Cost,minimum=4,maximum=31"`
}

// SetDefaults applies default values to the auth config.
func (c *AuthConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "local"
	}
	if c.Issuer == "" {
		c.Issuer = "perch"
	}
	if c.Audience == "" {
		c.Audience = "perch"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = Duration(24 * time.Hour)
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
}

// Validate checks the auth configuration.
func (c *AuthConfig) Validate() error {
	switch c.Mode {
	case "local":
		if c.Secret == "" {
			return fmt.Errorf("secret is required in local mode")
		}
		if len(c.Secret) < 32 {
			return fmt.Errorf("secret must be at least 32 bytes, got %d", len(c.Secret))
		}
	case "jwks":
		if c.JWKSURL == "" {
			return fmt.Errorf("jwks_url is required in jwks mode")
		}
	default:
		return fmt.Errorf("invalid mode %q (valid: local, jwks)", c.Mode)
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive")
	}

	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}

	return nil
}
