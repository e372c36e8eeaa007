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

package auth

import (
	"fmt"

	"github.com/perchsocial/perch/pkg/config"
)

// NewValidatorFromConfig creates a TokenValidator for the configured mode.
func NewValidatorFromConfig(cfg *config.AuthConfig) (TokenValidator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is required")
	}

	switch cfg.Mode {
	case "local":
		return NewLocalValidator(cfg.Secret, cfg.Issuer, cfg.Audience)
	case "jwks":
		return NewJWKSValidator(cfg.JWKSURL, cfg.Issuer, cfg.Audience)
	default:
		return nil, fmt.Errorf("invalid auth mode %q (valid: local, jwks)", cfg.Mode)
	}
}

// NewIssuerFromConfig creates a token issuer. Returns nil without error in
// jwks mode, where an external identity provider issues tokens and the
// login and registration endpoints are disabled.
func NewIssuerFromConfig(cfg *config.AuthConfig) (*Issuer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is required")
	}

	if cfg.Mode != "local" {
		return nil, nil
	}

	return NewIssuer(cfg.Secret, cfg.Issuer, cfg.Audience, cfg.TokenTTL.Duration())
}
