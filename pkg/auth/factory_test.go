package auth

import (
	"testing"
	"time"

	"github.com/perchsocial/perch/pkg/config"
)

func TestNewValidatorFromConfig(t *testing.T) {
	t.Run("local mode", func(t *testing.T) {
		cfg := &config.AuthConfig{Mode: "local", Secret: testSecret, Issuer: "perch", Audience: "perch"}

		validator, err := NewValidatorFromConfig(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := validator.(*LocalValidator); !ok {
			t.Errorf("expected *LocalValidator, got %T", validator)
		}
	})

	t.Run("jwks mode", func(t *testing.T) {
		_, publicKey := generateRSAKeyPair(t)
		jwksURL := serveJWKS(t, createJWKS(t, publicKey))
		cfg := &config.AuthConfig{Mode: "jwks", JWKSURL: jwksURL, Issuer: "idp", Audience: "perch"}

		validator, err := NewValidatorFromConfig(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := validator.(*JWKSValidator); !ok {
			t.Errorf("expected *JWKSValidator, got %T", validator)
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		if _, err := NewValidatorFromConfig(&config.AuthConfig{Mode: "oauth1"}); err == nil {
			t.Error("expected error for unknown mode, got nil")
		}
	})

	t.Run("nil config", func(t *testing.T) {
		if _, err := NewValidatorFromConfig(nil); err == nil {
			t.Error("expected error for nil config, got nil")
		}
	})
}

func TestNewIssuerFromConfig(t *testing.T) {
	t.Run("local mode", func(t *testing.T) {
		cfg := &config.AuthConfig{
			Mode:     "local",
			Secret:   testSecret,
			Issuer:   "perch",
			Audience: "perch",
			TokenTTL: config.Duration(time.Hour),
		}

		issuer, err := NewIssuerFromConfig(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if issuer == nil {
			t.Fatal("expected issuer in local mode, got nil")
		}
		if issuer.TTL() != time.Hour {
			t.Errorf("expected ttl 1h, got %v", issuer.TTL())
		}
	})

	t.Run("jwks mode disables issuance", func(t *testing.T) {
		cfg := &config.AuthConfig{Mode: "jwks", JWKSURL: "https://idp.example.com/jwks.json"}

		issuer, err := NewIssuerFromConfig(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if issuer != nil {
			t.Errorf("expected nil issuer in jwks mode, got %+v", issuer)
		}
	})
}
