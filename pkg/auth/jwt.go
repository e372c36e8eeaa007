package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenValidator validates a bearer token and extracts its claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// Issuer signs HS256 tokens for local mode.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    func() time.Time
}

// NewIssuer creates a token issuer with the given HS256 secret.
func NewIssuer(secret, issuer, audience string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("signing secret must be at least 32 bytes, got %d", len(secret))
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	return &Issuer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		clock:    time.Now,
	}, nil
}

// IssueToken signs a token for the given subject with email and role claims.
func (i *Issuer) IssueToken(subject, email, role string) (string, error) {
	now := i.clock()

	builder := jwt.NewBuilder().
		Issuer(i.issuer).
		Audience([]string{i.audience}).
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(i.ttl))
	if email != "" {
		builder = builder.Claim("email", email)
	}
	if role != "" {
		builder = builder.Claim("role", role)
	}

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, i.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return string(signed), nil
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// LocalValidator verifies HS256 tokens signed with the shared secret.
type LocalValidator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewLocalValidator creates a validator for locally issued tokens.
func NewLocalValidator(secret, issuer, audience string) (*LocalValidator, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("signing secret must be at least 32 bytes, got %d", len(secret))
	}
	return &LocalValidator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
	}, nil
}

// ValidateToken verifies the signature, expiration, issuer, and audience,
// and extracts claims.
func (v *LocalValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return extractClaims(ctx, token), nil
}

// JWKSValidator validates tokens from an external identity provider.
// It auto-fetches and caches the provider's JWKS to handle key rotation.
type JWKSValidator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// NewJWKSValidator creates a validator that fetches keys from the given
// JWKS endpoint. The keyset is cached and refreshed every 15 minutes; the
// initial fetch happens here so misconfiguration fails at startup.
func NewJWKSValidator(jwksURL, issuer, audience string) (*JWKSValidator, error) {
	ctx := context.Background()

	cache := jwk.NewCache(ctx)

	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}

	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	return &JWKSValidator{
		jwksURL:  jwksURL,
		cache:    cache,
		issuer:   issuer,
		audience: audience,
	}, nil
}

// ValidateToken verifies the signature against the cached JWKS along with
// expiration, issuer, and audience, and extracts claims.
func (v *JWKSValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return extractClaims(ctx, token), nil
}

// extractClaims maps token claims onto the Claims struct; anything beyond
// the standard set lands in Custom.
func extractClaims(ctx context.Context, token jwt.Token) *Claims {
	claims := &Claims{
		Subject: token.Subject(),
		Custom:  make(map[string]any),
	}

	if email, ok := token.Get("email"); ok {
		if emailStr, ok := email.(string); ok {
			claims.Email = emailStr
		}
	}

	if role, ok := token.Get("role"); ok {
		if roleStr, ok := role.(string); ok {
			claims.Role = roleStr
		}
	}

	for iter := token.Iterate(ctx); iter.Next(ctx); {
		pair := iter.Pair()
		key, ok := pair.Key.(string)
		if !ok {
			continue
		}

		switch key {
		case "sub", "email", "role", "iss", "aud", "exp", "iat", "nbf":
			// already extracted or structural
		default:
			claims.Custom[key] = pair.Value
		}
	}

	return claims
}

var (
	_ TokenValidator = (*LocalValidator)(nil)
	_ TokenValidator = (*JWKSValidator)(nil)
)
