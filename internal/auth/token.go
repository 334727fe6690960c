package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var asymmetricMethods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512"}

// accessClaims is the subset of access token claims the service reads.
// email and user_metadata are decoded loosely; a wrongly typed value is
// treated as absent.
type accessClaims struct {
	Email        any `json:"email,omitempty"`
	UserMetadata any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates bearer access tokens and extracts the identity.
type TokenVerifier struct {
	keys     *KeySet
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
	leeway   time.Duration
}

// VerifierOption configures a TokenVerifier.
type VerifierOption func(*TokenVerifier) error

// WithKeySet verifies asymmetric signatures against a shared key set.
func WithKeySet(keys *KeySet) VerifierOption {
	return func(v *TokenVerifier) error {
		v.keys = keys
		return nil
	}
}

// WithHMACSecret accepts HS256 tokens signed with secret.
func WithHMACSecret(secret string) VerifierOption {
	return func(v *TokenVerifier) error {
		if strings.TrimSpace(secret) == "" {
			return nil
		}
		v.secret = []byte(secret)
		return nil
	}
}

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) VerifierOption {
	return func(v *TokenVerifier) error {
		v.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAudience requires the aud claim to contain audience.
func WithAudience(audience string) VerifierOption {
	return func(v *TokenVerifier) error {
		v.audience = strings.TrimSpace(audience)
		return nil
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(fn func() time.Time) VerifierOption {
	return func(v *TokenVerifier) error {
		if fn != nil {
			v.now = fn
		}
		return nil
	}
}

// WithLeeway tolerates clock skew when checking exp and nbf.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *TokenVerifier) error {
		if d > 0 {
			v.leeway = d
		}
		return nil
	}
}

// NewTokenVerifier constructs a verifier. At least one of WithKeySet or
// WithHMACSecret is required.
func NewTokenVerifier(opts ...VerifierOption) (*TokenVerifier, error) {
	v := &TokenVerifier{now: time.Now}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	if v.keys == nil && len(v.secret) == 0 {
		return nil, errors.New("auth: token verifier needs a key set or an hmac secret")
	}
	return v, nil
}

// Verify checks signature, expiry, issuer and audience. Any verification
// failure is reported as ErrInvalidToken; a token without a subject yields
// ErrInvalidTokenClaims.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrInvalidToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods()),
		// Tokens without exp never expire; they are refused.
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(v.leeway))
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.keyFor(ctx, t)
	}, parserOpts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return identityFromClaims(claims)
}

func (v *TokenVerifier) methods() []string {
	var methods []string
	if v.keys != nil {
		methods = append(methods, asymmetricMethods...)
	}
	if len(v.secret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	return methods
}

func (v *TokenVerifier) keyFor(ctx context.Context, t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); ok {
		if len(v.secret) == 0 {
			return nil, errors.New("hmac tokens are not accepted")
		}
		return v.secret, nil
	}
	if v.keys == nil {
		return nil, errors.New("asymmetric tokens are not accepted")
	}
	kid, _ := t.Header["kid"].(string)
	return v.keys.Key(ctx, kid)
}

func identityFromClaims(c *accessClaims) (Identity, error) {
	sub := strings.TrimSpace(c.Subject)
	if sub == "" {
		return Identity{}, ErrInvalidTokenClaims
	}
	email, _ := c.Email.(string)
	if email == "" {
		email = c.Subject + "@users.local"
	}
	return Identity{
		ID:          c.Subject,
		Email:       email,
		DisplayName: displayNameFrom(c.UserMetadata),
	}, nil
}

func displayNameFrom(meta any) string {
	m, ok := meta.(map[string]any)
	if !ok {
		return ""
	}
	name, ok := m["full_name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return ""
	}
	return name
}
