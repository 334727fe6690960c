package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://auth.example.test/auth/v1"
	testAudience = "authenticated"
	testKeyID    = "key-1"
)

type jwksFixture struct {
	key     *rsa.PrivateKey
	server  *httptest.Server
	fetches atomic.Int32
	fail    atomic.Bool
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &jwksFixture{key: key}
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &key.PublicKey,
		KeyID:     testKeyID,
		Algorithm: "RS256",
		Use:       "sig",
	}}}
	body, err := json.Marshal(set)
	require.NoError(t, err)

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		if f.fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKeyID
	signed, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func baseClaims(sub string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub": sub,
		"iss": testIssuer,
		"aud": testAudience,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

func newSignedResolver(t *testing.T, f *jwksFixture, store *memStore) *SignedTokenResolver {
	t.Helper()
	verifier, err := NewTokenVerifier(
		WithKeySet(NewKeySet(f.server.URL, f.server.Client())),
		WithIssuer(testIssuer),
		WithAudience(testAudience),
	)
	require.NoError(t, err)
	return NewSignedTokenResolver(verifier, store, store)
}

func bearerRequest(token, pathWS string) Request {
	h := http.Header{}
	if token != "" {
		h.Set(HeaderAuthorization, "Bearer "+token)
	}
	return Request{Header: h, PathWorkspaceID: pathWS}
}

func TestSignedTokenResolvesMember(t *testing.T) {
	f := newJWKSFixture(t)
	store := newMemStore()
	store.addMember("ws-1", "u1", "old@example.com", RoleProductManager)
	resolver := newSignedResolver(t, f, store)

	claims := baseClaims("u1")
	claims["email"] = "u1@example.com"
	claims["user_metadata"] = map[string]any{"full_name": "User One"}

	actor, err := resolver.Resolve(context.Background(), bearerRequest(f.sign(t, claims), "ws-1"))
	require.NoError(t, err)
	assert.Equal(t, Actor{UserID: "u1", WorkspaceID: "ws-1", Role: RoleProductManager, Email: "u1@example.com"}, actor)
	assert.Equal(t, Identity{ID: "u1", Email: "u1@example.com", DisplayName: "User One"}, store.identities["u1"])
}

func TestSignedTokenEmailFallback(t *testing.T) {
	f := newJWKSFixture(t)
	store := newMemStore()
	store.addMember("ws-1", "u1", "", RoleViewer)
	resolver := newSignedResolver(t, f, store)

	actor, err := resolver.Resolve(context.Background(), bearerRequest(f.sign(t, baseClaims("u1")), "ws-1"))
	require.NoError(t, err)
	assert.Equal(t, "u1@users.local", store.identities["u1"].Email)
	assert.Equal(t, "u1@users.local", actor.Email)
}

func TestSignedTokenKeepsDisplayNameWhenMetadataBlank(t *testing.T) {
	f := newJWKSFixture(t)
	store := newMemStore()
	store.addMember("ws-1", "u1", "u1@example.com", RoleViewer)
	store.identities["u1"] = Identity{ID: "u1", Email: "u1@example.com", DisplayName: "Existing"}
	resolver := newSignedResolver(t, f, store)

	claims := baseClaims("u1")
	claims["email"] = "new@example.com"
	claims["user_metadata"] = map[string]any{"full_name": "   "}

	_, err := resolver.Resolve(context.Background(), bearerRequest(f.sign(t, claims), "ws-1"))
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "u1", Email: "new@example.com", DisplayName: "Existing"}, store.identities["u1"])
}

func TestSignedTokenChecksWorkspaceBeforeToken(t *testing.T) {
	f := newJWKSFixture(t)
	resolver := newSignedResolver(t, f, newMemStore())

	_, err := resolver.Resolve(context.Background(), Request{Header: http.Header{}})
	assert.ErrorIs(t, err, ErrWorkspaceContextMissing)
	assert.Zero(t, f.fetches.Load(), "key set must not be fetched without workspace context")
}

func TestSignedTokenHeaderWorkspaceTakesPriority(t *testing.T) {
	f := newJWKSFixture(t)
	store := newMemStore()
	store.addMember("ws-header", "u1", "u1@example.com", RoleContributor)
	resolver := newSignedResolver(t, f, store)

	req := bearerRequest(f.sign(t, baseClaims("u1")), "ws-path")
	req.Header.Set(HeaderWorkspaceID, "ws-header")
	actor, err := resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ws-header", actor.WorkspaceID)
}

func TestSignedTokenFailures(t *testing.T) {
	f := newJWKSFixture(t)
	store := newMemStore()
	store.addMember("ws-1", "u1", "u1@example.com", RoleViewer)
	resolver := newSignedResolver(t, f, store)
	ctx := context.Background()

	expired := baseClaims("u1")
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	wrongIssuer := baseClaims("u1")
	wrongIssuer["iss"] = "https://evil.example.test"
	wrongAudience := baseClaims("u1")
	wrongAudience["aud"] = "other"
	noSubject := baseClaims("")

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims("u1"))
	forged.Header["kid"] = testKeyID
	forgedToken, err := forged.SignedString(otherKey)
	require.NoError(t, err)

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"missing bearer", bearerRequest("", "ws-1"), ErrBearerTokenMissing},
		{"wrong scheme", Request{Header: http.Header{HeaderAuthorization: {"Basic abc"}}, PathWorkspaceID: "ws-1"}, ErrBearerTokenMissing},
		{"garbage", bearerRequest("not-a-jwt", "ws-1"), ErrInvalidToken},
		{"expired", bearerRequest(f.sign(t, expired), "ws-1"), ErrInvalidToken},
		{"issuer", bearerRequest(f.sign(t, wrongIssuer), "ws-1"), ErrInvalidToken},
		{"audience", bearerRequest(f.sign(t, wrongAudience), "ws-1"), ErrInvalidToken},
		{"signature", bearerRequest(forgedToken, "ws-1"), ErrInvalidToken},
		{"no subject", bearerRequest(f.sign(t, noSubject), "ws-1"), ErrInvalidTokenClaims},
		{"not a member", bearerRequest(f.sign(t, baseClaims("u1")), "ws-2"), ErrMembershipRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolver.Resolve(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSignedTokenLowercaseScheme(t *testing.T) {
	f := newJWKSFixture(t)
	store := newMemStore()
	store.addMember("ws-1", "u1", "u1@example.com", RoleViewer)
	resolver := newSignedResolver(t, f, store)

	req := Request{Header: http.Header{}, PathWorkspaceID: "ws-1"}
	req.Header.Set(HeaderAuthorization, "bearer "+f.sign(t, baseClaims("u1")))
	_, err := resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
}

func TestDeactivatedMembershipIsNotReused(t *testing.T) {
	f := newJWKSFixture(t)
	store := newMemStore()
	store.addMember("ws-1", "u1", "u1@example.com", RoleWorkspaceAdmin)
	resolver := newSignedResolver(t, f, store)
	ctx := context.Background()
	token := f.sign(t, baseClaims("u1"))

	actor, err := resolver.Resolve(ctx, bearerRequest(token, "ws-1"))
	require.NoError(t, err)
	assert.Equal(t, RoleWorkspaceAdmin, actor.Role)

	_, err = store.DeactivateMember(ctx, "ws-1", "u1")
	require.NoError(t, err)

	_, err = resolver.Resolve(ctx, bearerRequest(token, "ws-1"))
	assert.ErrorIs(t, err, ErrMembershipRequired)
}

func TestSignedTokenStoreFailureIsAuthenticationFailure(t *testing.T) {
	f := newJWKSFixture(t)
	store := newMemStore()
	store.upsertErr = errors.New("db down")
	resolver := newSignedResolver(t, f, store)

	_, err := resolver.Resolve(context.Background(), bearerRequest(f.sign(t, baseClaims("u1")), "ws-1"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTrustedHeaderResolver(t *testing.T) {
	ctx := context.Background()
	var r TrustedHeaderResolver

	h := http.Header{}
	h.Set(HeaderUserID, "u1")
	h.Set(HeaderRole, "contributor")
	h.Set(HeaderWorkspaceID, "ws-1")
	actor, err := r.Resolve(ctx, Request{Header: h})
	require.NoError(t, err)
	assert.Equal(t, Actor{UserID: "u1", WorkspaceID: "ws-1", Role: RoleContributor, Email: DefaultTrustedEmail}, actor)

	h.Set(HeaderUserEmail, "dev@example.com")
	actor, err = r.Resolve(ctx, Request{Header: h})
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", actor.Email)

	pathOnly := http.Header{}
	pathOnly.Set(HeaderUserID, "u1")
	pathOnly.Set(HeaderRole, "viewer")
	actor, err = r.Resolve(ctx, Request{Header: pathOnly, PathWorkspaceID: "ws-path"})
	require.NoError(t, err)
	assert.Equal(t, "ws-path", actor.WorkspaceID)

	_, err = r.Resolve(ctx, Request{Header: pathOnly})
	assert.ErrorIs(t, err, ErrMissingActorHeaders)

	bad := h.Clone()
	bad.Set(HeaderRole, "owner")
	_, err = r.Resolve(ctx, Request{Header: bad})
	assert.ErrorIs(t, err, ErrInvalidRole)

	noUser := h.Clone()
	noUser.Del(HeaderUserID)
	_, err = r.Resolve(ctx, Request{Header: noUser})
	assert.ErrorIs(t, err, ErrMissingActorHeaders)
}
