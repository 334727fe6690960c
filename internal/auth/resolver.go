package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Request headers read during actor resolution.
const (
	HeaderAuthorization = "Authorization"
	HeaderWorkspaceID   = "X-Workspace-Id"
	HeaderUserID        = "X-User-Id"
	HeaderRole          = "X-Role"
	HeaderUserEmail     = "X-User-Email"
)

// DefaultTrustedEmail is used when a trusted-header request carries no email.
const DefaultTrustedEmail = "mock-user@customervoice.local"

// Request is the credential material of one inbound request.
type Request struct {
	Header          http.Header
	PathWorkspaceID string
}

// WorkspaceContext returns the explicit workspace header, else the path
// workspace.
func (r Request) WorkspaceContext() (string, bool) {
	if ws := r.Header.Get(HeaderWorkspaceID); ws != "" {
		return ws, true
	}
	if r.PathWorkspaceID != "" {
		return r.PathWorkspaceID, true
	}
	return "", false
}

// Resolver produces the Actor for a request. Implementations are chosen once
// at startup.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (Actor, error)
}

// SignedTokenResolver verifies a bearer token, records the identity and binds
// the caller's membership.
type SignedTokenResolver struct {
	verifier   *TokenVerifier
	identities IdentityStore
	binder     *MembershipBinder
}

// NewSignedTokenResolver constructs the signed-token strategy.
func NewSignedTokenResolver(verifier *TokenVerifier, identities IdentityStore, memberships MembershipStore) *SignedTokenResolver {
	return &SignedTokenResolver{
		verifier:   verifier,
		identities: identities,
		binder:     NewMembershipBinder(memberships),
	}
}

// Resolve checks workspace context before looking at the credential.
// Store failures after verification surface as ErrInvalidToken so the
// caller sees an authentication failure rather than a partial actor.
func (s *SignedTokenResolver) Resolve(ctx context.Context, req Request) (Actor, error) {
	workspaceID, ok := req.WorkspaceContext()
	if !ok {
		return Actor{}, ErrWorkspaceContextMissing
	}
	token, ok := bearerToken(req.Header.Get(HeaderAuthorization))
	if !ok {
		return Actor{}, ErrBearerTokenMissing
	}
	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return Actor{}, err
	}
	if err := s.identities.UpsertIdentity(ctx, identity); err != nil {
		return Actor{}, fmt.Errorf("%w: upsert identity: %v", ErrInvalidToken, err)
	}
	actor, err := s.binder.Bind(ctx, workspaceID, identity.ID)
	if err != nil {
		if errors.Is(err, ErrMembershipRequired) {
			return Actor{}, err
		}
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if actor.Email == "" {
		actor.Email = identity.Email
	}
	return actor, nil
}

// TrustedHeaderResolver builds the actor from headers set by a trusted
// upstream. It performs no identity upsert and no membership lookup, so it
// must only be enabled outside production.
type TrustedHeaderResolver struct{}

// Resolve reads user, role, workspace and email from request headers.
func (TrustedHeaderResolver) Resolve(_ context.Context, req Request) (Actor, error) {
	userID := req.Header.Get(HeaderUserID)
	workspaceID, hasWorkspace := req.WorkspaceContext()
	rawRole := req.Header.Get(HeaderRole)
	if userID == "" || !hasWorkspace || rawRole == "" {
		return Actor{}, ErrMissingActorHeaders
	}
	role, err := ParseRole(rawRole)
	if err != nil {
		return Actor{}, err
	}
	email := req.Header.Get(HeaderUserEmail)
	if email == "" {
		email = DefaultTrustedEmail
	}
	return Actor{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Role:        role,
		Email:       email,
	}, nil
}

// bearerToken splits "<scheme> <token>" on the first space and accepts a
// case-insensitive bearer scheme.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
