package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: conflict")
	ErrInvalidInput = errors.New("auth: invalid input")

	// Actor resolution failures.
	ErrWorkspaceContextMissing = errors.New("auth: workspace context required")
	ErrBearerTokenMissing      = errors.New("auth: bearer token required")
	ErrInvalidToken            = errors.New("auth: invalid access token")
	ErrInvalidTokenClaims      = errors.New("auth: invalid token claims")
	ErrMissingActorHeaders     = errors.New("auth: missing actor headers")
	ErrInvalidRole             = errors.New("auth: invalid role")
	ErrMembershipRequired      = errors.New("auth: active membership required")

	// Guard failures.
	ErrActorRequired           = errors.New("auth: actor required")
	ErrWorkspaceScopeViolation = errors.New("auth: workspace scope violation")
	ErrForbidden               = errors.New("auth: forbidden")
)
