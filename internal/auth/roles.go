package auth

import (
	"fmt"
	"strings"
)

// Role is a workspace membership role.
type Role string

const (
	RoleTenantAdmin        Role = "tenant_admin"
	RoleWorkspaceAdmin     Role = "workspace_admin"
	RoleProductManager     Role = "product_manager"
	RoleEngineeringManager Role = "engineering_manager"
	RoleContributor        Role = "contributor"
	RoleViewer             Role = "viewer"
)

// Roles lists every role in decreasing order of privilege.
var Roles = []Role{
	RoleTenantAdmin,
	RoleWorkspaceAdmin,
	RoleProductManager,
	RoleEngineeringManager,
	RoleContributor,
	RoleViewer,
}

// Permission is a capability checked by the policy evaluator.
type Permission string

const (
	PermBoardRead       Permission = "board:read"
	PermBoardWrite      Permission = "board:write"
	PermIdeaRead        Permission = "idea:read"
	PermIdeaWrite       Permission = "idea:write"
	PermIdeaStatusWrite Permission = "idea:status:write"
	PermVoteWrite       Permission = "vote:write"
	PermCommentWrite    Permission = "comment:write"
	PermMembershipRead  Permission = "membership:read"
	PermMembershipWrite Permission = "membership:write"
	PermAuditRead       Permission = "audit:read"
	PermPolicyRead      Permission = "policy:read"
	PermPolicyWrite     Permission = "policy:write"
)

// Permissions is the closed set of known permissions.
var Permissions = []Permission{
	PermBoardRead,
	PermBoardWrite,
	PermIdeaRead,
	PermIdeaWrite,
	PermIdeaStatusWrite,
	PermVoteWrite,
	PermCommentWrite,
	PermMembershipRead,
	PermMembershipWrite,
	PermAuditRead,
	PermPolicyRead,
	PermPolicyWrite,
}

// Effect is the outcome carried by a permission override.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Valid reports whether p is one of the enumerated permissions.
func (p Permission) Valid() bool {
	for _, known := range Permissions {
		if p == known {
			return true
		}
	}
	return false
}

// Valid reports whether e is allow or deny.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

// ParseRole validates a role name. Matching is exact.
func ParseRole(raw string) (Role, error) {
	r := Role(raw)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
	return r, nil
}

// ParsePermission validates a permission name.
func ParsePermission(raw string) (Permission, error) {
	p := Permission(strings.TrimSpace(raw))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, raw)
	}
	return p, nil
}

// ParseEffect validates an override effect.
func ParseEffect(raw string) (Effect, error) {
	e := Effect(strings.ToLower(strings.TrimSpace(raw)))
	if !e.Valid() {
		return "", fmt.Errorf("%w: effect must be allow or deny", ErrInvalidInput)
	}
	return e, nil
}
