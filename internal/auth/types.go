package auth

import (
	"context"
	"time"
)

// Identity is a user known to the platform.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// Workspace is owned by a tenant; the core only reads it.
type Workspace struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Active   bool   `json:"active"`
}

// Membership binds a user to a workspace with a role. Inactive memberships
// are kept for history and never grant access.
type Membership struct {
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	Active      bool      `json:"active"`
	InvitedBy   string    `json:"invitedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PermissionOverride is a workspace-local exception to the default catalog.
type PermissionOverride struct {
	WorkspaceID string     `json:"workspaceId"`
	Role        Role       `json:"role"`
	Permission  Permission `json:"permission"`
	Effect      Effect     `json:"effect"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Invitation carries the data needed to add or re-activate a member.
type Invitation struct {
	WorkspaceID string
	UserID      string
	Email       string
	Role        Role
	InvitedBy   string
}

// IdentityStore persists identities seen on successful authentication.
type IdentityStore interface {
	UpsertIdentity(ctx context.Context, identity Identity) error
}

// MembershipStore performs the point lookup used while binding an actor.
// A missing row is reported as ErrNotFound.
type MembershipStore interface {
	FindMembership(ctx context.Context, workspaceID, userID string) (Membership, error)
}

// MembershipAdmin manages memberships of a workspace.
type MembershipAdmin interface {
	MembershipStore
	ListMemberships(ctx context.Context, workspaceID string) ([]Membership, error)
	// InviteMember upserts the identity and the membership atomically.
	InviteMember(ctx context.Context, inv Invitation) (Membership, error)
	UpdateMemberRole(ctx context.Context, workspaceID, userID string, role Role) (Membership, error)
	DeactivateMember(ctx context.Context, workspaceID, userID string) (Membership, error)
}

// WorkspaceStore answers whether an active workspace exists.
type WorkspaceStore interface {
	WorkspaceExists(ctx context.Context, workspaceID string) (bool, error)
}

// OverrideStore looks up the override for an exact (workspace, role, permission).
type OverrideStore interface {
	PermissionOverride(ctx context.Context, workspaceID string, role Role, perm Permission) (Effect, bool, error)
}

// OverrideAdmin manages the overrides of a workspace.
type OverrideAdmin interface {
	OverrideStore
	ListPermissionOverrides(ctx context.Context, workspaceID string) ([]PermissionOverride, error)
	UpsertPermissionOverride(ctx context.Context, o PermissionOverride) (PermissionOverride, error)
	DeletePermissionOverride(ctx context.Context, workspaceID string, role Role, perm Permission) error
}
