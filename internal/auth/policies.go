package auth

import (
	"context"
	"fmt"
)

// PolicyService manages workspace permission overrides.
type PolicyService struct {
	store OverrideAdmin
}

// NewPolicyService constructs a PolicyService.
func NewPolicyService(store OverrideAdmin) *PolicyService {
	return &PolicyService{store: store}
}

// PolicyView is the effective policy of a workspace.
type PolicyView struct {
	Defaults  map[Role][]Permission `json:"defaults"`
	Overrides []PermissionOverride  `json:"overrides"`
}

// Describe returns the default catalog together with the workspace overrides.
func (s *PolicyService) Describe(ctx context.Context, workspaceID string) (PolicyView, error) {
	overrides, err := s.store.ListPermissionOverrides(ctx, workspaceID)
	if err != nil {
		return PolicyView{}, err
	}
	defaults := make(map[Role][]Permission, len(Roles))
	for _, r := range Roles {
		defaults[r] = DefaultPermissions(r)
	}
	if overrides == nil {
		overrides = []PermissionOverride{}
	}
	return PolicyView{Defaults: defaults, Overrides: overrides}, nil
}

// Set creates or replaces the override for (workspace, role, permission).
func (s *PolicyService) Set(ctx context.Context, o PermissionOverride) (PermissionOverride, error) {
	if o.WorkspaceID == "" {
		return PermissionOverride{}, fmt.Errorf("%w: workspace_id is required", ErrInvalidInput)
	}
	if !o.Role.Valid() {
		return PermissionOverride{}, fmt.Errorf("%w: role is invalid", ErrInvalidInput)
	}
	if !o.Permission.Valid() {
		return PermissionOverride{}, fmt.Errorf("%w: permission is invalid", ErrInvalidInput)
	}
	if !o.Effect.Valid() {
		return PermissionOverride{}, fmt.Errorf("%w: effect must be allow or deny", ErrInvalidInput)
	}
	return s.store.UpsertPermissionOverride(ctx, o)
}

// Remove deletes an override so the catalog default applies again.
func (s *PolicyService) Remove(ctx context.Context, workspaceID string, role Role, perm Permission) error {
	if !role.Valid() || !perm.Valid() {
		return fmt.Errorf("%w: role or permission is invalid", ErrInvalidInput)
	}
	return s.store.DeletePermissionOverride(ctx, workspaceID, role, perm)
}
