package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
)

// MemberService validates and applies membership changes.
type MemberService struct {
	store MembershipAdmin
}

// NewMemberService constructs a MemberService.
func NewMemberService(store MembershipAdmin) *MemberService {
	return &MemberService{store: store}
}

func (s *MemberService) List(ctx context.Context, workspaceID string) ([]Membership, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return nil, fmt.Errorf("%w: workspace_id is required", ErrInvalidInput)
	}
	return s.store.ListMemberships(ctx, workspaceID)
}

// Invite adds a member or re-activates an existing one with the new role.
func (s *MemberService) Invite(ctx context.Context, inv Invitation) (Membership, error) {
	inv.UserID = strings.TrimSpace(inv.UserID)
	inv.Email = strings.TrimSpace(inv.Email)
	if inv.WorkspaceID == "" {
		return Membership{}, fmt.Errorf("%w: workspace_id is required", ErrInvalidInput)
	}
	if inv.UserID == "" {
		return Membership{}, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(inv.Email); err != nil {
		return Membership{}, fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	if !inv.Role.Valid() {
		return Membership{}, fmt.Errorf("%w: role is invalid", ErrInvalidInput)
	}
	if inv.InvitedBy == "" {
		return Membership{}, fmt.Errorf("%w: invitedBy is required", ErrInvalidInput)
	}
	return s.store.InviteMember(ctx, inv)
}

// UpdateRole changes the role of an active member. Inactive or unknown
// members yield ErrNotFound.
func (s *MemberService) UpdateRole(ctx context.Context, workspaceID, userID string, role Role) (Membership, error) {
	if !role.Valid() {
		return Membership{}, fmt.Errorf("%w: role is invalid", ErrInvalidInput)
	}
	if workspaceID == "" || userID == "" {
		return Membership{}, fmt.Errorf("%w: workspace and user are required", ErrInvalidInput)
	}
	return s.store.UpdateMemberRole(ctx, workspaceID, userID, role)
}

// Deactivate soft-deletes an active membership.
func (s *MemberService) Deactivate(ctx context.Context, workspaceID, userID string) (Membership, error) {
	if workspaceID == "" || userID == "" {
		return Membership{}, fmt.Errorf("%w: workspace and user are required", ErrInvalidInput)
	}
	return s.store.DeactivateMember(ctx, workspaceID, userID)
}
