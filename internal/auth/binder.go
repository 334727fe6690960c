package auth

import (
	"context"
	"errors"
	"fmt"
)

// MembershipBinder turns an authenticated user into an Actor for a workspace.
type MembershipBinder struct {
	store MembershipStore
}

// NewMembershipBinder constructs a binder over store.
func NewMembershipBinder(store MembershipStore) *MembershipBinder {
	return &MembershipBinder{store: store}
}

// Bind looks up the membership of userID in workspaceID. A missing or
// inactive membership yields ErrMembershipRequired. Lookups are never retried.
func (b *MembershipBinder) Bind(ctx context.Context, workspaceID, userID string) (Actor, error) {
	m, err := b.store.FindMembership(ctx, workspaceID, userID)
	if errors.Is(err, ErrNotFound) {
		return Actor{}, ErrMembershipRequired
	}
	if err != nil {
		return Actor{}, fmt.Errorf("find membership: %w", err)
	}
	if !m.Active {
		return Actor{}, ErrMembershipRequired
	}
	return Actor{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Role:        m.Role,
		Email:       m.Email,
	}, nil
}
