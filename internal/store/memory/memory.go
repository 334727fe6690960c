// Package memory is an in-process implementation of every store interface.
// It backs local runs without a database and the HTTP tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"customervoice.app/internal/audit"
	"customervoice.app/internal/auth"
	"customervoice.app/internal/config"
	"customervoice.app/internal/feedback"
)

var (
	_ auth.IdentityStore   = (*Store)(nil)
	_ auth.MembershipAdmin = (*Store)(nil)
	_ auth.WorkspaceStore  = (*Store)(nil)
	_ auth.OverrideAdmin   = (*Store)(nil)
	_ audit.Store          = (*Store)(nil)
	_ feedback.Store       = (*Store)(nil)
)

type memberKey struct{ workspace, user string }

type overrideKey struct {
	workspace string
	role      auth.Role
	perm      auth.Permission
}

type voteKey struct{ idea, user string }

// Store keeps all state in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	now func() time.Time

	workspaces  map[string]bool
	users       map[string]auth.Identity
	memberships map[memberKey]auth.Membership
	overrides   map[overrideKey]auth.PermissionOverride
	events      []audit.Event
	boards      map[string]feedback.Board
	ideas       map[string]feedback.Idea
	votes       map[voteKey]struct{}
	comments    []feedback.Comment
}

// New creates an empty store.
func New() *Store {
	return &Store{
		now:         time.Now,
		workspaces:  make(map[string]bool),
		users:       make(map[string]auth.Identity),
		memberships: make(map[memberKey]auth.Membership),
		overrides:   make(map[overrideKey]auth.PermissionOverride),
		boards:      make(map[string]feedback.Board),
		ideas:       make(map[string]feedback.Idea),
		votes:       make(map[voteKey]struct{}),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// AddWorkspace registers an active workspace.
func (s *Store) AddWorkspace(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[id] = true
}

// Bootstrap mirrors the database seed: one workspace with one admin member.
// It returns the workspace and admin user ids.
func (s *Store) Bootstrap(ctx context.Context, seed config.Seed) (string, string, error) {
	workspaceID := strings.TrimSpace(seed.WorkspaceID)
	if workspaceID == "" {
		workspaceID = uuid.NewString()
	}
	userID := strings.TrimSpace(seed.UserID)
	if userID == "" {
		userID = uuid.NewString()
	}
	email := strings.TrimSpace(seed.UserEmail)
	if email == "" {
		email = "admin@customervoice.local"
	}
	s.AddWorkspace(workspaceID)
	_, err := s.InviteMember(ctx, auth.Invitation{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Email:       email,
		Role:        auth.RoleWorkspaceAdmin,
		InvitedBy:   userID,
	})
	return workspaceID, userID, err
}

func (s *Store) UpsertIdentity(_ context.Context, identity auth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertUserLocked(identity)
	return nil
}

func (s *Store) upsertUserLocked(identity auth.Identity) {
	prev, ok := s.users[identity.ID]
	if ok && identity.DisplayName == "" {
		identity.DisplayName = prev.DisplayName
	}
	s.users[identity.ID] = identity
}

func (s *Store) WorkspaceExists(_ context.Context, workspaceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workspaces[workspaceID], nil
}

func (s *Store) FindMembership(_ context.Context, workspaceID, userID string) (auth.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.membershipLocked(workspaceID, userID)
}

func (s *Store) membershipLocked(workspaceID, userID string) (auth.Membership, error) {
	m, ok := s.memberships[memberKey{workspaceID, userID}]
	if !ok {
		return auth.Membership{}, auth.ErrNotFound
	}
	m.Email = s.users[userID].Email
	return m, nil
}

func (s *Store) ListMemberships(_ context.Context, workspaceID string) ([]auth.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []auth.Membership{}
	for k := range s.memberships {
		if k.workspace != workspaceID {
			continue
		}
		m, _ := s.membershipLocked(k.workspace, k.user)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) InviteMember(_ context.Context, inv auth.Invitation) (auth.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.workspaces[inv.WorkspaceID] {
		return auth.Membership{}, fmt.Errorf("workspace %s: %w", inv.WorkspaceID, auth.ErrNotFound)
	}
	s.upsertUserLocked(auth.Identity{ID: inv.UserID, Email: inv.Email})

	now := s.now().UTC()
	key := memberKey{inv.WorkspaceID, inv.UserID}
	m, ok := s.memberships[key]
	if !ok {
		m = auth.Membership{WorkspaceID: inv.WorkspaceID, UserID: inv.UserID, CreatedAt: now}
	}
	m.Role = inv.Role
	m.Active = true
	m.InvitedBy = inv.InvitedBy
	m.UpdatedAt = now
	s.memberships[key] = m
	return s.membershipLocked(inv.WorkspaceID, inv.UserID)
}

func (s *Store) UpdateMemberRole(_ context.Context, workspaceID, userID string, role auth.Role) (auth.Membership, error) {
	return s.updateActive(workspaceID, userID, func(m *auth.Membership) { m.Role = role })
}

func (s *Store) DeactivateMember(_ context.Context, workspaceID, userID string) (auth.Membership, error) {
	return s.updateActive(workspaceID, userID, func(m *auth.Membership) { m.Active = false })
}

func (s *Store) updateActive(workspaceID, userID string, apply func(*auth.Membership)) (auth.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{workspaceID, userID}
	m, ok := s.memberships[key]
	if !ok || !m.Active {
		return auth.Membership{}, auth.ErrNotFound
	}
	apply(&m)
	m.UpdatedAt = s.now().UTC()
	s.memberships[key] = m
	return s.membershipLocked(workspaceID, userID)
}

func (s *Store) PermissionOverride(_ context.Context, workspaceID string, role auth.Role, perm auth.Permission) (auth.Effect, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overrides[overrideKey{workspaceID, role, perm}]
	if !ok {
		return "", false, nil
	}
	return o.Effect, true, nil
}

func (s *Store) ListPermissionOverrides(_ context.Context, workspaceID string) ([]auth.PermissionOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []auth.PermissionOverride{}
	for k, o := range s.overrides {
		if k.workspace == workspaceID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Permission < out[j].Permission
	})
	return out, nil
}

func (s *Store) UpsertPermissionOverride(_ context.Context, o auth.PermissionOverride) (auth.PermissionOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.workspaces[o.WorkspaceID] {
		return auth.PermissionOverride{}, fmt.Errorf("workspace %s: %w", o.WorkspaceID, auth.ErrNotFound)
	}
	key := overrideKey{o.WorkspaceID, o.Role, o.Permission}
	if prev, ok := s.overrides[key]; ok {
		o.CreatedAt = prev.CreatedAt
	} else {
		o.CreatedAt = s.now().UTC()
	}
	s.overrides[key] = o
	return o, nil
}

func (s *Store) DeletePermissionOverride(_ context.Context, workspaceID string, role auth.Role, perm auth.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := overrideKey{workspaceID, role, perm}
	if _, ok := s.overrides[key]; !ok {
		return auth.ErrNotFound
	}
	delete(s.overrides, key)
	return nil
}

func (s *Store) AppendAuditEvent(_ context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *Store) ListAuditEvents(_ context.Context, workspaceID string, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []audit.Event{}
	for _, e := range s.events {
		if e.WorkspaceID == workspaceID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	limit = audit.ClampLimit(limit)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
