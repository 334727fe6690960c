package auth

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-memory identity, membership and override store for tests.
type memStore struct {
	mu          sync.Mutex
	identities  map[string]Identity
	memberships map[string]Membership
	overrides   map[string]PermissionOverride

	overrideLookups int
	overrideErr     error
	membershipErr   error
	upsertErr       error
}

func newMemStore() *memStore {
	return &memStore{
		identities:  map[string]Identity{},
		memberships: map[string]Membership{},
		overrides:   map[string]PermissionOverride{},
	}
}

func memberKey(ws, user string) string { return ws + "|" + user }

func overrideKey(ws string, role Role, perm Permission) string {
	return ws + "|" + string(role) + "|" + string(perm)
}

func (m *memStore) UpsertIdentity(_ context.Context, id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	prev, ok := m.identities[id.ID]
	if ok && id.DisplayName == "" {
		id.DisplayName = prev.DisplayName
	}
	m.identities[id.ID] = id
	return nil
}

func (m *memStore) FindMembership(_ context.Context, ws, user string) (Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.membershipErr != nil {
		return Membership{}, m.membershipErr
	}
	mem, ok := m.memberships[memberKey(ws, user)]
	if !ok {
		return Membership{}, ErrNotFound
	}
	mem.Email = m.identities[user].Email
	return mem, nil
}

func (m *memStore) ListMemberships(_ context.Context, ws string) ([]Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Membership
	for _, mem := range m.memberships {
		if mem.WorkspaceID == ws {
			mem.Email = m.identities[mem.UserID].Email
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memStore) InviteMember(_ context.Context, inv Invitation) (Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.identities[inv.UserID]
	m.identities[inv.UserID] = Identity{ID: inv.UserID, Email: inv.Email, DisplayName: prev.DisplayName}
	key := memberKey(inv.WorkspaceID, inv.UserID)
	mem, ok := m.memberships[key]
	now := time.Now().UTC()
	if !ok {
		mem = Membership{WorkspaceID: inv.WorkspaceID, UserID: inv.UserID, CreatedAt: now}
	}
	mem.Role = inv.Role
	mem.Active = true
	mem.InvitedBy = inv.InvitedBy
	mem.UpdatedAt = now
	m.memberships[key] = mem
	mem.Email = inv.Email
	return mem, nil
}

func (m *memStore) UpdateMemberRole(_ context.Context, ws, user string, role Role) (Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memberKey(ws, user)
	mem, ok := m.memberships[key]
	if !ok || !mem.Active {
		return Membership{}, ErrNotFound
	}
	mem.Role = role
	m.memberships[key] = mem
	mem.Email = m.identities[user].Email
	return mem, nil
}

func (m *memStore) DeactivateMember(_ context.Context, ws, user string) (Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memberKey(ws, user)
	mem, ok := m.memberships[key]
	if !ok || !mem.Active {
		return Membership{}, ErrNotFound
	}
	mem.Active = false
	m.memberships[key] = mem
	mem.Email = m.identities[user].Email
	return mem, nil
}

func (m *memStore) PermissionOverride(_ context.Context, ws string, role Role, perm Permission) (Effect, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrideLookups++
	if m.overrideErr != nil {
		return "", false, m.overrideErr
	}
	o, ok := m.overrides[overrideKey(ws, role, perm)]
	if !ok {
		return "", false, nil
	}
	return o.Effect, true, nil
}

func (m *memStore) ListPermissionOverrides(_ context.Context, ws string) ([]PermissionOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PermissionOverride
	for _, o := range m.overrides {
		if o.WorkspaceID == ws {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) UpsertPermissionOverride(_ context.Context, o PermissionOverride) (PermissionOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[overrideKey(o.WorkspaceID, o.Role, o.Permission)] = o
	return o, nil
}

func (m *memStore) DeletePermissionOverride(_ context.Context, ws string, role Role, perm Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := overrideKey(ws, role, perm)
	if _, ok := m.overrides[key]; !ok {
		return ErrNotFound
	}
	delete(m.overrides, key)
	return nil
}

func (m *memStore) addMember(ws, user, email string, role Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[user] = Identity{ID: user, Email: email}
	m.memberships[memberKey(ws, user)] = Membership{WorkspaceID: ws, UserID: user, Role: role, Active: true}
}

func (m *memStore) setOverride(ws string, role Role, perm Permission, effect Effect) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[overrideKey(ws, role, perm)] = PermissionOverride{WorkspaceID: ws, Role: role, Permission: perm, Effect: effect}
}
