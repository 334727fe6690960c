package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"customervoice.app/internal/auth"
)

var (
	_ auth.IdentityStore   = (*Store)(nil)
	_ auth.MembershipAdmin = (*Store)(nil)
	_ auth.WorkspaceStore  = (*Store)(nil)
	_ auth.OverrideAdmin   = (*Store)(nil)
)

const upsertUserSQL = `
	insert into users (id, email, display_name)
	values ($1, $2, $3)
	on conflict (id) do update
	set email = excluded.email,
	    display_name = coalesce(excluded.display_name, users.display_name),
	    updated_at = now()
`

// UpsertIdentity records the user behind a verified token. A blank display
// name keeps the stored one.
func (s *Store) UpsertIdentity(ctx context.Context, identity auth.Identity) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, upsertUserSQL, identity.ID, identity.Email, nullIfEmpty(identity.DisplayName))
	return err
}

func (s *Store) WorkspaceExists(ctx context.Context, workspaceID string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	var present int
	err := s.db.QueryRowContext(ctx, `select 1 from workspaces where id = $1 and active = true`, workspaceID).Scan(&present)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const membershipColumns = `
	m.workspace_id, m.user_id, u.email, m.role, m.active, m.invited_by, m.created_at, m.updated_at
	from workspace_memberships m
	join users u on u.id = m.user_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (auth.Membership, error) {
	var (
		m         auth.Membership
		role      string
		invitedBy sql.NullString
	)
	if err := row.Scan(&m.WorkspaceID, &m.UserID, &m.Email, &role, &m.Active, &invitedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return auth.Membership{}, err
	}
	m.Role = auth.Role(role)
	m.InvitedBy = invitedBy.String
	return m, nil
}

func (s *Store) FindMembership(ctx context.Context, workspaceID, userID string) (auth.Membership, error) {
	if s.db == nil {
		return auth.Membership{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `select `+membershipColumns+`
		where m.workspace_id = $1 and m.user_id = $2
	`, workspaceID, userID)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Membership{}, auth.ErrNotFound
	}
	return m, err
}

func (s *Store) ListMemberships(ctx context.Context, workspaceID string) ([]auth.Membership, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+membershipColumns+`
		where m.workspace_id = $1
		order by m.created_at asc
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []auth.Membership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// InviteMember upserts the user and the membership in one transaction. An
// existing membership is reactivated with the new role.
func (s *Store) InviteMember(ctx context.Context, inv auth.Invitation) (auth.Membership, error) {
	if s.db == nil {
		return auth.Membership{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.Membership{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsertUserSQL, inv.UserID, inv.Email, sql.NullString{}); err != nil {
		return auth.Membership{}, fmt.Errorf("upsert user: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		insert into workspace_memberships (workspace_id, user_id, role, active, invited_by)
		values ($1, $2, $3, true, $4)
		on conflict (workspace_id, user_id) do update
		set role = excluded.role,
		    active = true,
		    invited_by = excluded.invited_by,
		    updated_at = now()
	`, inv.WorkspaceID, inv.UserID, string(inv.Role), nullIfEmpty(inv.InvitedBy)); err != nil {
		if isFKViolation(err, "workspace_memberships_workspace_id_fkey") {
			return auth.Membership{}, auth.ErrNotFound
		}
		return auth.Membership{}, fmt.Errorf("upsert membership: %w", err)
	}
	m, err := scanMembership(tx.QueryRowContext(ctx, `select `+membershipColumns+`
		where m.workspace_id = $1 and m.user_id = $2
	`, inv.WorkspaceID, inv.UserID))
	if err != nil {
		return auth.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.Membership{}, err
	}
	return m, nil
}

// UpdateMemberRole changes the role of an active member.
func (s *Store) UpdateMemberRole(ctx context.Context, workspaceID, userID string, role auth.Role) (auth.Membership, error) {
	return s.updateActiveMember(ctx, `
		update workspace_memberships
		set role = $3, updated_at = now()
		where workspace_id = $1 and user_id = $2 and active = true
		returning user_id
	`, workspaceID, userID, string(role))
}

// DeactivateMember soft-deletes an active membership.
func (s *Store) DeactivateMember(ctx context.Context, workspaceID, userID string) (auth.Membership, error) {
	return s.updateActiveMember(ctx, `
		update workspace_memberships
		set active = false, updated_at = now()
		where workspace_id = $1 and user_id = $2 and active = true
		returning user_id
	`, workspaceID, userID)
}

func (s *Store) updateActiveMember(ctx context.Context, query, workspaceID, userID string, extra ...any) (auth.Membership, error) {
	if s.db == nil {
		return auth.Membership{}, errNoDB
	}
	args := append([]any{workspaceID, userID}, extra...)
	var updated string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Membership{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Membership{}, err
	}
	return s.FindMembership(ctx, workspaceID, userID)
}

// PermissionOverride looks up the override row for an exact triple.
func (s *Store) PermissionOverride(ctx context.Context, workspaceID string, role auth.Role, perm auth.Permission) (auth.Effect, bool, error) {
	if s.db == nil {
		return "", false, errNoDB
	}
	var effect string
	err := s.db.QueryRowContext(ctx, `
		select effect
		from workspace_role_permissions
		where workspace_id = $1 and role = $2 and permission = $3
	`, workspaceID, string(role), string(perm)).Scan(&effect)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return auth.Effect(effect), true, nil
}

func (s *Store) ListPermissionOverrides(ctx context.Context, workspaceID string) ([]auth.PermissionOverride, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select workspace_id, role, permission, effect, created_at
		from workspace_role_permissions
		where workspace_id = $1
		order by role, permission
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []auth.PermissionOverride{}
	for rows.Next() {
		var (
			o                  auth.PermissionOverride
			role, perm, effect string
		)
		if err := rows.Scan(&o.WorkspaceID, &role, &perm, &effect, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Role, o.Permission, o.Effect = auth.Role(role), auth.Permission(perm), auth.Effect(effect)
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertPermissionOverride replaces the effect of an existing triple.
func (s *Store) UpsertPermissionOverride(ctx context.Context, o auth.PermissionOverride) (auth.PermissionOverride, error) {
	if s.db == nil {
		return auth.PermissionOverride{}, errNoDB
	}
	err := s.db.QueryRowContext(ctx, `
		insert into workspace_role_permissions (workspace_id, role, permission, effect)
		values ($1, $2, $3, $4)
		on conflict (workspace_id, role, permission) do update
		set effect = excluded.effect
		returning created_at
	`, o.WorkspaceID, string(o.Role), string(o.Permission), string(o.Effect)).Scan(&o.CreatedAt)
	if err != nil {
		if isFKViolation(err, "workspace_role_permissions_workspace_id_fkey") {
			return auth.PermissionOverride{}, auth.ErrNotFound
		}
		return auth.PermissionOverride{}, err
	}
	return o, nil
}

func (s *Store) DeletePermissionOverride(ctx context.Context, workspaceID string, role auth.Role, perm auth.Permission) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		delete from workspace_role_permissions
		where workspace_id = $1 and role = $2 and permission = $3
	`, workspaceID, string(role), string(perm))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
