package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"customervoice.app/internal/config"
)

// BootstrapResult reports the identifiers the seed settled on.
type BootstrapResult struct {
	TenantID    string
	WorkspaceID string
	UserID      string
	UserEmail   string
}

// Bootstrap idempotently creates a tenant, a workspace and an admin member in
// one transaction. Missing identifiers are generated.
func (s *Store) Bootstrap(ctx context.Context, seed config.Seed) (BootstrapResult, error) {
	if s.db == nil {
		return BootstrapResult{}, errNoDB
	}
	res := BootstrapResult{
		TenantID:    orNew(seed.TenantID),
		WorkspaceID: orNew(seed.WorkspaceID),
		UserID:      orNew(seed.UserID),
		UserEmail:   orDefault(seed.UserEmail, "admin@customervoice.local"),
	}
	tenantSlug := orDefault(seed.TenantSlug, "customervoice-demo")
	workspaceSlug := orDefault(seed.WorkspaceSlug, "default")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return BootstrapResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	steps := []struct {
		name  string
		query string
		args  []any
	}{
		{"tenant", `
			insert into tenants (id, name, slug)
			values ($1, 'CustomerVoice Demo Tenant', $2)
			on conflict (id) do update set name = excluded.name
		`, []any{res.TenantID, tenantSlug}},
		{"workspace", `
			insert into workspaces (id, tenant_id, name, slug, residency_zone, active)
			values ($1, $2, 'Default Workspace', $3, 'US', true)
			on conflict (id) do update set name = excluded.name, active = true
		`, []any{res.WorkspaceID, res.TenantID, workspaceSlug}},
		{"user", `
			insert into users (id, email, display_name)
			values ($1, $2, 'Bootstrap Admin')
			on conflict (id) do update set email = excluded.email, updated_at = now()
		`, []any{res.UserID, res.UserEmail}},
		{"membership", `
			insert into workspace_memberships (workspace_id, user_id, role, active, invited_by)
			values ($1, $2, 'workspace_admin', true, $2)
			on conflict (workspace_id, user_id)
			do update set role = excluded.role, active = true, updated_at = now()
		`, []any{res.WorkspaceID, res.UserID}},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query, step.args...); err != nil {
			return BootstrapResult{}, fmt.Errorf("seed %s: %w", step.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return BootstrapResult{}, err
	}
	return res, nil
}

func orNew(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
