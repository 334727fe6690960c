package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"customervoice.app/internal/audit"
)

var _ audit.Store = (*Store)(nil)

func (s *Store) AppendAuditEvent(ctx context.Context, e audit.Event) error {
	if s.db == nil {
		return errNoDB
	}
	metaJSON := []byte("{}")
	if len(e.Metadata) > 0 {
		bytes, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metaJSON = bytes
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_events (id, workspace_id, actor_id, action, metadata, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.WorkspaceID, e.ActorID, e.Action, metaJSON, e.CreatedAt)
	return err
}

// ListAuditEvents returns the newest events first.
func (s *Store) ListAuditEvents(ctx context.Context, workspaceID string, limit int) ([]audit.Event, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, workspace_id, actor_id, action, metadata, created_at
		from audit_events
		where workspace_id = $1
		order by created_at desc, id desc
		limit $2
	`, workspaceID, audit.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []audit.Event{}
	for rows.Next() {
		var (
			e      audit.Event
			rawMet []byte
		)
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.ActorID, &e.Action, &rawMet, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Metadata = map[string]any{}
		if len(rawMet) > 0 {
			if err := json.Unmarshal(rawMet, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
