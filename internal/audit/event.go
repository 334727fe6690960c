package audit

import (
	"context"
	"time"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// Event is an immutable record of a workspace-scoped action.
type Event struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspaceId"`
	ActorID     string         `json:"actorId"`
	Action      string         `json:"action"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Store is an append-only audit log.
type Store interface {
	AppendAuditEvent(ctx context.Context, e Event) error
	// ListAuditEvents returns the newest events first. limit is clamped.
	ListAuditEvents(ctx context.Context, workspaceID string, limit int) ([]Event, error)
}

// ClampLimit bounds a list limit to [1, MaxListLimit]; zero means the default.
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultListLimit
	case limit < 1:
		return 1
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
