package auth

import (
	"context"
	"regexp"
)

var workspacePathPattern = regexp.MustCompile(`/workspaces/([^/]+)`)

// WorkspaceFromPath extracts the workspace id addressed by a URL path.
func WorkspaceFromPath(path string) string {
	m := workspacePathPattern.FindStringSubmatch(path)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// CheckWorkspaceScope rejects an actor addressing a workspace other than the
// one it was bound to. An empty pathWorkspaceID is not a violation.
func CheckWorkspaceScope(ctx context.Context, pathWorkspaceID string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ErrActorRequired
	}
	if pathWorkspaceID != "" && pathWorkspaceID != actor.WorkspaceID {
		return ErrWorkspaceScopeViolation
	}
	return nil
}

// Authorize checks perm for the actor in ctx.
func (e *Evaluator) Authorize(ctx context.Context, perm Permission) (Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return Actor{}, ErrActorRequired
	}
	allowed, err := e.Can(ctx, actor.WorkspaceID, actor.Role, perm)
	if err != nil {
		return actor, err
	}
	if !allowed {
		return actor, ErrForbidden
	}
	return actor, nil
}
