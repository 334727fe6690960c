package auth

import "context"

// Actor is the request-scoped identity, workspace and role used for
// authorization decisions. It is never persisted.
type Actor struct {
	UserID      string `json:"userId"`
	WorkspaceID string `json:"workspaceId"`
	Role        Role   `json:"role"`
	Email       string `json:"email"`
}

type actorContextKey struct{}

// ContextWithActor attaches the resolved actor to the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, &actor)
}

// ActorFromContext extracts the resolved actor from the context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	v, ok := ctx.Value(actorContextKey{}).(*Actor)
	if !ok || v == nil {
		return Actor{}, false
	}
	return *v, true
}
