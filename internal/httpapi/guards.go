package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"customervoice.app/internal/audit"
	"customervoice.app/internal/auth"
	"customervoice.app/internal/obs"
)

// pathWorkspace returns the workspace addressed by the route, falling back to
// the raw URL when the route declares no workspaceId variable.
func pathWorkspace(r *http.Request) string {
	if ws := mux.Vars(r)["workspaceId"]; ws != "" {
		return ws
	}
	return auth.WorkspaceFromPath(r.URL.Path)
}

// ResolveActor attaches the Actor produced by the configured resolver.
func (a *API) ResolveActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pathWS := pathWorkspace(r)
		ctx := audit.WithPathWorkspace(r.Context(), pathWS)
		req := auth.Request{Header: r.Header, PathWorkspaceID: pathWS}

		actor, err := a.resolver.Resolve(ctx, req)
		if err != nil {
			ws, _ := req.WorkspaceContext()
			handleResolveError(w, r, ws, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithActor(ctx, actor)))
	})
}

// EnforceWorkspaceScope rejects actors addressing another workspace.
func EnforceWorkspaceScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := auth.CheckWorkspaceScope(r.Context(), pathWorkspace(r)); err != nil {
			if errors.Is(err, auth.ErrWorkspaceScopeViolation) {
				actor, _ := auth.ActorFromContext(r.Context())
				obs.Logger().WithFields(logrus.Fields{
					"request_id":   requestID(r),
					"user_id":      actor.UserID,
					"workspace_id": actor.WorkspaceID,
					"path_ws":      pathWorkspace(r),
				}).Info("workspace_scope_violation")
			}
			handleAuthError(w, r, err, codeWorkspaceNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission guards a handler with perm. Declaring an unknown
// permission is a programming error and panics at route registration.
func (a *API) RequirePermission(perm auth.Permission) func(http.Handler) http.Handler {
	if !perm.Valid() {
		panic(fmt.Sprintf("invalid permission declaration: %s", perm))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := a.evaluator.Authorize(r.Context(), perm)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, auth.ErrActorRequired):
				writeError(w, r, http.StatusUnauthorized, codeActorRequired)
			case errors.Is(err, auth.ErrForbidden):
				obs.Logger().WithFields(logrus.Fields{
					"request_id":   requestID(r),
					"user_id":      actor.UserID,
					"workspace_id": actor.WorkspaceID,
					"role":         actor.Role,
					"permission":   perm,
				}).Info("permission_denied")
				writeErrorFields(w, r, http.StatusForbidden, codeForbidden, map[string]any{
					"permission": perm,
					"role":       actor.Role,
				})
			default:
				writeInternal(w, r, err)
			}
		})
	}
}
