package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"customervoice.app/internal/audit"
	"customervoice.app/internal/auth"
)

type inviteMemberRequest struct {
	UserID string    `json:"userId"`
	Email  string    `json:"email"`
	Role   auth.Role `json:"role"`
}

type updateRoleRequest struct {
	Role auth.Role `json:"role"`
}

type setOverrideRequest struct {
	Role       auth.Role       `json:"role"`
	Permission auth.Permission `json:"permission"`
	Effect     auth.Effect     `json:"effect"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func items[T any](v []T) listResponse[T] {
	if v == nil {
		v = []T{}
	}
	return listResponse[T]{Items: v}
}

// requireWorkspace answers workspace_not_found unless the path workspace
// exists and is active.
func (a *API) requireWorkspace(w http.ResponseWriter, r *http.Request) (string, bool) {
	workspaceID := mux.Vars(r)["workspaceId"]
	ok, err := a.workspaces.WorkspaceExists(r.Context(), workspaceID)
	if err != nil {
		writeInternal(w, r, err)
		return "", false
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, codeWorkspaceNotFound)
		return "", false
	}
	return workspaceID, true
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := a.requireWorkspace(w, r)
	if !ok {
		return
	}
	members, err := a.members.List(r.Context(), workspaceID)
	if err != nil {
		handleAuthError(w, r, err, codeMemberNotFound)
		return
	}
	writeJSON(w, http.StatusOK, items(members))
}

func (a *API) inviteMember(w http.ResponseWriter, r *http.Request) {
	var req inviteMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		invalidPayload(w, r, err)
		return
	}
	if !req.Role.Valid() {
		invalidPayload(w, r, errors.New("role is invalid"))
		return
	}
	workspaceID, ok := a.requireWorkspace(w, r)
	if !ok {
		return
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeActorRequired)
		return
	}

	m, err := a.members.Invite(r.Context(), auth.Invitation{
		WorkspaceID: workspaceID,
		UserID:      req.UserID,
		Email:       req.Email,
		Role:        req.Role,
		InvitedBy:   actor.UserID,
	})
	if err != nil {
		handleAuthError(w, r, err, codeWorkspaceNotFound)
		return
	}
	a.emit(r, "membership.invite", map[string]any{
		"targetUserId": m.UserID,
		"role":         m.Role,
	})
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		invalidPayload(w, r, err)
		return
	}
	if !req.Role.Valid() {
		invalidPayload(w, r, errors.New("role is invalid"))
		return
	}
	vars := mux.Vars(r)
	m, err := a.members.UpdateRole(r.Context(), vars["workspaceId"], vars["userId"], req.Role)
	if err != nil {
		handleAuthError(w, r, err, codeMemberNotFound)
		return
	}
	a.emit(r, "membership.role_update", map[string]any{
		"targetUserId": m.UserID,
		"role":         m.Role,
	})
	writeJSON(w, http.StatusOK, m)
}

func (a *API) deactivateMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	m, err := a.members.Deactivate(r.Context(), vars["workspaceId"], vars["userId"])
	if err != nil {
		handleAuthError(w, r, err, codeMemberNotFound)
		return
	}
	a.emit(r, "membership.deactivate", map[string]any{
		"targetUserId": m.UserID,
	})
	writeJSON(w, http.StatusOK, m)
}

func (a *API) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, 1, 500)
	if !ok {
		writeError(w, r, http.StatusBadRequest, codeInvalidLimit)
		return
	}
	events, err := a.audit.List(r.Context(), mux.Vars(r)["workspaceId"], limit)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items[audit.Event](events))
}

func (a *API) describePolicy(w http.ResponseWriter, r *http.Request) {
	view, err := a.policies.Describe(r.Context(), mux.Vars(r)["workspaceId"])
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) setOverride(w http.ResponseWriter, r *http.Request) {
	var req setOverrideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		invalidPayload(w, r, err)
		return
	}
	o, err := a.policies.Set(r.Context(), auth.PermissionOverride{
		WorkspaceID: mux.Vars(r)["workspaceId"],
		Role:        req.Role,
		Permission:  req.Permission,
		Effect:      req.Effect,
	})
	if err != nil {
		handleAuthError(w, r, err, codeWorkspaceNotFound)
		return
	}
	a.emit(r, "policy.override.upsert", map[string]any{
		"role":       o.Role,
		"permission": o.Permission,
		"effect":     o.Effect,
	})
	writeJSON(w, http.StatusOK, o)
}

func (a *API) deleteOverride(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	role := auth.Role(vars["role"])
	perm := auth.Permission(vars["permission"])
	if err := a.policies.Remove(r.Context(), vars["workspaceId"], role, perm); err != nil {
		handleAuthError(w, r, err, codePolicyNotFound)
		return
	}
	a.emit(r, "policy.override.delete", map[string]any{
		"role":       role,
		"permission": perm,
	})
	w.WriteHeader(http.StatusNoContent)
}
