package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"customervoice.app/internal/auth"
	"customervoice.app/internal/feedback"
	"customervoice.app/internal/obs"
)

// Error codes returned in the "error" field of every failure body.
const (
	codeWorkspaceContextRequired = "workspace_context_required"
	codeBearerTokenRequired      = "bearer_token_required"
	codeMissingActorHeaders      = "missing_mock_actor_headers"
	codeInvalidAccessToken       = "invalid_access_token"
	codeInvalidTokenClaims       = "invalid_token_claims"
	codeInvalidRole              = "invalid_mock_role"
	codeMembershipRequired       = "membership_required"
	codeActorRequired            = "actor_required"
	codeForbidden                = "forbidden"
	codeWorkspaceScopeViolation  = "workspace_scope_violation"
	codeWorkspaceNotFound        = "workspace_not_found"
	codeMemberNotFound           = "member_not_found"
	codeBoardNotFound            = "board_not_found"
	codeIdeaNotFound             = "idea_not_found"
	codePolicyNotFound           = "policy_override_not_found"
	codeInvalidPayload           = "invalid_payload"
	codeInvalidLimit             = "invalid_limit"
	codeInvalidQuery             = "invalid_query"
	codeInternal                 = "internal_error"
	codeStreamingDisabled        = "streaming_disabled"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorFields(w, r, code, msg, nil)
}

func writeErrorFields(w http.ResponseWriter, r *http.Request, code int, msg string, fields map[string]any) {
	payload := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		payload[k] = v
	}
	payload["error"] = msg
	if rid := requestID(r); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	obs.Logger().WithFields(logrus.Fields{
		"request_id": requestID(r),
		"path":       r.URL.Path,
	}).WithError(err).Error("internal_error")
	writeErrorFields(w, r, http.StatusInternalServerError, codeInternal, map[string]any{
		"message": err.Error(),
	})
}

func invalidPayload(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorFields(w, r, http.StatusBadRequest, codeInvalidPayload, map[string]any{
		"details": detailFrom(err),
	})
}

func invalidQuery(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorFields(w, r, http.StatusBadRequest, codeInvalidQuery, map[string]any{
		"details": detailFrom(err),
	})
}

// detailFrom strips the package prefix of sentinel errors.
func detailFrom(err error) string {
	msg := err.Error()
	for _, prefix := range []string{"feedback: invalid input: ", "auth: invalid input: "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "not_found")
}

// handleResolveError maps actor resolution failures.
func handleResolveError(w http.ResponseWriter, r *http.Request, workspaceID string, err error) {
	switch {
	case errors.Is(err, auth.ErrWorkspaceContextMissing):
		writeError(w, r, http.StatusBadRequest, codeWorkspaceContextRequired)
	case errors.Is(err, auth.ErrBearerTokenMissing):
		writeError(w, r, http.StatusUnauthorized, codeBearerTokenRequired)
	case errors.Is(err, auth.ErrMissingActorHeaders):
		writeError(w, r, http.StatusUnauthorized, codeMissingActorHeaders)
	case errors.Is(err, auth.ErrInvalidRole):
		writeError(w, r, http.StatusUnauthorized, codeInvalidRole)
	case errors.Is(err, auth.ErrInvalidTokenClaims):
		writeError(w, r, http.StatusUnauthorized, codeInvalidTokenClaims)
	case errors.Is(err, auth.ErrInvalidToken):
		obs.Logger().WithFields(logrus.Fields{
			"request_id": requestID(r),
			"reason":     err.Error(),
		}).Info("token_rejected")
		writeError(w, r, http.StatusUnauthorized, codeInvalidAccessToken)
	case errors.Is(err, auth.ErrMembershipRequired):
		writeErrorFields(w, r, http.StatusForbidden, codeMembershipRequired, map[string]any{
			"workspaceId": workspaceID,
		})
	default:
		writeInternal(w, r, err)
	}
}

// handleAuthError maps guard and membership/policy service failures.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error, notFoundCode string) {
	switch {
	case errors.Is(err, auth.ErrActorRequired):
		writeError(w, r, http.StatusUnauthorized, codeActorRequired)
	case errors.Is(err, auth.ErrWorkspaceScopeViolation):
		writeError(w, r, http.StatusForbidden, codeWorkspaceScopeViolation)
	case errors.Is(err, auth.ErrInvalidInput):
		invalidPayload(w, r, err)
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, notFoundCode)
	default:
		writeInternal(w, r, err)
	}
}

func handleFeedbackError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, feedback.ErrInvalidInput):
		invalidPayload(w, r, err)
	case errors.Is(err, feedback.ErrBoardNotFound):
		writeError(w, r, http.StatusNotFound, codeBoardNotFound)
	case errors.Is(err, feedback.ErrIdeaNotFound):
		writeError(w, r, http.StatusNotFound, codeIdeaNotFound)
	default:
		writeInternal(w, r, err)
	}
}

// parseLimit reads an optional integer query parameter. ok is false when the
// value is present but not an integer within [lo, hi].
func parseLimit(r *http.Request, lo, hi int) (limit int, ok bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

// parseBool accepts the usual spellings of a boolean query flag.
func parseBool(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
