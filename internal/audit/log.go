package audit

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"customervoice.app/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// logEvent mirrors a persisted event to the structured log.
func logEvent(ctx context.Context, ev Event) {
	fields := logrus.Fields{
		"type":         "audit",
		"event":        ev.Action,
		"event_id":     ev.ID,
		"workspace_id": ev.WorkspaceID,
		"user_id":      ev.ActorID,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		fields["request_id"] = rid
	}
	copyFields := make(map[string]any, len(ev.Metadata))
	for k, v := range ev.Metadata {
		copyFields[k] = v
	}
	fields["fields"] = copyFields
	obs.Logger().WithFields(fields).Info("audit_event")
}
