package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"customervoice.app/internal/auth"
	"customervoice.app/internal/ids"
	"customervoice.app/internal/obs"
)

type pathWorkspaceKey struct{}

// WithPathWorkspace records the workspace addressed by the request path. It
// is used when no actor is attached to the context.
func WithPathWorkspace(ctx context.Context, workspaceID string) context.Context {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return ctx
	}
	return context.WithValue(ctx, pathWorkspaceKey{}, workspaceID)
}

func pathWorkspaceFromContext(ctx context.Context) string {
	v, _ := ctx.Value(pathWorkspaceKey{}).(string)
	return v
}

// Emitter appends audit events for the actor in context. Call it only after
// the triggering mutation has committed.
type Emitter struct {
	store     Store
	publisher Publisher
	now       func() time.Time
	newID     func() string
	tracer    trace.Tracer
}

// Publisher receives every persisted event, keyed by workspace.
type Publisher interface {
	Publish(workspaceID string, e Event) int
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithClock overrides the event timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(e *Emitter) {
		if fn != nil {
			e.now = fn
		}
	}
}

// WithPublisher forwards persisted events to p for live subscribers.
func WithPublisher(p Publisher) Option {
	return func(e *Emitter) {
		e.publisher = p
	}
}

// WithIDGenerator overrides event id generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Emitter) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEmitter constructs an Emitter writing to store.
func NewEmitter(store Store, opts ...Option) *Emitter {
	e := &Emitter{
		store:  store,
		now:    time.Now,
		newID:  ids.New,
		tracer: otel.Tracer("customervoice.app/internal/audit"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit records action with metadata. The workspace comes from the actor,
// falling back to the path workspace; the actor id comes only from the
// actor. When either is unknown Emit does nothing and returns nil. A failed
// write is counted and returned; it never undoes the mutation.
func (e *Emitter) Emit(ctx context.Context, action string, metadata map[string]any) error {
	actor, hasActor := auth.ActorFromContext(ctx)
	workspaceID := actor.WorkspaceID
	if workspaceID == "" {
		workspaceID = pathWorkspaceFromContext(ctx)
	}
	if !hasActor || actor.UserID == "" || workspaceID == "" {
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "audit.Emit", trace.WithAttributes(
		attribute.String("audit.action", action),
		attribute.String("workspace.id", workspaceID),
	))
	defer span.End()

	if metadata == nil {
		metadata = map[string]any{}
	}
	ev := Event{
		ID:          e.newID(),
		WorkspaceID: workspaceID,
		ActorID:     actor.UserID,
		Action:      action,
		Metadata:    metadata,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.store.AppendAuditEvent(ctx, ev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		obs.ObserveAuditFailure(action)
		return fmt.Errorf("append audit event %s: %w", action, err)
	}
	logEvent(ctx, ev)
	if e.publisher != nil {
		e.publisher.Publish(workspaceID, ev)
	}
	return nil
}

// List returns recent events of a workspace.
func (e *Emitter) List(ctx context.Context, workspaceID string, limit int) ([]Event, error) {
	return e.store.ListAuditEvents(ctx, workspaceID, ClampLimit(limit))
}
