package auth

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"customervoice.app/internal/obs"
)

const tracerName = "customervoice.app/internal/auth"

// Decision sources reported in metrics and spans.
const (
	sourceOverride = "override"
	sourceCatalog  = "catalog"
)

// Evaluator decides whether a role may use a permission in a workspace.
// Every call performs exactly one override lookup; nothing is cached.
type Evaluator struct {
	overrides OverrideStore
	tracer    trace.Tracer
}

// NewEvaluator constructs an Evaluator backed by the given override store.
func NewEvaluator(overrides OverrideStore) *Evaluator {
	return &Evaluator{
		overrides: overrides,
		tracer:    otel.Tracer(tracerName),
	}
}

// Can applies a deny override, then an allow override, then the catalog.
func (e *Evaluator) Can(ctx context.Context, workspaceID string, role Role, perm Permission) (bool, error) {
	if e == nil || e.overrides == nil {
		return false, errors.New("auth: evaluator has no override store")
	}
	ctx, span := e.tracer.Start(ctx, "authz.Can", trace.WithAttributes(
		attribute.String("workspace.id", workspaceID),
		attribute.String("authz.role", string(role)),
		attribute.String("authz.permission", string(perm)),
	))
	defer span.End()

	effect, found, err := e.overrides.PermissionOverride(ctx, workspaceID, role, perm)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "override lookup failed")
		return false, fmt.Errorf("lookup permission override: %w", err)
	}

	allowed, source := decide(role, perm, effect, found)
	span.SetAttributes(
		attribute.Bool("authz.allowed", allowed),
		attribute.String("authz.source", source),
	)
	obs.ObserveAuthzDecision(string(perm), allowed, source)
	return allowed, nil
}

func decide(role Role, perm Permission, effect Effect, found bool) (bool, string) {
	if found {
		switch effect {
		case EffectDeny:
			return false, sourceOverride
		case EffectAllow:
			return true, sourceOverride
		}
	}
	return CatalogAllows(role, perm), sourceCatalog
}
