//go:build integration

package pg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"customervoice.app/internal/audit"
	"customervoice.app/internal/auth"
	"customervoice.app/internal/config"
	"customervoice.app/internal/feedback"
	"customervoice.app/internal/migrate"
)

func setupPostgres(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration tests")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("customervoice_test"),
		postgres.WithUsername("customervoice"),
		postgres.WithPassword("customervoice_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	store, err := Open(dsn, PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, migrate.NewManager(store.DB(), migrate.Schema(), nil).Up(ctx))
	return store
}

func TestIntegrationMembershipAndPolicy(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	seeded, err := store.Bootstrap(ctx, config.Seed{Enabled: true, TenantID: "t1", WorkspaceID: "ws-1", UserID: "admin"})
	require.NoError(t, err)
	_, err = store.Bootstrap(ctx, config.Seed{Enabled: true, TenantID: "t1", WorkspaceID: "ws-1", UserID: "admin"})
	require.NoError(t, err, "seed must be idempotent")

	ok, err := store.WorkspaceExists(ctx, seeded.WorkspaceID)
	require.NoError(t, err)
	assert.True(t, ok)

	members := auth.NewMemberService(store)
	m, err := members.Invite(ctx, auth.Invitation{WorkspaceID: "ws-1", UserID: "u2", Email: "u2@example.com", Role: auth.RoleViewer, InvitedBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleViewer, m.Role)

	_, err = members.Deactivate(ctx, "ws-1", "u2")
	require.NoError(t, err)
	m, err = members.Invite(ctx, auth.Invitation{WorkspaceID: "ws-1", UserID: "u2", Email: "u2@example.com", Role: auth.RoleContributor, InvitedBy: "admin"})
	require.NoError(t, err)
	assert.True(t, m.Active)
	assert.Equal(t, auth.RoleContributor, m.Role)

	list, err := members.List(ctx, "ws-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	evaluator := auth.NewEvaluator(store)
	allowed, err := evaluator.Can(ctx, "ws-1", auth.RoleViewer, auth.PermMembershipWrite)
	require.NoError(t, err)
	assert.False(t, allowed)

	policies := auth.NewPolicyService(store)
	_, err = policies.Set(ctx, auth.PermissionOverride{WorkspaceID: "ws-1", Role: auth.RoleViewer, Permission: auth.PermMembershipWrite, Effect: auth.EffectAllow})
	require.NoError(t, err)
	allowed, err = evaluator.Can(ctx, "ws-1", auth.RoleViewer, auth.PermMembershipWrite)
	require.NoError(t, err)
	assert.True(t, allowed)

	_, err = policies.Set(ctx, auth.PermissionOverride{WorkspaceID: "ws-1", Role: auth.RoleViewer, Permission: auth.PermMembershipWrite, Effect: auth.EffectDeny})
	require.NoError(t, err)
	allowed, err = evaluator.Can(ctx, "ws-1", auth.RoleViewer, auth.PermMembershipWrite)
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, policies.Remove(ctx, "ws-1", auth.RoleViewer, auth.PermMembershipWrite))
	assert.ErrorIs(t, policies.Remove(ctx, "ws-1", auth.RoleViewer, auth.PermMembershipWrite), auth.ErrNotFound)
}

func TestIntegrationFeedbackAndAudit(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	_, err := store.Bootstrap(ctx, config.Seed{Enabled: true, TenantID: "t1", WorkspaceID: "ws-1", UserID: "admin"})
	require.NoError(t, err)

	svc := feedback.NewService(store)
	board, err := svc.CreateBoard(ctx, feedback.NewBoard{WorkspaceID: "ws-1", Name: "Product Ideas", CreatedBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, feedback.VisibilityPublic, board.Visibility)

	idea, err := svc.CreateIdea(ctx, feedback.NewIdea{WorkspaceID: "ws-1", BoardID: board.ID, Title: "Dark mode", Description: "Please add dark mode", CreatedBy: "admin"})
	require.NoError(t, err)

	st, err := svc.Vote(ctx, "ws-1", board.ID, idea.ID, "admin")
	require.NoError(t, err)
	st, err = svc.Vote(ctx, "ws-1", board.ID, idea.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, feedback.VoteState{IdeaID: idea.ID, VoteCount: 1, HasVoted: true}, st)

	_, err = svc.CreateComment(ctx, "ws-1", board.ID, idea.ID, "admin", "Seconded by support")
	require.NoError(t, err)

	ideas, err := svc.ListIdeas(ctx, "ws-1", board.ID, feedback.IdeaFilter{ViewerID: "admin", Search: "dark"})
	require.NoError(t, err)
	require.Len(t, ideas, 1)
	assert.Equal(t, 1, ideas[0].VoteCount)
	assert.Equal(t, 1, ideas[0].CommentCount)
	assert.True(t, ideas[0].ViewerHasVoted)

	comments, err := svc.ListComments(ctx, "ws-1", board.ID, idea.ID, 0)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "admin@customervoice.local", comments[0].UserEmail)

	emitter := audit.NewEmitter(store)
	actorCtx := auth.ContextWithActor(ctx, auth.Actor{UserID: "admin", WorkspaceID: "ws-1", Role: auth.RoleWorkspaceAdmin})
	require.NoError(t, emitter.Emit(actorCtx, "board.create", map[string]any{"boardId": board.ID}))
	require.NoError(t, emitter.Emit(actorCtx, "idea.create", map[string]any{"ideaId": idea.ID}))

	events, err := emitter.List(ctx, "ws-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "idea.create", events[0].Action)
	assert.Equal(t, board.ID, events[1].Metadata["boardId"])
}
