package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customervoice.app/internal/audit"
	"customervoice.app/internal/auth"
	"customervoice.app/internal/config"
	"customervoice.app/internal/feedback"
)

func TestBootstrapCreatesAdmin(t *testing.T) {
	s := New()
	ctx := context.Background()

	ws, user, err := s.Bootstrap(ctx, config.Seed{WorkspaceID: "ws-1", UserID: "admin", UserEmail: "admin@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ws-1", ws)
	assert.Equal(t, "admin", user)

	ok, err := s.WorkspaceExists(ctx, "ws-1")
	require.NoError(t, err)
	assert.True(t, ok)

	m, err := s.FindMembership(ctx, "ws-1", "admin")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleWorkspaceAdmin, m.Role)
	assert.Equal(t, "admin@example.com", m.Email)
	assert.True(t, m.Active)
}

func TestMembershipLifecycle(t *testing.T) {
	s := New()
	s.AddWorkspace("ws-1")
	ctx := context.Background()

	_, err := s.InviteMember(ctx, auth.Invitation{WorkspaceID: "ws-missing", UserID: "u1", Email: "u1@example.com", Role: auth.RoleViewer})
	assert.ErrorIs(t, err, auth.ErrNotFound)

	_, err = s.InviteMember(ctx, auth.Invitation{WorkspaceID: "ws-1", UserID: "u1", Email: "u1@example.com", Role: auth.RoleViewer, InvitedBy: "admin"})
	require.NoError(t, err)

	m, err := s.DeactivateMember(ctx, "ws-1", "u1")
	require.NoError(t, err)
	assert.False(t, m.Active)

	_, err = s.UpdateMemberRole(ctx, "ws-1", "u1", auth.RoleContributor)
	assert.ErrorIs(t, err, auth.ErrNotFound, "inactive members cannot change role")

	m, err = s.InviteMember(ctx, auth.Invitation{WorkspaceID: "ws-1", UserID: "u1", Email: "u1@example.com", Role: auth.RoleProductManager, InvitedBy: "admin"})
	require.NoError(t, err)
	assert.True(t, m.Active)
	assert.Equal(t, auth.RoleProductManager, m.Role)

	list, err := s.ListMemberships(ctx, "ws-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestOverrides(t *testing.T) {
	s := New()
	s.AddWorkspace("ws-1")
	ctx := context.Background()

	_, found, err := s.PermissionOverride(ctx, "ws-1", auth.RoleViewer, auth.PermIdeaWrite)
	require.NoError(t, err)
	assert.False(t, found)

	first, err := s.UpsertPermissionOverride(ctx, auth.PermissionOverride{WorkspaceID: "ws-1", Role: auth.RoleViewer, Permission: auth.PermIdeaWrite, Effect: auth.EffectAllow})
	require.NoError(t, err)
	second, err := s.UpsertPermissionOverride(ctx, auth.PermissionOverride{WorkspaceID: "ws-1", Role: auth.RoleViewer, Permission: auth.PermIdeaWrite, Effect: auth.EffectDeny})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	effect, found, err := s.PermissionOverride(ctx, "ws-1", auth.RoleViewer, auth.PermIdeaWrite)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, auth.EffectDeny, effect)

	require.NoError(t, s.DeletePermissionOverride(ctx, "ws-1", auth.RoleViewer, auth.PermIdeaWrite))
	assert.ErrorIs(t, s.DeletePermissionOverride(ctx, "ws-1", auth.RoleViewer, auth.PermIdeaWrite), auth.ErrNotFound)
}

func TestAuditEventsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.AppendAuditEvent(ctx, audit.Event{ID: id, WorkspaceID: "ws-1", Action: "board.create", CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, s.AppendAuditEvent(ctx, audit.Event{ID: "z", WorkspaceID: "ws-2", CreatedAt: base}))

	events, err := s.ListAuditEvents(ctx, "ws-1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "c", events[0].ID)
	assert.Equal(t, "b", events[1].ID)
}

func TestFeedbackThroughService(t *testing.T) {
	s := New()
	s.AddWorkspace("ws-1")
	ctx := context.Background()
	_, err := s.InviteMember(ctx, auth.Invitation{WorkspaceID: "ws-1", UserID: "u1", Email: "u1@example.com", Role: auth.RoleContributor, InvitedBy: "admin"})
	require.NoError(t, err)

	svc := feedback.NewService(s)
	board, err := svc.CreateBoard(ctx, feedback.NewBoard{WorkspaceID: "ws-1", Name: "Roadmap", CreatedBy: "u1"})
	require.NoError(t, err)
	assert.Equal(t, feedback.VisibilityPublic, board.Visibility)

	_, err = s.FindBoard(ctx, "ws-2", board.ID)
	assert.ErrorIs(t, err, feedback.ErrBoardNotFound, "boards are workspace scoped")

	quiet, err := svc.CreateIdea(ctx, feedback.NewIdea{WorkspaceID: "ws-1", BoardID: board.ID, Title: "Dark mode", Description: "Please add a dark theme", CreatedBy: "u1"})
	require.NoError(t, err)
	popular, err := svc.CreateIdea(ctx, feedback.NewIdea{WorkspaceID: "ws-1", BoardID: board.ID, Title: "Export CSV", Description: "Export ideas to a spreadsheet", CreatedBy: "u1"})
	require.NoError(t, err)

	state, err := svc.Vote(ctx, "ws-1", board.ID, popular.ID, "u1")
	require.NoError(t, err)
	state, err = svc.Vote(ctx, "ws-1", board.ID, popular.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.VoteCount)
	assert.True(t, state.HasVoted)

	_, err = svc.CreateComment(ctx, "ws-1", board.ID, quiet.ID, "u1", "me too")
	require.NoError(t, err)

	ideas, err := svc.ListIdeas(ctx, "ws-1", board.ID, feedback.IdeaFilter{ViewerID: "u1"})
	require.NoError(t, err)
	require.Len(t, ideas, 2)
	assert.Equal(t, popular.ID, ideas[0].ID, "most voted first")
	assert.True(t, ideas[0].ViewerHasVoted)
	assert.Equal(t, 1, ideas[1].CommentCount)

	ideas, err = svc.ListIdeas(ctx, "ws-1", board.ID, feedback.IdeaFilter{Search: "DARK"})
	require.NoError(t, err)
	require.Len(t, ideas, 1)
	assert.Equal(t, quiet.ID, ideas[0].ID)

	comments, err := svc.ListComments(ctx, "ws-1", board.ID, quiet.ID, 0)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "u1@example.com", comments[0].UserEmail)

	state, err = svc.Unvote(ctx, "ws-1", board.ID, popular.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, state.VoteCount)
	assert.False(t, state.HasVoted)

	inactive := false
	_, err = svc.UpdateBoard(ctx, "ws-1", board.ID, feedback.BoardUpdate{Active: &inactive})
	require.NoError(t, err)
	_, err = svc.ListIdeas(ctx, "ws-1", board.ID, feedback.IdeaFilter{})
	assert.ErrorIs(t, err, feedback.ErrBoardNotFound)

	boards, err := svc.ListBoards(ctx, "ws-1", false)
	require.NoError(t, err)
	assert.Empty(t, boards)
}
