package feedback

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"customervoice.app/internal/ids"
)

const (
	DefaultIdeaLimit    = 100
	MaxIdeaLimit        = 200
	DefaultCommentLimit = 100
	MaxCommentLimit     = 300
	MaxSearchLength     = 120
)

// Service implements board, idea, vote and comment operations on top of a Store.
type Service struct {
	store Store
	now   func() time.Time
	newID func() string
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now, newID: ids.New}
}

func (s *Service) ListBoards(ctx context.Context, workspaceID string, includeInactive bool) ([]Board, error) {
	return s.store.ListBoards(ctx, workspaceID, includeInactive)
}

// GetBoard returns a board regardless of its active flag.
func (s *Service) GetBoard(ctx context.Context, workspaceID, boardID string) (Board, error) {
	return s.store.FindBoard(ctx, workspaceID, boardID)
}

func (s *Service) CreateBoard(ctx context.Context, in NewBoard) (Board, error) {
	name := strings.TrimSpace(in.Name)
	if err := checkLength("name", name, 2, 120); err != nil {
		return Board{}, err
	}
	if in.Description != nil {
		if err := checkLength("description", *in.Description, 0, 2000); err != nil {
			return Board{}, err
		}
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = VisibilityPublic
	}
	if !visibility.Valid() {
		return Board{}, fmt.Errorf("%w: visibility must be public or private", ErrInvalidInput)
	}
	if strings.TrimSpace(in.CreatedBy) == "" {
		return Board{}, fmt.Errorf("%w: createdBy is required", ErrInvalidInput)
	}

	id := s.newID()
	now := s.now().UTC()
	return s.store.CreateBoard(ctx, Board{
		ID:          id,
		WorkspaceID: in.WorkspaceID,
		Slug:        Slugify(name, id) + "-" + ids.Suffix(id, 8),
		Name:        name,
		Description: in.Description,
		Visibility:  visibility,
		Active:      true,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// UpdateBoard applies a partial update. An empty update returns the board unchanged.
func (s *Service) UpdateBoard(ctx context.Context, workspaceID, boardID string, u BoardUpdate) (Board, error) {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if err := checkLength("name", name, 2, 120); err != nil {
			return Board{}, err
		}
		u.Name = &name
	}
	if u.DescriptionSet && u.Description != nil {
		if err := checkLength("description", *u.Description, 0, 2000); err != nil {
			return Board{}, err
		}
	}
	if u.Visibility != nil && !u.Visibility.Valid() {
		return Board{}, fmt.Errorf("%w: visibility must be public or private", ErrInvalidInput)
	}
	if u.Empty() {
		return s.store.FindBoard(ctx, workspaceID, boardID)
	}
	return s.store.UpdateBoard(ctx, workspaceID, boardID, u)
}

// activeBoard treats inactive boards as missing.
func (s *Service) activeBoard(ctx context.Context, workspaceID, boardID string) (Board, error) {
	b, err := s.store.FindBoard(ctx, workspaceID, boardID)
	if err != nil {
		return Board{}, err
	}
	if !b.Active {
		return Board{}, ErrBoardNotFound
	}
	return b, nil
}

// ListIdeas returns the ideas of an active board, most voted first.
func (s *Service) ListIdeas(ctx context.Context, workspaceID, boardID string, f IdeaFilter) ([]Idea, error) {
	if _, err := s.activeBoard(ctx, workspaceID, boardID); err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	f.Search = strings.TrimSpace(f.Search)
	if utf8.RuneCountInString(f.Search) > MaxSearchLength {
		return nil, fmt.Errorf("%w: search must be at most %d characters", ErrInvalidInput, MaxSearchLength)
	}
	f.Limit = clamp(f.Limit, DefaultIdeaLimit, MaxIdeaLimit)
	return s.store.ListIdeas(ctx, workspaceID, boardID, f)
}

func (s *Service) GetIdea(ctx context.Context, workspaceID, boardID, ideaID, viewerID string) (Idea, error) {
	return s.store.FindIdea(ctx, workspaceID, boardID, ideaID, viewerID)
}

func (s *Service) CreateIdea(ctx context.Context, in NewIdea) (Idea, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if err := checkLength("title", title, 4, 180); err != nil {
		return Idea{}, err
	}
	if err := checkLength("description", description, 8, 8000); err != nil {
		return Idea{}, err
	}
	if _, err := s.activeBoard(ctx, in.WorkspaceID, in.BoardID); err != nil {
		return Idea{}, err
	}
	now := s.now().UTC()
	return s.store.CreateIdea(ctx, Idea{
		ID:          s.newID(),
		WorkspaceID: in.WorkspaceID,
		BoardID:     in.BoardID,
		Title:       title,
		Description: description,
		Status:      StatusNew,
		Active:      true,
		CreatedBy:   in.CreatedBy,
		UpdatedBy:   in.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (s *Service) UpdateIdeaStatus(ctx context.Context, workspaceID, boardID, ideaID string, status IdeaStatus, updatedBy string) (Idea, error) {
	if !status.Valid() {
		return Idea{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.store.UpdateIdeaStatus(ctx, workspaceID, boardID, ideaID, status, updatedBy)
}

// Vote records the user's vote. Voting twice leaves a single vote.
func (s *Service) Vote(ctx context.Context, workspaceID, boardID, ideaID, userID string) (VoteState, error) {
	if _, err := s.store.FindIdea(ctx, workspaceID, boardID, ideaID, ""); err != nil {
		return VoteState{}, err
	}
	return s.store.AddVote(ctx, workspaceID, ideaID, userID)
}

// Unvote removes the user's vote if present.
func (s *Service) Unvote(ctx context.Context, workspaceID, boardID, ideaID, userID string) (VoteState, error) {
	if _, err := s.store.FindIdea(ctx, workspaceID, boardID, ideaID, ""); err != nil {
		return VoteState{}, err
	}
	return s.store.RemoveVote(ctx, workspaceID, ideaID, userID)
}

// ListComments returns active comments oldest first.
func (s *Service) ListComments(ctx context.Context, workspaceID, boardID, ideaID string, limit int) ([]Comment, error) {
	if _, err := s.store.FindIdea(ctx, workspaceID, boardID, ideaID, ""); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, workspaceID, ideaID, clamp(limit, DefaultCommentLimit, MaxCommentLimit))
}

func (s *Service) CreateComment(ctx context.Context, workspaceID, boardID, ideaID, userID, body string) (Comment, error) {
	body = strings.TrimSpace(body)
	if err := checkLength("body", body, 2, 4000); err != nil {
		return Comment{}, err
	}
	if _, err := s.store.FindIdea(ctx, workspaceID, boardID, ideaID, ""); err != nil {
		return Comment{}, err
	}
	now := s.now().UTC()
	return s.store.CreateComment(ctx, Comment{
		ID:          s.newID(),
		WorkspaceID: workspaceID,
		IdeaID:      ideaID,
		UserID:      userID,
		Body:        body,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases name and collapses everything but [a-z0-9] into single
// dashes, capped at 64 characters. An empty result falls back to board-<id>.
func Slugify(name, id string) string {
	base := nonSlug.ReplaceAllString(strings.ToLower(name), "-")
	base = strings.Trim(base, "-")
	if len(base) > 64 {
		base = strings.TrimRight(base[:64], "-")
	}
	if base == "" {
		return "board-" + ids.Suffix(id, 4)
	}
	return base
}

func checkLength(field, value string, minLen, maxLen int) error {
	n := utf8.RuneCountInString(value)
	if n < minLen || n > maxLen {
		return fmt.Errorf("%w: %s must be %d..%d characters", ErrInvalidInput, field, minLen, maxLen)
	}
	return nil
}

func clamp(limit, def, ceiling int) int {
	switch {
	case limit == 0:
		return def
	case limit < 1:
		return 1
	case limit > ceiling:
		return ceiling
	default:
		return limit
	}
}
