package feedback

import (
	"context"
	"errors"
	"time"
)

var (
	ErrBoardNotFound = errors.New("feedback: board not found")
	ErrIdeaNotFound  = errors.New("feedback: idea not found")
	ErrInvalidInput  = errors.New("feedback: invalid input")
)

// Visibility controls who may see a board outside the workspace.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is public or private.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// IdeaStatus tracks an idea through triage.
type IdeaStatus string

const (
	StatusNew         IdeaStatus = "new"
	StatusUnderReview IdeaStatus = "under_review"
	StatusAccepted    IdeaStatus = "accepted"
	StatusPlanned     IdeaStatus = "planned"
	StatusInProgress  IdeaStatus = "in_progress"
	StatusCompleted   IdeaStatus = "completed"
	StatusDeclined    IdeaStatus = "declined"
)

// IdeaStatuses lists every status in workflow order.
var IdeaStatuses = []IdeaStatus{
	StatusNew,
	StatusUnderReview,
	StatusAccepted,
	StatusPlanned,
	StatusInProgress,
	StatusCompleted,
	StatusDeclined,
}

// Valid reports whether s is a known status.
func (s IdeaStatus) Valid() bool {
	for _, known := range IdeaStatuses {
		if s == known {
			return true
		}
	}
	return false
}

type Board struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspaceId"`
	Slug        string     `json:"slug"`
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	Visibility  Visibility `json:"visibility"`
	Active      bool       `json:"active"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Idea struct {
	ID             string     `json:"id"`
	WorkspaceID    string     `json:"workspaceId"`
	BoardID        string     `json:"boardId"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         IdeaStatus `json:"status"`
	Active         bool       `json:"active"`
	CreatedBy      string     `json:"createdBy"`
	UpdatedBy      string     `json:"updatedBy"`
	VoteCount      int        `json:"voteCount"`
	CommentCount   int        `json:"commentCount"`
	ViewerHasVoted bool       `json:"viewerHasVoted"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type Comment struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	IdeaID      string    `json:"ideaId"`
	UserID      string    `json:"userId"`
	UserEmail   string    `json:"userEmail"`
	Body        string    `json:"body"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// VoteState is the vote tally of an idea as seen by one user.
type VoteState struct {
	IdeaID    string `json:"ideaId"`
	VoteCount int    `json:"voteCount"`
	HasVoted  bool   `json:"hasVoted"`
}

// NewBoard is the input to CreateBoard.
type NewBoard struct {
	WorkspaceID string
	Name        string
	Description *string
	Visibility  Visibility
	CreatedBy   string
}

// BoardUpdate is a partial update. DescriptionSet distinguishes an explicit
// null (clear the description) from an absent field.
type BoardUpdate struct {
	Name           *string
	Description    *string
	DescriptionSet bool
	Visibility     *Visibility
	Active         *bool
}

// Empty reports whether no field is set.
func (u BoardUpdate) Empty() bool {
	return u.Name == nil && !u.DescriptionSet && u.Visibility == nil && u.Active == nil
}

// Fields names the set fields in a stable order.
func (u BoardUpdate) Fields() []string {
	fields := make([]string, 0, 4)
	if u.Name != nil {
		fields = append(fields, "name")
	}
	if u.DescriptionSet {
		fields = append(fields, "description")
	}
	if u.Visibility != nil {
		fields = append(fields, "visibility")
	}
	if u.Active != nil {
		fields = append(fields, "active")
	}
	return fields
}

// NewIdea is the input to CreateIdea.
type NewIdea struct {
	WorkspaceID string
	BoardID     string
	Title       string
	Description string
	CreatedBy   string
}

// IdeaFilter narrows ListIdeas. An empty Status or Search matches everything.
type IdeaFilter struct {
	Status          IdeaStatus
	Search          string
	IncludeInactive bool
	Limit           int
	ViewerID        string
}

// Store persists boards, ideas, votes and comments. Lookups of missing rows
// return ErrBoardNotFound or ErrIdeaNotFound.
type Store interface {
	ListBoards(ctx context.Context, workspaceID string, includeInactive bool) ([]Board, error)
	FindBoard(ctx context.Context, workspaceID, boardID string) (Board, error)
	CreateBoard(ctx context.Context, b Board) (Board, error)
	UpdateBoard(ctx context.Context, workspaceID, boardID string, u BoardUpdate) (Board, error)

	ListIdeas(ctx context.Context, workspaceID, boardID string, f IdeaFilter) ([]Idea, error)
	FindIdea(ctx context.Context, workspaceID, boardID, ideaID, viewerID string) (Idea, error)
	CreateIdea(ctx context.Context, i Idea) (Idea, error)
	UpdateIdeaStatus(ctx context.Context, workspaceID, boardID, ideaID string, status IdeaStatus, updatedBy string) (Idea, error)

	// AddVote and RemoveVote are idempotent.
	AddVote(ctx context.Context, workspaceID, ideaID, userID string) (VoteState, error)
	RemoveVote(ctx context.Context, workspaceID, ideaID, userID string) (VoteState, error)

	ListComments(ctx context.Context, workspaceID, ideaID string, limit int) ([]Comment, error)
	CreateComment(ctx context.Context, c Comment) (Comment, error)
}
