package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"customervoice.app/internal/feedback"
)

func (s *Store) ListBoards(_ context.Context, workspaceID string, includeInactive bool) ([]feedback.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []feedback.Board{}
	for _, b := range s.boards {
		if b.WorkspaceID == workspaceID && (includeInactive || b.Active) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) FindBoard(_ context.Context, workspaceID, boardID string) (feedback.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boardLocked(workspaceID, boardID)
}

func (s *Store) boardLocked(workspaceID, boardID string) (feedback.Board, error) {
	b, ok := s.boards[boardID]
	if !ok || b.WorkspaceID != workspaceID {
		return feedback.Board{}, feedback.ErrBoardNotFound
	}
	return b, nil
}

func (s *Store) CreateBoard(_ context.Context, b feedback.Board) (feedback.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.boards {
		if existing.WorkspaceID == b.WorkspaceID && existing.Slug == b.Slug {
			return feedback.Board{}, fmt.Errorf("%w: slug %q already exists", feedback.ErrInvalidInput, b.Slug)
		}
	}
	s.stamp(&b.CreatedAt, &b.UpdatedAt)
	s.boards[b.ID] = b
	return b, nil
}

func (s *Store) UpdateBoard(_ context.Context, workspaceID, boardID string, u feedback.BoardUpdate) (feedback.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.boardLocked(workspaceID, boardID)
	if err != nil {
		return feedback.Board{}, err
	}
	if u.Name != nil {
		b.Name = strings.TrimSpace(*u.Name)
	}
	if u.DescriptionSet {
		b.Description = u.Description
	}
	if u.Visibility != nil {
		b.Visibility = *u.Visibility
	}
	if u.Active != nil {
		b.Active = *u.Active
	}
	b.UpdatedAt = s.now().UTC()
	s.boards[boardID] = b
	return b, nil
}

// decorateLocked fills the vote and comment counters as seen by viewerID.
func (s *Store) decorateLocked(i feedback.Idea, viewerID string) feedback.Idea {
	i.VoteCount, i.CommentCount, i.ViewerHasVoted = 0, 0, false
	for k := range s.votes {
		if k.idea != i.ID {
			continue
		}
		i.VoteCount++
		if viewerID != "" && k.user == viewerID {
			i.ViewerHasVoted = true
		}
	}
	for _, c := range s.comments {
		if c.IdeaID == i.ID && c.Active {
			i.CommentCount++
		}
	}
	return i
}

func (s *Store) ListIdeas(_ context.Context, workspaceID, boardID string, f feedback.IdeaFilter) ([]feedback.Idea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(f.Search)
	out := []feedback.Idea{}
	for _, i := range s.ideas {
		if i.WorkspaceID != workspaceID || i.BoardID != boardID {
			continue
		}
		if f.Status != "" && i.Status != f.Status {
			continue
		}
		if !f.IncludeInactive && !i.Active {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(i.Title), search) &&
			!strings.Contains(strings.ToLower(i.Description), search) {
			continue
		}
		out = append(out, s.decorateLocked(i, f.ViewerID))
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].VoteCount != out[b].VoteCount {
			return out[a].VoteCount > out[b].VoteCount
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) FindIdea(_ context.Context, workspaceID, boardID, ideaID, viewerID string) (feedback.Idea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.ideas[ideaID]
	if !ok || i.WorkspaceID != workspaceID || i.BoardID != boardID {
		return feedback.Idea{}, feedback.ErrIdeaNotFound
	}
	return s.decorateLocked(i, viewerID), nil
}

func (s *Store) CreateIdea(_ context.Context, i feedback.Idea) (feedback.Idea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.boardLocked(i.WorkspaceID, i.BoardID); err != nil {
		return feedback.Idea{}, err
	}
	s.stamp(&i.CreatedAt, &i.UpdatedAt)
	s.ideas[i.ID] = i
	return s.decorateLocked(i, i.CreatedBy), nil
}

func (s *Store) UpdateIdeaStatus(_ context.Context, workspaceID, boardID, ideaID string, status feedback.IdeaStatus, updatedBy string) (feedback.Idea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.ideas[ideaID]
	if !ok || i.WorkspaceID != workspaceID || i.BoardID != boardID {
		return feedback.Idea{}, feedback.ErrIdeaNotFound
	}
	i.Status = status
	i.UpdatedBy = updatedBy
	i.UpdatedAt = s.now().UTC()
	s.ideas[ideaID] = i
	return s.decorateLocked(i, updatedBy), nil
}

func (s *Store) AddVote(_ context.Context, workspaceID, ideaID, userID string) (feedback.VoteState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[voteKey{ideaID, userID}] = struct{}{}
	return s.voteStateLocked(ideaID, userID), nil
}

func (s *Store) RemoveVote(_ context.Context, workspaceID, ideaID, userID string) (feedback.VoteState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.votes, voteKey{ideaID, userID})
	return s.voteStateLocked(ideaID, userID), nil
}

func (s *Store) voteStateLocked(ideaID, userID string) feedback.VoteState {
	i := s.decorateLocked(feedback.Idea{ID: ideaID}, userID)
	return feedback.VoteState{IdeaID: ideaID, VoteCount: i.VoteCount, HasVoted: i.ViewerHasVoted}
}

func (s *Store) ListComments(_ context.Context, workspaceID, ideaID string, limit int) ([]feedback.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []feedback.Comment{}
	for _, c := range s.comments {
		if c.WorkspaceID != workspaceID || c.IdeaID != ideaID || !c.Active {
			continue
		}
		c.UserEmail = s.users[c.UserID].Email
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateComment(_ context.Context, c feedback.Comment) (feedback.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.ideas[c.IdeaID]; !ok || i.WorkspaceID != c.WorkspaceID {
		return feedback.Comment{}, feedback.ErrIdeaNotFound
	}
	s.stamp(&c.CreatedAt, &c.UpdatedAt)
	c.UserEmail = s.users[c.UserID].Email
	s.comments = append(s.comments, c)
	return c, nil
}

// stamp fills unset creation timestamps from the store clock.
func (s *Store) stamp(created, updated *time.Time) {
	if created.IsZero() {
		*created = s.now().UTC()
	}
	if updated.IsZero() {
		*updated = *created
	}
}
