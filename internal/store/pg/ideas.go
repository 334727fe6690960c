package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"customervoice.app/internal/feedback"
)

const ideaSelect = `
	select
		i.id, i.workspace_id, i.board_id, i.title, i.description, i.status, i.active,
		i.created_by, i.updated_by, i.created_at, i.updated_at,
		(select count(*) from idea_votes iv
		 where iv.workspace_id = i.workspace_id and iv.idea_id = i.id)::int as vote_count,
		(select count(*) from idea_comments ic
		 where ic.workspace_id = i.workspace_id and ic.idea_id = i.id and ic.active = true)::int as comment_count,
		case when $%[1]d::text is null then false
		     else exists (select 1 from idea_votes iv2
		                  where iv2.workspace_id = i.workspace_id and iv2.idea_id = i.id and iv2.user_id = $%[1]d)
		end as viewer_has_voted
	from ideas i
`

// selectIdeas renders the idea projection with the viewer id bound to $viewerArg.
func selectIdeas(viewerArg int) string {
	return fmt.Sprintf(ideaSelect, viewerArg)
}

func scanIdea(row rowScanner) (feedback.Idea, error) {
	var (
		i      feedback.Idea
		status string
	)
	if err := row.Scan(&i.ID, &i.WorkspaceID, &i.BoardID, &i.Title, &i.Description, &status, &i.Active,
		&i.CreatedBy, &i.UpdatedBy, &i.CreatedAt, &i.UpdatedAt,
		&i.VoteCount, &i.CommentCount, &i.ViewerHasVoted); err != nil {
		return feedback.Idea{}, err
	}
	i.Status = feedback.IdeaStatus(status)
	return i, nil
}

// ListIdeas orders by vote count, then newest first.
func (s *Store) ListIdeas(ctx context.Context, workspaceID, boardID string, f feedback.IdeaFilter) ([]feedback.Idea, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, selectIdeas(7)+`
		where i.workspace_id = $1
		  and i.board_id = $2
		  and ($3::text is null or i.status = $3)
		  and ($4::boolean = true or i.active = true)
		  and ($5::text is null or i.title ilike '%' || $5 || '%' or i.description ilike '%' || $5 || '%')
		order by vote_count desc, i.created_at desc
		limit $6
	`, workspaceID, boardID, nullIfEmpty(string(f.Status)), f.IncludeInactive, nullIfEmpty(f.Search), f.Limit, nullIfEmpty(f.ViewerID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []feedback.Idea{}
	for rows.Next() {
		i, err := scanIdea(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) FindIdea(ctx context.Context, workspaceID, boardID, ideaID, viewerID string) (feedback.Idea, error) {
	if s.db == nil {
		return feedback.Idea{}, errNoDB
	}
	i, err := scanIdea(s.db.QueryRowContext(ctx, selectIdeas(4)+`
		where i.workspace_id = $1 and i.board_id = $2 and i.id = $3
	`, workspaceID, boardID, ideaID, nullIfEmpty(viewerID)))
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.Idea{}, feedback.ErrIdeaNotFound
	}
	return i, err
}

func (s *Store) CreateIdea(ctx context.Context, i feedback.Idea) (feedback.Idea, error) {
	if s.db == nil {
		return feedback.Idea{}, errNoDB
	}
	err := s.db.QueryRowContext(ctx, `
		insert into ideas (id, workspace_id, board_id, title, description, status, active, created_by, updated_by)
		values ($1, $2, $3, $4, $5, $6, true, $7, $7)
		returning created_at, updated_at
	`, i.ID, i.WorkspaceID, i.BoardID, i.Title, i.Description, string(i.Status), i.CreatedBy).Scan(&i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if isFKViolation(err, "ideas_board_id_fkey") {
			return feedback.Idea{}, feedback.ErrBoardNotFound
		}
		return feedback.Idea{}, err
	}
	i.Active = true
	i.UpdatedBy = i.CreatedBy
	return i, nil
}

// UpdateIdeaStatus returns the idea as seen by the updater.
func (s *Store) UpdateIdeaStatus(ctx context.Context, workspaceID, boardID, ideaID string, status feedback.IdeaStatus, updatedBy string) (feedback.Idea, error) {
	if s.db == nil {
		return feedback.Idea{}, errNoDB
	}
	var id string
	err := s.db.QueryRowContext(ctx, `
		update ideas
		set status = $4, updated_by = $5, updated_at = now()
		where workspace_id = $1 and board_id = $2 and id = $3
		returning id
	`, workspaceID, boardID, ideaID, string(status), updatedBy).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.Idea{}, feedback.ErrIdeaNotFound
	}
	if err != nil {
		return feedback.Idea{}, err
	}
	return s.FindIdea(ctx, workspaceID, boardID, ideaID, updatedBy)
}

// AddVote is a no-op when the user already voted.
func (s *Store) AddVote(ctx context.Context, workspaceID, ideaID, userID string) (feedback.VoteState, error) {
	if s.db == nil {
		return feedback.VoteState{}, errNoDB
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into idea_votes (workspace_id, idea_id, user_id)
		values ($1, $2, $3)
		on conflict (idea_id, user_id) do nothing
	`, workspaceID, ideaID, userID); err != nil {
		return feedback.VoteState{}, err
	}
	return s.voteState(ctx, workspaceID, ideaID, userID)
}

func (s *Store) RemoveVote(ctx context.Context, workspaceID, ideaID, userID string) (feedback.VoteState, error) {
	if s.db == nil {
		return feedback.VoteState{}, errNoDB
	}
	if _, err := s.db.ExecContext(ctx, `
		delete from idea_votes
		where workspace_id = $1 and idea_id = $2 and user_id = $3
	`, workspaceID, ideaID, userID); err != nil {
		return feedback.VoteState{}, err
	}
	return s.voteState(ctx, workspaceID, ideaID, userID)
}

func (s *Store) voteState(ctx context.Context, workspaceID, ideaID, userID string) (feedback.VoteState, error) {
	st := feedback.VoteState{IdeaID: ideaID}
	err := s.db.QueryRowContext(ctx, `
		select
			count(*)::int,
			exists (select 1 from idea_votes iv2
			        where iv2.workspace_id = $1 and iv2.idea_id = $2 and iv2.user_id = $3)
		from idea_votes iv
		where iv.workspace_id = $1 and iv.idea_id = $2
	`, workspaceID, ideaID, userID).Scan(&st.VoteCount, &st.HasVoted)
	if err != nil {
		return feedback.VoteState{}, err
	}
	return st, nil
}

// ListComments returns active comments oldest first.
func (s *Store) ListComments(ctx context.Context, workspaceID, ideaID string, limit int) ([]feedback.Comment, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select c.id, c.workspace_id, c.idea_id, c.user_id, u.email, c.body, c.active, c.created_at, c.updated_at
		from idea_comments c
		join users u on u.id = c.user_id
		where c.workspace_id = $1 and c.idea_id = $2 and c.active = true
		order by c.created_at asc
		limit $3
	`, workspaceID, ideaID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []feedback.Comment{}
	for rows.Next() {
		var c feedback.Comment
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.IdeaID, &c.UserID, &c.UserEmail, &c.Body, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateComment(ctx context.Context, c feedback.Comment) (feedback.Comment, error) {
	if s.db == nil {
		return feedback.Comment{}, errNoDB
	}
	var email sql.NullString
	err := s.db.QueryRowContext(ctx, `
		insert into idea_comments (id, workspace_id, idea_id, user_id, body, active)
		values ($1, $2, $3, $4, $5, true)
		returning (select email from users where id = $4), created_at, updated_at
	`, c.ID, c.WorkspaceID, c.IdeaID, c.UserID, c.Body).Scan(&email, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isFKViolation(err, "idea_comments_idea_id_fkey") {
			return feedback.Comment{}, feedback.ErrIdeaNotFound
		}
		return feedback.Comment{}, err
	}
	c.UserEmail = email.String
	c.Active = true
	return c, nil
}
