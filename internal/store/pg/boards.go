package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"customervoice.app/internal/feedback"
)

var _ feedback.Store = (*Store)(nil)

const boardColumns = `id, workspace_id, slug, name, description, visibility, active, created_by, created_at, updated_at`

func scanBoard(row rowScanner) (feedback.Board, error) {
	var (
		b           feedback.Board
		description sql.NullString
		visibility  string
	)
	if err := row.Scan(&b.ID, &b.WorkspaceID, &b.Slug, &b.Name, &description, &visibility, &b.Active, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return feedback.Board{}, err
	}
	if description.Valid {
		b.Description = &description.String
	}
	b.Visibility = feedback.Visibility(visibility)
	return b, nil
}

func (s *Store) ListBoards(ctx context.Context, workspaceID string, includeInactive bool) ([]feedback.Board, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+boardColumns+`
		from boards
		where workspace_id = $1 and ($2::boolean = true or active = true)
		order by created_at desc
	`, workspaceID, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []feedback.Board{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) FindBoard(ctx context.Context, workspaceID, boardID string) (feedback.Board, error) {
	if s.db == nil {
		return feedback.Board{}, errNoDB
	}
	b, err := scanBoard(s.db.QueryRowContext(ctx, `
		select `+boardColumns+`
		from boards
		where workspace_id = $1 and id = $2
	`, workspaceID, boardID))
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.Board{}, feedback.ErrBoardNotFound
	}
	return b, err
}

func (s *Store) CreateBoard(ctx context.Context, b feedback.Board) (feedback.Board, error) {
	if s.db == nil {
		return feedback.Board{}, errNoDB
	}
	var description sql.NullString
	if b.Description != nil {
		description = sql.NullString{String: *b.Description, Valid: true}
	}
	created, err := scanBoard(s.db.QueryRowContext(ctx, `
		insert into boards (id, workspace_id, slug, name, description, visibility, active, created_by)
		values ($1, $2, $3, $4, $5, $6, true, $7)
		returning `+boardColumns,
		b.ID, b.WorkspaceID, b.Slug, b.Name, description, string(b.Visibility), b.CreatedBy))
	if err != nil {
		if isPgCode(err, pgErrUniqueViolation) {
			return feedback.Board{}, fmt.Errorf("%w: slug %q already exists", feedback.ErrInvalidInput, b.Slug)
		}
		return feedback.Board{}, err
	}
	return created, nil
}

// UpdateBoard builds the SET clause from the fields present in u.
func (s *Store) UpdateBoard(ctx context.Context, workspaceID, boardID string, u feedback.BoardUpdate) (feedback.Board, error) {
	if s.db == nil {
		return feedback.Board{}, errNoDB
	}
	if u.Empty() {
		return s.FindBoard(ctx, workspaceID, boardID)
	}
	args := []any{workspaceID, boardID}
	var set []string
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.DescriptionSet {
		var description sql.NullString
		if u.Description != nil {
			description = sql.NullString{String: *u.Description, Valid: true}
		}
		add("description", description)
	}
	if u.Visibility != nil {
		add("visibility", string(*u.Visibility))
	}
	if u.Active != nil {
		add("active", *u.Active)
	}
	set = append(set, "updated_at = now()")

	b, err := scanBoard(s.db.QueryRowContext(ctx, `
		update boards
		set `+strings.Join(set, ", ")+`
		where workspace_id = $1 and id = $2
		returning `+boardColumns, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.Board{}, feedback.ErrBoardNotFound
	}
	return b, err
}
