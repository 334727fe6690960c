package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"customervoice.app/internal/auth"
	"customervoice.app/internal/feedback"
)

type createBoardRequest struct {
	Name        string              `json:"name"`
	Description *string             `json:"description"`
	Visibility  feedback.Visibility `json:"visibility"`
}

// nullableString tells an explicit null apart from an absent field.
type nullableString struct {
	Set   bool
	Value *string
}

func (n *nullableString) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.New("description must be a string or null")
	}
	n.Value = &s
	return nil
}

type updateBoardRequest struct {
	Name        *string              `json:"name"`
	Description nullableString       `json:"description"`
	Visibility  *feedback.Visibility `json:"visibility"`
	Active      *bool                `json:"active"`
}

func (req updateBoardRequest) toUpdate() feedback.BoardUpdate {
	return feedback.BoardUpdate{
		Name:           req.Name,
		Description:    req.Description.Value,
		DescriptionSet: req.Description.Set,
		Visibility:     req.Visibility,
		Active:         req.Active,
	}
}

type createIdeaRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type updateStatusRequest struct {
	Status feedback.IdeaStatus `json:"status"`
}

type createCommentRequest struct {
	Body string `json:"body"`
}

// actorFrom returns the resolved actor. Guards run before every handler, so
// a missing actor only happens when routes are wired without them.
func actorFrom(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeActorRequired)
	}
	return actor, ok
}

func (a *API) listBoards(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := a.requireWorkspace(w, r)
	if !ok {
		return
	}
	includeInactive, err := parseBool(r.URL.Query().Get("includeInactive"))
	if err != nil {
		invalidQuery(w, r, errors.New("includeInactive must be a boolean"))
		return
	}
	boards, err := a.feedback.ListBoards(r.Context(), workspaceID, includeInactive)
	if err != nil {
		handleFeedbackError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(boards))
}

func (a *API) getBoard(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	b, err := a.feedback.GetBoard(r.Context(), vars["workspaceId"], vars["boardId"])
	if err != nil {
		handleFeedbackError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) createBoard(w http.ResponseWriter, r *http.Request) {
	var req createBoardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		invalidPayload(w, r, err)
		return
	}
	workspaceID, ok := a.requireWorkspace(w, r)
	if !ok {
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	b, err := a.feedback.CreateBoard(r.Context(), feedback.NewBoard{
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Description: req.Description,
		Visibility:  req.Visibility,
		CreatedBy:   actor.UserID,
	})
	if err != nil {
		handleFeedbackError(w, r, err)
		return
	}
	a.emit(r, "board.create", map[string]any{
		"boardId":    b.ID,
		"visibility": b.Visibility,
	})
	writeJSON(w, http.StatusCreated, b)
}

func (a *API) updateBoard(w http.ResponseWriter, r *http.Request) {
	var req updateBoardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		invalidPayload(w, r, err)
		return
	}
	u := req.toUpdate()
	if u.Empty() {
		invalidPayload(w, r, errors.New("at least one field is required"))
		return
	}
	vars := mux.Vars(r)
	b, err := a.feedback.UpdateBoard(r.Context(), vars["workspaceId"], vars["boardId"], u)
	if err != nil {
		handleFeedbackError(w, r, err)
		return
	}
	a.emit(r, "board.update", map[string]any{
		"boardId": b.ID,
		"fields":  u.Fields(),
	})
	writeJSON(w, http.StatusOK, b)
}

func (a *API) listIdeas(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, 1, feedback.MaxIdeaLimit)
	if !ok {
		invalidQuery(w, r, fmt.Errorf("limit must be an integer between 1 and %d", feedback.MaxIdeaLimit))
		return
	}
	q := r.URL.Query()
	includeInactive, err := parseBool(q.Get("includeInactive"))
	if err != nil {
		invalidQuery(w, r, errors.New("includeInactive must be a boolean"))
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	ideas, err := a.feedback.ListIdeas(r.Context(), vars["workspaceId"], vars["boardId"], feedback.IdeaFilter{
		Status:          feedback.IdeaStatus(q.Get("status")),
		Search:          q.Get("search"),
		IncludeInactive: includeInactive,
		Limit:           limit,
		ViewerID:        actor.UserID,
	})
	if errors.Is(err, feedback.ErrInvalidInput) {
		invalidQuery(w, r, err)
		return
	}
	if err != nil {
		handleFeedbackError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(ideas))
}

func (a *API) getIdea(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	idea, err := a.feedback.GetIdea(r.Context(), vars["workspaceId"], vars["boardId"], vars["ideaId"], actor.UserID)
	if err != nil {
		handleFeedbackError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

func (a *API) createIdea(w http.ResponseWriter, r *http.Request) {
	var req createIdeaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		invalidPayload(w, r, err)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	idea, err := a.feedback.CreateIdea(r.Context(), feedback.NewIdea{
		WorkspaceID: vars["workspaceId"],
		BoardID:     vars["boardId"],
		Title:       req.Title,
		Description: req.Description,
		CreatedBy:   actor.UserID,
	})
	if err != nil {
		handleFeedbackError(w, r, err)
		return
	}
	a.emit(r, "idea.create", map[string]any{
		"boardId": idea.BoardID,
		"ideaId":  idea.ID,
		"status":  idea.Status,
	})
	writeJSON(w, http.StatusCreated, idea)
}

func (a *API) updateIdeaStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		invalidPayload(w, r, err)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	idea, err := a.feedback.UpdateIdeaStatus(r.Context(), vars["workspaceId"], vars["boardId"], vars["ideaId"], req.Status, actor.UserID)
	if err != nil {
		handleFeedbackError(w, r, err)
		return
	}
	a.emit(r, "idea.status.update", map[string]any{
		"boardId": vars["boardId"],
		"ideaId":  idea.ID,
		"status":  idea.Status,
	})
	writeJSON(w, http.StatusOK, idea)
}

func (a *API) vote(w http.ResponseWriter, r *http.Request) {
	a.castVote(w, r, true)
}

func (a *API) unvote(w http.ResponseWriter, r *http.Request) {
	a.castVote(w, r, false)
}

func (a *API) castVote(w http.ResponseWriter, r *http.Request, add bool) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	ws, board, ideaID := vars["workspaceId"], vars["boardId"], vars["ideaId"]

	action := "idea.vote"
	op := a.feedback.Vote
	if !add {
		action = "idea.unvote"
		op = a.feedback.Unvote
	}
	state, err := op(r.Context(), ws, board, ideaID, actor.UserID)
	if err != nil {
		handleFeedbackError(w, r, err)
		return
	}
	a.emit(r, action, map[string]any{
		"boardId":  board,
		"ideaId":   ideaID,
		"hasVoted": state.HasVoted,
	})
	writeJSON(w, http.StatusOK, state)
}

func (a *API) listComments(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, 1, feedback.MaxCommentLimit)
	if !ok {
		invalidQuery(w, r, fmt.Errorf("limit must be an integer between 1 and %d", feedback.MaxCommentLimit))
		return
	}
	vars := mux.Vars(r)
	comments, err := a.feedback.ListComments(r.Context(), vars["workspaceId"], vars["boardId"], vars["ideaId"], limit)
	if err != nil {
		handleFeedbackError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(comments))
}

func (a *API) createComment(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		invalidPayload(w, r, err)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	c, err := a.feedback.CreateComment(r.Context(), vars["workspaceId"], vars["boardId"], vars["ideaId"], actor.UserID, req.Body)
	if err != nil {
		handleFeedbackError(w, r, err)
		return
	}
	a.emit(r, "idea.comment.create", map[string]any{
		"boardId":   vars["boardId"],
		"ideaId":    vars["ideaId"],
		"commentId": c.ID,
	})
	writeJSON(w, http.StatusCreated, c)
}
