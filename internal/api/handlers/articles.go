package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nikhilbhutani/articlegen/internal/article"
	"github.com/nikhilbhutani/articlegen/internal/auth"
	"github.com/nikhilbhutani/articlegen/internal/backend"
	"github.com/nikhilbhutani/articlegen/internal/models"
)

// ArticleService is implemented by *article.Service.
type ArticleService interface {
	Submit(ctx context.Context, userID int64, sessionID string, workflowType int, input json.RawMessage) (*models.ArticleRequest, error)
	Get(ctx context.Context, user *models.User, id int64) (*models.ArticleRequest, error)
	ListRecent(ctx context.Context, userID int64, limit int) ([]models.ArticleRequest, error)
	Progress(ctx context.Context, user *models.User, token string, id int64) (*models.ArticleProgress, error)
}

type ArticleHandler struct {
	svc ArticleService
}

func NewArticleHandler(svc ArticleService) *ArticleHandler {
	return &ArticleHandler{svc: svc}
}

type submitRequest struct {
	WorkflowType int             `json:"workflow_type"`
	Input        json.RawMessage `json:"input"`
}

func (h *ArticleHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Input) == 0 {
		req.Input = json.RawMessage(`{}`)
	}

	sess := auth.SessionFromContext(r.Context())
	ar, err := h.svc.Submit(r.Context(), sess.User.ID, sess.ID, req.WorkflowType, req.Input)
	if err != nil {
		writeArticleError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":    true,
		"request_id": ar.ID,
		"status":     ar.Status,
	})
}

func (h *ArticleHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.svc.ListRecent(r.Context(), auth.UserIDFromContext(r.Context()), limit)
	if err != nil {
		writeArticleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "requests": list, "count": len(list)})
}

func (h *ArticleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ar, err := h.svc.Get(r.Context(), auth.UserFromContext(r.Context()), id)
	if err != nil {
		writeArticleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "request": ar})
}

func (h *ArticleHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess := auth.SessionFromContext(r.Context())
	p, err := h.svc.Progress(r.Context(), &sess.User, sess.Token, id)
	if err != nil {
		writeArticleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeArticleError(w http.ResponseWriter, err error) {
	var ie *article.InputError
	switch {
	case errors.As(err, &ie):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid input", "problems": ie.Problems})
	case errors.Is(err, article.ErrNotFound):
		writeError(w, http.StatusNotFound, "request not found")
	case errors.Is(err, backend.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "session expired")
	default:
		slog.Error("article operation failed", "error", err)
		writeError(w, http.StatusBadGateway, "generation service error")
	}
}
