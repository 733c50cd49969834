package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/articlegen/internal/audit"
	"github.com/nikhilbhutani/articlegen/internal/auth"
	"github.com/nikhilbhutani/articlegen/internal/config"
	"github.com/nikhilbhutani/articlegen/internal/models"
	"github.com/nikhilbhutani/articlegen/internal/prompt"
)

// PromptManager is implemented by *prompt.Manager.
type PromptManager interface {
	LoadActive(ctx context.Context, workflowID int) (*models.PromptTemplate, error)
	Save(ctx context.Context, req prompt.SaveRequest, meta audit.Meta) (*prompt.SaveResult, error)
	ListVersions(ctx context.Context, workflowID int) ([]models.PromptVersionSummary, error)
	ViewVersion(ctx context.Context, workflowID int, versionID int64, meta audit.Meta) (*models.PromptTemplate, error)
	ActivateVersion(ctx context.Context, workflowID int, versionID int64, meta audit.Meta) (int, error)
	ListAudit(ctx context.Context, workflowID, limit int) ([]models.PromptAuditEntry, error)
}

type PromptHandler struct {
	mgr       PromptManager
	workflows *config.Workflows
}

func NewPromptHandler(mgr PromptManager, workflows *config.Workflows) *PromptHandler {
	return &PromptHandler{mgr: mgr, workflows: workflows}
}

// workflow resolves {workflow}; ids that are not configured are rejected
// here rather than mapped onto a default.
func (h *PromptHandler) workflow(w http.ResponseWriter, r *http.Request) (config.Workflow, bool) {
	raw := chi.URLParam(r, "workflow")
	id, err := strconv.Atoi(raw)
	if err == nil {
		if wf, ok := h.workflows.Get(id); ok {
			return wf, true
		}
	}
	writeError(w, http.StatusBadRequest, "unknown workflow "+strconv.Quote(raw))
	return config.Workflow{}, false
}

func meta(r *http.Request) audit.Meta {
	return audit.MetaFromRequest(r, auth.UserIDFromContext(r.Context()))
}

func (h *PromptHandler) Active(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	t, err := h.mgr.LoadActive(r.Context(), wf.ID)
	if err != nil {
		writePromptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "template": t})
}

type saveRequest struct {
	Content string `json:"content"`
	Notes   string `json:"notes"`
}

func (h *PromptHandler) Save(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	var req saveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.mgr.Save(r.Context(), prompt.SaveRequest{
		WorkflowID: wf.ID,
		Content:    req.Content,
		Notes:      req.Notes,
	}, meta(r))
	if err != nil {
		writePromptError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"message":     "Template saved as version " + strconv.Itoa(res.Version),
		"template_id": res.TemplateID,
		"version":     res.Version,
		"created_at":  res.CreatedAt,
	})
}

func (h *PromptHandler) Versions(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	versions, err := h.mgr.ListVersions(r.Context(), wf.ID)
	if err != nil {
		writePromptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "versions": versions, "count": len(versions)})
}

func (h *PromptHandler) View(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.mgr.ViewVersion(r.Context(), wf.ID, id, meta(r))
	if err != nil {
		writePromptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "template": t})
}

func (h *PromptHandler) Activate(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	version, err := h.mgr.ActivateVersion(r.Context(), wf.ID, id, meta(r))
	if err != nil {
		writePromptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Version " + strconv.Itoa(version) + " restored",
		"version": version,
	})
}

func (h *PromptHandler) Audit(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.mgr.ListAudit(r.Context(), wf.ID, limit)
	if err != nil {
		writePromptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "entries": entries, "count": len(entries)})
}

// Variables lists the placeholders the editor must keep for a workflow.
func (h *PromptHandler) Variables(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"workflow":       wf.ID,
		"name":           wf.Name,
		"pending_review": wf.PendingReview,
		"variables":      wf.Required,
	})
}

func writePromptError(w http.ResponseWriter, err error) {
	var ve *prompt.ValidationError
	switch {
	case errors.As(err, &ve):
		body := map[string]any{"success": false, "error": ve.Error()}
		if len(ve.Missing) > 0 {
			body["missing"] = ve.Missing
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, prompt.ErrNoActiveTemplate):
		writeError(w, http.StatusNotFound, "no active template for this workflow")
	case errors.Is(err, prompt.ErrNotFound):
		writeError(w, http.StatusNotFound, "version not found")
	default:
		slog.Error("prompt operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
