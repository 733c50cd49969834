package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/articlegen/internal/audit"
	"github.com/nikhilbhutani/articlegen/internal/models"
)

// Workflows resolves the placeholder tokens each workflow's template must
// keep. *config.Workflows satisfies it.
type Workflows interface {
	Required(workflowID int) ([]string, bool)
}

// Manager mediates every read and write of prompt templates so that each
// workflow has at most one active version, versions are numbered without
// gaps, and no template missing a required placeholder is stored.
type Manager struct {
	store      Store
	workflows  Workflows
	cache      ActiveCache
	auditLimit int
	logger     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithCache serves LoadActive from c and invalidates it after every write.
func WithCache(c ActiveCache) Option {
	return func(m *Manager) { m.cache = c }
}

// WithAuditLimit sets the number of entries ListAudit returns when the
// caller passes no limit.
func WithAuditLimit(n int) Option {
	return func(m *Manager) { m.auditLimit = n }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func NewManager(store Store, workflows Workflows, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		workflows:  workflows,
		auditLimit: 50,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type SaveRequest struct {
	WorkflowID int
	Content    string
	Notes      string
	// Source and SourceFile are copied into the audit details when set.
	Source     string
	SourceFile string
}

type SaveResult struct {
	TemplateID int64     `json:"template_id"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}

// Required returns the placeholder set for a workflow, or a ValidationError
// when the workflow is not configured.
func (m *Manager) Required(workflowID int) ([]string, error) {
	required, ok := m.workflows.Required(workflowID)
	if !ok {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown workflow %d", workflowID)}
	}
	return required, nil
}

// Validate checks content against the workflow's required placeholders and
// reports every missing token at once.
func (m *Manager) Validate(workflowID int, content string) error {
	required, err := m.Required(workflowID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return &ValidationError{Reason: "content is empty"}
	}
	if missing := MissingPlaceholders(content, required); len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// LoadActive returns the active template of a workflow, or
// ErrNoActiveTemplate when none has been saved yet.
func (m *Manager) LoadActive(ctx context.Context, workflowID int) (*models.PromptTemplate, error) {
	if _, err := m.Required(workflowID); err != nil {
		return nil, err
	}

	var (
		generation int64
		cacheable  bool
	)
	if m.cache != nil {
		t, err := m.cache.Get(ctx, workflowID)
		if err != nil {
			m.logger.Warn("active template cache read failed", "workflow_id", workflowID, "error", err)
		} else if t != nil {
			return t, nil
		}
		generation, err = m.cache.Generation(ctx, workflowID)
		if err != nil {
			m.logger.Warn("active template cache generation read failed", "workflow_id", workflowID, "error", err)
		}
		cacheable = err == nil
	}

	t, err := m.store.Active(ctx, workflowID)
	if err != nil {
		return nil, persistence("load active template", err)
	}

	if cacheable {
		if err := m.cache.Set(ctx, t, generation); err != nil {
			m.logger.Warn("active template cache write failed", "workflow_id", workflowID, "error", err)
		}
	}
	return t, nil
}

// Save stores content as the next version of the workflow and makes it the
// active one.
func (m *Manager) Save(ctx context.Context, req SaveRequest, meta audit.Meta) (*SaveResult, error) {
	if err := m.Validate(req.WorkflowID, req.Content); err != nil {
		return nil, err
	}

	var t models.PromptTemplate
	err := m.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockWorkflow(ctx, req.WorkflowID); err != nil {
			return err
		}
		if err := tx.DeactivateAll(ctx, req.WorkflowID); err != nil {
			return err
		}
		next, err := tx.NextVersion(ctx, req.WorkflowID)
		if err != nil {
			return err
		}

		notes := strings.TrimSpace(req.Notes)
		if notes == "" {
			notes = fmt.Sprintf("Version %d", next)
		}

		t = models.PromptTemplate{
			WorkflowID: req.WorkflowID,
			Version:    next,
			Content:    req.Content,
			IsActive:   true,
			CreatedBy:  meta.UserID,
			Notes:      notes,
		}
		if err := tx.Insert(ctx, &t); err != nil {
			return err
		}

		details := map[string]any{
			"workflow":       req.WorkflowID,
			"version":        next,
			"content_length": len(req.Content),
		}
		if req.Source != "" {
			details["source"] = req.Source
		}
		if req.SourceFile != "" {
			details["file"] = req.SourceFile
		}
		entry, err := audit.Entry(t.ID, models.AuditCreate, meta, details)
		if err != nil {
			return err
		}
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return nil, persistence("save template", err)
	}

	m.invalidate(ctx, req.WorkflowID)
	if err := m.verifySingleActive(ctx, req.WorkflowID); err != nil {
		return nil, err
	}

	m.logger.Info("prompt template saved",
		"workflow_id", req.WorkflowID, "version", t.Version, "template_id", t.ID, "user_id", meta.UserID)

	return &SaveResult{TemplateID: t.ID, Version: t.Version, CreatedAt: t.CreatedAt}, nil
}

// ListVersions returns every version of a workflow, newest first.
func (m *Manager) ListVersions(ctx context.Context, workflowID int) ([]models.PromptVersionSummary, error) {
	if _, err := m.Required(workflowID); err != nil {
		return nil, err
	}
	versions, err := m.store.List(ctx, workflowID)
	if err != nil {
		return nil, persistence("list versions", err)
	}
	return versions, nil
}

// ViewVersion returns a stored version and records a view audit entry. A
// versionID that belongs to another workflow yields ErrNotFound.
func (m *Manager) ViewVersion(ctx context.Context, workflowID int, versionID int64, meta audit.Meta) (*models.PromptTemplate, error) {
	if _, err := m.Required(workflowID); err != nil {
		return nil, err
	}

	var t *models.PromptTemplate
	err := m.store.InTx(ctx, func(tx Tx) error {
		got, err := tx.Get(ctx, versionID)
		if err != nil {
			return err
		}
		if got.WorkflowID != workflowID {
			return ErrNotFound
		}
		entry, err := audit.Entry(got.ID, models.AuditView, meta, nil)
		if err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		t = got
		return nil
	})
	if err != nil {
		return nil, persistence("view template", err)
	}
	return t, nil
}

// ActivateVersion makes a previously saved version the active one again.
// It returns the restored version number.
func (m *Manager) ActivateVersion(ctx context.Context, workflowID int, versionID int64, meta audit.Meta) (int, error) {
	if _, err := m.Required(workflowID); err != nil {
		return 0, err
	}

	var restored int
	err := m.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockWorkflow(ctx, workflowID); err != nil {
			return err
		}
		target, err := tx.Get(ctx, versionID)
		if err != nil {
			return err
		}
		if target.WorkflowID != workflowID {
			return ErrNotFound
		}
		if err := tx.DeactivateAll(ctx, workflowID); err != nil {
			return err
		}
		if err := tx.Activate(ctx, target.ID); err != nil {
			return err
		}
		entry, err := audit.Entry(target.ID, models.AuditActivate, meta, map[string]any{
			"workflow": workflowID,
			"version":  target.Version,
			"action":   "rollback",
		})
		if err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		restored = target.Version
		return nil
	})
	if err != nil {
		return 0, persistence("activate template", err)
	}

	m.invalidate(ctx, workflowID)
	if err := m.verifySingleActive(ctx, workflowID); err != nil {
		return 0, err
	}

	m.logger.Info("prompt template activated",
		"workflow_id", workflowID, "version", restored, "template_id", versionID, "user_id", meta.UserID)
	return restored, nil
}

// ListAudit returns the most recent audit entries for a workflow.
func (m *Manager) ListAudit(ctx context.Context, workflowID, limit int) ([]models.PromptAuditEntry, error) {
	if _, err := m.Required(workflowID); err != nil {
		return nil, err
	}
	entries, err := m.store.Audit(ctx, audit.Query{
		WorkflowID: workflowID,
		Limit:      audit.ClampLimit(limit, m.auditLimit),
	})
	if err != nil {
		return nil, persistence("list audit", err)
	}
	return entries, nil
}

// verifySingleActive re-counts active rows after a committed write. Anything
// other than exactly one is reported, never repaired here.
func (m *Manager) verifySingleActive(ctx context.Context, workflowID int) error {
	n, err := m.store.CountActive(ctx, workflowID)
	if err != nil {
		return persistence("verify active template", err)
	}
	if n != 1 {
		m.logger.Error("active template invariant violated",
			"workflow_id", workflowID, "active_count", n)
		return &PersistenceError{
			Op:  "verify active template",
			Err: fmt.Errorf("%w: workflow %d has %d active versions", ErrInvariantViolated, workflowID, n),
		}
	}
	return nil
}

func (m *Manager) invalidate(ctx context.Context, workflowID int) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(ctx, workflowID); err != nil {
		m.logger.Warn("active template cache invalidation failed", "workflow_id", workflowID, "error", err)
	}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
