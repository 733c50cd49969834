package prompt

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nikhilbhutani/articlegen/internal/audit"
	"github.com/nikhilbhutani/articlegen/internal/database"
	"github.com/nikhilbhutani/articlegen/internal/models"
)

// advisory lock namespace for prompt_templates writers
const lockNamespace = 0x5054

const selectTemplate = `SELECT pt.id, pt.workflow_id, pt.version, pt.content, pt.is_active, pt.created_by,
		COALESCE(u.name, ''), COALESCE(pt.notes, ''), pt.created_at
	FROM prompt_templates pt
	LEFT JOIN users u ON pt.created_by = u.id`

type PgStore struct {
	db     database.Pool
	audits *audit.Service
}

func NewPgStore(db database.Pool) *PgStore {
	return &PgStore{db: db, audits: audit.NewService(db)}
}

func (s *PgStore) InTx(ctx context.Context, fn func(Tx) error) error {
	return database.InTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

func (s *PgStore) Active(ctx context.Context, workflowID int) (*models.PromptTemplate, error) {
	t, err := scanTemplate(s.db.QueryRow(ctx,
		selectTemplate+` WHERE pt.workflow_id = $1 AND pt.is_active = TRUE
		 ORDER BY pt.version DESC LIMIT 1`,
		workflowID,
	))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoActiveTemplate
	}
	if err != nil {
		return nil, fmt.Errorf("get active template: %w", err)
	}
	return t, nil
}

func (s *PgStore) List(ctx context.Context, workflowID int) ([]models.PromptVersionSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT pt.id, pt.version, COALESCE(u.name, ''), COALESCE(pt.notes, ''),
		        OCTET_LENGTH(pt.content), pt.is_active, pt.created_at
		 FROM prompt_templates pt
		 LEFT JOIN users u ON pt.created_by = u.id
		 WHERE pt.workflow_id = $1
		 ORDER BY pt.version DESC`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	versions := []models.PromptVersionSummary{}
	for rows.Next() {
		var v models.PromptVersionSummary
		if err := rows.Scan(&v.ID, &v.Version, &v.AuthorName, &v.Notes, &v.ContentLength, &v.IsActive, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, nil
}

func (s *PgStore) CountActive(ctx context.Context, workflowID int) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM prompt_templates WHERE workflow_id = $1 AND is_active = TRUE",
		workflowID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active templates: %w", err)
	}
	return n, nil
}

func (s *PgStore) Audit(ctx context.Context, q audit.Query) ([]models.PromptAuditEntry, error) {
	return s.audits.List(ctx, q)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockWorkflow(ctx context.Context, workflowID int) error {
	if _, err := t.tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1, $2)", lockNamespace, workflowID); err != nil {
		return fmt.Errorf("lock workflow %d: %w", workflowID, err)
	}
	return nil
}

func (t *pgTx) DeactivateAll(ctx context.Context, workflowID int) error {
	_, err := t.tx.Exec(ctx,
		"UPDATE prompt_templates SET is_active = FALSE WHERE workflow_id = $1 AND is_active = TRUE",
		workflowID,
	)
	if err != nil {
		return fmt.Errorf("deactivate templates: %w", err)
	}
	return nil
}

func (t *pgTx) NextVersion(ctx context.Context, workflowID int) (int, error) {
	var next int
	err := t.tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(version), 0) + 1 FROM prompt_templates WHERE workflow_id = $1",
		workflowID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next version: %w", err)
	}
	return next, nil
}

func (t *pgTx) Insert(ctx context.Context, p *models.PromptTemplate) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO prompt_templates (workflow_id, version, content, created_by, is_active, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		p.WorkflowID, p.Version, p.Content, p.CreatedBy, p.IsActive, p.Notes,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (t *pgTx) Get(ctx context.Context, id int64) (*models.PromptTemplate, error) {
	p, err := scanTemplate(t.tx.QueryRow(ctx, selectTemplate+" WHERE pt.id = $1", id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get template %d: %w", id, err)
	}
	return p, err
}

func (t *pgTx) Activate(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, "UPDATE prompt_templates SET is_active = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("activate template %d: %w", id, err)
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendAudit(ctx context.Context, e *models.PromptAuditEntry) error {
	return audit.Insert(ctx, t.tx, e)
}

func scanTemplate(row pgx.Row) (*models.PromptTemplate, error) {
	var p models.PromptTemplate
	err := row.Scan(&p.ID, &p.WorkflowID, &p.Version, &p.Content, &p.IsActive, &p.CreatedBy,
		&p.AuthorName, &p.Notes, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
