package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/nikhilbhutani/articlegen/internal/database"
	"github.com/nikhilbhutani/articlegen/internal/models"
)

const (
	unknown  = "unknown"
	maxLimit = 500
)

// Meta identifies who performed an action and from where.
type Meta struct {
	UserID    int64
	IPAddress string
	UserAgent string
}

// MetaFromRequest extracts best-effort client metadata. RemoteAddr is
// expected to have been rewritten by chi's RealIP middleware already.
func MetaFromRequest(r *http.Request, userID int64) Meta {
	m := Meta{UserID: userID, IPAddress: unknown, UserAgent: unknown}
	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
		m.IPAddress = addr
	}
	if ua := r.UserAgent(); ua != "" {
		m.UserAgent = ua
	}
	return m
}

func (m Meta) normalized() Meta {
	if m.IPAddress == "" {
		m.IPAddress = unknown
	}
	if m.UserAgent == "" {
		m.UserAgent = unknown
	}
	return m
}

// Entry builds an audit row for templateID. Details may be nil.
func Entry(templateID int64, action models.AuditAction, meta Meta, details map[string]any) (*models.PromptAuditEntry, error) {
	meta = meta.normalized()
	e := &models.PromptAuditEntry{
		TemplateID: templateID,
		Action:     action,
		UserID:     meta.UserID,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("marshal audit details: %w", err)
		}
		e.Details = raw
	}
	return e, nil
}

// Insert appends e using q, which is normally the transaction performing
// the audited change.
func Insert(ctx context.Context, q database.Querier, e *models.PromptAuditEntry) error {
	err := q.QueryRow(ctx,
		`INSERT INTO prompt_audit_log (template_id, action, user_id, ip_address, user_agent, details)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		e.TemplateID, string(e.Action), e.UserID, e.IPAddress, e.UserAgent, nullJSON(e.Details),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

type Service struct {
	db database.Querier
}

func NewService(db database.Querier) *Service {
	return &Service{db: db}
}

type Query struct {
	WorkflowID int
	Action     models.AuditAction
	TemplateID int64
	Limit      int
}

// List returns audit entries for a workflow's templates, newest first.
func (s *Service) List(ctx context.Context, q Query) ([]models.PromptAuditEntry, error) {
	q.Limit = ClampLimit(q.Limit, 50)

	query := `SELECT pal.id, pal.template_id, pal.action, pal.user_id, pal.ip_address, pal.user_agent,
			         pal.details, pal.created_at, pt.workflow_id, pt.version, COALESCE(u.name, '')
			  FROM prompt_audit_log pal
			  JOIN prompt_templates pt ON pal.template_id = pt.id
			  LEFT JOIN users u ON pal.user_id = u.id
			  WHERE pt.workflow_id = $1`
	args := []any{q.WorkflowID}
	argIdx := 2

	if q.Action != "" {
		query += fmt.Sprintf(" AND pal.action = $%d", argIdx)
		args = append(args, string(q.Action))
		argIdx++
	}
	if q.TemplateID != 0 {
		query += fmt.Sprintf(" AND pal.template_id = $%d", argIdx)
		args = append(args, q.TemplateID)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY pal.created_at DESC, pal.id DESC LIMIT $%d", argIdx)
	args = append(args, q.Limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	logs := []models.PromptAuditEntry{}
	for rows.Next() {
		var l models.PromptAuditEntry
		var action string
		var details []byte
		if err := rows.Scan(&l.ID, &l.TemplateID, &action, &l.UserID, &l.IPAddress, &l.UserAgent,
			&details, &l.CreatedAt, &l.WorkflowID, &l.Version, &l.Username); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		l.Action = models.AuditAction(action)
		if len(details) > 0 {
			l.Details = details
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return logs, nil
}

// ClampLimit applies the default for non-positive limits and caps large ones.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
