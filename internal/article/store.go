package article

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nikhilbhutani/articlegen/internal/database"
	"github.com/nikhilbhutani/articlegen/internal/models"
)

var ErrNotFound = errors.New("article request not found")

type Store interface {
	Create(ctx context.Context, req *models.ArticleRequest) error
	Get(ctx context.Context, id int64) (*models.ArticleRequest, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.ArticleRequest, error)
	MarkProcessing(ctx context.Context, id int64, backendWorkflowID string) error
	MarkCompleted(ctx context.Context, id int64, result json.RawMessage) error
	MarkFailed(ctx context.Context, id int64, message string) error
}

type PgStore struct {
	db database.Querier
}

func NewPgStore(db database.Querier) *PgStore {
	return &PgStore{db: db}
}

const selectRequest = `SELECT id, user_id, workflow_type, status, input_params, backend_workflow_id,
		result_data, error_message, created_at, updated_at
	FROM article_requests`

func (s *PgStore) Create(ctx context.Context, req *models.ArticleRequest) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO article_requests (user_id, workflow_type, status, input_params)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		req.UserID, req.WorkflowType, string(req.Status), []byte(req.Input),
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert article request: %w", err)
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, id int64) (*models.ArticleRequest, error) {
	req, err := scanRequest(s.db.QueryRow(ctx, selectRequest+" WHERE id = $1", id))
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *PgStore) ListByUser(ctx context.Context, userID int64, limit int) ([]models.ArticleRequest, error) {
	rows, err := s.db.Query(ctx,
		selectRequest+" WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list article requests: %w", err)
	}
	defer rows.Close()

	out := []models.ArticleRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article requests: %w", err)
	}
	return out, nil
}

func (s *PgStore) MarkProcessing(ctx context.Context, id int64, backendWorkflowID string) error {
	return s.update(ctx, "mark processing",
		`UPDATE article_requests SET status = $2, backend_workflow_id = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, string(models.ArticleProcessing), backendWorkflowID)
}

func (s *PgStore) MarkCompleted(ctx context.Context, id int64, result json.RawMessage) error {
	return s.update(ctx, "mark completed",
		`UPDATE article_requests SET status = $2, result_data = $3, error_message = NULL, updated_at = NOW()
		 WHERE id = $1`,
		id, string(models.ArticleCompleted), []byte(result))
}

func (s *PgStore) MarkFailed(ctx context.Context, id int64, message string) error {
	return s.update(ctx, "mark failed",
		`UPDATE article_requests SET status = $2, error_message = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, string(models.ArticleError), message)
}

func (s *PgStore) update(ctx context.Context, op, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRequest(row pgx.Row) (*models.ArticleRequest, error) {
	var req models.ArticleRequest
	var status string
	var input, result []byte
	err := row.Scan(&req.ID, &req.UserID, &req.WorkflowType, &status, &input, &req.BackendWorkflowID,
		&result, &req.Error, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan article request: %w", err)
	}
	req.Status = models.ArticleStatus(status)
	req.Input = input
	if len(result) > 0 {
		req.Result = result
	}
	return &req, nil
}
