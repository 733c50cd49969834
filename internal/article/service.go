package article

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/nikhilbhutani/articlegen/internal/auth"
	"github.com/nikhilbhutani/articlegen/internal/backend"
	"github.com/nikhilbhutani/articlegen/internal/config"
	"github.com/nikhilbhutani/articlegen/internal/models"
	"github.com/nikhilbhutani/articlegen/internal/queue"
)

// ErrPermanent marks dispatch failures that retrying cannot fix.
var ErrPermanent = errors.New("permanent dispatch failure")

type Backend interface {
	SubmitWorkflow(ctx context.Context, token string, workflowType int, input json.RawMessage) (string, error)
	Progress(ctx context.Context, token, workflowID string) (*backend.Progress, error)
}

type Enqueuer interface {
	EnqueueArticleSubmit(ctx context.Context, payload queue.ArticleSubmitPayload) error
}

type Sessions interface {
	Get(ctx context.Context, id string) (*auth.Session, error)
}

type Workflows interface {
	Get(id int) (config.Workflow, bool)
}

type Service struct {
	store     Store
	validator *Validator
	queue     Enqueuer
	backend   Backend
	sessions  Sessions
	workflows Workflows
}

func NewService(store Store, validator *Validator, q Enqueuer, b Backend, sessions Sessions, workflows Workflows) *Service {
	return &Service{
		store:     store,
		validator: validator,
		queue:     q,
		backend:   b,
		sessions:  sessions,
		workflows: workflows,
	}
}

// Submit validates the form, records the request and queues it for the
// worker, which forwards it to the backend with the caller's token.
func (s *Service) Submit(ctx context.Context, userID int64, sessionID string, workflowType int, input json.RawMessage) (*models.ArticleRequest, error) {
	if _, ok := s.workflows.Get(workflowType); !ok {
		return nil, &InputError{WorkflowType: workflowType, Problems: []string{"unknown workflow type"}}
	}
	if err := s.validator.Validate(workflowType, input); err != nil {
		return nil, err
	}

	req := &models.ArticleRequest{
		UserID:       userID,
		WorkflowType: workflowType,
		Status:       models.ArticleQueued,
		Input:        input,
	}
	if err := s.store.Create(ctx, req); err != nil {
		return nil, err
	}

	err := s.queue.EnqueueArticleSubmit(ctx, queue.ArticleSubmitPayload{RequestID: req.ID, SessionID: sessionID})
	if err != nil {
		msg := "could not queue request"
		if ferr := s.store.MarkFailed(ctx, req.ID, msg); ferr != nil {
			slog.Error("mark article request failed", "request_id", req.ID, "error", ferr)
		}
		return nil, fmt.Errorf("queue article request %d: %w", req.ID, err)
	}

	slog.Info("article request queued", "request_id", req.ID, "user_id", userID, "workflow_type", workflowType)
	return req, nil
}

// Dispatch runs on the worker. Requests that already left the queued state
// are skipped so redelivered tasks never start a second backend run.
func (s *Service) Dispatch(ctx context.Context, requestID int64, sessionID string) error {
	req, err := s.store.Get(ctx, requestID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("request %d: %w", requestID, ErrPermanent)
	}
	if err != nil {
		return err
	}
	if req.Status != models.ArticleQueued {
		slog.Info("article request already dispatched", "request_id", requestID, "status", req.Status)
		return nil
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, auth.ErrNoSession) {
		return s.fail(ctx, requestID, "session expired before the request was sent")
	}
	if err != nil {
		return err
	}

	workflowID, err := s.backend.SubmitWorkflow(ctx, sess.Token, req.WorkflowType, req.Input)
	if err != nil {
		var apiErr *backend.APIError
		if errors.Is(err, backend.ErrUnauthorized) || (errors.As(err, &apiErr) && !apiErr.Temporary()) {
			return s.fail(ctx, requestID, err.Error())
		}
		return err
	}

	// The backend has started a run. Retrying from here would start another
	// one, so a failure to record it is not retried.
	if err := s.store.MarkProcessing(ctx, requestID, workflowID); err != nil {
		slog.Error("record backend workflow failed", "request_id", requestID,
			"backend_workflow_id", workflowID, "error", err)
		return fmt.Errorf("request %d: record backend workflow %s: %v: %w", requestID, workflowID, err, ErrPermanent)
	}
	slog.Info("article request dispatched", "request_id", requestID, "backend_workflow_id", workflowID)
	return nil
}

// Fail records a terminal error, used by the worker once retries run out.
func (s *Service) Fail(ctx context.Context, requestID int64, cause error) error {
	return s.store.MarkFailed(ctx, requestID, cause.Error())
}

func (s *Service) fail(ctx context.Context, requestID int64, msg string) error {
	if err := s.store.MarkFailed(ctx, requestID, msg); err != nil {
		return err
	}
	return fmt.Errorf("request %d: %s: %w", requestID, msg, ErrPermanent)
}

// Get returns a request owned by user. Admins may read any request; for
// everyone else another user's request does not exist.
func (s *Service) Get(ctx context.Context, user *models.User, id int64) (*models.ArticleRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != user.ID && !user.IsAdmin() {
		return nil, ErrNotFound
	}
	return req, nil
}

func (s *Service) ListRecent(ctx context.Context, userID int64, limit int) ([]models.ArticleRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// Progress reports where a request stands. While the backend runs it, the
// backend's progress is relayed; terminal states are persisted the first
// time they are seen.
func (s *Service) Progress(ctx context.Context, user *models.User, token string, id int64) (*models.ArticleProgress, error) {
	req, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}

	total := 0
	if wf, ok := s.workflows.Get(req.WorkflowType); ok {
		total = wf.Steps
	}
	out := &models.ArticleProgress{
		RequestID:  req.ID,
		Status:     req.Status,
		TotalSteps: total,
		Steps:      []models.StepState{},
	}

	switch {
	case req.Status == models.ArticleCompleted:
		out.ProgressPercent = 100
		out.CurrentStep = total
		out.Steps = uniformSteps(total, "completed")
		out.Result = req.Result
		return out, nil
	case req.Status == models.ArticleError:
		if req.Error != nil {
			out.Error = *req.Error
		}
		return out, nil
	case req.BackendWorkflowID == nil:
		return out, nil
	}

	p, err := s.backend.Progress(ctx, token, *req.BackendWorkflowID)
	if err != nil {
		return nil, err
	}

	out.ProgressPercent = clampPercent(p.ProgressPercent)
	out.CurrentStep = p.CurrentStep
	out.Steps = stepStates(p.StepDetails)

	switch p.Status {
	case "completed":
		if err := s.store.MarkCompleted(ctx, req.ID, p.Result); err != nil {
			return nil, err
		}
		out.Status = models.ArticleCompleted
		out.ProgressPercent = 100
		out.Result = p.Result
	case "error", "not_found":
		msg := p.Error
		if msg == "" && p.Status == "not_found" {
			msg = "workflow not found on the generation backend"
		}
		if msg == "" {
			msg = "workflow failed"
		}
		if err := s.store.MarkFailed(ctx, req.ID, msg); err != nil {
			return nil, err
		}
		out.Status = models.ArticleError
		out.Error = msg
	default:
		out.Status = models.ArticleProcessing
	}
	return out, nil
}

func stepStates(details map[string]backend.StepDetail) []models.StepState {
	out := []models.StepState{}
	for key, d := range details {
		n, err := strconv.Atoi(strings.TrimPrefix(key, "step_"))
		if err != nil {
			continue
		}
		out = append(out, models.StepState{Step: n, Status: d.Status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out
}

func uniformSteps(n int, status string) []models.StepState {
	out := make([]models.StepState, n)
	for i := range out {
		out[i] = models.StepState{Step: i + 1, Status: status}
	}
	return out
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
