package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/articlegen/internal/article"
	"github.com/nikhilbhutani/articlegen/internal/queue"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, requestID int64, sessionID string) error
	Fail(ctx context.Context, requestID int64, cause error) error
}

type ArticleWorker struct {
	svc Dispatcher
}

func NewArticleWorker(svc Dispatcher) *ArticleWorker {
	return &ArticleWorker{svc: svc}
}

func (w *ArticleWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.ArticleSubmitPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	slog.Info("dispatching article request", "request_id", payload.RequestID)

	err := w.svc.Dispatch(ctx, payload.RequestID, payload.SessionID)
	if err == nil {
		return nil
	}
	if errors.Is(err, article.ErrPermanent) {
		slog.Warn("article request rejected", "request_id", payload.RequestID, "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if lastAttempt(ctx) {
		if ferr := w.svc.Fail(ctx, payload.RequestID, err); ferr != nil {
			slog.Error("mark article request failed", "request_id", payload.RequestID, "error", ferr)
		}
	}
	slog.Error("article dispatch failed", "request_id", payload.RequestID, "error", err)
	return err
}

func lastAttempt(ctx context.Context) bool {
	retried, ok1 := asynq.GetRetryCount(ctx)
	max, ok2 := asynq.GetMaxRetry(ctx)
	return ok1 && ok2 && retried >= max
}
