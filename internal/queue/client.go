package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/articlegen/internal/config"
)

const (
	articleMaxRetry = 5
	articleTimeout  = 2 * time.Minute
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(RedisOpt(cfg)),
	}
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueArticleSubmit is keyed by request id, so submitting the same
// request twice queues it once.
func (c *Client) EnqueueArticleSubmit(ctx context.Context, payload ArticleSubmitPayload) error {
	return c.enqueue(ctx, TypeArticleSubmit, payload,
		asynq.MaxRetry(articleMaxRetry),
		asynq.Timeout(articleTimeout),
		asynq.TaskID(fmt.Sprintf("article-%d", payload.RequestID)),
		asynq.Retention(24*time.Hour),
	)
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
