package prompt

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/nikhilbhutani/articlegen/internal/cache"
	"github.com/nikhilbhutani/articlegen/internal/models"
)

// ActiveCache holds the active template per workflow. Failures are not
// fatal; the manager falls back to the store.
//
// Each workflow has a generation that Invalidate advances. A reader takes
// the generation before reading the store and passes it to Set, which
// drops the write if an invalidation happened in between.
type ActiveCache interface {
	Get(ctx context.Context, workflowID int) (*models.PromptTemplate, error)
	Generation(ctx context.Context, workflowID int) (int64, error)
	Set(ctx context.Context, t *models.PromptTemplate, generation int64) error
	Invalidate(ctx context.Context, workflowID int) error
}

type redisActiveCache struct {
	c   *cache.Cache
	ttl time.Duration
}

func NewRedisActiveCache(c *cache.Cache, ttl time.Duration) ActiveCache {
	return &redisActiveCache{c: c, ttl: ttl}
}

func activeKey(workflowID int) string {
	return "active:" + strconv.Itoa(workflowID)
}

func generationKey(workflowID int) string {
	return "gen:" + strconv.Itoa(workflowID)
}

// Get returns (nil, nil) on a miss.
func (r *redisActiveCache) Get(ctx context.Context, workflowID int) (*models.PromptTemplate, error) {
	var t models.PromptTemplate
	err := r.c.Get(ctx, activeKey(workflowID), &t)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *redisActiveCache) Generation(ctx context.Context, workflowID int) (int64, error) {
	return r.c.Counter(ctx, generationKey(workflowID))
}

func (r *redisActiveCache) Set(ctx context.Context, t *models.PromptTemplate, generation int64) error {
	_, err := r.c.SetIfCounter(ctx, generationKey(t.WorkflowID), generation, activeKey(t.WorkflowID), t, r.ttl)
	return err
}

func (r *redisActiveCache) Invalidate(ctx context.Context, workflowID int) error {
	return r.c.Bump(ctx, generationKey(workflowID), activeKey(workflowID))
}
