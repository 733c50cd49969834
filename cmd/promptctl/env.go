package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/articlegen/internal/audit"
	"github.com/nikhilbhutani/articlegen/internal/cache"
	"github.com/nikhilbhutani/articlegen/internal/config"
	"github.com/nikhilbhutani/articlegen/internal/database"
	"github.com/nikhilbhutani/articlegen/internal/prompt"
)

// cliMeta is recorded in the audit log for changes made from the command line.
func cliMeta(userID int64) audit.Meta {
	return audit.Meta{UserID: userID, IPAddress: "cli", UserAgent: "promptctl"}
}

func loadWorkflows(opts *rootOptions) (*config.Config, *config.Workflows, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, nil, err
	}
	wf, err := config.LoadWorkflows(cfg.Prompts.WorkflowsFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, wf, nil
}

// cacheMode says how a command treats the API's Redis cache of active
// templates.
type cacheMode int

const (
	// cacheUnused is for commands that never change the active template.
	cacheUnused cacheMode = iota
	// cacheRequired refuses to run unless Redis answers, so that a write
	// cannot leave the API serving the previous template.
	cacheRequired
	// cacheSkipped writes without invalidating; the API catches up when
	// PROMPT_CACHE_TTL expires.
	cacheSkipped
)

func writeCacheMode(skip bool) cacheMode {
	if skip {
		return cacheSkipped
	}
	return cacheRequired
}

func openManager(ctx context.Context, opts *rootOptions, mode cacheMode) (*prompt.Manager, func(), error) {
	cfg, workflows, err := loadWorkflows(opts)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is not set")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	mgrOpts := []prompt.Option{
		prompt.WithAuditLimit(cfg.Prompts.AuditLimit),
		prompt.WithLogger(logger),
	}

	var rdb *redis.Client
	switch mode {
	case cacheRequired:
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("redis at %s is unreachable, so the API would keep serving the cached template (pass --skip-cache-invalidation to write anyway): %w",
				cfg.Redis.Addr, err)
		}
		c := cache.NewCache(rdb, "prompt:")
		mgrOpts = append(mgrOpts, prompt.WithCache(prompt.NewRedisActiveCache(c, cfg.Prompts.CacheTTL)))
	case cacheSkipped:
		logger.Warn("cache invalidation skipped, the API may serve the previous template until the cache expires",
			"ttl", cfg.Prompts.CacheTTL)
	}

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, err
	}

	closeFn := func() {
		if rdb != nil {
			rdb.Close()
		}
		db.Close()
	}
	return prompt.NewManager(prompt.NewPgStore(db), workflows, mgrOpts...), closeFn, nil
}
