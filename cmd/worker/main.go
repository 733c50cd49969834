package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/articlegen/internal/article"
	"github.com/nikhilbhutani/articlegen/internal/auth"
	"github.com/nikhilbhutani/articlegen/internal/backend"
	"github.com/nikhilbhutani/articlegen/internal/cache"
	"github.com/nikhilbhutani/articlegen/internal/config"
	"github.com/nikhilbhutani/articlegen/internal/database"
	"github.com/nikhilbhutani/articlegen/internal/queue"
	"github.com/nikhilbhutani/articlegen/internal/queue/workers"
)

func main() {
	configFile := flag.String("config", "", "optional config file (.env or YAML)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	workflows, err := config.LoadWorkflows(cfg.Prompts.WorkflowsFile)
	if err != nil {
		slog.Error("failed to load workflows", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	validator, err := article.NewValidator()
	if err != nil {
		slog.Error("failed to compile article schemas", "error", err)
		os.Exit(1)
	}

	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	sessions := auth.NewSessionStore(cache.NewCache(rdb, "session:"), cfg.Session.TTL)
	articleSvc := article.NewService(article.NewPgStore(db), validator, queueClient,
		backend.NewClient(cfg.Backend), sessions, workflows)

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()
	articleWorker := workers.NewArticleWorker(articleSvc)
	registry.Register(queue.TypeArticleSubmit, asynq.HandlerFunc(articleWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", cfg.Queue.Concurrency)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
