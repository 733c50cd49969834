package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/articlegen/internal/api"
	"github.com/nikhilbhutani/articlegen/internal/api/handlers"
	"github.com/nikhilbhutani/articlegen/internal/article"
	"github.com/nikhilbhutani/articlegen/internal/auth"
	"github.com/nikhilbhutani/articlegen/internal/backend"
	"github.com/nikhilbhutani/articlegen/internal/cache"
	"github.com/nikhilbhutani/articlegen/internal/config"
	"github.com/nikhilbhutani/articlegen/internal/database"
	"github.com/nikhilbhutani/articlegen/internal/prompt"
	"github.com/nikhilbhutani/articlegen/internal/queue"
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
	for _, wf := range workflows.All() {
		if wf.PendingReview {
			slog.Warn("workflow placeholder set awaiting review", "workflow_id", wf.ID, "name", wf.Name)
		}
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
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, sessions and cache will fail until it returns", "error", err)
	}
	defer rdb.Close()

	backendClient := backend.NewClient(cfg.Backend)
	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	sessions := auth.NewSessionStore(cache.NewCache(rdb, "session:"), cfg.Session.TTL)
	authSvc := auth.NewService(backendClient, sessions)

	promptMgr := prompt.NewManager(prompt.NewPgStore(db), workflows,
		prompt.WithCache(prompt.NewRedisActiveCache(cache.NewCache(rdb, "prompt:"), cfg.Prompts.CacheTTL)),
		prompt.WithAuditLimit(cfg.Prompts.AuditLimit),
		prompt.WithLogger(logger.With("component", "prompt")),
	)

	validator, err := article.NewValidator()
	if err != nil {
		slog.Error("failed to compile article schemas", "error", err)
		os.Exit(1)
	}
	articleSvc := article.NewService(article.NewPgStore(db), validator, queueClient, backendClient, sessions, workflows)

	router := api.NewRouter(api.Deps{
		Config:    cfg,
		Auth:      authSvc,
		Prompts:   promptMgr,
		Workflows: workflows,
		Articles:  articleSvc,
		Admin:     backendClient,
		Checks: map[string]handlers.Pinger{
			"database": db,
			"redis":    handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
			"backend":  backendClient,
		},
	})
	defer router.Close()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
