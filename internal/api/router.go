package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/articlegen/internal/api/handlers"
	"github.com/nikhilbhutani/articlegen/internal/api/middleware"
	"github.com/nikhilbhutani/articlegen/internal/auth"
	"github.com/nikhilbhutani/articlegen/internal/config"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Config    *config.Config
	Auth      *auth.Service
	Prompts   handlers.PromptManager
	Workflows *config.Workflows
	Articles  handlers.ArticleService
	Admin     handlers.Forwarder
	Checks    map[string]handlers.Pinger
}

type Router struct {
	mux     *chi.Mux
	deps    Deps
	limiter *middleware.RateLimiter
}

func NewRouter(deps Deps) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		deps:    deps,
		limiter: middleware.NewRateLimiter(deps.Config.Server.RateLimitRPS, deps.Config.Server.RateLimitBurst),
	}
}

// Close stops background work started by the router.
func (rt *Router) Close() {
	rt.limiter.Stop()
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	cfg := rt.deps.Config

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	// Health endpoints (no auth, no rate limit)
	health := handlers.NewHealthHandler(rt.deps.Checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	sessions := auth.NewSessionMiddleware(rt.deps.Auth, cfg.Session.CookieName, cfg.Session.VerifyInterval)
	authH := handlers.NewAuthHandler(rt.deps.Auth, cfg.Session)

	r.Group(func(r chi.Router) {
		r.Use(rt.limiter.Limit)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authH.Login)
			r.With(sessions.RequireSession).Post("/logout", authH.Logout)
			r.With(sessions.RequireSession).Get("/me", authH.Me)
		})

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(sessions.RequireSession)

			articleH := handlers.NewArticleHandler(rt.deps.Articles)
			r.Route("/articles", func(r chi.Router) {
				r.Post("/", articleH.Submit)
				r.Get("/", articleH.List)
				r.Get("/{id}", articleH.Get)
				r.Get("/{id}/progress", articleH.Progress)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)

				promptH := handlers.NewPromptHandler(rt.deps.Prompts, rt.deps.Workflows)
				r.Route("/prompts/{workflow}", func(r chi.Router) {
					r.Get("/", promptH.Active)
					r.Post("/", promptH.Save)
					r.Get("/versions", promptH.Versions)
					r.Get("/versions/{id}", promptH.View)
					r.Post("/versions/{id}/activate", promptH.Activate)
					r.Get("/audit", promptH.Audit)
					r.Get("/variables", promptH.Variables)
				})

				adminH := handlers.NewAdminHandler(rt.deps.Admin)
				r.Get("/users", adminH.Users)
				r.Post("/users", adminH.Users)
				r.Get("/users/{id}", adminH.User)
				r.Put("/users/{id}", adminH.User)
				r.Delete("/users/{id}", adminH.User)
				r.Get("/stats", adminH.Stats)
			})
		})
	})

	return r
}
