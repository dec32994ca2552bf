package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/aminelidof/lidof-english-coach/internal/api/handlers"
	"github.com/aminelidof/lidof-english-coach/internal/api/middleware"
	"github.com/aminelidof/lidof-english-coach/internal/auth"
	"github.com/aminelidof/lidof-english-coach/internal/cache"
	"github.com/aminelidof/lidof-english-coach/internal/config"
	"github.com/aminelidof/lidof-english-coach/internal/metrics"
	"github.com/aminelidof/lidof-english-coach/internal/session"
)

type Router struct {
	mux      *chi.Mux
	cfg      *config.Config
	store    *session.Store
	tokens   *auth.Tokens
	pipeline handlers.TurnRunner
	redis    *cache.Cache
	counters *metrics.Counters
	limiter  *middleware.RateLimiter
}

// NewRouter wires the HTTP surface. redis may be nil when Redis is disabled.
func NewRouter(cfg *config.Config, store *session.Store, tokens *auth.Tokens, pipeline handlers.TurnRunner, redis *cache.Cache, counters *metrics.Counters) *Router {
	return &Router{
		mux:      chi.NewRouter(),
		cfg:      cfg,
		store:    store,
		tokens:   tokens,
		pipeline: pipeline,
		redis:    redis,
		counters: counters,
		limiter:  middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))
	r.Use(rt.limiter.Limit)

	// Health endpoints (no auth)
	var pinger handlers.Pinger
	if rt.redis != nil {
		pinger = rt.redis
	}
	health := handlers.NewHealthHandler(pinger, rt.counters)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	sessions := handlers.NewSessionHandler(rt.store, rt.tokens, rt.pipeline)
	jwt := auth.NewJWTMiddleware(rt.tokens)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/scenarios", sessions.Scenarios)
		r.Get("/fallbacks", health.Fallbacks)
		r.Post("/sessions", sessions.Create)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(jwt.Authenticate)
			r.Get("/", sessions.Get)
			r.Post("/turns", sessions.Turn)
			r.Delete("/history", sessions.ClearHistory)
		})
	})

	return r
}

// Close stops background work started by the router.
func (rt *Router) Close() {
	rt.limiter.Stop()
}
