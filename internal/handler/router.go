package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/forgo/qola/api/internal/middleware"
	"github.com/forgo/qola/api/internal/model"
)

// RouterConfig holds the handlers and shared middleware state for the API.
// Metrics, RateLimiter and Idempotency are optional.
type RouterConfig struct {
	Registration      *RegistrationHandler
	Health            *HealthHandler
	Metrics           http.Handler
	RateLimiter       *middleware.RateLimiter
	Idempotency       *middleware.IdempotencyStore
	AllowedOrigins    []string
	TrustForwardedFor bool
}

// NewRouter wires the HTTP surface: POST /v1/auth/register, GET /health
// and GET /metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.ResolveClientAddress(cfg.TrustForwardedFor),
		middleware.Logger,
		middleware.Recovery,
		middleware.CORS(cfg.AllowedOrigins),
		middleware.Compress,
	)

	r.Route("/v1/auth/register", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(middleware.RateLimit(cfg.RateLimiter))
		}
		if cfg.Idempotency != nil {
			r.Use(middleware.Idempotency(cfg.Idempotency))
		}
		r.Post("/", cfg.Registration.Register)
		r.MethodNotAllowed(methodNotAllowed(http.MethodPost))
	})

	r.Get("/health", cfg.Health.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	r.MethodNotAllowed(methodNotAllowed(http.MethodGet))

	return r
}

func methodNotAllowed(allowed string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allowed)
		WriteError(w, model.NewMethodNotAllowedError(allowed))
	}
}
