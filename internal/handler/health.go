package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/forgo/qola/api/internal/model"
)

const defaultHealthTimeout = 2 * time.Second

// Pinger is a backing store that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether both stores can serve registrations
type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler over the named dependencies
func NewHealthHandler(checks map[string]Pinger, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		checks:  checks,
		timeout: defaultHealthTimeout,
		logger:  logger,
	}
}

// HealthResponse is the body of a healthy GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			WriteError(w, model.NewServiceUnavailableError(model.MsgNotReady, model.ErrCodeNotReady))
			return
		}
	}

	WriteData(w, http.StatusOK, HealthResponse{Status: "ok"}, nil)
}
