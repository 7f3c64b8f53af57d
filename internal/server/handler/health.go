package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// HealthSource exposes per-venue connection states. Satisfied by
// feed.Supervisor.
type HealthSource interface {
	Health() map[string]domain.ConnState
}

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	health HealthSource // optional; nil in processes without live feeds
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

// WithHealthSource attaches the live feed states to the health payload.
func (h *HealthHandler) WithHealthSource(src HealthSource) *HealthHandler {
	h.health = src
	return h
}

// HealthCheck reports that the process is alive, plus the venue
// connection states when a live feed supervisor runs in this process.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.health != nil {
		body["venues"] = h.health.Health()
	}
	writeJSON(w, http.StatusOK, body)
}
