package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/service"
)

// StatusSource builds a status report as of now. Satisfied by
// service.StatusReporter.
type StatusSource interface {
	Sample(now time.Time) service.Report
}

// StatusHandler serves the process status for dashboards.
type StatusHandler struct {
	Mode   string
	status StatusSource // optional; nil in processes without live feeds
}

// NewStatusHandler creates a StatusHandler for the given run mode.
func NewStatusHandler(mode string) *StatusHandler {
	return &StatusHandler{Mode: mode}
}

// WithStatusSource attaches the live status sampler.
func (h *StatusHandler) WithStatusSource(src StatusSource) *StatusHandler {
	h.status = src
	return h
}

// GetStatus responds with the run mode and, when available, the latest
// venue and detection summary.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode": h.Mode,
	}
	if h.status != nil {
		body["report"] = h.status.Sample(time.Now())
	}
	writeJSON(w, http.StatusOK, body)
}
