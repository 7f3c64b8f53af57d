package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// RecentSource provides the most recent opportunities, newest first.
// Backed by the in-memory ring in monitor and full mode and by the
// redis stream tail in serve mode.
type RecentSource interface {
	Recent(ctx context.Context, limit int) ([]domain.Opportunity, error)
}

// HistoryStore is the slice of the opportunity store the handler needs.
type HistoryStore interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Opportunity, error)
	Count(ctx context.Context) (int64, error)
}

// OpportunitiesHandler serves detected opportunities.
type OpportunitiesHandler struct {
	recent  RecentSource
	history HistoryStore // optional; endpoints answer 501 when nil
	logger  *slog.Logger
}

// NewOpportunitiesHandler creates an OpportunitiesHandler.
func NewOpportunitiesHandler(recent RecentSource, logger *slog.Logger) *OpportunitiesHandler {
	return &OpportunitiesHandler{recent: recent, logger: logger}
}

// WithHistoryStore enables the persistent history endpoints.
func (h *OpportunitiesHandler) WithHistoryStore(store HistoryStore) *OpportunitiesHandler {
	h.history = store
	return h
}

type listOpportunitiesResponse struct {
	Opportunities []domain.Opportunity `json:"opportunities"`
}

// ListRecent returns the most recent opportunities.
// GET /api/opportunities?limit=20
func (h *OpportunitiesHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 20, 200)

	opps, err := h.recent.Recent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, listOpportunitiesResponse{Opportunities: opps})
}

type historyResponse struct {
	Opportunities []domain.Opportunity `json:"opportunities"`
	Total         int64                `json:"total"`
}

// History returns persisted opportunities, newest first, with optional
// keyset paging on the detection time.
// GET /api/opportunities/history?limit=50&before=2026-08-01T00:00:00Z
func (h *OpportunitiesHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "opportunity history not configured")
		return
	}

	limit := queryLimit(r, 50, 500)

	var (
		opps []domain.Opportunity
		err  error
	)
	if v := r.URL.Query().Get("before"); v != "" {
		before, parseErr := time.Parse(time.RFC3339, v)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "before must be RFC 3339")
			return
		}
		opps, err = h.history.ListBefore(r.Context(), before, limit)
	} else {
		opps, err = h.history.ListRecent(r.Context(), limit)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: opportunity history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunity history")
		return
	}

	total, err := h.history.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: opportunity count failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count opportunities")
		return
	}

	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Opportunities: opps, Total: total})
}
