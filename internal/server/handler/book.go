package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// QuoteSource provides the current top-of-book per venue. Backed by the
// live price book in monitor and full mode and by the shared quote
// cache in serve mode.
type QuoteSource interface {
	Quotes(ctx context.Context) (map[string]domain.ExchangeQuote, error)
}

// BookHandler serves the consolidated price book.
type BookHandler struct {
	quotes QuoteSource
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(quotes QuoteSource, logger *slog.Logger) *BookHandler {
	return &BookHandler{quotes: quotes, logger: logger}
}

type bookResponse struct {
	Quotes    map[string]domain.ExchangeQuote `json:"quotes"`
	Timestamp time.Time                       `json:"timestamp"`
}

// GetBook returns the latest quote for every venue.
// GET /api/book
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.quotes.Quotes(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get book failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read price book")
		return
	}
	if quotes == nil {
		quotes = map[string]domain.ExchangeQuote{}
	}
	writeJSON(w, http.StatusOK, bookResponse{
		Quotes:    quotes,
		Timestamp: time.Now().UTC(),
	})
}

// GetVenue returns the latest quote for one venue.
// GET /api/book/{exchange}
func (h *BookHandler) GetVenue(w http.ResponseWriter, r *http.Request) {
	exchange := r.PathValue("exchange")
	if exchange == "" {
		writeError(w, http.StatusBadRequest, "missing exchange")
		return
	}

	quotes, err := h.quotes.Quotes(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get venue quote failed",
			slog.String("exchange", exchange),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read price book")
		return
	}

	q, ok := quotes[exchange]
	if !ok || !q.HasData() {
		writeError(w, http.StatusNotFound, "no quote for exchange")
		return
	}
	writeJSON(w, http.StatusOK, q)
}
