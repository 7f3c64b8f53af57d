package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const archivePrefix = "archive/opportunities/"

// ArchiveHandler serves the history archive: listing uploaded files and
// triggering archive runs. Both endpoints answer 501 when object
// storage is not configured.
type ArchiveHandler struct {
	reader   domain.BlobReader
	archiver domain.Archiver
	logger   *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. reader and archiver may
// be nil when object storage is disabled.
func NewArchiveHandler(reader domain.BlobReader, archiver domain.Archiver, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{reader: reader, archiver: archiver, logger: logger}
}

type listArchiveResponse struct {
	Files []domain.BlobInfo `json:"files"`
}

// ListFiles returns the uploaded archive objects.
// GET /api/archive
func (h *ArchiveHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusNotImplemented, "archive storage not configured")
		return
	}

	files, err := h.reader.List(r.Context(), archivePrefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archive failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archive")
		return
	}
	if files == nil {
		files = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, listArchiveResponse{Files: files})
}

type runArchiveResponse struct {
	Archived int64  `json:"archived"`
	Before   string `json:"before"`
}

// Run archives all opportunities detected before the given cutoff
// (default: the start of the current month).
// POST /api/archive/run?before=2026-08-01T00:00:00Z
func (h *ArchiveHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusNotImplemented, "archive storage not configured")
		return
	}

	now := time.Now().UTC()
	before := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be RFC 3339")
			return
		}
		before = t
	}

	archived, err := h.archiver.ArchiveOpportunities(r.Context(), before)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive run failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "archive run failed")
		return
	}

	writeJSON(w, http.StatusOK, runArchiveResponse{
		Archived: archived,
		Before:   before.Format(time.RFC3339),
	})
}
