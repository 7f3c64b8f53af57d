package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ArchiveScheduler runs the opportunity archiver on a fixed interval, so
// history reaches cold storage without an operator touching the archive
// endpoint. Each run archives everything detected before the start of
// the current month; the archiver rewrites touched months in full, so
// overlapping runs stay idempotent.
type ArchiveScheduler struct {
	archiver domain.Archiver
	interval time.Duration
	logger   *slog.Logger
}

func NewArchiveScheduler(archiver domain.Archiver, interval time.Duration, logger *slog.Logger) *ArchiveScheduler {
	return &ArchiveScheduler{
		archiver: archiver,
		interval: interval,
		logger:   logger.With(slog.String("component", "archive_scheduler")),
	}
}

// Run archives on every tick until ctx is cancelled. Failures are logged
// and retried on the next tick; archival is never allowed to take the
// engine down.
func (s *ArchiveScheduler) Run(ctx context.Context) error {
	s.logger.Info("archive scheduler started", slog.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *ArchiveScheduler) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	cutoff := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	archived, err := s.archiver.ArchiveOpportunities(ctx, cutoff)
	if err != nil {
		s.logger.Error("scheduled archive failed", slog.String("error", err.Error()))
		return
	}
	if archived > 0 {
		s.logger.Info("scheduled archive complete",
			slog.Int64("archived", archived),
			slog.Time("cutoff", cutoff))
	}
}
