package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/book"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

const defaultStatusInterval = 10 * time.Second

// HealthSource exposes the current per-venue connection states.
// Satisfied by feed.Supervisor.
type HealthSource interface {
	Health() map[string]domain.ConnState
}

// OpportunityCounter reports how many opportunities were recorded since
// start. Satisfied by sink.Recent.
type OpportunityCounter interface {
	Total() uint64
}

// Report is one status sample, logged periodically and served on the
// status endpoint.
type Report struct {
	GeneratedAt   time.Time                   `json:"generated_at"`
	Venues        map[string]domain.ConnState `json:"venues"`
	LiveVenues    int                         `json:"live_venues"`
	FreshQuotes   int                         `json:"fresh_quotes"`
	Opportunities uint64                      `json:"opportunities"`
}

// StatusReporter periodically summarizes venue health, book freshness
// and detection totals into a single log line.
type StatusReporter struct {
	health   HealthSource
	book     *book.Book
	counter  OpportunityCounter
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
}

func NewStatusReporter(
	health HealthSource,
	b *book.Book,
	counter OpportunityCounter,
	maxAge time.Duration,
	interval time.Duration,
	logger *slog.Logger,
) *StatusReporter {
	if interval <= 0 {
		interval = defaultStatusInterval
	}
	return &StatusReporter{
		health:   health,
		book:     b,
		counter:  counter,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger.With(slog.String("component", "status")),
	}
}

// Run logs a status report every interval until ctx is cancelled.
func (s *StatusReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.report(ctx)
		}
	}
}

// Sample builds a report as of now.
func (s *StatusReporter) Sample(now time.Time) Report {
	states := s.health.Health()

	live := 0
	for _, st := range states {
		if st.Live() {
			live++
		}
	}

	fresh := 0
	for _, q := range s.book.Snapshot() {
		if q.Fresh(now, s.maxAge) {
			fresh++
		}
	}

	return Report{
		GeneratedAt:   now.UTC(),
		Venues:        states,
		LiveVenues:    live,
		FreshQuotes:   fresh,
		Opportunities: s.counter.Total(),
	}
}

func (s *StatusReporter) report(ctx context.Context) {
	rep := s.Sample(time.Now())

	venues := make([]string, 0, len(rep.Venues))
	for ex, st := range rep.Venues {
		venues = append(venues, ex+"="+st.String())
	}
	sort.Strings(venues)

	s.logger.InfoContext(ctx, "status",
		slog.Int("venues", len(rep.Venues)),
		slog.Int("live", rep.LiveVenues),
		slog.Int("fresh_quotes", rep.FreshQuotes),
		slog.Uint64("opportunities", rep.Opportunities),
		slog.String("states", strings.Join(venues, " ")))
}
