package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// defaultGrace bounds how long shutdown waits for connection tasks.
const defaultGrace = 10 * time.Second

// Supervisor runs one Conn per configured venue and aggregates health.
// A venue with a broken configuration is skipped with an error log; the
// others run unaffected.
type Supervisor struct {
	handler func(domain.BookUpdate)
	sink    domain.EventSink
	logger  *slog.Logger

	// Grace bounds the shutdown wait before feed tasks are abandoned.
	Grace time.Duration

	mu     sync.Mutex
	states map[string]domain.ConnState
}

// NewSupervisor wires the update handler and event sink shared by all
// venue connections.
func NewSupervisor(handler func(domain.BookUpdate), sink domain.EventSink, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		handler: handler,
		sink:    sink,
		logger:  logger.With(slog.String("component", "supervisor")),
		Grace:   defaultGrace,
		states:  make(map[string]domain.ConnState),
	}
}

// Run starts every runnable venue and blocks until ctx is cancelled, then
// waits at most Grace for the connection tasks to wind down before
// abandoning them. It fails immediately only when no venue is runnable.
func (s *Supervisor) Run(ctx context.Context, configs []ConnConfig) error {
	runnable := make([]ConnConfig, 0, len(configs))
	seen := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if err := validateConnConfig(cfg); err != nil {
			s.logger.Error("venue skipped", slog.String("error", err.Error()))
			continue
		}
		if seen[cfg.Exchange] {
			cfgErr := &domain.ConfigError{Exchange: cfg.Exchange, Reason: "duplicate exchange_id"}
			s.logger.Error("venue skipped", slog.String("error", cfgErr.Error()))
			continue
		}
		seen[cfg.Exchange] = true
		runnable = append(runnable, cfg)
	}
	if len(runnable) == 0 {
		return errors.New("feed: no runnable venue configurations")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, cfg := range runnable {
		s.noteState(ctx)(cfg.Exchange, domain.StateDisconnected)
		conn := NewConn(cfg, s.handler, s.noteState(ctx), s.logger)
		g.Go(func() error {
			return conn.Run(gctx)
		})
	}
	s.logger.Info("supervisor started", slog.Int("venues", len(runnable)))

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		// Connections only return on cancellation, so reaching this
		// without ctx being done means the group context collapsed.
		return err
	case <-ctx.Done():
	}
	select {
	case <-done:
		s.logger.Info("supervisor stopped")
	case <-time.After(s.Grace):
		s.logger.Warn("shutdown grace exceeded, abandoning feed tasks",
			slog.Duration("grace", s.Grace))
	}
	return ctx.Err()
}

// Health reports the last known state of every venue the supervisor
// started. Venues skipped for bad configuration never appear.
func (s *Supervisor) Health() map[string]domain.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.ConnState, len(s.states))
	for ex, st := range s.states {
		out[ex] = st
	}
	return out
}

// noteState records a transition and forwards it to the event sink.
func (s *Supervisor) noteState(ctx context.Context) StateFunc {
	return func(exchange string, state domain.ConnState) {
		s.mu.Lock()
		prev, known := s.states[exchange]
		s.states[exchange] = state
		s.mu.Unlock()
		if known && prev == state {
			return
		}
		if s.sink != nil {
			s.sink.OnHealthChange(ctx, exchange, state)
		}
	}
}
