package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/arbitrage"
	"github.com/alanyoungcy/crossarb/internal/book"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/feed"
	"github.com/alanyoungcy/crossarb/internal/server"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/server/ws"
	"github.com/alanyoungcy/crossarb/internal/service"
	"github.com/alanyoungcy/crossarb/internal/sink"
	"github.com/alanyoungcy/crossarb/internal/venue"
)

// liveParts carries the in-process engine pieces the HTTP layer exposes
// when the feeds run in this process.
type liveParts struct {
	book   *book.Book
	sup    *feed.Supervisor
	ring   *sink.Recent
	status *service.StatusReporter
}

// MonitorMode runs the venue feeds and the detector without the HTTP
// API. Detected opportunities still flow to every configured sink.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	if _, err := a.startEngine(ctx, g, deps, nil); err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}

	return g.Wait()
}

// ServeMode runs the HTTP and websocket API against shared state
// produced by a monitor process elsewhere. No venue connections are
// made; quotes come from the Redis mirror and live events from the
// signal bus.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})
	if deps.SignalBus != nil {
		if err := hub.ConsumeBus(ctx, deps.SignalBus); err != nil {
			return fmt.Errorf("serve mode: %w", err)
		}
	}

	a.startHTTPServer(ctx, g, deps, hub, nil)

	return g.Wait()
}

// FullMode runs everything in one process: feeds, detector, sinks, and
// the HTTP API. The websocket hub is fed directly by the dispatcher, so
// dashboards see events without a round trip through Redis.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	live, err := a.startEngine(ctx, g, deps, []sink.Sink{hub})
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, hub, live)
	}

	return g.Wait()
}

// startEngine wires the price book, detector, sink dispatcher, quote
// mirror, venue feeds, and status reporter into the errgroup. extraSinks
// join the dispatcher fan-out (the websocket hub in full mode). Venues
// with an unknown wire format variant are skipped so one bad entry does
// not take the rest down.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies, extraSinks []sink.Sink) (*liveParts, error) {
	reg := venue.NewRegistry()

	connCfgs := make([]feed.ConnConfig, 0, len(a.cfg.Exchanges))
	exchanges := make([]string, 0, len(a.cfg.Exchanges))
	overrides := make(map[string]time.Duration)
	for _, ex := range a.cfg.Exchanges {
		variant := ex.Variant
		if variant == "" {
			variant = ex.ExchangeID
		}
		normalizer, err := reg.New(variant, ex.ExchangeID)
		if err != nil {
			a.logger.ErrorContext(ctx, "venue skipped",
				slog.String("exchange", ex.ExchangeID),
				slog.String("error", err.Error()),
			)
			continue
		}
		connCfgs = append(connCfgs, feed.ConnConfig{
			Exchange:         ex.ExchangeID,
			Endpoint:         ex.Endpoint,
			SubscribePayload: ex.SubscribePayload,
			Normalizer:       normalizer,
			InitialDelay:     ex.ReconnectInitialDelay.Duration,
			MaxDelay:         ex.ReconnectMaxDelay.Duration,
			ResetAfter:       ex.BackoffResetAfter.Duration,
			SubscribeTimeout: ex.SubscribeTimeout.Duration,
			DegradedAfter:    ex.DegradedAfter.Duration,
			DecodeErrorLimit: ex.DecodeErrorLimit,
		})
		exchanges = append(exchanges, ex.ExchangeID)
		if d := ex.MaxStaleness(); d > 0 {
			overrides[ex.ExchangeID] = d
		}
	}
	if len(connCfgs) == 0 {
		return nil, fmt.Errorf("no runnable venues configured")
	}

	b := book.New(exchanges, a.logger)
	ring := sink.NewRecent(0)

	sinks := []sink.Sink{sink.NewLog(a.logger), ring}
	if deps.OpportunityStore != nil {
		sinks = append(sinks, sink.NewStore(deps.OpportunityStore))
	}
	if deps.SignalBus != nil {
		sinks = append(sinks, sink.NewBus(deps.SignalBus))
	}
	if deps.Notifier != nil {
		sinks = append(sinks, sink.NewNotify(deps.Notifier, a.cfg.Notify.Cooldown.Duration))
	}
	sinks = append(sinks, extraSinks...)

	dispatcher := sink.NewDispatcher(a.logger, sinks...)
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	det := arbitrage.NewDetector(arbitrage.DetectorConfig{
		MinProfitPct:      decimal.NewFromFloat(a.cfg.Detector.MinProfitPct),
		MaxStaleness:      a.cfg.Detector.MaxStaleness(),
		StalenessOverride: overrides,
		ScanInterval:      a.cfg.Detector.MinScanInterval.Duration,
	}, b, dispatcher, a.logger)
	g.Go(func() error {
		return det.Run(ctx)
	})

	// Quote mirror keeps the Redis copy of the book fresh for serve
	// processes and dashboards.
	var mirror *service.QuoteMirror
	if deps.QuoteCache != nil {
		mirror = service.NewQuoteMirror(deps.QuoteCache, a.logger)
		g.Go(func() error {
			return mirror.Run(ctx)
		})
	}

	onUpdate := func(u domain.BookUpdate) {
		if !b.Ingest(u) {
			return
		}
		det.Kick()
		if mirror != nil {
			if q, ok := b.Quote(u.Exchange); ok {
				mirror.Offer(q)
			}
		}
	}

	sup := feed.NewSupervisor(onUpdate, dispatcher, a.logger)
	g.Go(func() error {
		return sup.Run(ctx, connCfgs)
	})

	status := service.NewStatusReporter(sup, b, ring, a.cfg.Detector.MaxStaleness(), a.cfg.Status.Interval.Duration, a.logger)
	g.Go(func() error {
		return status.Run(ctx)
	})

	if deps.Archiver != nil && a.cfg.S3.ArchiveInterval.Duration > 0 {
		sched := service.NewArchiveScheduler(deps.Archiver, a.cfg.S3.ArchiveInterval.Duration, a.logger)
		g.Go(func() error {
			return sched.Run(ctx)
		})
	}

	return &liveParts{book: b, sup: sup, ring: ring, status: status}, nil
}

// startHTTPServer adds the API server goroutines to the given errgroup.
// live is non-nil when the feeds run in this process; it switches the
// book and opportunity sources from shared Redis state to in-process
// data.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub, live *liveParts) {
	health := handler.NewHealthHandler(a.logger)
	if live != nil {
		health = health.WithHealthSource(live.sup)
	}

	var quotes handler.QuoteSource
	if live != nil {
		quotes = liveQuoteSource{book: live.book}
	} else {
		quotes = cacheQuoteSource{cache: deps.QuoteCache, exchanges: a.exchangeIDs()}
	}
	bookH := handler.NewBookHandler(quotes, a.logger)

	var recent handler.RecentSource
	if live != nil {
		recent = ringRecentSource{ring: live.ring}
	} else {
		recent = busRecentSource{bus: deps.SignalBus}
	}
	oppsH := handler.NewOpportunitiesHandler(recent, a.logger)
	if deps.OpportunityStore != nil {
		oppsH = oppsH.WithHistoryStore(deps.OpportunityStore)
	}

	statusH := handler.NewStatusHandler(a.cfg.Mode)
	if live != nil {
		statusH = statusH.WithStatusSource(live.status)
	}

	archiveH := handler.NewArchiveHandler(deps.BlobReader, deps.Archiver, a.logger)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateLimitWindow.Duration,
	}, server.Handlers{
		Health:        health,
		Book:          bookH,
		Opportunities: oppsH,
		Status:        statusH,
		Archive:       archiveH,
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// exchangeIDs returns the configured venue identifiers in config order.
func (a *App) exchangeIDs() []string {
	ids := make([]string, 0, len(a.cfg.Exchanges))
	for _, ex := range a.cfg.Exchanges {
		ids = append(ids, ex.ExchangeID)
	}
	return ids
}

// liveQuoteSource serves the in-process price book.
type liveQuoteSource struct {
	book *book.Book
}

func (s liveQuoteSource) Quotes(ctx context.Context) (map[string]domain.ExchangeQuote, error) {
	return s.book.Snapshot(), nil
}

// cacheQuoteSource serves the Redis quote mirror written by a monitor
// process.
type cacheQuoteSource struct {
	cache     domain.QuoteCache
	exchanges []string
}

func (s cacheQuoteSource) Quotes(ctx context.Context) (map[string]domain.ExchangeQuote, error) {
	if len(s.exchanges) == 0 {
		return map[string]domain.ExchangeQuote{}, nil
	}
	return s.cache.GetQuotes(ctx, s.exchanges)
}

// ringRecentSource serves the in-memory ring of recent opportunities.
type ringRecentSource struct {
	ring *sink.Recent
}

func (s ringRecentSource) Recent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	return s.ring.List(limit), nil
}

// busRecentSource serves the tail of the durable opportunity stream.
type busRecentSource struct {
	bus domain.SignalBus
}

func (s busRecentSource) Recent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	msgs, err := s.bus.StreamRecent(ctx, sink.StreamOpportunity, limit)
	if err != nil {
		return nil, fmt.Errorf("app: read opportunity stream: %w", err)
	}
	opps := make([]domain.Opportunity, 0, len(msgs))
	for _, m := range msgs {
		var opp domain.Opportunity
		if err := json.Unmarshal(m.Payload, &opp); err != nil {
			continue
		}
		opps = append(opps, opp)
	}
	return opps, nil
}
