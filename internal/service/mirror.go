// Package service holds the long-running support workers around the
// core feed and detector: quote mirroring and periodic status reports.
package service

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/metrics"
)

const mirrorQueueSize = 1024

// QuoteMirror copies accepted book updates into the shared quote cache
// so other processes can read prices without touching the live feeds.
// Writes happen on a worker goroutine; the feed path only enqueues.
type QuoteMirror struct {
	cache  domain.QuoteCache
	logger *slog.Logger
	queue  chan domain.ExchangeQuote
}

func NewQuoteMirror(cache domain.QuoteCache, logger *slog.Logger) *QuoteMirror {
	return &QuoteMirror{
		cache:  cache,
		logger: logger.With(slog.String("component", "quote_mirror")),
		queue:  make(chan domain.ExchangeQuote, mirrorQueueSize),
	}
}

// Offer queues a quote for mirroring without blocking. Quotes beyond
// the queue capacity are dropped and counted; the cache only ever needs
// the latest value per venue, so losing intermediate ones is harmless.
func (m *QuoteMirror) Offer(q domain.ExchangeQuote) {
	select {
	case m.queue <- q:
	default:
		metrics.MirrorDropped.Inc()
	}
}

// Run writes queued quotes to the cache until ctx is cancelled.
func (m *QuoteMirror) Run(ctx context.Context) error {
	m.logger.Info("quote mirror started")
	defer m.logger.Info("quote mirror stopped")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q := <-m.queue:
			if err := m.cache.SetQuote(ctx, q); err != nil {
				m.logger.WarnContext(ctx, "quote mirror write failed",
					slog.String("exchange", q.Exchange),
					slog.String("error", err.Error()))
			}
		}
	}
}
