// Package book holds the in-memory price book: the latest accepted
// top-of-book per exchange, shared by the feeds and the detector.
package book

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/metrics"
)

// Book keeps one ExchangeQuote per exchange behind a single mutex. With a
// handful of venues contention is negligible; readers get value copies.
type Book struct {
	mu     sync.RWMutex
	quotes map[string]domain.ExchangeQuote
	logger *slog.Logger
}

// New returns a book with an empty entry per configured exchange. Entries
// exist from startup and are never removed, so consumers can always
// distinguish "no data yet" from "unknown exchange".
func New(exchanges []string, logger *slog.Logger) *Book {
	b := &Book{
		quotes: make(map[string]domain.ExchangeQuote, len(exchanges)),
		logger: logger.With(slog.String("component", "book")),
	}
	for _, ex := range exchanges {
		b.quotes[ex] = domain.ExchangeQuote{Exchange: ex}
	}
	return b
}

// Ingest applies one normalized update and reports whether the book moved.
// An update whose sequence number is at or below the stored one is
// rejected; updates without sequence numbers always win. Crossed updates
// are applied and logged so venue glitches stay visible.
func (b *Book) Ingest(u domain.BookUpdate) bool {
	if u.ReceivedAt.IsZero() {
		u.ReceivedAt = time.Now()
	}
	b.mu.Lock()
	cur := b.quotes[u.Exchange]
	if cur.HasData() && u.Sequence != 0 && cur.Update.Sequence != 0 && u.Sequence <= cur.Update.Sequence {
		b.mu.Unlock()
		metrics.BookUpdates.WithLabelValues(u.Exchange, "rejected").Inc()
		b.logger.Debug("out-of-order update rejected",
			slog.String("exchange", u.Exchange),
			slog.Uint64("sequence", u.Sequence),
			slog.Uint64("stored", cur.Update.Sequence))
		return false
	}
	b.quotes[u.Exchange] = domain.ExchangeQuote{
		Exchange:  u.Exchange,
		Update:    u,
		UpdatedAt: u.ReceivedAt,
	}
	b.mu.Unlock()
	metrics.BookUpdates.WithLabelValues(u.Exchange, "applied").Inc()
	if u.Crossed() {
		b.logger.Warn("crossed book accepted",
			slog.String("exchange", u.Exchange),
			slog.String("bid", u.BidPrice.String()),
			slog.String("ask", u.AskPrice.String()))
	}
	return true
}

// Snapshot returns a point-in-time copy of every entry. Mutating the
// result does not touch the book.
func (b *Book) Snapshot() map[string]domain.ExchangeQuote {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]domain.ExchangeQuote, len(b.quotes))
	for ex, q := range b.quotes {
		out[ex] = q
	}
	return out
}

// Quote returns the entry for one exchange.
func (b *Book) Quote(exchange string) (domain.ExchangeQuote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[exchange]
	return q, ok
}

// Exchanges returns the known exchange IDs, sorted.
func (b *Book) Exchanges() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.quotes))
	for ex := range b.quotes {
		out = append(out, ex)
	}
	sort.Strings(out)
	return out
}
