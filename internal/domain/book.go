package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookUpdate is a normalized top-of-book observation from one exchange.
// Prices and quantities are decimals parsed straight from the wire strings;
// venues that do not report quantities leave them zero. Sequence is zero
// when the venue does not number its messages.
type BookUpdate struct {
	Exchange   string          `json:"exchange"`
	BidPrice   decimal.Decimal `json:"bid_price"`
	BidQty     decimal.Decimal `json:"bid_qty"`
	AskPrice   decimal.Decimal `json:"ask_price"`
	AskQty     decimal.Decimal `json:"ask_qty"`
	Sequence   uint64          `json:"sequence,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Crossed reports whether the bid sits above the ask. Crossed updates are
// kept; the book logs them so operators can spot venue glitches.
func (u BookUpdate) Crossed() bool {
	return u.BidPrice.GreaterThan(u.AskPrice)
}

// Spread returns ask minus bid. Negative for a crossed update.
func (u BookUpdate) Spread() decimal.Decimal {
	return u.AskPrice.Sub(u.BidPrice)
}

// ExchangeQuote is one price book entry: the latest accepted update for an
// exchange plus the local time it was accepted. Entries exist from startup
// for every configured exchange; a zero UpdatedAt means no data yet.
type ExchangeQuote struct {
	Exchange  string     `json:"exchange"`
	Update    BookUpdate `json:"update"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// HasData reports whether at least one update has been accepted.
func (q ExchangeQuote) HasData() bool {
	return !q.UpdatedAt.IsZero()
}

// Age returns how long ago the quote was last updated.
func (q ExchangeQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.UpdatedAt)
}

// Fresh reports whether the quote has data no older than maxAge at the
// given instant. The caller supplies now so scans over many quotes share
// one clock reading.
func (q ExchangeQuote) Fresh(now time.Time, maxAge time.Duration) bool {
	if !q.HasData() {
		return false
	}
	return q.Age(now) <= maxAge
}
