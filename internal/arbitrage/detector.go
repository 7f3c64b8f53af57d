// Package arbitrage scans the price book for cross-exchange spreads.
package arbitrage

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/book"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/metrics"
)

var hundred = decimal.NewFromInt(100)

// DetectorConfig configures the detector.
type DetectorConfig struct {
	// MinProfitPct is the inclusive emission threshold, in percent of the
	// buy price. A spread exactly at the threshold is emitted.
	MinProfitPct decimal.Decimal
	// MaxStaleness is how old a quote may be and still join a scan.
	MaxStaleness time.Duration
	// StalenessOverride replaces MaxStaleness for specific exchanges.
	StalenessOverride map[string]time.Duration
	// ScanInterval floors how often kicks turn into evaluation passes.
	ScanInterval time.Duration
}

// Detector prices both directions of every exchange pair over fresh quotes
// and emits the single best opportunity of each pass to the event sink.
type Detector struct {
	cfg    DetectorConfig
	book   *book.Book
	sink   domain.EventSink
	logger *slog.Logger
	kick   chan struct{}
}

// NewDetector creates a detector reading from the given book.
func NewDetector(cfg DetectorConfig, b *book.Book, sink domain.EventSink, logger *slog.Logger) *Detector {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 25 * time.Millisecond
	}
	if cfg.MaxStaleness <= 0 {
		cfg.MaxStaleness = time.Second
	}
	return &Detector{
		cfg:    cfg,
		book:   b,
		sink:   sink,
		logger: logger.With(slog.String("component", "detector")),
		kick:   make(chan struct{}, 1),
	}
}

// Kick requests an evaluation pass. It never blocks: kicks landing while a
// pass is pending collapse into the one-slot channel.
func (d *Detector) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Run turns kicks into evaluation passes, at most one per ScanInterval. A
// burst of kicks gets an immediate pass plus a single trailing pass once
// the interval expires, so the last updates of a burst are always priced.
// It blocks until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("detector started",
		slog.String("min_profit_pct", d.cfg.MinProfitPct.String()),
		slog.Duration("max_staleness", d.cfg.MaxStaleness),
		slog.Duration("scan_interval", d.cfg.ScanInterval),
	)
	defer d.logger.Info("detector stopped")

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.kick:
		}
		if wait := d.cfg.ScanInterval - time.Since(last); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		last = time.Now()
		d.evaluateAndEmit(ctx, last)
	}
}

func (d *Detector) evaluateAndEmit(ctx context.Context, now time.Time) {
	opp, ok := d.Evaluate(now)
	metrics.Scans.Inc()
	metrics.ScanDuration.Observe(time.Since(now).Seconds())
	if !ok {
		return
	}
	metrics.Opportunities.Inc()
	d.logger.Info("opportunity detected",
		slog.String("route", opp.Route()),
		slog.String("buy_price", opp.BuyPrice.String()),
		slog.String("sell_price", opp.SellPrice.String()),
		slog.String("profit_abs", opp.ProfitAbs.String()),
		slog.String("profit_pct", opp.ProfitPct.String()),
		slog.Duration("max_input_age", opp.MaxInputDataAge),
	)
	d.sink.OnOpportunity(ctx, opp)
}

// Evaluate runs one pass over a book snapshot taken at now and returns the
// best qualifying opportunity, if any. Pairs where either quote is missing
// or stale are skipped. Candidates are ranked by percentage profit, then
// absolute profit, then the smaller (buy, sell) route, so identical inputs
// always pick the same winner.
func (d *Detector) Evaluate(now time.Time) (domain.Opportunity, bool) {
	snap := d.book.Snapshot()
	fresh := make([]domain.ExchangeQuote, 0, len(snap))
	for _, q := range snap {
		if q.Fresh(now, d.staleness(q.Exchange)) {
			fresh = append(fresh, q)
		}
	}
	if len(fresh) < 2 {
		return domain.Opportunity{}, false
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Exchange < fresh[j].Exchange })

	var best domain.Opportunity
	found := false
	for i := range fresh {
		for j := range fresh {
			if i == j {
				continue
			}
			cand, ok := d.price(fresh[i], fresh[j], now)
			if !ok {
				continue
			}
			if !found || better(cand, best) {
				best, found = cand, true
			}
		}
	}
	if !found {
		return domain.Opportunity{}, false
	}
	best.ID = uuid.Must(uuid.NewRandom()).String()
	return best, true
}

// price costs the buy-at-ask, sell-at-bid crossing for one directed pair.
func (d *Detector) price(buy, sell domain.ExchangeQuote, now time.Time) (domain.Opportunity, bool) {
	buyAsk := buy.Update.AskPrice
	sellBid := sell.Update.BidPrice
	if !buyAsk.IsPositive() {
		return domain.Opportunity{}, false
	}
	profit := sellBid.Sub(buyAsk)
	if !profit.IsPositive() {
		return domain.Opportunity{}, false
	}
	pct := profit.Div(buyAsk).Mul(hundred)
	if pct.LessThan(d.cfg.MinProfitPct) {
		return domain.Opportunity{}, false
	}
	age := buy.Age(now)
	if sellAge := sell.Age(now); sellAge > age {
		age = sellAge
	}
	return domain.Opportunity{
		BuyExchange:     buy.Exchange,
		SellExchange:    sell.Exchange,
		BuyPrice:        buyAsk,
		SellPrice:       sellBid,
		ProfitAbs:       profit,
		ProfitPct:       pct,
		MaxInputDataAge: age,
		DetectedAt:      now.UTC(),
	}, true
}

func (d *Detector) staleness(exchange string) time.Duration {
	if o, ok := d.cfg.StalenessOverride[exchange]; ok && o > 0 {
		return o
	}
	return d.cfg.MaxStaleness
}

func better(a, b domain.Opportunity) bool {
	if c := a.ProfitPct.Cmp(b.ProfitPct); c != 0 {
		return c > 0
	}
	if c := a.ProfitAbs.Cmp(b.ProfitAbs); c != 0 {
		return c > 0
	}
	if a.BuyExchange != b.BuyExchange {
		return a.BuyExchange < b.BuyExchange
	}
	return a.SellExchange < b.SellExchange
}
