package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/book"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQuoteCache struct {
	mu     sync.Mutex
	quotes map[string]domain.ExchangeQuote
}

func newFakeQuoteCache() *fakeQuoteCache {
	return &fakeQuoteCache{quotes: make(map[string]domain.ExchangeQuote)}
}

func (f *fakeQuoteCache) SetQuote(_ context.Context, q domain.ExchangeQuote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[q.Exchange] = q
	return nil
}

func (f *fakeQuoteCache) GetQuote(_ context.Context, exchange string) (domain.ExchangeQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotes[exchange]
	if !ok {
		return domain.ExchangeQuote{}, domain.ErrNotFound
	}
	return q, nil
}

func (f *fakeQuoteCache) GetQuotes(_ context.Context, exchanges []string) (map[string]domain.ExchangeQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.ExchangeQuote)
	for _, ex := range exchanges {
		if q, ok := f.quotes[ex]; ok {
			out[ex] = q
		}
	}
	return out, nil
}

func (f *fakeQuoteCache) stored(exchange string) (domain.ExchangeQuote, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotes[exchange]
	return q, ok
}

func mirrorQuote(exchange string, bid, ask string, at time.Time) domain.ExchangeQuote {
	return domain.ExchangeQuote{
		Exchange: exchange,
		Update: domain.BookUpdate{
			Exchange:   exchange,
			BidPrice:   decimal.RequireFromString(bid),
			BidQty:     decimal.NewFromInt(1),
			AskPrice:   decimal.RequireFromString(ask),
			AskQty:     decimal.NewFromInt(1),
			Sequence:   7,
			ReceivedAt: at,
		},
		UpdatedAt: at,
	}
}

func TestQuoteMirrorWritesOfferedQuotes(t *testing.T) {
	cache := newFakeQuoteCache()
	m := NewQuoteMirror(cache, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	now := time.Now()
	m.Offer(mirrorQuote("alpha", "100.00", "100.10", now))
	m.Offer(mirrorQuote("beta", "100.30", "100.40", now))

	require.Eventually(t, func() bool {
		_, okA := cache.stored("alpha")
		_, okB := cache.stored("beta")
		return okA && okB
	}, 2*time.Second, 10*time.Millisecond)

	q, _ := cache.stored("alpha")
	assert.True(t, q.Update.BidPrice.Equal(decimal.RequireFromString("100.00")))
	assert.Equal(t, uint64(7), q.Update.Sequence)
}

func TestQuoteMirrorOfferNeverBlocks(t *testing.T) {
	// No worker running, so the queue fills up.
	m := NewQuoteMirror(newFakeQuoteCache(), testLogger())

	now := time.Now()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < mirrorQueueSize+50; i++ {
			m.Offer(mirrorQuote("alpha", "100.00", "100.10", now))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Offer blocked on a full queue")
	}
	assert.Len(t, m.queue, mirrorQueueSize)
}

type fakeHealth struct {
	states map[string]domain.ConnState
}

func (f *fakeHealth) Health() map[string]domain.ConnState { return f.states }

type fakeCounter struct {
	total uint64
}

func (f *fakeCounter) Total() uint64 { return f.total }

func TestStatusSampleCountsLiveAndFresh(t *testing.T) {
	now := time.Now()
	b := book.New([]string{"alpha", "beta", "gamma"}, testLogger())
	b.Ingest(domain.BookUpdate{
		Exchange:   "alpha",
		BidPrice:   decimal.RequireFromString("100.00"),
		BidQty:     decimal.NewFromInt(1),
		AskPrice:   decimal.RequireFromString("100.10"),
		AskQty:     decimal.NewFromInt(1),
		ReceivedAt: now.Add(-100 * time.Millisecond),
	})
	b.Ingest(domain.BookUpdate{
		Exchange:   "beta",
		BidPrice:   decimal.RequireFromString("100.30"),
		BidQty:     decimal.NewFromInt(1),
		AskPrice:   decimal.RequireFromString("100.40"),
		AskQty:     decimal.NewFromInt(1),
		ReceivedAt: now.Add(-5 * time.Second),
	})

	health := &fakeHealth{states: map[string]domain.ConnState{
		"alpha": domain.StateStreaming,
		"beta":  domain.StateDegraded,
		"gamma": domain.StateConnecting,
	}}
	s := NewStatusReporter(health, b, &fakeCounter{total: 42}, time.Second, 0, testLogger())

	rep := s.Sample(now)
	assert.Equal(t, 2, rep.LiveVenues, "streaming and degraded are live")
	assert.Equal(t, 1, rep.FreshQuotes, "only alpha is inside the staleness window")
	assert.Equal(t, uint64(42), rep.Opportunities)
	assert.Len(t, rep.Venues, 3)
}

type fakeArchiver struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (f *fakeArchiver) ArchiveOpportunities(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	return 3, nil
}

func (f *fakeArchiver) runs() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.cutoffs))
	copy(out, f.cutoffs)
	return out
}

func TestArchiveSchedulerArchivesBeforeCurrentMonth(t *testing.T) {
	arch := &fakeArchiver{}
	s := NewArchiveScheduler(arch, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(arch.runs()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for _, cutoff := range arch.runs() {
		assert.True(t, cutoff.Equal(monthStart), "cutoff %s", cutoff)
	}
}
