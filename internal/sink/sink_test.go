package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOpportunity(buy, sell string) domain.Opportunity {
	return domain.Opportunity{
		ID:           "op-1",
		BuyExchange:  buy,
		SellExchange: sell,
		BuyPrice:     decimal.RequireFromString("100.10"),
		SellPrice:    decimal.RequireFromString("100.30"),
		ProfitAbs:    decimal.RequireFromString("0.20"),
		ProfitPct:    decimal.RequireFromString("0.1998"),
		DetectedAt:   time.Now().UTC(),
	}
}

type recordSink struct {
	name string
	err  error

	mu      sync.Mutex
	opps    []domain.Opportunity
	healths []string
}

func (r *recordSink) Name() string { return r.name }

func (r *recordSink) HandleOpportunity(_ context.Context, opp domain.Opportunity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opps = append(r.opps, opp)
	return r.err
}

func (r *recordSink) HandleHealth(_ context.Context, exchange string, state domain.ConnState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healths = append(r.healths, exchange+":"+state.String())
	return r.err
}

func (r *recordSink) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.opps), len(r.healths)
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	first := &recordSink{name: "first"}
	second := &recordSink{name: "second"}
	d := NewDispatcher(testLogger(), first, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	d.OnOpportunity(ctx, testOpportunity("alpha", "beta"))
	d.OnHealthChange(ctx, "alpha", domain.StateStreaming)

	require.Eventually(t, func() bool {
		opps, healths := second.counts()
		return opps == 1 && healths == 1
	}, 2*time.Second, 10*time.Millisecond)

	opps, healths := first.counts()
	assert.Equal(t, 1, opps)
	assert.Equal(t, 1, healths)
	assert.Equal(t, []string{"alpha:streaming"}, second.healths)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcherContinuesPastFailingSink(t *testing.T) {
	failing := &recordSink{name: "failing", err: errors.New("boom")}
	healthy := &recordSink{name: "healthy"}
	d := NewDispatcher(testLogger(), failing, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.OnOpportunity(ctx, testOpportunity("alpha", "beta"))

	require.Eventually(t, func() bool {
		opps, _ := healthy.counts()
		return opps == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcherDropsWhenQueueIsFull(t *testing.T) {
	// No worker running, so the queue only drains by capacity.
	d := NewDispatcher(testLogger(), &recordSink{name: "slow"})

	ctx := context.Background()
	for i := 0; i < queueSize+10; i++ {
		done := make(chan struct{})
		go func() {
			defer close(done)
			d.OnOpportunity(ctx, testOpportunity("alpha", "beta"))
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("enqueue blocked on a full queue")
		}
	}
	assert.Len(t, d.queue, queueSize)
}

func TestRecentKeepsNewestFirst(t *testing.T) {
	r := NewRecent(3)
	ctx := context.Background()

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		opp := testOpportunity("alpha", "beta")
		opp.ID = id
		require.NoError(t, r.HandleOpportunity(ctx, opp))
	}

	got := r.List(0)
	require.Len(t, got, 3)
	assert.Equal(t, "e", got[0].ID)
	assert.Equal(t, "d", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
	assert.Equal(t, uint64(5), r.Total())

	got = r.List(2)
	require.Len(t, got, 2)
	assert.Equal(t, "e", got[0].ID)
}

func TestRecentIgnoresHealth(t *testing.T) {
	r := NewRecent(3)
	require.NoError(t, r.HandleHealth(context.Background(), "alpha", domain.StateDegraded))
	assert.Empty(t, r.List(0))
	assert.Equal(t, uint64(0), r.Total())
}

type countingAlerter struct {
	mu    sync.Mutex
	calls []string
}

func (c *countingAlerter) Notify(_ context.Context, event, title, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, event+":"+title)
	return nil
}

func (c *countingAlerter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func TestNotifyThrottlesRepeatedRoutes(t *testing.T) {
	alerter := &countingAlerter{}
	n := NewNotify(alerter, time.Minute)
	ctx := context.Background()

	require.NoError(t, n.HandleOpportunity(ctx, testOpportunity("alpha", "beta")))
	require.NoError(t, n.HandleOpportunity(ctx, testOpportunity("alpha", "beta")))
	assert.Equal(t, 1, alerter.count(), "same route inside cooldown must not alert twice")

	require.NoError(t, n.HandleOpportunity(ctx, testOpportunity("beta", "alpha")))
	assert.Equal(t, 2, alerter.count(), "reverse route is a distinct alert")
}

func TestNotifySkipsIntermediateHealthStates(t *testing.T) {
	alerter := &countingAlerter{}
	n := NewNotify(alerter, time.Minute)
	ctx := context.Background()

	require.NoError(t, n.HandleHealth(ctx, "alpha", domain.StateConnecting))
	require.NoError(t, n.HandleHealth(ctx, "alpha", domain.StateSubscribing))
	require.NoError(t, n.HandleHealth(ctx, "alpha", domain.StateDegraded))
	assert.Equal(t, 0, alerter.count())

	require.NoError(t, n.HandleHealth(ctx, "alpha", domain.StateDisconnected))
	require.NoError(t, n.HandleHealth(ctx, "alpha", domain.StateStreaming))
	assert.Equal(t, 2, alerter.count())

	require.NoError(t, n.HandleHealth(ctx, "alpha", domain.StateDisconnected))
	assert.Equal(t, 2, alerter.count(), "repeat transition inside cooldown must not alert")
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	appended  map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: make(map[string][][]byte),
		appended:  make(map[string][][]byte),
	}
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended[stream] = append(f.appended[stream], payload)
	return nil
}

func (f *fakeBus) StreamRecent(context.Context, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func TestBusPublishesChannelAndStream(t *testing.T) {
	fb := newFakeBus()
	b := NewBus(fb)
	ctx := context.Background()

	require.NoError(t, b.HandleOpportunity(ctx, testOpportunity("alpha", "beta")))
	require.Len(t, fb.published[ChannelOpportunity], 1)
	require.Len(t, fb.appended[StreamOpportunity], 1)
	assert.JSONEq(t, string(fb.published[ChannelOpportunity][0]), string(fb.appended[StreamOpportunity][0]))

	require.NoError(t, b.HandleHealth(ctx, "alpha", domain.StateDegraded))
	require.Len(t, fb.published[ChannelHealth], 1)
	assert.JSONEq(t, `{"exchange":"alpha","state":"degraded"}`, string(fb.published[ChannelHealth][0]))
}
