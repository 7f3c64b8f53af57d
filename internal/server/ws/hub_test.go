package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/sink"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// dialHub starts the hub, exposes it over httptest and returns a
// connected client that has already consumed the hello frame.
func dialHub(t *testing.T) (*Hub, *websocket.Conn, context.Context) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewHub(testLogger(), Config{Mode: "full", StartedAt: time.Now()})
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	env := readFrame(t, conn)
	require.Equal(t, EventHello, env.Type)

	return h, conn, ctx
}

func readFrame(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubDeliversOpportunityFrames(t *testing.T) {
	h, conn, ctx := dialHub(t)

	opp := domain.Opportunity{
		ID:           "opp-1",
		BuyExchange:  "alpha",
		SellExchange: "beta",
		BuyPrice:     decimal.RequireFromString("100"),
		SellPrice:    decimal.RequireFromString("101"),
		ProfitAbs:    decimal.RequireFromString("1"),
		ProfitPct:    decimal.RequireFromString("1"),
		DetectedAt:   time.Now().UTC(),
	}
	require.NoError(t, h.HandleOpportunity(ctx, opp))

	env := readFrame(t, conn)
	assert.Equal(t, EventOpportunity, env.Type)

	var got domain.Opportunity
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "opp-1", got.ID)
	assert.Equal(t, "alpha", got.BuyExchange)
}

func TestHubDeliversHealthFrames(t *testing.T) {
	h, conn, ctx := dialHub(t)

	require.NoError(t, h.HandleHealth(ctx, "alpha", domain.StateDegraded))

	env := readFrame(t, conn)
	assert.Equal(t, EventHealth, env.Type)

	var got sink.HealthPayload
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "alpha", got.Exchange)
	assert.Equal(t, "degraded", got.State)
}

func TestClientSubscriptionChanges(t *testing.T) {
	c := &client{subs: map[string]bool{
		EventOpportunity: true,
		EventHealth:      true,
	}}

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Events: []string{EventHealth}})
	assert.True(t, c.isSubscribed(EventOpportunity))
	assert.False(t, c.isSubscribed(EventHealth))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Events: []string{EventHealth}})
	assert.True(t, c.isSubscribed(EventHealth))
}

type stubBus struct {
	chans map[string]chan []byte
}

func newStubBus() *stubBus {
	return &stubBus{chans: map[string]chan []byte{
		sink.ChannelOpportunity: make(chan []byte, 8),
		sink.ChannelHealth:      make(chan []byte, 8),
	}}
}

func (b *stubBus) Publish(ctx context.Context, channel string, payload []byte) error { return nil }

func (b *stubBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return b.chans[channel], nil
}

func (b *stubBus) StreamAppend(ctx context.Context, stream string, payload []byte) error { return nil }

func (b *stubBus) StreamRecent(ctx context.Context, stream string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func TestStoppedHubReleasesDetachingClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(testLogger(), Config{Mode: "full", StartedAt: time.Now()})
	runDone := make(chan error, 1)
	go func() { runDone <- h.Run(ctx) }()

	c := &client{hub: h, send: make(chan []byte, 1)}
	select {
	case h.register <- c:
	case <-time.After(2 * time.Second):
		t.Fatal("register blocked on a running hub")
	}

	cancel()
	select {
	case err := <-runDone:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// A client whose connection dies after the hub stopped must still
	// be able to finish its teardown.
	detached := make(chan struct{})
	go func() {
		c.detach()
		close(detached)
	}()
	select {
	case <-detached:
	case <-time.After(2 * time.Second):
		t.Fatal("detach blocked with no hub loop to receive it")
	}
}

func TestConsumeBusForwardsFrames(t *testing.T) {
	h, conn, ctx := dialHub(t)

	bus := newStubBus()
	require.NoError(t, h.ConsumeBus(ctx, bus))

	bus.chans[sink.ChannelHealth] <- []byte(`{"exchange":"beta","state":"streaming"}`)

	env := readFrame(t, conn)
	assert.Equal(t, EventHealth, env.Type)
	assert.JSONEq(t, `{"exchange":"beta","state":"streaming"}`, string(env.Payload))
}
