package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSender struct {
	name string
	err  error

	mu   sync.Mutex
	sent []string
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, title)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func TestNotifierFiltersByEventKind(t *testing.T) {
	sender := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{sender}, []string{EventOpportunity}, testLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, EventHealth, "ignored", "body"))
	assert.Empty(t, sender.sent)

	require.NoError(t, n.Notify(ctx, EventOpportunity, "wanted", "body"))
	assert.Equal(t, []string{"wanted"}, sender.sent)
}

func TestNotifierEmptyFilterAllowsEverything(t *testing.T) {
	sender := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, sender.sent, 1)
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	sender := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{sender}, []string{EventOpportunity}, testLogger())

	require.NoError(t, n.NotifyAll(context.Background(), "forced", "m"))
	assert.Equal(t, []string{"forced"}, sender.sent)
}

func TestNotifierCollectsSenderFailures(t *testing.T) {
	bad := &stubSender{name: "bad", err: errors.New("boom")}
	good := &stubSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), EventOpportunity, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.sent, 1, "remaining senders still deliver")
}

func TestTelegramSenderPostsSendMessage(t *testing.T) {
	var (
		gotPath string
		gotBody telegramMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	s := &TelegramSender{
		api:    srv.URL,
		token:  "token123",
		chatID: "chat456",
		client: srv.Client(),
	}
	require.NoError(t, s.Send(context.Background(), "Arbitrage alpha->beta", "details"))

	assert.Equal(t, "/bottoken123/sendMessage", gotPath)
	assert.Equal(t, "chat456", gotBody.ChatID)
	assert.Equal(t, "*Arbitrage alpha->beta*\ndetails", gotBody.Text)
	assert.Equal(t, "Markdown", gotBody.ParseMode)
}

func TestTelegramSenderReportsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false,"description":"Bad Request"}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	s := &TelegramSender{api: srv.URL, token: "t", chatID: "c", client: srv.Client()}
	err := s.Send(context.Background(), "title", "message")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Contains(t, err.Error(), "Bad Request")
}

func TestDiscordSenderPostsWebhook(t *testing.T) {
	var gotBody discordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	s := NewDiscordSender(srv.URL)
	s.client = srv.Client()
	require.NoError(t, s.Send(context.Background(), "Feed okx disconnected", "venue okx is now disconnected"))

	assert.Equal(t, "crossarb", gotBody.Username)
	assert.Equal(t, "**Feed okx disconnected**\nvenue okx is now disconnected", gotBody.Content)
}
