package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/metrics"
	"github.com/alanyoungcy/crossarb/internal/venue"
)

const (
	// writeWait is the time allowed to write a message to the venue.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the venue.
	pongWait = 60 * time.Second

	// pingPeriod sends pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// handshakeTimeout bounds the websocket dial.
	handshakeTimeout = 15 * time.Second

	// decodeErrorWindow is the sliding window for the protocol guard.
	decodeErrorWindow = time.Minute
)

// ConnConfig describes one venue connection.
type ConnConfig struct {
	Exchange         string
	Endpoint         string
	SubscribePayload string // empty when the endpoint URL selects the stream
	Normalizer       venue.Normalizer
	InitialDelay     time.Duration // first reconnect delay
	MaxDelay         time.Duration // reconnect delay cap
	ResetAfter       time.Duration // streaming dwell that resets the backoff
	SubscribeTimeout time.Duration // max wait for an ack or first data
	DegradedAfter    time.Duration // silence on an open socket before Degraded
	DecodeErrorLimit int           // decode errors per window that force a reconnect
}

// StateFunc observes connection state transitions. It may be called from
// several goroutines and must be safe for that.
type StateFunc func(exchange string, state domain.ConnState)

// Conn maintains one exchange feed: dial, subscribe, stream, reconnect
// forever. Decoded updates go to handler, which must not block; the book
// never waits on this loop.
type Conn struct {
	cfg     ConnConfig
	handler func(domain.BookUpdate)
	onState StateFunc
	logger  *slog.Logger
	backoff Backoff

	mu      sync.Mutex
	state   domain.ConnState
	lastMsg atomic.Int64 // UnixNano of the last received frame
}

// NewConn builds a connection. Zero config fields get working defaults.
func NewConn(cfg ConnConfig, handler func(domain.BookUpdate), onState StateFunc, logger *slog.Logger) *Conn {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = 30 * time.Second
		if cfg.MaxDelay < cfg.InitialDelay {
			cfg.MaxDelay = cfg.InitialDelay
		}
	}
	if cfg.ResetAfter <= 0 {
		cfg.ResetAfter = 30 * time.Second
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 10 * time.Second
	}
	if cfg.DegradedAfter <= 0 {
		cfg.DegradedAfter = 10 * time.Second
	}
	if cfg.DecodeErrorLimit <= 0 {
		cfg.DecodeErrorLimit = 25
	}
	return &Conn{
		cfg:     cfg,
		handler: handler,
		onState: onState,
		logger: logger.With(
			slog.String("component", "feed"),
			slog.String("exchange", cfg.Exchange),
		),
		backoff: Backoff{Initial: cfg.InitialDelay, Max: cfg.MaxDelay},
		state:   domain.StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Conn) State() domain.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run dials and streams until ctx is cancelled. Transient failures retry
// forever with backoff; a protocol violation tears the socket down and
// goes through the same retry path.
func (c *Conn) Run(ctx context.Context) error {
	defer c.setState(domain.StateDisconnected, "shutdown")

	first := true
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !first {
			metrics.Reconnects.WithLabelValues(c.cfg.Exchange).Inc()
		}
		first = false

		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.logger.Warn("feed connection ended", slog.String("error", err.Error()))
		}
		c.setState(domain.StateDisconnected, "")

		delay := c.backoff.Next()
		c.logger.Info("reconnecting", slog.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runOnce performs a single connection attempt: dial, subscribe, stream.
func (c *Conn) runOnce(ctx context.Context) error {
	c.setState(domain.StateConnecting, "")

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		return &domain.ConnectionError{Exchange: c.cfg.Exchange, Op: "dial", Err: err}
	}
	defer ws.Close()

	c.setState(domain.StateSubscribing, "")
	if c.cfg.SubscribePayload != "" {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, []byte(c.cfg.SubscribePayload)); err != nil {
			return &domain.ConnectionError{Exchange: c.cfg.Exchange, Op: "subscribe", Err: err}
		}
	}

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reads have no context support; close the socket to unblock them on
	// cancellation or when this attempt ends.
	attemptDone := make(chan struct{})
	defer close(attemptDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.Close()
		case <-attemptDone:
		}
	}()

	c.lastMsg.Store(time.Now().UnixNano())
	go c.pingLoop(ws, attemptDone)
	go c.watchdog(attemptDone)

	return c.readLoop(ws)
}

// readLoop pumps frames until the socket dies or the decoder flags a
// protocol violation.
func (c *Conn) readLoop(ws *websocket.Conn) error {
	var (
		streamingSince    time.Time
		subscribeDeadline = time.Now().Add(c.cfg.SubscribeTimeout)
		errWindowStart    = time.Now()
		errCount          int
	)
	for {
		subscribing := c.State() == domain.StateSubscribing
		if subscribing {
			_ = ws.SetReadDeadline(subscribeDeadline)
		}
		_, raw, err := ws.ReadMessage()
		if err != nil {
			c.noteStreamEnd(streamingSince)
			op := "read"
			if subscribing {
				op = "subscribe"
			}
			return &domain.ConnectionError{Exchange: c.cfg.Exchange, Op: op, Err: err}
		}
		now := time.Now()
		c.lastMsg.Store(now.UnixNano())
		metrics.MessagesReceived.WithLabelValues(c.cfg.Exchange).Inc()
		_ = ws.SetReadDeadline(now.Add(pongWait))

		upd, moved, derr := c.cfg.Normalizer.Decode(raw)
		if derr != nil {
			metrics.DecodeErrors.WithLabelValues(c.cfg.Exchange).Inc()
			c.logger.Warn("message dropped", slog.String("error", derr.Error()))
			if now.Sub(errWindowStart) > decodeErrorWindow {
				errWindowStart, errCount = now, 0
			}
			errCount++
			if errCount >= c.cfg.DecodeErrorLimit {
				c.noteStreamEnd(streamingSince)
				return &domain.ProtocolViolationError{
					Exchange: c.cfg.Exchange,
					Count:    errCount,
					Window:   decodeErrorWindow,
				}
			}
			continue
		}

		// Any well-formed frame completes the subscribe phase; a frame on
		// a degraded link proves it recovered.
		switch c.State() {
		case domain.StateSubscribing:
			c.setState(domain.StateStreaming, "")
			streamingSince = now
		case domain.StateDegraded:
			c.setState(domain.StateStreaming, "data resumed")
		}

		if moved {
			c.handler(upd)
		}
	}
}

// pingLoop keeps the connection tested while topics are quiet.
func (c *Conn) pingLoop(ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// watchdog flips Streaming to Degraded when the socket goes quiet. The
// read path flips it back on the next frame; a dead socket exits through
// the read loop instead.
func (c *Conn) watchdog(done <-chan struct{}) {
	interval := c.cfg.DegradedAfter / 4
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if c.State() != domain.StateStreaming {
				continue
			}
			last := time.Unix(0, c.lastMsg.Load())
			if silent := time.Since(last); silent > c.cfg.DegradedAfter {
				c.setState(domain.StateDegraded, fmt.Sprintf("no data for %s", silent.Round(time.Millisecond)))
			}
		}
	}
}

// noteStreamEnd resets the backoff when the ending connection streamed
// long enough to count as a healthy run.
func (c *Conn) noteStreamEnd(streamingSince time.Time) {
	if streamingSince.IsZero() {
		return
	}
	if time.Since(streamingSince) >= c.cfg.ResetAfter {
		c.backoff.Reset()
	}
}

func (c *Conn) setState(st domain.ConnState, reason string) {
	c.mu.Lock()
	if c.state == st {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = st
	c.mu.Unlock()

	metrics.ConnState.WithLabelValues(c.cfg.Exchange).Set(float64(st))
	if reason != "" {
		c.logger.Info("connection state changed",
			slog.String("from", prev.String()),
			slog.String("to", st.String()),
			slog.String("reason", reason))
	} else {
		c.logger.Info("connection state changed",
			slog.String("from", prev.String()),
			slog.String("to", st.String()))
	}
	if c.onState != nil {
		c.onState(c.cfg.Exchange, st)
	}
}

// validateConnConfig rejects entries that cannot produce a working
// connection. Invalid venues are isolated; the supervisor skips them.
func validateConnConfig(cfg ConnConfig) error {
	if cfg.Exchange == "" {
		return &domain.ConfigError{Exchange: "(unnamed)", Reason: "exchange_id is required"}
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return &domain.ConfigError{Exchange: cfg.Exchange, Reason: "endpoint must be a ws:// or wss:// URL"}
	}
	if cfg.Normalizer == nil {
		return &domain.ConfigError{Exchange: cfg.Exchange, Reason: "no normalizer variant bound"}
	}
	return nil
}
