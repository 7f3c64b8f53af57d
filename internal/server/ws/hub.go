// Package ws pushes opportunity and feed-health events to dashboard
// websocket clients. The hub is fed directly by the event dispatcher
// when the detector runs in-process, or from the redis signal bus when
// it does not.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/sink"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the per-client buffer for outgoing messages.
	sendBufferSize = 256
)

// Event types pushed to clients. Clients may narrow their subscription
// to a subset; new connections start with all of them.
const (
	EventOpportunity = "opportunity"
	EventHealth      = "health"
	EventHello       = "hello"
)

// Envelope is the JSON frame sent to clients.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Cross-origin policy is enforced by the CORS middleware in
		// front of the API; the socket itself accepts any origin.
		return true
	},
}

// client is a single websocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to change its event
// subscription, e.g. {"action":"subscribe","events":["opportunity"]}.
type subscribeMsg struct {
	Action string   `json:"action"`
	Events []string `json:"events"`
}

// broadcastMsg carries an encoded frame along with its event type so
// only subscribed clients receive it.
type broadcastMsg struct {
	event string
	data  []byte
}

// Config captures runtime metadata included in the hello frame.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// Hub manages the connected clients and fans events out to them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{} // closed when Run exits
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
}

// NewHub creates a hub. Events arrive either through the sink handler
// methods or through ConsumeBus.
func NewHub(logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "ws")),
		mode:       mode,
		startedAt:  startedAt,
	}
}

// Run is the hub's main loop: client registration and broadcasting. It
// exits when ctx is cancelled, releasing any client goroutine still
// parked on register or unregister.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(msg.event) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					// Slow client; drop rather than stall the hub.
					h.logger.Warn("dropping frame for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Name identifies the hub when it is wired as an event sink.
func (h *Hub) Name() string { return "ws" }

// HandleOpportunity pushes a detected opportunity to subscribed
// clients.
func (h *Hub) HandleOpportunity(ctx context.Context, opp domain.Opportunity) error {
	payload, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("ws: marshal opportunity: %w", err)
	}
	return h.publish(ctx, EventOpportunity, payload)
}

// HandleHealth pushes a venue health transition to subscribed clients.
func (h *Hub) HandleHealth(ctx context.Context, exchange string, state domain.ConnState) error {
	payload, err := json.Marshal(sink.HealthPayload{Exchange: exchange, State: state.String()})
	if err != nil {
		return fmt.Errorf("ws: marshal health: %w", err)
	}
	return h.publish(ctx, EventHealth, payload)
}

// ConsumeBus mirrors events published on the redis signal bus into the
// hub. Used when the detector runs in another process; the wire frames
// are identical to the direct path.
func (h *Hub) ConsumeBus(ctx context.Context, bus domain.SignalBus) error {
	channels := map[string]string{
		sink.ChannelOpportunity: EventOpportunity,
		sink.ChannelHealth:      EventHealth,
	}
	for channel, event := range channels {
		msgCh, err := bus.Subscribe(ctx, channel)
		if err != nil {
			return fmt.Errorf("ws: subscribe %s: %w", channel, err)
		}
		h.logger.Info("subscribed to bus channel", slog.String("channel", channel))
		go h.pump(ctx, event, msgCh)
	}
	return nil
}

func (h *Hub) pump(ctx context.Context, event string, msgCh <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-msgCh:
			if !ok {
				h.logger.Warn("bus subscription closed", slog.String("event", event))
				return
			}
			if err := h.publish(ctx, event, payload); err != nil {
				return
			}
		}
	}
}

func (h *Hub) publish(ctx context.Context, event string, payload []byte) error {
	data, err := json.Marshal(Envelope{Type: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("ws: marshal envelope: %w", err)
	}
	select {
	case h.broadcast <- broadcastMsg{event: event, data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleWS upgrades the request to a websocket connection and registers
// the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{
			EventOpportunity: true,
			EventHealth:      true,
		},
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.sendHello()

	go c.writePump()
	go c.readPump()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads client frames, which only ever carry subscription
// changes.
func (c *client) readPump() {
	defer func() {
		c.detach()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// detach hands the client back to the hub, or returns immediately when
// the hub has already stopped and nobody is left to receive it.
func (c *client) detach() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// handleSubscription applies a subscribe/unsubscribe request.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ev := range msg.Events {
			c.subs[ev] = true
		}
	case "unsubscribe":
		for _, ev := range msg.Events {
			delete(c.subs, ev)
		}
	}
}

// sendHello pushes a greeting so clients can mark the connection
// healthy before any market events flow.
func (c *client) sendHello() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	payload, err := json.Marshal(map[string]any{
		"mode":           c.hub.mode,
		"uptime_seconds": uptime,
	})
	if err != nil {
		return
	}
	data, err := json.Marshal(Envelope{Type: EventHello, Payload: payload})
	if err != nil {
		return
	}

	select {
	case c.send <- data:
	default:
	}
}

func (c *client) isSubscribed(event string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[event]
}

// writePump forwards hub frames to the connection and keeps it alive
// with periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
