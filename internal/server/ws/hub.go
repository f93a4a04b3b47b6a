package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oddsmith/poolmarket/internal/domain"
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

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// client represents a single WebSocket connection. Its subs set is owned by
// the hub goroutine; pumps never touch it.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]struct{} // event ids this client watches
}

// clientFrame is the JSON message a client sends to manage subscriptions:
// {"action":"subscribe","events":["<id>", ...]}.
type clientFrame struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Events []string `json:"events"`
}

// subRequest carries a parsed client frame into the hub loop.
type subRequest struct {
	c      *client
	events []string
	remove bool
}

// Hub bridges the signal bus to websocket clients. It keeps a per-event
// subscriber index so a bus message fans out only to the clients watching
// that event; an event's entry disappears when its last subscriber leaves.
type Hub struct {
	clients map[*client]bool
	events  map[string]map[*client]struct{}

	register   chan *client
	unregister chan *client
	subscribe  chan subRequest
	broadcast  chan domain.BusMessage

	bus    domain.SignalBus
	logger *slog.Logger

	mu sync.RWMutex // guards clients/events for count queries
}

// NewHub creates a hub fed by the given signal bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		events:     make(map[string]map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		subscribe:  make(chan subRequest),
		broadcast:  make(chan domain.BusMessage, 256),
		bus:        bus,
		logger:     logger,
	}
}

// Run starts the hub loop: one bus subscription covering every event
// channel, plus client registration, subscription management and fan-out.
// It exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	go h.pumpBus(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.events = make(map[string]map[*client]struct{})
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				for id := range c.subs {
					h.dropSub(id, c)
				}
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case req := <-h.subscribe:
			h.mu.Lock()
			if h.clients[req.c] {
				h.applySub(req)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			eventID, ok := eventIDFromChannel(msg.Channel)
			if !ok {
				continue
			}
			h.mu.RLock()
			for c := range h.events[eventID] {
				select {
				case c.send <- msg.Payload:
				default:
					// Client's send buffer is full; drop the message.
					h.logger.Warn("ws: dropping message for slow client",
						slog.String("event_id", eventID))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// pumpBus feeds the hub's broadcast channel from one pattern subscription
// over all per-event channels.
func (h *Hub) pumpBus(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, channelPattern)
	if err != nil {
		h.logger.Error("ws: subscribe to event channels",
			slog.String("pattern", channelPattern),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: subscribed to event channels",
		slog.String("pattern", channelPattern))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: bus subscription closed")
				return
			}
			h.broadcast <- msg
		}
	}
}

// applySub mutates the subscriber index for one client frame. Caller holds
// h.mu.
func (h *Hub) applySub(req subRequest) {
	for _, id := range req.events {
		if id == "" {
			continue
		}
		if req.remove {
			delete(req.c.subs, id)
			h.dropSub(id, req.c)
			continue
		}
		req.c.subs[id] = struct{}{}
		set, ok := h.events[id]
		if !ok {
			set = make(map[*client]struct{})
			h.events[id] = set
		}
		set[req.c] = struct{}{}
	}
}

// dropSub removes a client from an event's subscriber set, deleting the set
// once empty. Caller holds h.mu.
func (h *Hub) dropSub(eventID string, c *client) {
	set, ok := h.events[eventID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.events, eventID)
	}
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns how many clients watch the given event.
func (h *Hub) SubscriberCount(eventID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events[eventID])
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]struct{}),
	}

	h.register <- c

	go c.writePump()
	go c.readPump()
}

// readPump reads subscription frames from the connection and relays them to
// the hub loop.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
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
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil || len(frame.Events) == 0 {
			continue
		}
		switch frame.Action {
		case "subscribe":
			c.hub.subscribe <- subRequest{c: c, events: frame.Events}
		case "unsubscribe":
			c.hub.subscribe <- subRequest{c: c, events: frame.Events, remove: true}
		}
	}
}

// writePump pumps messages from the hub to the connection and sends periodic
// pings for keepalive.
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
