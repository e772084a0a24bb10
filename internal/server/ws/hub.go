// Package ws streams sale events to browser clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/empowa-tech/marketplace/internal/domain"
	"github.com/empowa-tech/marketplace/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// allEvents subscribes a client to every event type.
const allEvents = "*"

// client is a single WebSocket connection and the event types it wants.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	subs map[string]bool
}

// subscribeMsg changes the event types a client receives, e.g.
// {"action":"subscribe","events":["sale_completed"]}.
type subscribeMsg struct {
	Action string   `json:"action"`
	Events []string `json:"events"`
}

// envelope is the part of a bus payload the hub routes on.
type envelope struct {
	Type string `json:"type"`
}

type broadcastMsg struct {
	eventType string
	data      []byte
}

// Hub bridges the sale event channel of the signal bus to connected
// WebSocket clients.
type Hub struct {
	bus        domain.SignalBus
	upgrader   websocket.Upgrader
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a Hub. Upgrades are accepted from allowedOrigins only; an
// empty list accepts any origin.
func NewHub(bus domain.SignalBus, allowedOrigins []string, logger *slog.Logger) *Hub {
	h := &Hub{
		bus:        bus,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "ws")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Run subscribes to the sale channel and serves clients until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	msgCh, err := h.bus.Subscribe(ctx, domain.SalesChannel)
	if err != nil {
		return err
	}
	h.logger.Info("subscribed to sale events", slog.String("channel", domain.SalesChannel))

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return ctx.Err()

		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("sale event subscription closed")
				msgCh = nil
				continue
			}
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				h.logger.Warn("dropping malformed sale event", slog.String("error", err.Error()))
				continue
			}
			h.fanout(broadcastMsg{eventType: env.Type, data: data})

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			h.logger.Info("client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			h.logger.Info("client disconnected", slog.Int("total_clients", n))
		}
	}
}

func (h *Hub) fanout(msg broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(msg.eventType) {
			continue
		}
		select {
		case c.send <- msg.data:
		default:
			h.logger.Warn("dropping message for slow client")
		}
	}
}

// HandleWS upgrades the request and registers the client for every event
// type.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{allEvents: true},
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) wants(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[allEvents] || c.subs[eventType]
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
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
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription narrows or widens the event types the client receives.
// The first explicit subscribe replaces the default of every type.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		if c.subs[allEvents] && len(msg.Events) > 0 {
			delete(c.subs, allEvents)
		}
		for _, ev := range msg.Events {
			c.subs[ev] = true
		}
	case "unsubscribe":
		for _, ev := range msg.Events {
			delete(c.subs, ev)
		}
	}
}

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
