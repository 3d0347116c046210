package control

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Event is the envelope streamed to WebSocket clients.
type Event struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Event types originated by the control plane itself. The engine publishes
// its own (order, trade, stop-loss, trading-state) through the same hub.
const (
	eventSettingsUpdated = "settings_updated"
)

const broadcastBuffer = 256

// Hub fans events out to connected WebSocket clients. Delivery is best
// effort: a client that cannot keep up loses events rather than slowing
// the hub or the traders feeding it.
type Hub struct {
	clients   map[*wsClient]bool
	clientsMu sync.RWMutex

	broadcast  chan Event
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}

	logger *slog.Logger

	connections atomic.Int64
	delivered   atomic.Int64
	dropped     atomic.Int64
}

// NewHub creates a hub. Run must be started before clients attach.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan Event, broadcastBuffer),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		logger:     logger.With("component", "control"),
	}
}

// Run owns the client set until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case ev := <-h.broadcast:
			h.fanOut(ev)
		}
	}
}

// Broadcast queues an event for delivery to every connected client. It
// never blocks; events are dropped when the hub is saturated.
func (h *Hub) Broadcast(eventType string, payload any) {
	ev := Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()}
	select {
	case h.broadcast <- ev:
	default:
		h.dropped.Add(1)
	}
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// attach registers a client with the run loop. It reports false when the
// hub has already shut down.
func (h *Hub) attach(c *wsClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// detach removes a client, tolerating a hub that has already shut down.
func (h *Hub) detach(c *wsClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *wsClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	h.clients[c] = true
	h.connections.Add(1)
	h.logger.Debug("event client connected", "id", c.id, "total", len(h.clients))
}

func (h *Hub) removeClient(c *wsClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.Debug("event client disconnected", "id", c.id, "total", len(h.clients))
	}
}

func (h *Hub) fanOut(ev Event) {
	h.clientsMu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range clients {
		if c.trySend(ev) {
			h.delivered.Add(1)
		} else {
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.logger.Info("event hub stopped",
		"connections", h.connections.Load(),
		"delivered", h.delivered.Load(),
		"dropped", h.dropped.Load(),
	)
}
