package control

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// wsClient is one WebSocket subscriber. The stream is one way: inbound
// frames are read only to service pings and detect disconnects.
type wsClient struct {
	id     uuid.UUID
	hub    *Hub
	conn   *websocket.Conn
	send   chan Event
	logger *slog.Logger
}

func newWSClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *wsClient {
	id := uuid.New()
	return &wsClient{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan Event, sendBufferSize),
		logger: logger.With("client_id", id),
	}
}

// trySend queues an event without blocking. A full buffer means the
// client is too slow for the stream; the event is dropped and the client
// stays connected to catch whatever comes next.
func (c *wsClient) trySend(ev Event) bool {
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// readPump drains inbound frames until the connection dies, then detaches
// the client from the hub.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
	}
}

// writePump serializes events to the connection and keeps it alive with
// periodic pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
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
