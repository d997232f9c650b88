// Package realtime is the web tier's side of the realtime status fan-out
// (spec OVERVIEW point 3, §4.6): a websocket hub that joins a room on the
// Status Bus per connected browser client and forwards every StatusFrame
// published to that room until the client disconnects.
package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/statusbus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Hub upgrades HTTP connections to websockets and joins each one to a
// Status Bus room (spec §4.6's join(room, connection)).
type Hub struct {
	bus      *statusbus.Bus
	upgrader websocket.Upgrader
	logger   core.ComponentAwareLogger

	mu      sync.RWMutex
	clients map[string]*client
}

// Config configures the Hub's websocket upgrader.
type Config struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
}

// New returns a Hub serving connections over bus.
func New(bus *statusbus.Bus, cfg Config, logger core.ComponentAwareLogger) *Hub {
	readBuf := cfg.ReadBufferSize
	if readBuf == 0 {
		readBuf = 1024
	}
	writeBuf := cfg.WriteBufferSize
	if writeBuf == 0 {
		writeBuf = 1024
	}

	return &Hub{
		bus:     bus,
		logger:  logger,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// client is one connected browser holding an open join on a single room.
type client struct {
	conn *websocket.Conn
	sub  *statusbus.Subscription
	room string

	mu     sync.Mutex
	closed bool
}

// ServeRoom upgrades the request to a websocket and joins room, streaming
// every StatusFrame published there until the client disconnects or the
// request context is cancelled. room is typically the grievance_id path
// parameter the caller extracted from the request.
func (h *Hub) ServeRoom(w http.ResponseWriter, r *http.Request, room string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("realtime: upgrade: %w", err)
	}

	sub := h.bus.Join(r.Context(), room)
	c := &client{conn: conn, sub: sub, room: room}

	clientID := fmt.Sprintf("%p", c)
	h.mu.Lock()
	h.clients[clientID] = c
	h.mu.Unlock()

	go h.writePump(clientID, c)
	h.readPump(c)
	return nil
}

// writePump forwards frames from the room's subscription to the websocket
// connection and keeps it alive with periodic pings, mirroring the
// teacher's websocket transport's writePump.
func (h *Hub) writePump(clientID string, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.removeClient(clientID, c)
	}()

	frames := c.sub.Frames()
	for {
		select {
		case frame, ok := <-frames:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
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

// readPump drains (and discards) client frames purely to detect
// disconnects and respond to pong keep-alives; status frames only flow
// server-to-client.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Hub) removeClient(clientID string, c *client) {
	h.mu.Lock()
	delete(h.clients, clientID)
	h.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.sub.Leave()
	c.conn.Close()
}

// Shutdown closes every open connection and its room subscription (spec
// §4.6's leave(room, connection), applied to every still-open client).
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	clients := make(map[string]*client, len(h.clients))
	for id, c := range h.clients {
		clients[id] = c
	}
	h.mu.Unlock()

	for id, c := range clients {
		h.removeClient(id, c)
	}
	return nil
}
