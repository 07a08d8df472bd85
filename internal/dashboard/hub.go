package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/steveyegge/sentinel/internal/events"
)

const (
	writeTimeout  = 10 * time.Second
	pingInterval  = 30 * time.Second
	readTimeout   = 60 * time.Second
	sendBufferLen = 256
)

// Hub fans lifecycle events out to connected dashboard clients. A client that
// cannot keep up has its connection closed rather than blocking the bus.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard binds to loopback; origin checks add nothing
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Subscribe attaches the hub to an event bus so every lifecycle event is
// broadcast to connected clients. Returns the unsubscribe function.
func (h *Hub) Subscribe(bus *events.Bus) func() {
	return bus.Subscribe(func(event events.LifecycleEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: dashboard failed to marshal event: %v\n", err)
			return
		}
		h.broadcast(data)
	})
}

// broadcast queues data to every client, dropping clients whose send buffer
// is full.
func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	var slow []*client
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		fmt.Fprintf(os.Stderr, "dashboard: client %s too slow, closing\n", c.id)
		h.unregister(c)
	}
}

// HandleConn upgrades an HTTP request to a websocket and serves it until the
// client disconnects.
func (h *Hub) HandleConn(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrading websocket: %w", err)
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBufferLen),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// writePump drains the client's send channel and keeps the connection alive
// with pings.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// readPump discards inbound messages; the event stream is one-way. It exists
// to notice disconnects and service pong frames.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
