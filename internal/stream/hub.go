// Package stream pushes row snapshots to connected dashboards over WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"whale-futures/models"
	"whale-futures/observability"
	"whale-futures/tracker"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 1024
	sendBufferSize = 16
)

// MessageTypeRows tags a full table snapshot
const MessageTypeRows = "rows"

// Message is the envelope sent to clients
type Message struct {
	Type   string            `json:"type"`
	Rows   []models.Position `json:"rows"`
	SentAt int64             `json:"sentAt"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans row snapshots out to every connected client. Changes coalesce:
// a broadcast always carries the rows current when it is sent, and a slow
// client drops its oldest queued snapshot in favour of the newest.
type Hub struct {
	clients    map[*client]bool
	changed    chan struct{}
	register   chan *client
	unregister chan *client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex

	snapshot func() []models.Position
	latestMu sync.Mutex
	latest   []models.Position
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewHub creates a hub. snapshot supplies the current rows, both for a
// client that just connected and for every broadcast; without it the hub
// sends the rows last passed to Publish. An empty allowedOrigins list, or
// one containing "*", accepts any origin.
func NewHub(snapshot func() []models.Position, allowedOrigins []string) *Hub {
	h := &Hub{
		clients:    make(map[*client]bool),
		changed:    make(chan struct{}, 1),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		snapshot:   snapshot,
		now:        time.Now,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// Name identifies the hub in task logs
func (h *Hub) Name() string { return "stream-hub" }

// Run is the hub's event loop. It returns nil once ctx is cancelled, after
// closing every client.
func (h *Hub) Run(ctx context.Context) error {
	metrics := observability.GetMetrics()
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.stopOnce.Do(func() { close(h.done) })
			metrics.SetStreamClients(0)
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SetStreamClients(n)
			observability.Debug("stream client connected", "clients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SetStreamClients(n)
			observability.Debug("stream client disconnected", "clients", n)

		case <-h.changed:
			data, err := h.encode(h.currentRows())
			if err != nil {
				observability.WithError(err).Error("failed to encode row snapshot")
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				c.offer(data)
			}
			h.mu.RUnlock()
			metrics.RecordBroadcast()
		}
	}
}

// Publish signals that the rows changed. It never blocks; signals raised
// before the next broadcast collapse into one.
func (h *Hub) Publish(rows []models.Position) {
	h.latestMu.Lock()
	h.latest = rows
	h.latestMu.Unlock()

	select {
	case h.changed <- struct{}{}:
	default:
	}
}

func (h *Hub) currentRows() []models.Position {
	if h.snapshot != nil {
		return h.snapshot()
	}
	h.latestMu.Lock()
	defer h.latestMu.Unlock()
	return h.latest
}

// offer queues data for the client, evicting its oldest queued snapshot
// when the buffer is full
func (c *client) offer(data []byte) {
	select {
	case c.send <- data:
		return
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- data:
	default:
		observability.Warn("dropping snapshot for slow stream client")
	}
}

func (h *Hub) encode(rows []models.Position) ([]byte, error) {
	sorted := tracker.SortByOpenAtDesc(rows)
	if sorted == nil {
		sorted = []models.Position{}
	}
	return json.Marshal(Message{
		Type:   MessageTypeRows,
		Rows:   sorted,
		SentAt: h.now().UnixMilli(),
	})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the connection.
// GET /api/stream
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.WithError(err).Warn("stream upgrade failed")
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	if h.snapshot != nil {
		if data, err := h.encode(h.snapshot()); err == nil {
			c.send <- data
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only watches for close frames and pongs; client messages are
// ignored.
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
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				observability.WithError(err).Debug("stream client closed unexpectedly")
			}
			return
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
