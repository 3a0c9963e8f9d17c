// Package control exposes the recording core over HTTP: a go-chi
// handler for the recorder operations and a websocket hub that streams
// recorder events to subscribers.
package control

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/riveraj33/kanvas-ios/internal/recorder"
)

// sendBuffer is the per-subscriber outbound queue. A subscriber that
// falls this far behind is disconnected rather than allowed to stall
// the recorder.
const sendBuffer = 256

// Hub fans recorder events out to websocket subscribers. It implements
// recorder.EventSink; Publish never blocks.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub returns a hub ready to accept subscribers.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// eventMessage is the wire form of a recorder event. Durations are
// seconds, matching the rest of the HTTP surface.
type eventMessage struct {
	Type     string  `json:"type"`
	Mode     string  `json:"mode,omitempty"`
	Path     string  `json:"path,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Publish implements recorder.EventSink. Subscribers whose queue is
// full are dropped so the recorder's operations never wait on the
// network.
func (h *Hub) Publish(ev recorder.Event) {
	payload, err := json.Marshal(eventMessage{
		Type:     string(ev.Type),
		Mode:     string(ev.Mode),
		Path:     ev.Path,
		Duration: ev.Duration.Seconds(),
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			delete(h.clients, c)
			close(c.send)
			h.log.Warn("dropping slow event subscriber")
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams events
// until the peer goes away. Inbound messages are discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.add(c) {
		conn.Close()
		return
	}
	h.log.Info("event subscriber connected", slog.String("remote", conn.RemoteAddr().String()))

	go c.writePump()
	c.readPump(h)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// remove detaches a client. Whichever path removes it from the map is
// the one that closes the send channel; the map check keeps the close
// from happening twice.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump blocks until the peer disconnects or errors. Its only job is
// noticing that the connection died.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump drains the send queue onto the socket. A failed write ends
// the connection and readPump handles removal; a closed channel means
// the hub already dropped us.
func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
