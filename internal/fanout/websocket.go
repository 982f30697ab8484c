package fanout

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fleettrack/internal/core/model"
	"fleettrack/internal/log"
	"fleettrack/internal/metrics"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

type wsClient struct {
	conn *websocket.Conn
	// writeMu serializes writes; gorilla/websocket allows one concurrent writer.
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// WebSocketHub broadcasts every event to all connected dashboard clients as an
// Envelope. Clients are read-only; anything they send is discarded.
type WebSocketHub struct {
	upgrader websocket.Upgrader
	logger   log.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

var (
	_ Sink         = (*WebSocketHub)(nil)
	_ http.Handler = (*WebSocketHub)(nil)
)

func NewWebSocketHub(logger log.Logger, m *metrics.Metrics) *WebSocketHub {
	return &WebSocketHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dashboard is served from a different origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		metrics: m,
		clients: make(map[*wsClient]struct{}),
	}
}

func (h *WebSocketHub) Name() string { return "websocket" }

// ServeHTTP upgrades the request and keeps the client until it disconnects.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &wsClient{conn: conn, done: make(chan struct{})}
	if !h.add(client) {
		_ = conn.Close()
		return
	}
	h.logger.Debug("WebSocket client connected", "remote", r.RemoteAddr)

	go h.ping(client)
	h.readLoop(client)
}

func (h *WebSocketHub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.SetWebSocketClients(len(h.clients))
	return true
}

func (h *WebSocketHub) remove(c *wsClient) {
	c.closeOnce.Do(func() {
		close(c.done)
		h.mu.Lock()
		delete(h.clients, c)
		h.metrics.SetWebSocketClients(len(h.clients))
		h.mu.Unlock()
		_ = c.conn.Close()
	})
}

// readLoop drains client frames so control messages are processed and a
// closed socket is noticed.
func (h *WebSocketHub) readLoop(c *wsClient) {
	defer h.remove(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHub) ping(c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.writeMu.Lock()
		err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
		c.writeMu.Unlock()
		if err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *WebSocketHub) snapshot() []*wsClient {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// Publish writes the event to every client. A client whose write fails is
// dropped; the event is not retried.
func (h *WebSocketHub) Publish(_ context.Context, event model.Event) error {
	data, err := marshalEnvelope(event)
	if err != nil {
		return err
	}

	for _, c := range h.snapshot() {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		c.writeMu.Unlock()
		if err != nil {
			h.logger.Debug("Dropping WebSocket client", "remote", c.conn.RemoteAddr().String(), "error", err)
			h.remove(c)
		}
	}
	return nil
}

// Clients reports the number of connected clients.
func (h *WebSocketHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	for _, c := range h.snapshot() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		h.remove(c)
	}
}
