package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmmcquay/chess-study/internal/logging"
	"github.com/dmmcquay/chess-study/internal/metrics"
	"github.com/dmmcquay/chess-study/internal/study"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 32
)

// Envelope is every message the hub writes to a websocket.
type Envelope struct {
	Type     string          `json:"type"`
	Snapshot *study.Snapshot `json:"snapshot,omitempty"`
	Error    string          `json:"error,omitempty"`
	Command  study.Command   `json:"command,omitempty"`
}

const (
	EnvelopeSnapshot = "snapshot"
	EnvelopeError    = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan Envelope
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub relays session snapshots to websocket clients and their commands
// back to the session.
type Hub struct {
	study  Study
	logger logging.ContextLogger
	prom   *metrics.PrometheusCollector

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewHub(s Study, logger logging.ContextLogger, prom *metrics.PrometheusCollector) *Hub {
	return &Hub{
		study:   s,
		logger:  logger,
		prom:    prom,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run forwards every session snapshot to all clients until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	snapshots, unsubscribe := h.study.Subscribe()
	defer unsubscribe()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			h.broadcast(Envelope{Type: EnvelopeSnapshot, Snapshot: &snap})
		}
	}
}

func (h *Hub) broadcast(env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- env:
		default:
			h.logger.Warn("Websocket client too slow, disconnecting")
			h.removeLocked(c)
		}
	}
}

// ClientCount is the number of connected websocket clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.recordClientsLocked()
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.close()
	h.recordClientsLocked()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) recordClientsLocked() {
	if h.prom != nil {
		h.prom.SetActiveConnections(float64(len(h.clients)))
	}
}

// ServeWS upgrades the request, sends the current state and then reads
// commands until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	ctx := logging.ContextWithSessionID(context.WithoutCancel(r.Context()), logging.GenerateRequestID())
	logger := h.logger.WithContext(ctx)

	c := &wsClient{conn: conn, send: make(chan Envelope, sendBuffer)}
	state := h.study.State()
	c.send <- Envelope{Type: EnvelopeSnapshot, Snapshot: &state}
	h.add(c)
	logger.Info("Websocket client connected", "remote", r.RemoteAddr)

	go h.writePump(c)
	h.readPump(ctx, c, logger)

	h.remove(c)
	logger.Info("Websocket client disconnected")
}

func (h *Hub) readPump(ctx context.Context, c *wsClient, logger logging.ContextLogger) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req study.Request
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Websocket read failed", "error", err)
			}
			return
		}

		// The resulting snapshot reaches every client through Run
		if _, err := h.study.Dispatch(ctx, req); err != nil {
			h.reply(c, Envelope{Type: EnvelopeError, Error: err.Error(), Command: req.Command})
		}
	}
}

func (h *Hub) reply(c *wsClient, env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- env:
	default:
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
