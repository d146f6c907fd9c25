package render

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/m4xw311/genui/errors"
)

const writeWait = 10 * time.Second

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WebSocketHub broadcasts frames to every connected websocket client. A
// client that connects late receives the last frame straight away.
type WebSocketHub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	last    []byte
}

// NewWebSocketHub creates an empty hub.
func NewWebSocketHub(logger *zap.Logger) *WebSocketHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.Named("websocket"),
		clients: map[*wsClient]struct{}{},
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects. Incoming messages are ignored.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Upgrade error", zap.Error(err))
		return
	}
	c := &wsClient{conn: conn}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	last := h.last
	h.mu.Unlock()
	h.logger.Debug("Client connected", zap.String("remote", r.RemoteAddr))

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		conn.Close()
		h.logger.Debug("Client disconnected", zap.String("remote", r.RemoteAddr))
	}()

	if last != nil {
		if err := c.write(last); err != nil {
			return
		}
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish implements Publisher. Clients that fail to receive the frame are
// dropped.
func (h *WebSocketHub) Publish(ctx context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return errors.Wrapf(err, "failed to encode frame %s", f.RequestID)
	}

	h.mu.Lock()
	h.last = data
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.logger.Warn("WS write error", zap.Error(err))
			c.conn.Close()
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *WebSocketHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
