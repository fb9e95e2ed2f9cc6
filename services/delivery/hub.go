package delivery

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// connection pairs a websocket with a write lock; gorilla permits only one
// concurrent writer per connection.
type connection struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Hub tracks live WebSocket connections by identifier and delivers payloads
// to them. It is in-process transport state, not a durable registry.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*connection
	logger      *zap.Logger
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*connection),
		logger:      logger,
	}
}

// Register adds a connection and returns its identifier
func (h *Hub) Register(ws *websocket.Conn) string {
	id := uuid.New().String()

	h.mu.Lock()
	h.connections[id] = &connection{ws: ws}
	h.mu.Unlock()

	h.logger.Info("connection established", zap.String("connection_id", id))
	return id
}

// Unregister removes a connection; safe to call for unknown identifiers
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	_, known := h.connections[connectionID]
	delete(h.connections, connectionID)
	h.mu.Unlock()

	if known {
		h.logger.Info("connection closed", zap.String("connection_id", connectionID))
	}
}

// Count returns the number of live connections
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Send delivers one payload to one connection. An unknown identifier or a
// closed peer reports Gone; a timeout on a live connection reports
// TransientError. Payloads are never retried.
func (h *Hub) Send(connectionID string, payload Payload) SendResult {
	h.mu.RLock()
	conn, ok := h.connections[connectionID]
	h.mu.RUnlock()

	if !ok {
		return Gone
	}

	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal payload",
			zap.String("connection_id", connectionID),
			zap.Error(err))
		return TransientError
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	_ = conn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		if isTimeout(err) {
			h.logger.Warn("delivery timed out",
				zap.String("connection_id", connectionID),
				zap.Error(err))
			return TransientError
		}
		h.logger.Warn("connection gone",
			zap.String("connection_id", connectionID),
			zap.Error(err))
		h.Unregister(connectionID)
		return Gone
	}

	return Delivered
}

func isTimeout(err error) bool {
	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}
