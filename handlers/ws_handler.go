package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/virtual-lenny/persona-agent/services/delivery"
	"github.com/virtual-lenny/persona-agent/services/pipeline"
	"go.uber.org/zap"
)

// PipelineRunner executes one RAG pipeline invocation
type PipelineRunner interface {
	Execute(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// inboundMessage is the client request shape
type inboundMessage struct {
	Message string `json:"message"`
}

// WSHandler upgrades client connections and feeds their messages through
// the pipeline. Messages on one connection run sequentially; independent
// connections are independent invocations.
type WSHandler struct {
	hub      *delivery.Hub
	pipeline PipelineRunner
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(hub *delivery.Hub, runner PipelineRunner, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:      hub,
		pipeline: runner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// cross-origin policy is enforced by the CORS middleware
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// HandleWS handles GET /ws
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connectionID := h.hub.Register(ws)
	defer func() {
		h.hub.Unregister(connectionID)
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed",
					zap.String("connection_id", connectionID),
					zap.Error(err))
			}
			return
		}

		// malformed bodies degrade to an empty query, never a rejection
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("malformed inbound message, proceeding with empty query",
				zap.String("connection_id", connectionID),
				zap.Error(err))
			msg.Message = ""
		}

		if _, err := h.pipeline.Execute(r.Context(), pipeline.Request{
			ConnectionID: connectionID,
			Message:      msg.Message,
		}); err != nil {
			// the client already received an error payload; the
			// connection stays open for the next message
			h.logger.Error("pipeline invocation failed",
				zap.String("connection_id", connectionID),
				zap.Error(err))
		}
	}
}
