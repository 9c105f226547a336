package websocket

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"nocaps-server/internal/config"
	"nocaps-server/internal/domain"
	"nocaps-server/pkg/logger"
)

// Relay consumes connection lifecycle events and raw inbound frames.
type Relay interface {
	Connect(conn domain.Connection) error
	Receive(connectionID string, data []byte) error
	Disconnect(connectionID string) error
}

type WebSocketHandler struct {
	relay    Relay
	cfg      config.RelayConfig
	upgrader websocket.Upgrader
	log      logger.Logger
}

func NewWebSocketHandler(relay Relay, cfg config.RelayConfig, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		relay: relay,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // cameras and viewers connect from any origin
			},
		},
		log: log,
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := NewWebSocketConnection(uuid.NewString(), conn, h.cfg, h.log)
	go wsConn.writePump()

	if err := h.relay.Connect(wsConn); err != nil {
		h.log.Error("Failed to register connection", "connection_id", wsConn.ID(), "error", err)
		wsConn.Close()
		return
	}

	h.log.Debug("Client connected", "connection_id", wsConn.ID(), "remote_addr", r.RemoteAddr)

	go h.handleMessages(wsConn)
}

func (h *WebSocketHandler) handleMessages(wsConn *WebSocketConnection) {
	defer func() {
		if err := h.relay.Disconnect(wsConn.ID()); err != nil {
			h.log.Debug("Disconnect not delivered", "connection_id", wsConn.ID(), "error", err)
		}
		wsConn.Close()
	}()

	conn := wsConn.conn
	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Connection closed unexpectedly", "connection_id", wsConn.ID(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if err := h.relay.Receive(wsConn.ID(), data); err != nil {
			h.log.Debug("Relay stopped, dropping connection", "connection_id", wsConn.ID())
			return
		}
	}
}
