package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nocaps-server/internal/config"
	"nocaps-server/pkg/logger"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// WebSocketConnection queues outbound frames for a dedicated writer goroutine,
// so Send never blocks the caller on the network.
type WebSocketConnection struct {
	id   string
	conn *websocket.Conn
	cfg  config.RelayConfig
	log  logger.Logger

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func NewWebSocketConnection(id string, conn *websocket.Conn, cfg config.RelayConfig, log logger.Logger) *WebSocketConnection {
	return &WebSocketConnection{
		id:     id,
		conn:   conn,
		cfg:    cfg,
		log:    log,
		send:   make(chan []byte, cfg.SendBuffer),
		closed: make(chan struct{}),
	}
}

func (wsc *WebSocketConnection) ID() string {
	return wsc.id
}

// Send encodes message as JSON and queues it. A connection whose buffer is full
// is too slow to keep up and gets closed.
func (wsc *WebSocketConnection) Send(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case <-wsc.closed:
		return ErrConnectionClosed
	default:
	}

	select {
	case wsc.send <- data:
		return nil
	default:
		wsc.log.Warn("Closing slow connection", "connection_id", wsc.id)
		wsc.Close()
		return ErrSendBufferFull
	}
}

// Close signals the writer to send a close frame and tear down the socket.
// It does no I/O, so it is safe to call from the relay loop.
func (wsc *WebSocketConnection) Close() error {
	wsc.closeOnce.Do(func() {
		close(wsc.closed)
	})
	return nil
}

// writePump owns every write to the socket and closes it on exit.
func (wsc *WebSocketConnection) writePump() {
	ticker := time.NewTicker(wsc.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		wsc.Close()
		if err := wsc.conn.Close(); err != nil {
			wsc.log.Debug("Socket close failed", "connection_id", wsc.id, "error", err)
		}
	}()

	for {
		select {
		case data := <-wsc.send:
			_ = wsc.conn.SetWriteDeadline(time.Now().Add(wsc.cfg.WriteWait))
			if err := wsc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				wsc.log.Debug("Write failed", "connection_id", wsc.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = wsc.conn.SetWriteDeadline(time.Now().Add(wsc.cfg.WriteWait))
			if err := wsc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-wsc.closed:
			_ = wsc.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsc.cfg.WriteWait))
			return
		}
	}
}
