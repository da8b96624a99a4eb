// Package realtime serves the voice session protocol over WebSocket.
package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voice-trading-assistant-go/internal/metrics"
	"voice-trading-assistant-go/internal/session"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 16 << 20 // base64 audio chunks
)

// Handler upgrades HTTP requests and runs one session per connection.
type Handler struct {
	pipeline session.Pipeline
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

var _ http.Handler = (*Handler)(nil)

// NewHandler creates a WebSocket handler driving pipeline.
func NewHandler(pipeline session.Pipeline, logger *zap.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		pipeline: pipeline,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger.Named("realtime"),
		metrics: m,
	}
}

// ServeHTTP reads messages until the peer disconnects. Each message is fully
// handled before the next one is read.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	peer := &connection{conn: conn}
	s := session.New(h.pipeline, peer, h.logger, h.metrics)
	h.logger.Info("New WebSocket connection", zap.String("session_id", s.ID), zap.String("remote", r.RemoteAddr))
	defer func() {
		s.Close()
		_ = conn.Close()
	}()

	// The request context ends with ServeHTTP; in-flight calls are not cancelled on disconnect.
	ctx := context.WithoutCancel(r.Context())

	s.Open()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read failed", zap.String("session_id", s.ID), zap.Error(err))
			}
			return
		}
		s.HandleMessage(ctx, data)
	}
}

// connection serializes writes to a single WebSocket.
type connection struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *connection) Send(msg session.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}
