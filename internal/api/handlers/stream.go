package handlers

import (
	"context"
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/conversa/conversa-backend/internal/api/models"
	"github.com/conversa/conversa-backend/internal/services"
	"github.com/conversa/conversa-backend/internal/ws"
)

// StreamHandler drives one streaming session per WebSocket connection
type StreamHandler struct {
	gateway services.Gateway
	logger  *logrus.Logger
}

// NewStreamHandler creates a new streaming handler
func NewStreamHandler(gateway services.Gateway, logger *logrus.Logger) *StreamHandler {
	return &StreamHandler{gateway: gateway, logger: logger}
}

// Handle runs the read loop for one connection. The session is destroyed on
// disconnect; its in-flight stream is cancelled upstream.
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	userID, ok := c.Locals("userID").(uuid.UUID)
	if !ok {
		c.WriteJSON(ws.Event{Type: ws.EventError, Message: "not authenticated"})
		return
	}

	transport := &connTransport{conn: c}
	session := ws.NewSession(h.gateway, transport, userID, h.logger)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		var msg models.StartMessage
		if err := c.ReadJSON(&msg); err != nil {
			// Client disconnected.
			return
		}

		switch msg.Type {
		case "start":
			session.Start(ctx, ws.StartRequest{
				Message:        msg.Message,
				ConversationID: msg.ConversationID,
				Options: services.ModelOptions{
					Model:       msg.Model,
					MaxTokens:   msg.MaxTokens,
					Temperature: msg.Temperature,
				},
			})
		case "stop":
			session.Stop()
		default:
			transport.Send(ws.Event{Type: ws.EventError, Message: "unknown message type"})
		}
	}
}

// connTransport serializes writes to the WebSocket; the session's stream
// goroutine and the read loop may both emit events.
type connTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *connTransport) Send(event ws.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(event)
}
