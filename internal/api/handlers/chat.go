package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/conversa/conversa-backend/internal/api/middleware"
	"github.com/conversa/conversa-backend/internal/api/models"
	"github.com/conversa/conversa-backend/internal/services"
)

// ChatHandler handles synchronous chat and embedding requests
type ChatHandler struct {
	gateway services.Gateway
}

// NewChatHandler creates a new chat handler
func NewChatHandler(gateway services.Gateway) *ChatHandler {
	return &ChatHandler{gateway: gateway}
}

// Chat handles POST /api/v1/chat
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := h.gateway.Complete(c.Context(), services.TurnRequest{
		UserID:         middleware.UserID(c),
		ConversationID: req.ConversationID,
		Message:        req.Message,
		Options: services.ModelOptions{
			Model:       req.Model,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		},
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(models.ChatResponse{
		ConversationID: result.ConversationID,
		MessageID:      result.Message.ID,
		Content:        result.Content,
		Model:          result.Model,
		Tokens:         result.Tokens,
		CreatedAt:      result.Message.CreatedAt,
	})
}

// Embed handles POST /api/v1/embeddings
func (h *ChatHandler) Embed(c *fiber.Ctx) error {
	var req models.EmbeddingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := h.gateway.Embed(c.Context(), services.EmbedRequest{
		UserID: middleware.UserID(c),
		Text:   req.Text,
		Model:  req.Model,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(models.EmbeddingResponse{
		Embedding: resp.Vector,
		Model:     resp.Model,
		Tokens:    resp.Tokens,
	})
}
