package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/conversa/conversa-backend/internal/api/middleware"
	"github.com/conversa/conversa-backend/internal/api/models"
	"github.com/conversa/conversa-backend/internal/services"
)

// ListConversations handles GET /api/v1/conversations
func ListConversations(conversations *services.ConversationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := conversations.List(c.Context(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}

		resp := make([]models.ConversationResponse, len(list))
		for i, conversation := range list {
			resp[i] = models.ConversationResponse{
				ID:        conversation.ID,
				Title:     conversation.Title,
				CreatedAt: conversation.CreatedAt,
				UpdatedAt: conversation.UpdatedAt,
			}
		}

		return c.JSON(resp)
	}
}

// GetConversationMessages handles GET /api/v1/conversations/:id/messages
func GetConversationMessages(conversations *services.ConversationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		messages, err := conversations.Messages(c.Context(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}

		resp := make([]models.MessageResponse, len(messages))
		for i, message := range messages {
			m := models.MessageResponse{
				ID:        message.ID,
				Role:      string(message.Role),
				Content:   message.Content,
				CreatedAt: message.CreatedAt,
			}
			if message.TokenCount.Valid {
				count := int(message.TokenCount.Int32)
				m.TokenCount = &count
			}
			if message.ModelName.Valid {
				m.Model = message.ModelName.String
			}
			resp[i] = m
		}

		return c.JSON(resp)
	}
}

// DeleteConversation handles DELETE /api/v1/conversations/:id
func DeleteConversation(conversations *services.ConversationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := conversations.Delete(c.Context(), middleware.UserID(c), c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
