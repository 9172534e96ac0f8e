package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/conversa/conversa-backend/internal/api/middleware"
	"github.com/conversa/conversa-backend/internal/api/models"
	"github.com/conversa/conversa-backend/internal/repository"
)

// GetUsage handles GET /api/v1/usage
func GetUsage(usage repository.UsageRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := usage.Stats(c.Context(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(models.UsageResponse{
			TotalTokens:        stats.TotalTokens,
			ConversationsCount: stats.ConversationsCount,
			MessagesCount:      stats.MessagesCount,
			LastUsed:           stats.LastUsed,
		})
	}
}
