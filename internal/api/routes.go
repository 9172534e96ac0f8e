package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"github.com/conversa/conversa-backend/internal/api/handlers"
	"github.com/conversa/conversa-backend/internal/api/middleware"
	"github.com/conversa/conversa-backend/internal/jobs"
	"github.com/conversa/conversa-backend/internal/repository"
	"github.com/conversa/conversa-backend/internal/services"
)

// SetupRoutes configures all API routes
func SetupRoutes(
	app *fiber.App,
	svc *services.Services,
	enqueuer *jobs.Enqueuer,
	jobRepo repository.JobRepository,
	jwtSecret string,
	logger *logrus.Logger,
) {
	api := app.Group("/api/v1")

	// Health check
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "conversa-backend",
		})
	})

	protected := api.Group("", middleware.AuthRequired(jwtSecret))

	chatHandler := handlers.NewChatHandler(svc.Gateway)
	protected.Post("/chat", chatHandler.Chat)
	protected.Post("/embeddings", chatHandler.Embed)

	jobsHandler := handlers.NewJobsHandler(svc.Gateway, enqueuer, jobRepo)
	protected.Post("/completions/async", jobsHandler.EnqueueCompletion)
	protected.Post("/embeddings/async", jobsHandler.EnqueueEmbedding)
	protected.Get("/jobs/:id", jobsHandler.GetJob)

	protected.Get("/conversations", handlers.ListConversations(svc.Conversations))
	protected.Get("/conversations/:id/messages", handlers.GetConversationMessages(svc.Conversations))
	protected.Delete("/conversations/:id", handlers.DeleteConversation(svc.Conversations))

	protected.Get("/usage", handlers.GetUsage(svc.Usage))

	// WebSocket upgrade with token auth from query param or header
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("token")
		if token == "" {
			header := c.Get("Authorization")
			if len(header) > 7 && header[:7] == "Bearer " {
				token = header[7:]
			}
		}

		if token != "" {
			if userID, err := middleware.ValidateToken(jwtSecret, token); err == nil {
				c.Locals("userID", userID)
				return c.Next()
			}
		}

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required for WebSocket",
		})
	})

	streamHandler := handlers.NewStreamHandler(svc.Gateway, logger)
	app.Get("/ws/chat", websocket.New(streamHandler.Handle))
}
