package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/conversa/conversa-backend/internal/api/middleware"
	"github.com/conversa/conversa-backend/internal/api/models"
	"github.com/conversa/conversa-backend/internal/jobs"
	"github.com/conversa/conversa-backend/internal/repository"
	"github.com/conversa/conversa-backend/internal/services"
)

// JobsHandler handles the async completion boundary
type JobsHandler struct {
	gateway  services.Gateway
	enqueuer *jobs.Enqueuer
	jobRepo  repository.JobRepository
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(gateway services.Gateway, enqueuer *jobs.Enqueuer, jobRepo repository.JobRepository) *JobsHandler {
	return &JobsHandler{
		gateway:  gateway,
		enqueuer: enqueuer,
		jobRepo:  jobRepo,
	}
}

// EnqueueCompletion handles POST /api/v1/completions/async. The user
// message is appended durably before the job is queued, so the job payload
// carries the message id and redelivery cannot duplicate it.
func (h *JobsHandler) EnqueueCompletion(c *fiber.Ctx) error {
	var req models.AsyncCompletionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	userID := middleware.UserID(c)
	options := services.ModelOptions{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	turn, err := h.gateway.Prepare(c.Context(), services.TurnRequest{
		UserID:         userID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		Options:        options,
	})
	if err != nil {
		return respondError(c, err)
	}

	job, err := h.enqueuer.EnqueueCompletion(c.Context(), jobs.CompletionPayload{
		UserID:         userID,
		ConversationID: turn.Conversation.ID,
		MessageID:      turn.UserMessage.ID,
		Options:        options,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(models.EnqueueResponse{
		JobID:          job.ID,
		Status:         "queued",
		ConversationID: turn.Conversation.ID,
		MessageID:      turn.UserMessage.ID,
	})
}

// EnqueueEmbedding handles POST /api/v1/embeddings/async
func (h *JobsHandler) EnqueueEmbedding(c *fiber.Ctx) error {
	var req models.AsyncEmbeddingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text must not be empty",
		})
	}

	job, err := h.enqueuer.EnqueueEmbedding(c.Context(), jobs.EmbeddingPayload{
		UserID: middleware.UserID(c),
		Text:   req.Text,
		Model:  req.Model,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(models.EnqueueResponse{
		JobID:  job.ID,
		Status: "queued",
	})
}

// GetJob handles GET /api/v1/jobs/:id. A failed job surfaces its reason
// here; the async path never raises to the enqueueing caller. Another
// user's job id reads as not found.
func (h *JobsHandler) GetJob(c *fiber.Ctx) error {
	job, err := h.jobRepo.Get(c.Context(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	resp := models.JobStatusResponse{
		JobID:    job.ID,
		State:    string(job.State),
		Progress: jobs.Progress(job.State),
	}
	if len(job.Result) > 0 {
		var result interface{}
		if err := json.Unmarshal(job.Result, &result); err == nil {
			resp.Result = result
		}
	}
	if job.FailedReason.Valid {
		resp.FailedReason = job.FailedReason.String
	}

	return c.JSON(resp)
}
