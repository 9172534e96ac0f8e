package jobs

import (
	"github.com/google/uuid"
	"github.com/conversa/conversa-backend/internal/services"
)

// CompletionPayload describes a queued completion. It carries the id of the
// already-appended user message rather than raw text, so reprocessing the
// job cannot append the user message twice.
type CompletionPayload struct {
	UserID         uuid.UUID             `json:"user_id"`
	ConversationID string                `json:"conversation_id"`
	MessageID      string                `json:"message_id"`
	Options        services.ModelOptions `json:"options"`
}

// EmbeddingPayload describes a queued embedding.
type EmbeddingPayload struct {
	UserID uuid.UUID `json:"user_id"`
	Text   string    `json:"text"`
	Model  string    `json:"model,omitempty"`
}

// CompletionResult is the result marker stored on a completed completion
// job. Its presence is the idempotency guard against redelivery.
type CompletionResult struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Model          string `json:"model"`
	FinishReason   string `json:"finish_reason"`
	Tokens         int    `json:"tokens"`
}

// EmbeddingResult is the result stored on a completed embedding job.
type EmbeddingResult struct {
	Vector []float32 `json:"vector"`
	Model  string    `json:"model"`
	Tokens int       `json:"tokens"`
}
