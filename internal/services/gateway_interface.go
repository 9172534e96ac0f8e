package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/conversa/conversa-backend/internal/providers"
	"github.com/conversa/conversa-backend/internal/repository"
)

// ModelOptions carries the caller-tunable provider options.
type ModelOptions struct {
	Model       string   `json:"model,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
}

// TurnRequest is one user turn entering the gateway, regardless of mode.
type TurnRequest struct {
	UserID         uuid.UUID
	ConversationID string
	Message        string
	Options        ModelOptions
}

// Turn is a prepared user turn: the resolved conversation, the durably
// appended user message, and the provider request carrying bounded history.
type Turn struct {
	Conversation *repository.Conversation
	Created      bool
	UserMessage  *repository.Message
	Request      providers.CompletionRequest
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	ConversationID string
	Message        *repository.Message
	Content        string
	Model          string
	FinishReason   string
	Tokens         int
}

// EmbedRequest is one embedding request.
type EmbedRequest struct {
	UserID uuid.UUID
	Text   string
	Model  string
}

// Gateway is the single entry point for all three execution modes. Every
// mode runs the same sequence: append user message, call provider, append
// assistant message, increment usage.
type Gateway interface {
	// Complete runs a full synchronous turn.
	Complete(ctx context.Context, req TurnRequest) (*TurnResult, error)

	// Prepare resolves or creates the conversation, durably appends the
	// user message, and assembles bounded history. Used by the streaming
	// session and the async enqueuer before the provider is involved.
	Prepare(ctx context.Context, req TurnRequest) (*Turn, error)

	// Resume rebuilds a Turn for a user message that was already appended
	// by a previous Prepare (the async worker path).
	Resume(ctx context.Context, userID uuid.UUID, conversationID string, opts ModelOptions) (*Turn, error)

	// Stream starts the provider stream for a prepared turn. The returned
	// context is the stream's own; consumers inspect it to tell a timeout
	// from a deliberate cancellation once the channel closes. The cancel
	// aborts the upstream request; callers must invoke it once the stream
	// is done or abandoned.
	Stream(ctx context.Context, turn *Turn) (<-chan providers.StreamChunk, context.Context, context.CancelFunc, error)

	// CompleteTurn runs the provider synchronously for a prepared turn and
	// finishes it. Used by the async worker.
	CompleteTurn(ctx context.Context, turn *Turn) (*TurnResult, error)

	// Finish appends the assistant message and increments usage exactly
	// once for a successful turn. reportedTokens <= 0 means the provider
	// reported no usage and the count is estimated. Returns the persisted
	// message and the tokens accounted.
	Finish(ctx context.Context, turn *Turn, content string, reportedTokens int, model string) (*repository.Message, int, error)

	// Embed computes an embedding for the user's text.
	Embed(ctx context.Context, req EmbedRequest) (*providers.EmbeddingResponse, error)
}
