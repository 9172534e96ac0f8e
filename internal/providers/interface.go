package providers

import (
	"context"
)

// Provider defines the interface for an LLM provider. Implementations hold
// no cross-call state and perform no retries; retry policy belongs to the
// async worker.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete performs a non-streaming completion
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// StreamComplete performs a streaming completion. The returned channel
	// is single-pass; cancelling ctx aborts the upstream request, not just
	// the local iteration.
	StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// Embed computes an embedding vector for the given text
	Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error)
}

// CompletionRequest represents a chat completion request
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	Temperature *float32  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a non-streaming response
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk represents a chunk in a streaming response. The final chunk
// carries FinishReason; a chunk with Error set terminates the stream.
type StreamChunk struct {
	Delta        string `json:"delta,omitempty"`
	Model        string `json:"model,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Error        string `json:"error,omitempty"`
}

// EmbeddingRequest represents an embedding request
type EmbeddingRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// EmbeddingResponse represents an embedding result
type EmbeddingResponse struct {
	Vector []float32 `json:"vector"`
	Model  string    `json:"model"`
	Tokens int       `json:"tokens"`
}
