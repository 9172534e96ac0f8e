package models

import "time"

// ChatRequest is the synchronous completion request body.
type ChatRequest struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversationId,omitempty"`
	Model          string   `json:"model,omitempty"`
	MaxTokens      *int     `json:"maxTokens,omitempty"`
	Temperature    *float32 `json:"temperature,omitempty"`
}

// ChatResponse is the synchronous completion response body.
type ChatResponse struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	Content        string    `json:"content"`
	Model          string    `json:"model"`
	Tokens         int       `json:"tokens"`
	CreatedAt      time.Time `json:"createdAt"`
}

// EmbeddingRequest is the embedding request body.
type EmbeddingRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// EmbeddingResponse is the embedding response body.
type EmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	Tokens    int       `json:"tokens"`
}

// AsyncCompletionRequest is the enqueue request body. The user message is
// appended synchronously before the job is queued.
type AsyncCompletionRequest struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversationId,omitempty"`
	Model          string   `json:"model,omitempty"`
	MaxTokens      *int     `json:"maxTokens,omitempty"`
	Temperature    *float32 `json:"temperature,omitempty"`
}

// AsyncEmbeddingRequest is the embedding enqueue request body.
type AsyncEmbeddingRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// EnqueueResponse acknowledges a queued job.
type EnqueueResponse struct {
	JobID          string `json:"jobId"`
	Status         string `json:"status"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
}

// JobStatusResponse is the job status query response.
type JobStatusResponse struct {
	JobID        string      `json:"jobId"`
	State        string      `json:"state"`
	Progress     int         `json:"progress"`
	Result       interface{} `json:"result,omitempty"`
	FailedReason string      `json:"failedReason,omitempty"`
}

// UsageResponse is the usage query response.
type UsageResponse struct {
	TotalTokens        int64      `json:"totalTokens"`
	ConversationsCount int64      `json:"conversationsCount"`
	MessagesCount      int64      `json:"messagesCount"`
	LastUsed           *time.Time `json:"lastUsed,omitempty"`
}

// ConversationResponse is one conversation in a listing.
type ConversationResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MessageResponse is one message in a conversation listing.
type MessageResponse struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	TokenCount *int      `json:"tokenCount,omitempty"`
	Model      string    `json:"model,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// StartMessage is the client's WebSocket start payload. The authenticated
// principal from the connection upgrade takes precedence over UserID.
type StartMessage struct {
	Type           string   `json:"type"`
	UserID         string   `json:"userId,omitempty"`
	Message        string   `json:"message"`
	ConversationID string   `json:"conversationId,omitempty"`
	Model          string   `json:"model,omitempty"`
	MaxTokens      *int     `json:"maxTokens,omitempty"`
	Temperature    *float32 `json:"temperature,omitempty"`
}
