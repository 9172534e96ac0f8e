package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/conversa/conversa-backend/internal/errdefs"
)

// Role is the closed set of message roles. Unknown values are rejected at
// the store boundary with a ValidationError.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole validates a wire-level role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Role(s), nil
	default:
		return "", errdefs.Validationf("unknown role %q", s)
	}
}

// Conversation is an owned, ordered collection of messages.
type Conversation struct {
	ID        string    `db:"id"`
	OwnerID   uuid.UUID `db:"owner_id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Message is one turn within a conversation. Seq is assigned by the store
// and is strictly increasing within a conversation.
type Message struct {
	ID             string         `db:"id"`
	ConversationID string         `db:"conversation_id"`
	Seq            int64          `db:"seq"`
	Role           Role           `db:"role"`
	Content        string         `db:"content"`
	TokenCount     sql.NullInt32  `db:"token_count"`
	ModelName      sql.NullString `db:"model_name"`
	CreatedAt      time.Time      `db:"created_at"`
}

// JobKind identifies the work a queued job performs.
type JobKind string

const (
	JobKindCompletion JobKind = "completion"
	JobKindEmbedding  JobKind = "embedding"
)

// JobState is the forward-only lifecycle of a queued job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Job is one queued completion or embedding request.
type Job struct {
	ID           string          `db:"id"`
	OwnerID      uuid.UUID       `db:"owner_id"`
	Kind         JobKind         `db:"kind"`
	State        JobState        `db:"state"`
	Payload      json.RawMessage `db:"payload"`
	Result       json.RawMessage `db:"result"`
	FailedReason sql.NullString  `db:"failed_reason"`
	Attempts     int             `db:"attempts"`
	MaxAttempts  int             `db:"max_attempts"`
	RunAt        time.Time       `db:"run_at"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// UsageStats is the per-user usage summary.
type UsageStats struct {
	TotalTokens        int64      `db:"total_tokens"`
	ConversationsCount int64      `db:"conversations_count"`
	MessagesCount      int64      `db:"messages_count"`
	LastUsed           *time.Time `db:"last_used"`
}

// ConversationRepository defines conversation storage operations. Get and
// Delete fold the ownership check into the existence check: a conversation
// owned by someone else looks identical to a missing one.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *Conversation) error
	Get(ctx context.Context, ownerID uuid.UUID, id string) (*Conversation, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*Conversation, error)
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, ownerID uuid.UUID, id string) error
}

// MessageRepository defines message storage operations. Append never
// reorders: the store assigns the next sequence number.
type MessageRepository interface {
	Append(ctx context.Context, message *Message) error
	Get(ctx context.Context, id string) (*Message, error)
	ListRecent(ctx context.Context, conversationID string, limit int) ([]Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]Message, error)
}

// JobRepository defines job queue storage operations. Claim hands each
// queued job to exactly one worker.
type JobRepository interface {
	Enqueue(ctx context.Context, job *Job) error
	// Get applies the same ownership-as-existence rule as conversations: a
	// job enqueued by a different user is indistinguishable from a missing
	// one.
	Get(ctx context.Context, ownerID uuid.UUID, id string) (*Job, error)
	Claim(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, id string, result json.RawMessage) error
	Retry(ctx context.Context, id string, runAt time.Time) error
	Fail(ctx context.Context, id string, reason string) error
	// ReclaimStale re-queues active jobs whose last update is older than
	// cutoff, so a crashed worker's claims are eventually redelivered.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// UsageRepository defines the per-user token counter. Increment is a single
// atomic add at the storage layer, never a read-then-write.
type UsageRepository interface {
	Increment(ctx context.Context, userID uuid.UUID, tokens int) error
	Stats(ctx context.Context, userID uuid.UUID) (*UsageStats, error)
}
