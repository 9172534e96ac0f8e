package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/conversa/conversa-backend/internal/errdefs"
	"github.com/conversa/conversa-backend/internal/repository"
)

// MessageRepository implements repository.MessageRepository using PostgreSQL
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sqlx.DB) repository.MessageRepository {
	return &MessageRepository{db: db}
}

// Append appends a message after the current latest message of its
// conversation. The seq column is assigned by the database and read back so
// callers observe the assigned order.
func (r *MessageRepository) Append(ctx context.Context, message *repository.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.CreatedAt = time.Now()

	query := `
		INSERT INTO messages (id, conversation_id, role, content, token_count, model_name, created_at)
		VALUES (:id, :conversation_id, :role, :content, :token_count, :model_name, :created_at)
		RETURNING seq
	`

	rows, err := r.db.NamedQueryContext(ctx, query, message)
	if err != nil {
		return err
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&message.Seq); err != nil {
			return err
		}
	}

	return rows.Err()
}

// Get retrieves a message by ID
func (r *MessageRepository) Get(ctx context.Context, id string) (*repository.Message, error) {
	var message repository.Message
	query := `
		SELECT id, conversation_id, seq, role, content, token_count, model_name, created_at
		FROM messages
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &message, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errdefs.NotFound("message")
		}
		return nil, err
	}

	return &message, nil
}

// ListRecent returns at most limit most-recent messages, oldest first
func (r *MessageRepository) ListRecent(ctx context.Context, conversationID string, limit int) ([]repository.Message, error) {
	var messages []repository.Message
	query := `
		SELECT id, conversation_id, seq, role, content, token_count, model_name, created_at
		FROM (
			SELECT id, conversation_id, seq, role, content, token_count, model_name, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC
	`

	err := r.db.SelectContext(ctx, &messages, query, conversationID, limit)
	if err != nil {
		return nil, err
	}

	return messages, nil
}

// ListByConversation retrieves all messages for a conversation in order
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]repository.Message, error) {
	var messages []repository.Message
	query := `
		SELECT id, conversation_id, seq, role, content, token_count, model_name, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY seq ASC
	`

	err := r.db.SelectContext(ctx, &messages, query, conversationID)
	if err != nil {
		return nil, err
	}

	return messages, nil
}
