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

// ConversationRepository implements repository.ConversationRepository using PostgreSQL
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository creates a new PostgreSQL conversation repository
func NewConversationRepository(db *sqlx.DB) repository.ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create creates a new conversation
func (r *ConversationRepository) Create(ctx context.Context, conversation *repository.Conversation) error {
	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}
	conversation.CreatedAt = time.Now()
	conversation.UpdatedAt = conversation.CreatedAt

	query := `
		INSERT INTO conversations (id, owner_id, title, created_at, updated_at)
		VALUES (:id, :owner_id, :title, :created_at, :updated_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, conversation)
	return err
}

// Get retrieves a conversation by ID. A conversation owned by a different
// user is indistinguishable from a missing one.
func (r *ConversationRepository) Get(ctx context.Context, ownerID uuid.UUID, id string) (*repository.Conversation, error) {
	var conversation repository.Conversation
	query := `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND owner_id = $2
	`

	err := r.db.GetContext(ctx, &conversation, query, id, ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errdefs.NotFound("conversation")
		}
		return nil, err
	}

	return &conversation, nil
}

// List retrieves all conversations for a user, most recently active first
func (r *ConversationRepository) List(ctx context.Context, ownerID uuid.UUID) ([]*repository.Conversation, error) {
	var conversations []*repository.Conversation
	query := `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations
		WHERE owner_id = $1
		ORDER BY updated_at DESC
	`

	err := r.db.SelectContext(ctx, &conversations, query, ownerID)
	if err != nil {
		return nil, err
	}

	return conversations, nil
}

// Touch bumps the conversation's updated_at timestamp
func (r *ConversationRepository) Touch(ctx context.Context, id string) error {
	query := "UPDATE conversations SET updated_at = NOW() WHERE id = $1"
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// Delete deletes a conversation, cascading to its messages
func (r *ConversationRepository) Delete(ctx context.Context, ownerID uuid.UUID, id string) error {
	query := "DELETE FROM conversations WHERE id = $1 AND owner_id = $2"
	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errdefs.NotFound("conversation")
	}

	return nil
}
