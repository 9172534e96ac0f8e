package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/conversa/conversa-backend/internal/repository"
)

// UsageRepository implements repository.UsageRepository using PostgreSQL
type UsageRepository struct {
	db *sqlx.DB
}

// NewUsageRepository creates a new PostgreSQL usage repository
func NewUsageRepository(db *sqlx.DB) repository.UsageRepository {
	return &UsageRepository{db: db}
}

// Increment atomically adds tokens to the user's lifetime counter. The
// upsert is a single statement so concurrent completions for the same user
// never lose an update.
func (r *UsageRepository) Increment(ctx context.Context, userID uuid.UUID, tokens int) error {
	query := `
		INSERT INTO usage_counters (user_id, total_tokens, last_used)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET total_tokens = usage_counters.total_tokens + EXCLUDED.total_tokens,
		    last_used = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, userID, tokens)
	return err
}

// Stats returns the user's usage summary
func (r *UsageRepository) Stats(ctx context.Context, userID uuid.UUID) (*repository.UsageStats, error) {
	var stats repository.UsageStats
	query := `
		SELECT
			COALESCE(u.total_tokens, 0) AS total_tokens,
			u.last_used,
			(SELECT COUNT(*) FROM conversations c WHERE c.owner_id = $1) AS conversations_count,
			(SELECT COUNT(*) FROM messages m
				JOIN conversations c ON c.id = m.conversation_id
				WHERE c.owner_id = $1) AS messages_count
		FROM (SELECT $1::uuid AS user_id) ids
		LEFT JOIN usage_counters u ON u.user_id = ids.user_id
	`

	err := r.db.GetContext(ctx, &stats, query, userID)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}
