package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/conversa/conversa-backend/internal/errdefs"
	"github.com/conversa/conversa-backend/internal/repository"
)

// JobRepository implements repository.JobRepository using PostgreSQL
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new PostgreSQL job repository
func NewJobRepository(db *sqlx.DB) repository.JobRepository {
	return &JobRepository{db: db}
}

// Enqueue inserts a new queued job
func (r *JobRepository) Enqueue(ctx context.Context, job *repository.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.State = repository.JobQueued
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	if job.RunAt.IsZero() {
		job.RunAt = job.CreatedAt
	}

	query := `
		INSERT INTO jobs (id, owner_id, kind, state, payload, attempts, max_attempts, run_at, created_at, updated_at)
		VALUES (:id, :owner_id, :kind, :state, :payload, :attempts, :max_attempts, :run_at, :created_at, :updated_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, job)
	return err
}

// Get retrieves a job by ID. A job enqueued by a different user is
// indistinguishable from a missing one.
func (r *JobRepository) Get(ctx context.Context, ownerID uuid.UUID, id string) (*repository.Job, error) {
	var job repository.Job
	query := `
		SELECT id, owner_id, kind, state, payload, result, failed_reason, attempts, max_attempts, run_at, created_at, updated_at
		FROM jobs
		WHERE id = $1 AND owner_id = $2
	`

	err := r.db.GetContext(ctx, &job, query, id, ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errdefs.NotFound("job")
		}
		return nil, err
	}

	return &job, nil
}

// Claim atomically hands the oldest ready job to the calling worker. SKIP
// LOCKED keeps concurrent workers from claiming the same row. Returns nil
// when no job is ready.
func (r *JobRepository) Claim(ctx context.Context) (*repository.Job, error) {
	var job repository.Job
	query := `
		UPDATE jobs
		SET state = 'active', attempts = attempts + 1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE state = 'queued' AND run_at <= NOW()
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, owner_id, kind, state, payload, result, failed_reason, attempts, max_attempts, run_at, created_at, updated_at
	`

	err := r.db.GetContext(ctx, &job, query)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &job, nil
}

// Complete marks a job as completed with its result. The state guard makes
// the transition a no-op if the job already reached a terminal state.
func (r *JobRepository) Complete(ctx context.Context, id string, result json.RawMessage) error {
	query := `
		UPDATE jobs
		SET state = 'completed', result = $2, updated_at = NOW()
		WHERE id = $1 AND state = 'active'
	`
	_, err := r.db.ExecContext(ctx, query, id, result)
	return err
}

// Retry re-queues a job for a later attempt
func (r *JobRepository) Retry(ctx context.Context, id string, runAt time.Time) error {
	query := `
		UPDATE jobs
		SET state = 'queued', run_at = $2, updated_at = NOW()
		WHERE id = $1 AND state = 'active'
	`
	_, err := r.db.ExecContext(ctx, query, id, runAt)
	return err
}

// Fail marks a job as terminally failed
func (r *JobRepository) Fail(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE jobs
		SET state = 'failed', failed_reason = $2, updated_at = NOW()
		WHERE id = $1 AND state = 'active'
	`
	_, err := r.db.ExecContext(ctx, query, id, reason)
	return err
}

// ReclaimStale re-queues active jobs not updated since cutoff. A worker that
// crashed after claiming never reaches Complete, Retry or Fail; without this
// its jobs would stay active forever.
func (r *JobRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE jobs
		SET state = 'queued', run_at = NOW(), updated_at = NOW()
		WHERE state = 'active' AND updated_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
