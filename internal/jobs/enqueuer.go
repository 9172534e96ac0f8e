package jobs

import (
	"context"
	"encoding/json"

	"github.com/conversa/conversa-backend/internal/repository"
)

// Enqueuer creates queued jobs. The caller is responsible for durably
// appending the user message first (via the gateway's Prepare).
type Enqueuer struct {
	jobs   repository.JobRepository
	policy RetryPolicy
}

// NewEnqueuer creates a new job enqueuer
func NewEnqueuer(jobs repository.JobRepository, policy RetryPolicy) *Enqueuer {
	return &Enqueuer{jobs: jobs, policy: policy}
}

// EnqueueCompletion queues a completion job for an already-appended user
// message.
func (e *Enqueuer) EnqueueCompletion(ctx context.Context, payload CompletionPayload) (*repository.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	job := &repository.Job{
		OwnerID:     payload.UserID,
		Kind:        repository.JobKindCompletion,
		Payload:     raw,
		MaxAttempts: e.policy.MaxAttempts,
	}
	if err := e.jobs.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	return job, nil
}

// EnqueueEmbedding queues an embedding job.
func (e *Enqueuer) EnqueueEmbedding(ctx context.Context, payload EmbeddingPayload) (*repository.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	job := &repository.Job{
		OwnerID:     payload.UserID,
		Kind:        repository.JobKindEmbedding,
		Payload:     raw,
		MaxAttempts: e.policy.MaxAttempts,
	}
	if err := e.jobs.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	return job, nil
}
