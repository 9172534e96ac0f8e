package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/conversa/conversa-backend/internal/errdefs"
	"github.com/conversa/conversa-backend/internal/repository"
	"github.com/conversa/conversa-backend/internal/services"
)

// Worker is a pool of goroutines draining the job queue. Jobs run in
// parallel across the pool, but a single job is processed sequentially end
// to end; there is no mid-flight cancellation once a job is claimed.
type Worker struct {
	jobs         repository.JobRepository
	gateway      services.Gateway
	policy       RetryPolicy
	poolSize     int
	pollInterval time.Duration
	visibility   time.Duration
	logger       *logrus.Logger
}

// NewWorker creates a new job worker pool. visibility bounds how long a
// claimed job may sit in the active state before it is considered orphaned
// by a crashed worker and re-queued.
func NewWorker(
	jobs repository.JobRepository,
	gateway services.Gateway,
	policy RetryPolicy,
	poolSize int,
	pollInterval time.Duration,
	visibility time.Duration,
	logger *logrus.Logger,
) *Worker {
	if poolSize < 1 {
		poolSize = 1
	}
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &Worker{
		jobs:         jobs,
		gateway:      gateway,
		policy:       policy,
		poolSize:     poolSize,
		pollInterval: pollInterval,
		visibility:   visibility,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled, processing jobs across the pool.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.poolSize; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reclaimLoop(ctx)
	}()

	wg.Wait()
}

// reclaimLoop periodically re-queues jobs stranded in the active state by a
// crashed worker, making redelivery real rather than theoretical.
func (w *Worker) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(w.visibility)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := w.jobs.ReclaimStale(ctx, time.Now().Add(-w.visibility))
		if err != nil {
			if ctx.Err() == nil {
				w.logger.WithError(err).Warn("failed to reclaim stale jobs")
			}
			continue
		}
		if n > 0 {
			w.logger.WithField("count", n).Warn("re-queued stale active jobs")
		}
	}
}

func (w *Worker) loop(ctx context.Context, id int) {
	log := w.logger.WithField("worker", id)
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.jobs.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("failed to claim job")
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.sleep(ctx)
			continue
		}

		w.process(ctx, job)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

// process runs one claimed job to a terminal or re-queued state.
func (w *Worker) process(ctx context.Context, job *repository.Job) {
	log := w.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"kind":    job.Kind,
		"attempt": job.Attempts,
	})

	// Redelivered job that already produced a result: do not persist or
	// account anything a second time.
	if len(job.Result) > 0 {
		log.Warn("job already has a result, completing without reprocessing")
		if err := w.jobs.Complete(ctx, job.ID, job.Result); err != nil {
			log.WithError(err).Error("failed to complete redelivered job")
		}
		return
	}

	result, err := w.run(ctx, job)
	if err == nil {
		if err := w.jobs.Complete(ctx, job.ID, result); err != nil {
			log.WithError(err).Error("failed to mark job completed")
		}
		log.Info("job completed")
		return
	}

	if !errdefs.Retryable(err) {
		log.WithError(err).Warn("job failed with non-retryable error")
		if ferr := w.jobs.Fail(ctx, job.ID, err.Error()); ferr != nil {
			log.WithError(ferr).Error("failed to mark job failed")
		}
		return
	}

	if job.Attempts >= job.MaxAttempts {
		exhausted := &errdefs.JobExhaustedError{JobID: job.ID, Attempts: job.Attempts, Cause: err}
		log.WithError(exhausted).Error("job exhausted retries")
		if ferr := w.jobs.Fail(ctx, job.ID, exhausted.Error()); ferr != nil {
			log.WithError(ferr).Error("failed to mark job failed")
		}
		return
	}

	delay := w.policy.Delay(job.Attempts)
	log.WithError(err).WithField("delay", delay).Info("job will be retried")
	if rerr := w.jobs.Retry(ctx, job.ID, time.Now().Add(delay)); rerr != nil {
		log.WithError(rerr).Error("failed to re-queue job")
	}
}

func (w *Worker) run(ctx context.Context, job *repository.Job) (json.RawMessage, error) {
	switch job.Kind {
	case repository.JobKindCompletion:
		return w.runCompletion(ctx, job)
	case repository.JobKindEmbedding:
		return w.runEmbedding(ctx, job)
	default:
		return nil, errdefs.Validationf("unknown job kind %q", job.Kind)
	}
}

func (w *Worker) runCompletion(ctx context.Context, job *repository.Job) (json.RawMessage, error) {
	var payload CompletionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, errdefs.Validationf("malformed completion payload: %v", err)
	}

	turn, err := w.gateway.Resume(ctx, payload.UserID, payload.ConversationID, payload.Options)
	if err != nil {
		return nil, err
	}

	result, err := w.gateway.CompleteTurn(ctx, turn)
	if err != nil {
		return nil, err
	}

	return json.Marshal(CompletionResult{
		MessageID:      result.Message.ID,
		ConversationID: result.ConversationID,
		Content:        result.Content,
		Model:          result.Model,
		FinishReason:   result.FinishReason,
		Tokens:         result.Tokens,
	})
}

func (w *Worker) runEmbedding(ctx context.Context, job *repository.Job) (json.RawMessage, error) {
	var payload EmbeddingPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, errdefs.Validationf("malformed embedding payload: %v", err)
	}

	resp, err := w.gateway.Embed(ctx, services.EmbedRequest{
		UserID: payload.UserID,
		Text:   payload.Text,
		Model:  payload.Model,
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(EmbeddingResult{
		Vector: resp.Vector,
		Model:  resp.Model,
		Tokens: resp.Tokens,
	})
}

// Progress maps a job state to a coarse completion percentage for status
// pollers.
func Progress(state repository.JobState) int {
	switch state {
	case repository.JobCompleted:
		return 100
	case repository.JobActive:
		return 50
	default:
		return 0
	}
}
