package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mexc-sniper-bot/internal/database"
	"mexc-sniper-bot/internal/events"
	"mexc-sniper-bot/internal/retry"
)

const defaultMaxAttempts = 5

// Queue runs persisted jobs through their handlers with classified retry.
type Queue struct {
	store    Store
	registry *Registry
	bus      events.Emitter
	logger   zerolog.Logger
}

// NewQueue creates the job queue.
func NewQueue(store Store, registry *Registry, bus events.Emitter, logger zerolog.Logger) *Queue {
	return &Queue{
		store:    store,
		registry: registry,
		bus:      bus,
		logger:   logger.With().Str("component", "jobs").Logger(),
	}
}

// Enqueue persists a new pending job. maxAttempts <= 0 uses the default.
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload json.RawMessage, runAt time.Time, maxAttempts int) (*database.Job, error) {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	job, err := q.store.EnqueueJob(ctx, string(jobType), payload, runAt, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}
	q.logger.Debug().Str("job_id", job.ID).Str("type", string(jobType)).Time("run_at", runAt).Msg("Job enqueued")
	return job, nil
}

// DequeueDue claims up to limit due jobs. The pending->processing flip is a
// single atomic statement in the store, so two concurrent callers never
// receive the same job.
func (q *Queue) DequeueDue(ctx context.Context, limit int) ([]*database.Job, error) {
	return q.store.DequeueDueJobs(ctx, limit)
}

// Process dispatches one claimed job to its handler and settles the outcome:
// completed, rescheduled with backoff, or permanently failed.
func (q *Queue) Process(ctx context.Context, job *database.Job) {
	corrID := uuid.New().String()
	attempt := job.Attempts + 1
	logger := q.logger.With().Str("job_id", job.ID).Str("type", job.Type).Int("attempt", attempt).Str("correlation_id", corrID).Logger()

	handler, ok := q.registry.Lookup(JobType(job.Type))
	if !ok {
		// Nothing will ever handle this type; retrying is pointless.
		logger.Error().Msg("No handler for job type, failing permanently")
		q.settleFailure(ctx, job, attempt, corrID, fmt.Errorf("no handler for job type %s", job.Type), false, logger)
		return
	}

	result, err := handler.Handle(ctx, job)
	if err != nil {
		retryable := !IsPermanent(err) && retry.Classify(err) == retry.Retryable && attempt < job.MaxAttempts
		q.settleFailure(ctx, job, attempt, corrID, err, retryable, logger)
		return
	}

	if err := q.store.CompleteJob(ctx, job.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to mark job completed")
	}

	payload := map[string]interface{}{"job_id": job.ID, "type": job.Type}
	if result != nil && result.Message != "" {
		payload["message"] = result.Message
	}
	q.emit(events.EventJobCompleted, corrID, payload)
	logger.Info().Msg("Job completed")
}

func (q *Queue) settleFailure(ctx context.Context, job *database.Job, attempt int, corrID string, cause error, retryable bool, logger zerolog.Logger) {
	if retryable {
		delay := retry.BackoffDelay(attempt)
		nextRun := time.Now().Add(delay)
		if err := q.store.RescheduleJob(ctx, job.ID, attempt, nextRun, cause.Error()); err != nil {
			logger.Error().Err(err).Msg("Failed to reschedule job")
		}
		logger.Warn().Err(cause).Dur("backoff", delay).Msg("Job failed, rescheduled")
		return
	}

	if err := q.store.FailJob(ctx, job.ID, attempt, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("Failed to mark job failed")
	}
	q.emit(events.EventJobFailed, corrID, map[string]interface{}{
		"job_id": job.ID,
		"type":   job.Type,
		"error":  cause.Error(),
	})
	logger.Error().Err(cause).Msg("Job failed permanently")
}

func (q *Queue) emit(eventType events.EventType, corrID string, payload map[string]interface{}) {
	if q.bus != nil {
		q.bus.Emit(eventType, corrID, payload)
	}
}
