package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// JOBS
// ============================================================================

// EnqueueJob persists a new pending job and returns it with its ID assigned.
func (r *Repository) EnqueueJob(ctx context.Context, jobType string, payload json.RawMessage, runAt time.Time, maxAttempts int) (*Job, error) {
	job := &Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     payload,
		RunAt:       runAt,
		MaxAttempts: maxAttempts,
		Status:      JobStatusPending,
	}

	query := `
		INSERT INTO jobs (id, type, payload, run_at, attempts, max_attempts, status)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.Pool.QueryRow(
		ctx, query,
		job.ID, job.Type, job.Payload, job.RunAt, job.MaxAttempts, job.Status,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// DequeueDueJobs atomically claims up to limit due jobs. The status flip to
// processing happens in the same statement that selects the rows, with
// FOR UPDATE SKIP LOCKED, so concurrent workers can never claim the same job.
func (r *Repository) DequeueDueJobs(ctx context.Context, limit int) ([]*Job, error) {
	query := `
		UPDATE jobs
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = $2 AND run_at <= CURRENT_TIMESTAMP AND attempts < max_attempts
			ORDER BY run_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, type, payload, run_at, attempts, max_attempts, status, last_error, created_at, updated_at
	`
	rows, err := r.db.Pool.Query(ctx, query, JobStatusProcessing, JobStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job := &Job{}
		if err := rows.Scan(
			&job.ID, &job.Type, &job.Payload, &job.RunAt, &job.Attempts, &job.MaxAttempts,
			&job.Status, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CompleteJob marks a processing job completed.
func (r *Repository) CompleteJob(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = $3
	`
	_, err := r.db.Pool.Exec(ctx, query, jobID, JobStatusCompleted, JobStatusProcessing)
	return err
}

// FailJob marks a job permanently failed with its final error.
func (r *Repository) FailJob(ctx context.Context, jobID string, attempts int, lastError string) error {
	query := `
		UPDATE jobs
		SET status = $2, attempts = $3, last_error = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, jobID, JobStatusFailed, attempts, lastError)
	return err
}

// RescheduleJob returns a failed-but-retryable job to pending with its next
// run time and incremented attempt count.
func (r *Repository) RescheduleJob(ctx context.Context, jobID string, attempts int, runAt time.Time, lastError string) error {
	query := `
		UPDATE jobs
		SET status = $2, attempts = $3, run_at = $4, last_error = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, jobID, JobStatusPending, attempts, runAt, lastError)
	return err
}

// DeleteOldJobs deletes completed and failed jobs created before the cutoff.
// Returns how many rows were removed.
func (r *Repository) DeleteOldJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM jobs
		WHERE status IN ($1, $2) AND created_at < $3
	`
	tag, err := r.db.Pool.Exec(ctx, query, JobStatusCompleted, JobStatusFailed, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
