// Package jobs implements the persistent job queue: typed handlers, a
// dispatch registry, retry with exponential backoff and the scheduler loop
// that drives both job processing and due-target execution.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"mexc-sniper-bot/internal/database"
)

// JobType identifies what a job does. Every type the engine enqueues must
// have a registered handler.
type JobType string

const (
	JobTypeHousekeeping JobType = "housekeeping"
	JobTypeRiskCheck    JobType = "risk_check"
	JobTypeCalendarSync JobType = "calendar_sync"
)

// KnownJobTypes lists every job type the engine schedules. Registry
// construction fails unless each one has a handler.
func KnownJobTypes() []JobType {
	return []JobType{JobTypeHousekeeping, JobTypeRiskCheck, JobTypeCalendarSync}
}

// Result is the structured outcome of a handler run. A handler may return a
// partial Result together with an error; the error decides success.
type Result struct {
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Handler processes one job type.
type Handler interface {
	Type() JobType
	Handle(ctx context.Context, job *database.Job) (*Result, error)
}

// Permanent marks an error as never retryable regardless of how the
// classifier would read its message.
func Permanent(err error) error {
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Store is the persistence surface the queue needs.
type Store interface {
	EnqueueJob(ctx context.Context, jobType string, payload json.RawMessage, runAt time.Time, maxAttempts int) (*database.Job, error)
	DequeueDueJobs(ctx context.Context, limit int) ([]*database.Job, error)
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID string, attempts int, lastError string) error
	RescheduleJob(ctx context.Context, jobID string, attempts int, runAt time.Time, lastError string) error
}
