package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mexc-sniper-bot/internal/database"
	"mexc-sniper-bot/internal/events"
)

// HousekeepingStore is the cleanup surface of the repository.
type HousekeepingStore interface {
	DeleteOldJobs(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteStaleTargets(ctx context.Context, cutoff time.Time) (int64, error)
}

// HousekeepingConfig controls retention windows.
type HousekeepingConfig struct {
	// JobRetention is how long completed and failed jobs are kept.
	JobRetention time.Duration `json:"job_retention"`
	// TargetRetention is how long terminal snipe targets are kept.
	TargetRetention time.Duration `json:"target_retention"`
}

// DefaultHousekeepingConfig returns the default retention windows.
func DefaultHousekeepingConfig() HousekeepingConfig {
	return HousekeepingConfig{
		JobRetention:    7 * 24 * time.Hour,
		TargetRetention: 30 * 24 * time.Hour,
	}
}

// HousekeepingHandler prunes old jobs and stale targets. The steps are
// independent: one failing does not stop the others, and the job only
// succeeds when every step did.
type HousekeepingHandler struct {
	store  HousekeepingStore
	bus    events.Emitter
	config HousekeepingConfig
	logger zerolog.Logger
}

// NewHousekeepingHandler creates the housekeeping handler.
func NewHousekeepingHandler(store HousekeepingStore, bus events.Emitter, config HousekeepingConfig, logger zerolog.Logger) *HousekeepingHandler {
	if config.JobRetention <= 0 {
		config = DefaultHousekeepingConfig()
	}
	return &HousekeepingHandler{
		store:  store,
		bus:    bus,
		config: config,
		logger: logger.With().Str("component", "housekeeping").Logger(),
	}
}

func (h *HousekeepingHandler) Type() JobType { return JobTypeHousekeeping }

// Handle runs every cleanup step and aggregates their failures.
func (h *HousekeepingHandler) Handle(ctx context.Context, job *database.Job) (*Result, error) {
	now := time.Now()
	details := map[string]interface{}{}
	var stepErrs []error

	jobsDeleted, err := h.store.DeleteOldJobs(ctx, now.Add(-h.config.JobRetention))
	if err != nil {
		stepErrs = append(stepErrs, fmt.Errorf("delete old jobs: %w", err))
	} else {
		details["jobs_deleted"] = jobsDeleted
	}

	targetsDeleted, err := h.store.DeleteStaleTargets(ctx, now.Add(-h.config.TargetRetention))
	if err != nil {
		stepErrs = append(stepErrs, fmt.Errorf("delete stale targets: %w", err))
	} else {
		details["targets_deleted"] = targetsDeleted
	}

	result := &Result{Message: "housekeeping pass finished", Details: details}

	if len(stepErrs) > 0 {
		h.logger.Warn().Int("failed_steps", len(stepErrs)).Msg("Housekeeping finished with failures")
		return result, errors.Join(stepErrs...)
	}

	h.logger.Info().Interface("details", details).Msg("Housekeeping completed")
	if h.bus != nil {
		h.bus.Emit(events.EventHousekeepingCompleted, job.ID, details)
	}
	return result, nil
}
