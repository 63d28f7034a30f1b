package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// SNIPE TARGETS
// ============================================================================

// targetColumns keeps a leading and trailing newline so concatenating it
// between SELECT and FROM never fuses tokens.
const targetColumns = `
	id, user_id, symbol, vcoin_id, status, position_size_usdt, priority,
	target_execution_time, confidence_score, stop_loss_percent, take_profit_percent,
	error_count, error_message, created_at, updated_at
`

const getTargetQuery = `SELECT` + targetColumns + `FROM snipe_targets WHERE id = $1`

const listDueTargetsQuery = `SELECT` + targetColumns + `FROM snipe_targets
	WHERE status = $1 AND target_execution_time <= $2
	ORDER BY priority ASC, target_execution_time ASC`

func scanTarget(row pgx.Row) (*SnipeTarget, error) {
	t := &SnipeTarget{}
	err := row.Scan(
		&t.ID, &t.UserID, &t.Symbol, &t.VcoinID, &t.Status, &t.PositionSizeUsdt, &t.Priority,
		&t.TargetExecutionTime, &t.ConfidenceScore, &t.StopLossPercent, &t.TakeProfitPercent,
		&t.ErrorCount, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateSnipeTarget inserts a new target row.
func (r *Repository) CreateSnipeTarget(ctx context.Context, target *SnipeTarget) error {
	query := `
		INSERT INTO snipe_targets (user_id, symbol, vcoin_id, status, position_size_usdt, priority,
		                           target_execution_time, confidence_score, stop_loss_percent, take_profit_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		target.UserID, target.Symbol, target.VcoinID, target.Status, target.PositionSizeUsdt,
		target.Priority, target.TargetExecutionTime, target.ConfidenceScore,
		target.StopLossPercent, target.TakeProfitPercent,
	).Scan(&target.ID, &target.CreatedAt, &target.UpdatedAt)
}

// GetSnipeTarget retrieves a target by ID.
func (r *Repository) GetSnipeTarget(ctx context.Context, targetID int64) (*SnipeTarget, error) {
	return scanTarget(r.db.Pool.QueryRow(ctx, getTargetQuery, targetID))
}

// ListDueTargets returns ready targets whose execution time has arrived,
// most urgent first (priority ascending, then scheduled time ascending).
func (r *Repository) ListDueTargets(ctx context.Context, now time.Time) ([]*SnipeTarget, error) {
	rows, err := r.db.Pool.Query(ctx, listDueTargetsQuery, TargetStatusReady, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []*SnipeTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// MarkTargetExecuting performs the ready->executing compare-and-set. It
// returns false when another worker already claimed the target; losing the
// race is not an error.
func (r *Repository) MarkTargetExecuting(ctx context.Context, targetID int64) (bool, error) {
	query := `
		UPDATE snipe_targets
		SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status IN ($3, $4)
		RETURNING id
	`
	var id int64
	err := r.db.Pool.QueryRow(ctx, query, targetID, TargetStatusExecuting, TargetStatusPending, TargetStatusReady).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateTargetStatus moves a target to a new status, recording an optional
// error message.
func (r *Repository) UpdateTargetStatus(ctx context.Context, targetID int64, status string, errorMessage *string) error {
	query := `
		UPDATE snipe_targets
		SET status = $2, error_message = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, targetID, status, errorMessage)
	return err
}

// ReleaseTarget returns an executing target to ready after a retryable
// failure, incrementing its error count. Returns the new error count so the
// caller can apply the target-level retry cap.
func (r *Repository) ReleaseTarget(ctx context.Context, targetID int64, errorMessage string) (int, error) {
	query := `
		UPDATE snipe_targets
		SET status = $2, error_count = error_count + 1, error_message = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING error_count
	`
	var errorCount int
	err := r.db.Pool.QueryRow(ctx, query, targetID, TargetStatusReady, errorMessage).Scan(&errorCount)
	if err != nil {
		return 0, err
	}
	return errorCount, nil
}

// UpsertSnipeTarget inserts a target or refreshes the schedule of an existing
// one, keyed by (vcoin_id, user_id). Terminal targets are left untouched.
func (r *Repository) UpsertSnipeTarget(ctx context.Context, target *SnipeTarget) error {
	query := `
		INSERT INTO snipe_targets (user_id, symbol, vcoin_id, status, position_size_usdt, priority,
		                           target_execution_time, confidence_score, stop_loss_percent, take_profit_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (vcoin_id, user_id) DO UPDATE
		SET symbol = EXCLUDED.symbol,
		    target_execution_time = EXCLUDED.target_execution_time,
		    confidence_score = EXCLUDED.confidence_score,
		    priority = EXCLUDED.priority,
		    updated_at = CURRENT_TIMESTAMP
		WHERE snipe_targets.status IN ($11, $12)
		RETURNING id, created_at, updated_at
	`
	err := r.db.Pool.QueryRow(
		ctx, query,
		target.UserID, target.Symbol, target.VcoinID, target.Status, target.PositionSizeUsdt,
		target.Priority, target.TargetExecutionTime, target.ConfidenceScore,
		target.StopLossPercent, target.TakeProfitPercent,
		TargetStatusPending, TargetStatusReady,
	).Scan(&target.ID, &target.CreatedAt, &target.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Existing row is past ready; nothing to refresh.
		return nil
	}
	return err
}

// DeleteStaleTargets deletes terminal targets created before the cutoff.
func (r *Repository) DeleteStaleTargets(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM snipe_targets
		WHERE status IN ($1, $2, $3) AND created_at < $4
	`
	tag, err := r.db.Pool.Exec(ctx, query, TargetStatusExecuted, TargetStatusFailed, TargetStatusCancelled, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
