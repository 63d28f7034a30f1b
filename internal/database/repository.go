package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository provides data access methods for the execution engine.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// POSITIONS
// ============================================================================

// CreatePosition inserts a new open position.
func (r *Repository) CreatePosition(ctx context.Context, position *Position) error {
	query := `
		INSERT INTO positions (user_id, symbol, side, entry_price, current_price, quantity,
		                       stop_loss_price, take_profit_price, stop_loss_percent, take_profit_percent,
		                       status, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		position.UserID, position.Symbol, position.Side, position.EntryPrice, position.CurrentPrice,
		position.Quantity, position.StopLossPrice, position.TakeProfitPrice,
		position.StopLossPercent, position.TakeProfitPercent, position.Status, position.OpenedAt,
	).Scan(&position.ID, &position.CreatedAt, &position.UpdatedAt)
}

// UpdatePositionPrice records the latest observed price for a position.
func (r *Repository) UpdatePositionPrice(ctx context.Context, positionID int64, currentPrice float64) error {
	query := `
		UPDATE positions
		SET current_price = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, positionID, currentPrice)
	return err
}

// ClosePosition marks a position closed with its exit price and reason.
func (r *Repository) ClosePosition(ctx context.Context, positionID int64, exitPrice float64, reason string) error {
	query := `
		UPDATE positions
		SET status = $2, exit_price = $3, exit_reason = $4, closed_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = $5
	`
	_, err := r.db.Pool.Exec(ctx, query, positionID, PositionStatusClosed, exitPrice, reason, PositionStatusOpen)
	return err
}

// GetOpenPositions retrieves all open positions, newest first.
func (r *Repository) GetOpenPositions(ctx context.Context) ([]*Position, error) {
	query := `
		SELECT id, user_id, symbol, side, entry_price, current_price, quantity,
		       stop_loss_price, take_profit_price, stop_loss_percent, take_profit_percent,
		       status, opened_at, closed_at, exit_price, exit_reason, created_at, updated_at
		FROM positions
		WHERE status = 'open'
		ORDER BY opened_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*Position
	for rows.Next() {
		p := &Position{}
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Symbol, &p.Side, &p.EntryPrice, &p.CurrentPrice, &p.Quantity,
			&p.StopLossPrice, &p.TakeProfitPrice, &p.StopLossPercent, &p.TakeProfitPercent,
			&p.Status, &p.OpenedAt, &p.ClosedAt, &p.ExitPrice, &p.ExitReason, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ============================================================================
// EXECUTION RECORDS
// ============================================================================

// CreateExecutionRecord appends an execution record. Records are immutable
// once written, except for the position backfill below.
func (r *Repository) CreateExecutionRecord(ctx context.Context, record *ExecutionRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	query := `
		INSERT INTO execution_records (id, target_id, position_id, user_id, symbol, order_side, order_type,
		                               requested_qty, executed_qty, executed_price, total_cost, fees,
		                               exchange_order_id, exchange_status, latency_ms, slippage_percent,
		                               status, error_code, error_message, requested_at, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		record.ID, record.TargetID, record.PositionID, record.UserID, record.Symbol,
		record.OrderSide, record.OrderType, record.RequestedQty, record.ExecutedQty,
		record.ExecutedPrice, record.TotalCost, record.Fees, record.ExchangeOrderID,
		record.ExchangeStatus, record.LatencyMs, record.SlippagePercent, record.Status,
		record.ErrorCode, record.ErrorMessage, record.RequestedAt, record.ExecutedAt,
	)
	return err
}

// LinkExecutionToPosition backfills position_id on a record once the position
// created from that fill exists. The record is inserted before the position,
// so the link is only known after the fact.
func (r *Repository) LinkExecutionToPosition(ctx context.Context, recordID string, positionID int64) error {
	query := `UPDATE execution_records SET position_id = $2 WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, recordID, positionID)
	return err
}

// GetExecutionRecordsByTarget retrieves the execution history of one target.
func (r *Repository) GetExecutionRecordsByTarget(ctx context.Context, targetID int64) ([]*ExecutionRecord, error) {
	query := `
		SELECT id, target_id, position_id, user_id, symbol, order_side, order_type,
		       requested_qty, executed_qty, executed_price, total_cost, fees,
		       exchange_order_id, exchange_status, latency_ms, slippage_percent,
		       status, error_code, error_message, requested_at, executed_at
		FROM execution_records
		WHERE target_id = $1
		ORDER BY requested_at ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ExecutionRecord
	for rows.Next() {
		rec := &ExecutionRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.TargetID, &rec.PositionID, &rec.UserID, &rec.Symbol,
			&rec.OrderSide, &rec.OrderType, &rec.RequestedQty, &rec.ExecutedQty,
			&rec.ExecutedPrice, &rec.TotalCost, &rec.Fees, &rec.ExchangeOrderID,
			&rec.ExchangeStatus, &rec.LatencyMs, &rec.SlippagePercent, &rec.Status,
			&rec.ErrorCode, &rec.ErrorMessage, &rec.RequestedAt, &rec.ExecutedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ============================================================================
// AUDIT EVENTS
// ============================================================================

// InsertAuditEvent appends one audit event row.
func (r *Repository) InsertAuditEvent(ctx context.Context, eventType, correlationID string, payload map[string]interface{}, timestamp time.Time) error {
	var payloadJSON []byte
	if payload != nil {
		var err error
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (type, correlation_id, payload, timestamp)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Pool.Exec(ctx, query, eventType, correlationID, payloadJSON, timestamp)
	return err
}

// GetAuditEventsByCorrelation retrieves all audit events of one operation.
func (r *Repository) GetAuditEventsByCorrelation(ctx context.Context, correlationID string) ([]*AuditEventRow, error) {
	query := `
		SELECT id, type, correlation_id, payload, timestamp
		FROM audit_events
		WHERE correlation_id = $1
		ORDER BY timestamp ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, correlationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rowsOut []*AuditEventRow
	for rows.Next() {
		row := &AuditEventRow{}
		if err := rows.Scan(&row.ID, &row.Type, &row.CorrelationID, &row.Payload, &row.Timestamp); err != nil {
			return nil, err
		}
		rowsOut = append(rowsOut, row)
	}
	return rowsOut, rows.Err()
}
