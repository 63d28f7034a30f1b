package database

import (
	"encoding/json"
	"time"
)

// Job statuses. Transitions are monotonic except pending<->processing, which
// reverses only through an explicit failure-and-reschedule.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is a persisted unit of scheduled work.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	RunAt       time.Time       `json:"run_at"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Status      string          `json:"status"`
	LastError   *string         `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Snipe target statuses. A target is owned by the execution core from ready
// onward and is terminal once executed, failed or cancelled.
const (
	TargetStatusPending   = "pending"
	TargetStatusReady     = "ready"
	TargetStatusExecuting = "executing"
	TargetStatusExecuted  = "executed"
	TargetStatusFailed    = "failed"
	TargetStatusCancelled = "cancelled"
)

// SnipeTarget is a queued, time-scheduled trade intention awaiting execution.
// Targets are created by the upstream listing producer; the engine only reads
// and transitions them.
type SnipeTarget struct {
	ID                  int64     `json:"id"`
	UserID              string    `json:"user_id"`
	Symbol              string    `json:"symbol"`
	VcoinID             string    `json:"vcoin_id"`
	Status              string    `json:"status"`
	PositionSizeUsdt    float64   `json:"position_size_usdt"`
	Priority            int       `json:"priority"` // 1 = most urgent
	TargetExecutionTime time.Time `json:"target_execution_time"`
	ConfidenceScore     float64   `json:"confidence_score"`
	StopLossPercent     float64   `json:"stop_loss_percent"`
	TakeProfitPercent   float64   `json:"take_profit_percent"`
	ErrorCount          int       `json:"error_count"`
	ErrorMessage        *string   `json:"error_message,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Position statuses.
const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

// Position is an open, filled trade being monitored for exit conditions.
type Position struct {
	ID                int64      `json:"id"`
	UserID            string     `json:"user_id"`
	Symbol            string     `json:"symbol"`
	Side              string     `json:"side"` // BUY or SELL
	EntryPrice        float64    `json:"entry_price"`
	CurrentPrice      float64    `json:"current_price"`
	Quantity          float64    `json:"quantity"`
	StopLossPrice     float64    `json:"stop_loss_price"`
	TakeProfitPrice   float64    `json:"take_profit_price"`
	StopLossPercent   float64    `json:"stop_loss_percent"`
	TakeProfitPercent float64    `json:"take_profit_percent"`
	Status            string     `json:"status"`
	OpenedAt          time.Time  `json:"opened_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
	ExitPrice         *float64   `json:"exit_price,omitempty"`
	ExitReason        *string    `json:"exit_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Execution record statuses.
const (
	ExecutionStatusSuccess = "success"
	ExecutionStatusPartial = "partial"
	ExecutionStatusFailed  = "failed"
)

// ExecutionRecord is the append-only audit row for every attempted order.
type ExecutionRecord struct {
	ID              string     `json:"id"`
	TargetID        int64      `json:"target_id"`
	PositionID      *int64     `json:"position_id,omitempty"`
	UserID          string     `json:"user_id"`
	Symbol          string     `json:"symbol"`
	OrderSide       string     `json:"order_side"`
	OrderType       string     `json:"order_type"`
	RequestedQty    float64    `json:"requested_qty"`
	ExecutedQty     float64    `json:"executed_qty"`
	ExecutedPrice   float64    `json:"executed_price"`
	TotalCost       float64    `json:"total_cost"`
	Fees            float64    `json:"fees"`
	ExchangeOrderID string     `json:"exchange_order_id"`
	ExchangeStatus  string     `json:"exchange_status"`
	LatencyMs       int64      `json:"latency_ms"`
	SlippagePercent float64    `json:"slippage_percent"`
	Status          string     `json:"status"`
	ErrorCode       *string    `json:"error_code,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	RequestedAt     time.Time  `json:"requested_at"`
	ExecutedAt      *time.Time `json:"executed_at,omitempty"`
}

// BalanceSnapshot is a fresh, point-in-time read of one asset's balance.
// It is never cached across trading decisions.
type BalanceSnapshot struct {
	Asset     string    `json:"asset"`
	Free      float64   `json:"free"`
	Locked    float64   `json:"locked"`
	Total     float64   `json:"total"`
	UsdtValue float64   `json:"usdt_value"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditEventRow is a persisted audit event.
type AuditEventRow struct {
	ID            int64           `json:"id"`
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}
