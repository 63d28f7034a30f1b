// Package executor is the execution core of the sniper engine. It consumes
// due snipe targets, sizes them against the live balance, enforces the
// balance guard, places entry orders and hands opened positions to the
// monitoring manager.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mexc-sniper-bot/internal/database"
	"mexc-sniper-bot/internal/events"
	"mexc-sniper-bot/internal/mexc"
	"mexc-sniper-bot/internal/safety"
	"mexc-sniper-bot/internal/sizing"
)

// Store is the persistence surface the execution core needs.
type Store interface {
	GetSnipeTarget(ctx context.Context, targetID int64) (*database.SnipeTarget, error)
	ListDueTargets(ctx context.Context, now time.Time) ([]*database.SnipeTarget, error)
	MarkTargetExecuting(ctx context.Context, targetID int64) (bool, error)
	UpdateTargetStatus(ctx context.Context, targetID int64, status string, errorMessage *string) error
	ReleaseTarget(ctx context.Context, targetID int64, errorMessage string) (int, error)
	CreatePosition(ctx context.Context, position *database.Position) error
	CreateExecutionRecord(ctx context.Context, record *database.ExecutionRecord) error
	LinkExecutionToPosition(ctx context.Context, recordID string, positionID int64) error
}

// PositionMonitor receives newly opened positions.
type PositionMonitor interface {
	Start(position *database.Position)
}

// Config holds execution configuration.
type Config struct {
	// QuoteAsset is the quote currency targets are funded in.
	QuoteAsset string `json:"quote_asset"`

	// BalanceBufferPercent is the safety margin the balance guard adds on
	// top of the computed size (5 means free >= size * 1.05).
	BalanceBufferPercent float64 `json:"balance_buffer_percent"`

	// MaxConcurrent bounds how many targets execute at once.
	MaxConcurrent int `json:"max_concurrent"`

	// MaxTargetRetries caps how many retryable failures a target survives
	// before it fails permanently.
	MaxTargetRetries int `json:"max_target_retries"`

	// DefaultStopLossPercent and DefaultTakeProfitPercent apply when a
	// target does not carry its own exit percentages.
	DefaultStopLossPercent   float64 `json:"default_stop_loss_percent"`
	DefaultTakeProfitPercent float64 `json:"default_take_profit_percent"`

	// Sizing is the dynamic position sizing configuration.
	Sizing sizing.Config `json:"sizing"`
}

// DefaultConfig returns default execution configuration.
func DefaultConfig() Config {
	return Config{
		QuoteAsset:               "USDT",
		BalanceBufferPercent:     5,
		MaxConcurrent:            5,
		MaxTargetRetries:         3,
		DefaultStopLossPercent:   10,
		DefaultTakeProfitPercent: 20,
		Sizing:                   sizing.DefaultConfig(),
	}
}

// Executor runs due snipe targets.
type Executor struct {
	client  mexc.ExchangeClient
	store   Store
	monitor PositionMonitor
	safety  *safety.Controller
	bus     events.Emitter
	logger  zerolog.Logger
	config  Config
}

// NewExecutor creates the execution core.
func NewExecutor(client mexc.ExchangeClient, store Store, mon PositionMonitor, safetyCtl *safety.Controller, bus events.Emitter, config Config, logger zerolog.Logger) *Executor {
	if config.QuoteAsset == "" {
		config = DefaultConfig()
	}
	return &Executor{
		client:  client,
		store:   store,
		monitor: mon,
		safety:  safetyCtl,
		bus:     bus,
		logger:  logger.With().Str("component", "executor").Logger(),
		config:  config,
	}
}

// BatchResult summarizes one processDueTargets pass.
type BatchResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ProcessDueTargets loads every ready target whose execution time has
// arrived and executes them, most urgent first. Distinct targets run
// concurrently; per-target uniqueness rests on the ready->executing
// compare-and-set alone.
func (e *Executor) ProcessDueTargets(ctx context.Context) (*BatchResult, error) {
	result := &BatchResult{}

	if e.safety != nil && e.safety.Halted() {
		e.logger.Warn().Str("reason", e.safety.HaltReason()).Msg("Safety halt engaged, skipping due targets")
		return result, nil
	}

	targets, err := e.store.ListDueTargets(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to load due targets: %w", err)
	}
	if len(targets) == 0 {
		return result, nil
	}

	e.logger.Info().Int("count", len(targets)).Msg("Processing due snipe targets")

	semaphore := make(chan struct{}, e.config.MaxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, target := range targets {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(t *database.SnipeTarget) {
			defer wg.Done()
			defer func() { <-semaphore }()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error().Interface("panic", r).Int64("target_id", t.ID).Msg("Panic recovered in target execution")
				}
			}()

			res := e.ExecuteTarget(ctx, t.ID, t.UserID)

			mu.Lock()
			result.Processed++
			switch {
			case res.Skipped:
				result.Skipped++
			case res.Success:
				result.Succeeded++
			default:
				result.Failed++
			}
			mu.Unlock()
		}(target)
	}
	wg.Wait()

	return result, nil
}

// ExecutionResult is the structured outcome of one target execution.
type ExecutionResult struct {
	TargetID      int64   `json:"target_id"`
	CorrelationID string  `json:"correlation_id"`
	Success       bool    `json:"success"`
	Skipped       bool    `json:"skipped"`
	Retryable     bool    `json:"retryable"`
	Reason        string  `json:"reason,omitempty"`
	PositionID    int64   `json:"position_id,omitempty"`
	ExecutedQty   float64 `json:"executed_qty,omitempty"`
	ExecutedPrice float64 `json:"executed_price,omitempty"`
	LatencyMs     int64   `json:"latency_ms,omitempty"`
}

func skipped(targetID int64, reason string) *ExecutionResult {
	return &ExecutionResult{TargetID: targetID, Skipped: true, Reason: reason}
}

// ExecuteTarget runs the full execution pipeline for one target. Expected
// failures come back inside the result; the method never panics across its
// boundary.
func (e *Executor) ExecuteTarget(ctx context.Context, targetID int64, userID string) *ExecutionResult {
	corrID := uuid.New().String()
	logger := e.logger.With().Int64("target_id", targetID).Str("correlation_id", corrID).Logger()

	target, err := e.store.GetSnipeTarget(ctx, targetID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load target")
		return &ExecutionResult{TargetID: targetID, CorrelationID: corrID, Retryable: true, Reason: err.Error()}
	}

	// Idempotency guard: anything past ready is already owned or terminal.
	if target.Status != database.TargetStatusPending && target.Status != database.TargetStatusReady {
		return skipped(targetID, fmt.Sprintf("target in status %s", target.Status))
	}

	// The compare-and-set is the only execution lock. Losing it means
	// another worker got here first; that is a no-op, not an error.
	claimed, err := e.store.MarkTargetExecuting(ctx, targetID)
	if err != nil {
		logger.Error().Err(err).Msg("Compare-and-set failed")
		return &ExecutionResult{TargetID: targetID, CorrelationID: corrID, Retryable: true, Reason: err.Error()}
	}
	if !claimed {
		return skipped(targetID, "claimed by another worker")
	}

	e.emit(events.EventExecutionStarted, corrID, map[string]interface{}{
		"target_id": targetID,
		"symbol":    target.Symbol,
		"user_id":   userID,
	})

	size, balanceKnown, freeBalance := e.decideSize(ctx, target, logger)

	// Balance guard: only enforceable when the balance read succeeded.
	// A guard failure is a business rejection, never requeued.
	if balanceKnown {
		required := size * (1 + e.config.BalanceBufferPercent/100)
		if size <= 0 || freeBalance < required {
			reason := fmt.Sprintf("insufficient balance: free %.4f %s < required %.4f", freeBalance, e.config.QuoteAsset, required)
			logger.Warn().Float64("free", freeBalance).Float64("required", required).Msg("Balance guard blocked execution")

			e.failTarget(ctx, target, corrID, reason)
			e.emit(events.EventBalanceCheckBlocked, corrID, map[string]interface{}{
				"target_id": targetID,
				"symbol":    target.Symbol,
				"free":      freeBalance,
				"required":  required,
			})
			return &ExecutionResult{TargetID: targetID, CorrelationID: corrID, Reason: reason}
		}
	}

	return e.placeEntryOrder(ctx, target, corrID, size, logger)
}

// decideSize computes the trade size, preferring the dynamic sizer over the
// target's static amount. When the balance read fails, the static amount is
// the fallback and the guard is skipped; the exchange remains the final
// arbiter of affordability.
func (e *Executor) decideSize(ctx context.Context, target *database.SnipeTarget, logger zerolog.Logger) (size float64, balanceKnown bool, freeBalance float64) {
	balances, err := e.client.GetAccountBalance(ctx, e.config.QuoteAsset)
	if err != nil || len(balances) == 0 {
		logger.Warn().Err(err).Msg("Balance unavailable, falling back to static position size")
		return target.PositionSizeUsdt, false, 0
	}

	b := balances[0]
	result := sizing.Calculate(sizing.BalanceInput{
		TotalUsdtValue: b.Free + b.Locked,
		FreeUsdt:       b.Free,
	}, e.config.Sizing)

	logger.Info().Float64("amount", result.Amount).Str("reasoning", result.Reasoning).Msg("Dynamic position size computed")
	return result.Amount, true, b.Free
}

// placeEntryOrder submits the market order and handles both outcomes.
func (e *Executor) placeEntryOrder(ctx context.Context, target *database.SnipeTarget, corrID string, size float64, logger zerolog.Logger) *ExecutionResult {
	// Best-effort reference price for slippage accounting.
	refPrice, _ := e.client.GetCurrentPrice(ctx, target.Symbol)

	requestedAt := time.Now()
	resp, err := e.client.PlaceOrder(ctx, mexc.OrderRequest{
		Symbol:        target.Symbol,
		Side:          mexc.SideBuy,
		Type:          mexc.OrderTypeMarket,
		QuoteOrderQty: size,
	})
	latencyMs := time.Since(requestedAt).Milliseconds()

	if err != nil {
		return e.handleOrderFailure(ctx, target, corrID, size, requestedAt, latencyMs, err, logger)
	}

	e.emit(events.EventOrderPlaced, corrID, map[string]interface{}{
		"target_id":  target.ID,
		"symbol":     target.Symbol,
		"order_id":   resp.OrderID,
		"quote_qty":  size,
		"latency_ms": latencyMs,
	})

	return e.handleFill(ctx, target, corrID, size, refPrice, requestedAt, latencyMs, resp, logger)
}

func (e *Executor) emit(eventType events.EventType, corrID string, payload map[string]interface{}) {
	if e.bus != nil {
		e.bus.Emit(eventType, corrID, payload)
	}
}

func (e *Executor) failTarget(ctx context.Context, target *database.SnipeTarget, corrID, reason string) {
	if err := e.store.UpdateTargetStatus(ctx, target.ID, database.TargetStatusFailed, &reason); err != nil {
		e.logger.Error().Err(err).Int64("target_id", target.ID).Msg("Failed to mark target failed")
	}
	if e.safety != nil {
		e.safety.RecordExecutionFailure()
	}
}
