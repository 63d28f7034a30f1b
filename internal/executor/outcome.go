package executor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mexc-sniper-bot/internal/database"
	"mexc-sniper-bot/internal/events"
	"mexc-sniper-bot/internal/mexc"
	"mexc-sniper-bot/internal/monitor"
	"mexc-sniper-bot/internal/retry"
)

// handleFill persists the execution record and the opened position, then
// registers the position with the monitoring manager.
func (e *Executor) handleFill(ctx context.Context, target *database.SnipeTarget, corrID string, requestedQuote, refPrice float64, requestedAt time.Time, latencyMs int64, resp *mexc.OrderResponse, logger zerolog.Logger) *ExecutionResult {
	fillPrice := resp.AvgFillPrice()
	if fillPrice <= 0 {
		fillPrice = refPrice
	}

	slippagePercent := 0.0
	if refPrice > 0 && fillPrice > 0 {
		slippagePercent = (fillPrice - refPrice) / refPrice * 100
	}

	status := database.ExecutionStatusSuccess
	if resp.Status != "FILLED" {
		status = database.ExecutionStatusPartial
	}

	executedAt := time.Now()
	record := &database.ExecutionRecord{
		TargetID:        target.ID,
		UserID:          target.UserID,
		Symbol:          target.Symbol,
		OrderSide:       mexc.SideBuy,
		OrderType:       mexc.OrderTypeMarket,
		RequestedQty:    requestedQuote,
		ExecutedQty:     resp.ExecutedQty,
		ExecutedPrice:   fillPrice,
		TotalCost:       resp.CummulativeQuoteQty,
		ExchangeOrderID: resp.OrderID,
		ExchangeStatus:  resp.Status,
		SlippagePercent: slippagePercent,
		LatencyMs:       latencyMs,
		Status:          status,
		RequestedAt:     requestedAt,
		ExecutedAt:      &executedAt,
	}
	if err := e.store.CreateExecutionRecord(ctx, record); err != nil {
		logger.Error().Err(err).Msg("Failed to persist execution record")
	}

	if err := e.store.UpdateTargetStatus(ctx, target.ID, database.TargetStatusExecuted, nil); err != nil {
		logger.Error().Err(err).Msg("Failed to mark target executed")
	}

	e.emit(events.EventOrderFilled, corrID, map[string]interface{}{
		"target_id":      target.ID,
		"symbol":         target.Symbol,
		"order_id":       resp.OrderID,
		"executed_qty":   resp.ExecutedQty,
		"executed_price": fillPrice,
		"quote_spent":    resp.CummulativeQuoteQty,
		"slippage_pct":   slippagePercent,
		"status":         string(status),
	})

	stopLossPercent := target.StopLossPercent
	if stopLossPercent <= 0 {
		stopLossPercent = e.config.DefaultStopLossPercent
	}
	takeProfitPercent := target.TakeProfitPercent
	if takeProfitPercent <= 0 {
		takeProfitPercent = e.config.DefaultTakeProfitPercent
	}

	position := &database.Position{
		UserID:            target.UserID,
		Symbol:            target.Symbol,
		Side:              mexc.SideBuy,
		EntryPrice:        fillPrice,
		Quantity:          resp.ExecutedQty,
		CurrentPrice:      fillPrice,
		StopLossPercent:   stopLossPercent,
		TakeProfitPercent: takeProfitPercent,
		StopLossPrice:     monitor.StopLossPrice(fillPrice, mexc.SideBuy, stopLossPercent),
		TakeProfitPrice:   monitor.TakeProfitPrice(fillPrice, mexc.SideBuy, takeProfitPercent),
		Status:            database.PositionStatusOpen,
		OpenedAt:          time.Now(),
	}
	if err := e.store.CreatePosition(ctx, position); err != nil {
		logger.Error().Err(err).Msg("Failed to persist position, exit monitoring not armed")
	} else {
		if err := e.store.LinkExecutionToPosition(ctx, record.ID, position.ID); err != nil {
			logger.Error().Err(err).Msg("Failed to link execution record to position")
		}
		if e.monitor != nil {
			e.monitor.Start(position)
		}
		e.emit(events.EventPositionOpened, corrID, map[string]interface{}{
			"position_id":       position.ID,
			"symbol":            position.Symbol,
			"entry_price":       position.EntryPrice,
			"quantity":          position.Quantity,
			"stop_loss_price":   position.StopLossPrice,
			"take_profit_price": position.TakeProfitPrice,
		})
	}

	if e.safety != nil {
		e.safety.RecordExecutionSuccess()
	}

	logger.Info().
		Str("order_id", resp.OrderID).
		Float64("executed_price", fillPrice).
		Float64("executed_qty", resp.ExecutedQty).
		Int64("latency_ms", latencyMs).
		Msg("Target executed")

	return &ExecutionResult{
		TargetID:      target.ID,
		CorrelationID: corrID,
		Success:       true,
		PositionID:    position.ID,
		ExecutedQty:   resp.ExecutedQty,
		ExecutedPrice: fillPrice,
		LatencyMs:     latencyMs,
	}
}

// handleOrderFailure classifies the error and either requeues the target
// with its error count bumped or fails it permanently.
func (e *Executor) handleOrderFailure(ctx context.Context, target *database.SnipeTarget, corrID string, requestedQuote float64, requestedAt time.Time, latencyMs int64, orderErr error, logger zerolog.Logger) *ExecutionResult {
	message := orderErr.Error()

	record := &database.ExecutionRecord{
		TargetID:     target.ID,
		UserID:       target.UserID,
		Symbol:       target.Symbol,
		OrderSide:    mexc.SideBuy,
		OrderType:    mexc.OrderTypeMarket,
		RequestedQty: requestedQuote,
		LatencyMs:    latencyMs,
		Status:       database.ExecutionStatusFailed,
		ErrorMessage: &message,
		RequestedAt:  requestedAt,
	}
	if err := e.store.CreateExecutionRecord(ctx, record); err != nil {
		logger.Error().Err(err).Msg("Failed to persist failed execution record")
	}

	retryable := retry.Classify(orderErr) == retry.Retryable

	if retryable {
		errorCount, err := e.store.ReleaseTarget(ctx, target.ID, message)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to release target for retry")
		} else if errorCount >= e.config.MaxTargetRetries {
			logger.Warn().Int("error_count", errorCount).Msg("Retry budget exhausted, failing target")
			retryable = false
			e.failTarget(ctx, target, corrID, message)
		} else {
			logger.Warn().Err(orderErr).Int("error_count", errorCount).Msg("Order failed, target released for retry")
		}
	} else {
		logger.Error().Err(orderErr).Msg("Order failed with non-retryable error")
		e.failTarget(ctx, target, corrID, message)
	}

	e.emit(events.EventExecutionError, corrID, map[string]interface{}{
		"target_id": target.ID,
		"symbol":    target.Symbol,
		"error":     message,
		"retryable": retryable,
	})

	if e.safety != nil {
		e.safety.RecordExecutionFailure()
	}

	return &ExecutionResult{
		TargetID:      target.ID,
		CorrelationID: corrID,
		Retryable:     retryable,
		Reason:        message,
		LatencyMs:     latencyMs,
	}
}
