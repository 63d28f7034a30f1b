package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mexc-sniper-bot/internal/database"
	"mexc-sniper-bot/internal/events"
	"mexc-sniper-bot/internal/mexc"
)

// exitSupervisor owns the monitoring lifecycle of one position. Both
// threshold loops share ctx, so cancelling it silences the whole position at
// once; claimed guarantees at most one exit dispatch.
type exitSupervisor struct {
	manager *Manager
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	claimed atomic.Bool
	corrID  string

	mu       sync.Mutex
	position database.Position
}

func newExitSupervisor(m *Manager, position *database.Position) *exitSupervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &exitSupervisor{
		manager:  m,
		ctx:      ctx,
		cancel:   cancel,
		corrID:   uuid.New().String(),
		position: *position,
	}
}

func (s *exitSupervisor) start() {
	pos := s.snapshot()
	if pos.StopLossPrice > 0 {
		s.wg.Add(1)
		go s.pollLoop(ThresholdStopLoss)
	}
	if pos.TakeProfitPrice > 0 {
		s.wg.Add(1)
		go s.pollLoop(ThresholdTakeProfit)
	}
}

// stop cancels both loops and blocks until they have exited. After stop
// returns, no callback from this supervisor can fire.
func (s *exitSupervisor) stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *exitSupervisor) snapshot() database.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *exitSupervisor) setCurrentPrice(price float64) {
	s.mu.Lock()
	s.position.CurrentPrice = price
	s.mu.Unlock()
}

// pollLoop is the body of one threshold monitor. Price fetch failures are
// absorbed: the loop sleeps one interval and tries again, so transient feed
// gaps never kill the monitor.
func (s *exitSupervisor) pollLoop(threshold Threshold) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.manager.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		pos := s.snapshot()
		price, err := s.manager.client.GetCurrentPrice(s.ctx, pos.Symbol)
		if err != nil {
			if s.ctx.Err() == nil {
				s.manager.logger.Debug().Err(err).
					Int64("position_id", pos.ID).
					Str("threshold", string(threshold)).
					Msg("Price fetch failed, monitor stays alive")
			}
			continue
		}

		s.setCurrentPrice(price)
		s.recordPrice(pos, price)

		if !triggered(threshold, pos, price) {
			continue
		}

		// First threshold to cross claims the exit; the shared cancel stops
		// the sibling loop before the exit order goes out.
		if !s.claimed.CompareAndSwap(false, true) {
			return
		}
		s.cancel()
		s.dispatchExit(threshold, price)
		return
	}
}

// triggered evaluates the exit predicate for one threshold.
func triggered(threshold Threshold, pos database.Position, price float64) bool {
	switch threshold {
	case ThresholdStopLoss:
		if pos.Side == mexc.SideSell {
			return price >= pos.StopLossPrice
		}
		return price <= pos.StopLossPrice
	case ThresholdTakeProfit:
		if pos.Side == mexc.SideSell {
			return price <= pos.TakeProfitPrice
		}
		return price >= pos.TakeProfitPrice
	}
	return false
}

// recordPrice mirrors the latest observed price to persistence and the live
// state cache. Failures here are logged only; they never affect monitoring.
func (s *exitSupervisor) recordPrice(pos database.Position, price float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if s.manager.store != nil {
		if err := s.manager.store.UpdatePositionPrice(ctx, pos.ID, price); err != nil {
			s.manager.logger.Debug().Err(err).Int64("position_id", pos.ID).Msg("Failed to persist current price")
		}
	}
	if s.manager.cache != nil {
		_ = s.manager.cache.Save(ctx, &database.PositionState{
			PositionID:      pos.ID,
			UserID:          pos.UserID,
			Symbol:          pos.Symbol,
			Side:            pos.Side,
			EntryPrice:      pos.EntryPrice,
			CurrentPrice:    price,
			Quantity:        pos.Quantity,
			StopLossPrice:   pos.StopLossPrice,
			TakeProfitPrice: pos.TakeProfitPrice,
		})
	}
}

// dispatchExit places the offsetting order and closes the position. Teardown
// is unconditional: even when the exit handler errors, both loops are
// already cancelled and the supervisor is removed, so a dead position is
// never polled again.
func (s *exitSupervisor) dispatchExit(threshold Threshold, triggerPrice float64) {
	defer s.manager.remove(s.position.ID)

	pos := s.snapshot()
	logger := s.manager.logger.With().
		Int64("position_id", pos.ID).
		Str("symbol", pos.Symbol).
		Str("threshold", string(threshold)).
		Logger()

	eventType := events.EventStopLossTriggered
	if threshold == ThresholdTakeProfit {
		eventType = events.EventTakeProfitTriggered
	}
	if s.manager.bus != nil {
		s.manager.bus.Emit(eventType, s.corrID, map[string]interface{}{
			"position_id":   pos.ID,
			"symbol":        pos.Symbol,
			"side":          pos.Side,
			"trigger_price": triggerPrice,
			"entry_price":   pos.EntryPrice,
		})
	}

	logger.Info().Float64("trigger_price", triggerPrice).Msg("Exit threshold crossed, closing position")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	exitSide := mexc.SideSell
	if pos.Side == mexc.SideSell {
		exitSide = mexc.SideBuy
	}

	resp, err := s.manager.client.PlaceOrder(ctx, mexc.OrderRequest{
		Symbol:   pos.Symbol,
		Side:     exitSide,
		Type:     mexc.OrderTypeMarket,
		Quantity: pos.Quantity,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Exit order failed; position closed in engine, manual intervention may be needed")
	}

	exitPrice := triggerPrice
	if resp != nil && resp.AvgFillPrice() > 0 {
		exitPrice = resp.AvgFillPrice()
	}

	if s.manager.store != nil {
		if err := s.manager.store.ClosePosition(ctx, pos.ID, exitPrice, string(threshold)); err != nil {
			logger.Error().Err(err).Msg("Failed to persist position close")
		}
	}
	if s.manager.cache != nil {
		s.manager.cache.Delete(ctx, pos.UserID, pos.Symbol)
	}

	if s.manager.bus != nil {
		s.manager.bus.Emit(events.EventPositionClosed, s.corrID, map[string]interface{}{
			"position_id": pos.ID,
			"symbol":      pos.Symbol,
			"exit_price":  exitPrice,
			"exit_reason": string(threshold),
			"pnl":         pnl(pos, exitPrice),
		})
	}
}

func pnl(pos database.Position, exitPrice float64) float64 {
	if pos.Side == mexc.SideSell {
		return (pos.EntryPrice - exitPrice) * pos.Quantity
	}
	return (exitPrice - pos.EntryPrice) * pos.Quantity
}
