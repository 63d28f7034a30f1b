// Package monitor watches open positions for stop-loss and take-profit
// crossings. Each position gets one exit supervisor owning a single
// cancellation context for both threshold loops, so a trigger on either side
// structurally tears down the other: only one exit can ever dispatch per
// position.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mexc-sniper-bot/internal/database"
	"mexc-sniper-bot/internal/events"
	"mexc-sniper-bot/internal/mexc"
)

// Threshold names an exit condition.
type Threshold string

const (
	ThresholdStopLoss   Threshold = "stop_loss"
	ThresholdTakeProfit Threshold = "take_profit"
)

// Store is the persistence surface the monitor needs.
type Store interface {
	UpdatePositionPrice(ctx context.Context, positionID int64, currentPrice float64) error
	ClosePosition(ctx context.Context, positionID int64, exitPrice float64, reason string) error
}

// Config holds monitoring configuration.
type Config struct {
	// CheckInterval is the poll cadence per threshold loop.
	CheckInterval time.Duration `json:"check_interval"`
}

// DefaultConfig returns default monitoring configuration.
func DefaultConfig() Config {
	return Config{CheckInterval: 2 * time.Second}
}

// Manager runs exit supervisors for open positions.
type Manager struct {
	client mexc.ExchangeClient
	store  Store
	cache  *database.PositionStateCache
	bus    events.Emitter
	logger zerolog.Logger
	config Config

	mu          sync.Mutex
	supervisors map[int64]*exitSupervisor
}

// NewManager creates a position monitoring manager. The state cache may be
// nil when live-state mirroring is not wanted.
func NewManager(client mexc.ExchangeClient, store Store, cache *database.PositionStateCache, bus events.Emitter, config Config, logger zerolog.Logger) *Manager {
	if config.CheckInterval <= 0 {
		config = DefaultConfig()
	}
	return &Manager{
		client:      client,
		store:       store,
		cache:       cache,
		bus:         bus,
		logger:      logger.With().Str("component", "monitor").Logger(),
		config:      config,
		supervisors: make(map[int64]*exitSupervisor),
	}
}

// Start sets up monitoring for a position. A loop is spawned per configured
// threshold; a position with neither threshold set is ignored.
func (m *Manager) Start(position *database.Position) {
	if position.StopLossPrice <= 0 && position.TakeProfitPrice <= 0 {
		m.logger.Debug().Int64("position_id", position.ID).Msg("No exit thresholds configured, not monitoring")
		return
	}

	m.mu.Lock()
	existing := m.supervisors[position.ID]
	delete(m.supervisors, position.ID)
	m.mu.Unlock()

	// Stop outside the map lock: an exiting supervisor removes itself and
	// would deadlock against us otherwise.
	if existing != nil {
		existing.stop()
	}

	sup := newExitSupervisor(m, position)
	m.mu.Lock()
	m.supervisors[position.ID] = sup
	m.mu.Unlock()
	sup.start()

	m.logger.Info().
		Int64("position_id", position.ID).
		Str("symbol", position.Symbol).
		Float64("stop_loss", position.StopLossPrice).
		Float64("take_profit", position.TakeProfitPrice).
		Msg("Position monitoring started")
}

// UpdateStopLossPercent recomputes the stop-loss trigger price from the
// entry price and side and restarts monitoring. A percent <= 0 clears the
// stop-loss threshold.
func (m *Manager) UpdateStopLossPercent(positionID int64, newPercent float64) {
	m.updateThreshold(positionID, ThresholdStopLoss, newPercent)
}

// UpdateTakeProfitPercent recomputes the take-profit trigger price from the
// entry price and side and restarts monitoring. A percent <= 0 clears the
// take-profit threshold.
func (m *Manager) UpdateTakeProfitPercent(positionID int64, newPercent float64) {
	m.updateThreshold(positionID, ThresholdTakeProfit, newPercent)
}

func (m *Manager) updateThreshold(positionID int64, threshold Threshold, newPercent float64) {
	m.mu.Lock()
	sup, ok := m.supervisors[positionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.supervisors, positionID)
	m.mu.Unlock()

	// Stop outside the map lock: stop waits for loops that may be mid-poll.
	sup.stop()

	// A loop may have claimed the exit while we were stopping. The position
	// is closed then; re-arming would poll a dead position.
	if sup.claimed.Load() {
		m.logger.Info().
			Int64("position_id", positionID).
			Str("threshold", string(threshold)).
			Msg("Exit already dispatched, threshold update dropped")
		return
	}

	position := sup.snapshot()
	switch threshold {
	case ThresholdStopLoss:
		position.StopLossPercent = newPercent
		if newPercent > 0 {
			position.StopLossPrice = StopLossPrice(position.EntryPrice, position.Side, newPercent)
		} else {
			position.StopLossPrice = 0
		}
	case ThresholdTakeProfit:
		position.TakeProfitPercent = newPercent
		if newPercent > 0 {
			position.TakeProfitPrice = TakeProfitPrice(position.EntryPrice, position.Side, newPercent)
		} else {
			position.TakeProfitPrice = 0
		}
	}

	m.logger.Info().
		Int64("position_id", positionID).
		Str("threshold", string(threshold)).
		Float64("percent", newPercent).
		Msg("Exit threshold updated, restarting monitor")

	m.Start(&position)
}

// StopPosition cancels monitoring for one position without closing it.
func (m *Manager) StopPosition(positionID int64) {
	m.mu.Lock()
	sup, ok := m.supervisors[positionID]
	delete(m.supervisors, positionID)
	m.mu.Unlock()

	if ok {
		sup.stop()
	}
}

// CancelAll synchronously cancels every active supervisor. When it returns,
// no trigger callback will fire again.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	sups := make([]*exitSupervisor, 0, len(m.supervisors))
	for _, sup := range m.supervisors {
		sups = append(sups, sup)
	}
	m.supervisors = make(map[int64]*exitSupervisor)
	m.mu.Unlock()

	for _, sup := range sups {
		sup.stop()
	}
}

// ActiveCount returns the number of positions under monitoring.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.supervisors)
}

// remove drops a supervisor after its position exited.
func (m *Manager) remove(positionID int64) {
	m.mu.Lock()
	delete(m.supervisors, positionID)
	m.mu.Unlock()
}

// StopLossPrice derives the stop-loss trigger price from entry and side.
func StopLossPrice(entryPrice float64, side string, percent float64) float64 {
	if side == mexc.SideSell {
		return entryPrice * (1 + percent/100)
	}
	return entryPrice * (1 - percent/100)
}

// TakeProfitPrice derives the take-profit trigger price from entry and side.
func TakeProfitPrice(entryPrice float64, side string, percent float64) float64 {
	if side == mexc.SideSell {
		return entryPrice * (1 - percent/100)
	}
	return entryPrice * (1 + percent/100)
}
