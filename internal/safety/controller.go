// Package safety provides the system-wide safety assessment consumed by the
// risk-check job and the emergency halt gate consulted by the execution
// core. The controller is an explicitly constructed service injected at
// startup; there is no package-level singleton.
package safety

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mexc-sniper-bot/internal/events"
)

// Controller is the process-wide execution gate. While halted, the execution
// core skips every scheduled target until Resume is called.
type Controller struct {
	logger zerolog.Logger
	bus    events.Emitter

	mu                  sync.RWMutex
	halted              bool
	haltReason          string
	haltedAt            time.Time
	consecutiveFailures int
}

// NewController creates a controller in the running (not halted) state.
func NewController(bus events.Emitter, logger zerolog.Logger) *Controller {
	return &Controller{
		logger: logger.With().Str("component", "safety").Logger(),
		bus:    bus,
	}
}

// Halt engages the emergency stop. Idempotent; the first reason wins until
// Resume.
func (c *Controller) Halt(reason string) {
	c.mu.Lock()
	if c.halted {
		c.mu.Unlock()
		return
	}
	c.halted = true
	c.haltReason = reason
	c.haltedAt = time.Now()
	c.mu.Unlock()

	c.logger.Warn().Str("reason", reason).Msg("Emergency halt engaged, scheduled executions suspended")
	if c.bus != nil {
		c.bus.Emit(events.EventEmergencyHalt, "", map[string]interface{}{"reason": reason})
	}
}

// Resume lifts the emergency stop.
func (c *Controller) Resume() {
	c.mu.Lock()
	wasHalted := c.halted
	c.halted = false
	c.haltReason = ""
	c.mu.Unlock()

	if wasHalted {
		c.logger.Info().Msg("Emergency halt lifted")
	}
}

// Halted reports whether executions are currently suspended.
func (c *Controller) Halted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.halted
}

// HaltReason returns the active halt reason, empty when running.
func (c *Controller) HaltReason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.haltReason
}

// RecordExecutionFailure bumps the consecutive failure counter the
// assessment uses as a kill signal.
func (c *Controller) RecordExecutionFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures++
}

// RecordExecutionSuccess resets the consecutive failure counter.
func (c *Controller) RecordExecutionSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures = 0
}

// ConsecutiveFailures returns the current failure streak.
func (c *Controller) ConsecutiveFailures() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.consecutiveFailures
}
