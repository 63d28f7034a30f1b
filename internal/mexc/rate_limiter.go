package mexc

import (
	"context"
	"sync"
	"time"
)

// Request weights, roughly matching MEXC's published endpoint weights.
const (
	weightTicker  = 1
	weightAccount = 10
	weightOrder   = 1
)

// RateLimiter tracks request weight over a rolling one-minute window.
// Market-data calls wait when the budget is spent; order placement only
// records its weight and is never blocked.
type RateLimiter struct {
	mu sync.Mutex

	maxWeight     int
	currentWeight int
	windowResetAt time.Time
}

// NewRateLimiter creates a limiter with the given per-minute weight budget.
func NewRateLimiter(maxWeight int) *RateLimiter {
	if maxWeight <= 0 {
		maxWeight = 1200
	}
	return &RateLimiter{
		maxWeight:     maxWeight,
		windowResetAt: time.Now().Add(time.Minute),
	}
}

func (rl *RateLimiter) rollWindow(now time.Time) {
	if now.After(rl.windowResetAt) {
		rl.currentWeight = 0
		rl.windowResetAt = now.Add(time.Minute)
	}
}

// Record adds weight without blocking.
func (rl *RateLimiter) Record(weight int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.rollWindow(time.Now())
	rl.currentWeight += weight
}

// Wait blocks until the weight fits in the current window or the context is
// cancelled.
func (rl *RateLimiter) Wait(ctx context.Context, weight int) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		rl.rollWindow(now)
		if rl.currentWeight+weight <= rl.maxWeight {
			rl.currentWeight += weight
			rl.mu.Unlock()
			return nil
		}
		waitFor := rl.windowResetAt.Sub(now)
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitFor):
		}
	}
}

// Usage returns the current window usage as a fraction of the budget.
func (rl *RateLimiter) Usage() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.rollWindow(time.Now())
	return float64(rl.currentWeight) / float64(rl.maxWeight)
}
