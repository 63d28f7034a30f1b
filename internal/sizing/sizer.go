// Package sizing computes risk-bounded trade sizes from a live balance
// snapshot. The calculation is pure: same inputs, same output, no I/O.
package sizing

import (
	"fmt"
	"math"
)

// Config holds the risk constraints applied to every dynamically sized trade.
type Config struct {
	PerTradeFraction       float64 // fraction of total account value per trade
	MaxUtilizationFraction float64 // fraction of free quote balance per trade
	MinPositionSize        float64 // floor in quote currency (USDT)
	MaxPositionSize        float64 // ceiling in quote currency (USDT)
}

// DefaultConfig returns conservative sizing defaults.
func DefaultConfig() Config {
	return Config{
		PerTradeFraction:       0.02,
		MaxUtilizationFraction: 0.10,
		MinPositionSize:        1.0,
		MaxPositionSize:        1000.0,
	}
}

// BalanceInput is the balance snapshot a size decision is based on. Callers
// fetch it fresh per decision; it is never cached across trades.
type BalanceInput struct {
	TotalUsdtValue float64
	FreeUsdt       float64
}

// Result is a computed trade size with the breakdown that produced it.
type Result struct {
	Amount    float64
	Reasoning string
}

// Calculate returns the trade size in quote currency:
//
//	amount = clamp(min(max, total*perTradeFraction, free*maxUtilizationFraction), min, free)
//
// The result never drops below MinPositionSize and never exceeds the free
// balance. Calculate does not error; when no balance is available the caller
// falls back to its configured static amount instead of calling here.
func Calculate(balance BalanceInput, cfg Config) Result {
	totalBased := balance.TotalUsdtValue * cfg.PerTradeFraction
	freeBased := balance.FreeUsdt * cfg.MaxUtilizationFraction

	amount := math.Min(cfg.MaxPositionSize, math.Min(totalBased, freeBased))

	clampedToMin := false
	if amount < cfg.MinPositionSize {
		amount = cfg.MinPositionSize
		clampedToMin = true
	}

	clampedToFree := false
	if amount > balance.FreeUsdt {
		amount = balance.FreeUsdt
		clampedToFree = true
	}

	reasoning := fmt.Sprintf(
		"total=%.4f free=%.4f totalBased=%.4f (x%.4f) freeBased=%.4f (x%.4f) min=%.2f max=%.2f clampedToMin=%v clampedToFree=%v -> amount=%.4f",
		balance.TotalUsdtValue, balance.FreeUsdt,
		totalBased, cfg.PerTradeFraction,
		freeBased, cfg.MaxUtilizationFraction,
		cfg.MinPositionSize, cfg.MaxPositionSize,
		clampedToMin, clampedToFree, amount,
	)

	return Result{Amount: amount, Reasoning: reasoning}
}
