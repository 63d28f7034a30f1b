package mexc

import (
	"sync"
	"time"
)

// defaultPriceMaxAge bounds how stale a cached quote may be before callers
// fall back to REST. Monitor loops poll faster than REST limits allow; the
// websocket stream keeps this cache hot.
const defaultPriceMaxAge = 2 * time.Second

type cachedPrice struct {
	price     float64
	updatedAt time.Time
}

// PriceCache holds the latest streamed price per symbol.
type PriceCache struct {
	mu     sync.RWMutex
	maxAge time.Duration
	prices map[string]cachedPrice
}

// NewPriceCache creates a price cache with the default freshness window.
func NewPriceCache() *PriceCache {
	return &PriceCache{
		maxAge: defaultPriceMaxAge,
		prices: make(map[string]cachedPrice),
	}
}

// Set stores the latest price for a symbol.
func (pc *PriceCache) Set(symbol string, price float64) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.prices[symbol] = cachedPrice{price: price, updatedAt: time.Now()}
}

// Get returns the cached price if it is still fresh.
func (pc *PriceCache) Get(symbol string) (float64, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	entry, ok := pc.prices[symbol]
	if !ok || time.Since(entry.updatedAt) > pc.maxAge {
		return 0, false
	}
	return entry.price, true
}
