// Redis-backed live position state. The monitors mirror their latest view of
// each open position here so state survives restarts and can be inspected
// from outside the process. When Redis is unavailable the cache falls back to
// an in-memory map so monitoring continues without interruption.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// positionKeyPrefix is the prefix for individual position state keys.
	// Format: sniper:position:{userID}:{symbol}
	positionKeyPrefix = "sniper:position"

	// positionStateTTL keeps closed-but-unexpired keys from accumulating.
	// Positions typically close within hours; 7 days is a safety margin.
	positionStateTTL = 7 * 24 * time.Hour
)

// PositionState is the live monitoring view of one open position.
type PositionState struct {
	PositionID      int64     `json:"position_id"`
	UserID          string    `json:"user_id"`
	Symbol          string    `json:"symbol"`
	Side            string    `json:"side"`
	EntryPrice      float64   `json:"entry_price"`
	CurrentPrice    float64   `json:"current_price"`
	Quantity        float64   `json:"quantity"`
	StopLossPrice   float64   `json:"stop_loss_price"`
	TakeProfitPrice float64   `json:"take_profit_price"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PositionStateCache stores live position state in Redis with an in-memory
// fallback.
type PositionStateCache struct {
	client *redis.Client
	logger zerolog.Logger

	mu       sync.RWMutex
	fallback map[string]*PositionState
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// NewPositionStateCache connects to Redis. A nil client (empty addr) or an
// unreachable server degrades to memory-only operation rather than failing.
func NewPositionStateCache(cfg RedisConfig, logger zerolog.Logger) *PositionStateCache {
	cache := &PositionStateCache{
		logger:   logger.With().Str("component", "position_state_cache").Logger(),
		fallback: make(map[string]*PositionState),
	}

	if cfg.Addr == "" {
		cache.logger.Warn().Msg("Redis not configured, using in-memory position state only")
		return cache
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		cache.logger.Warn().Err(err).Msg("Redis unreachable, using in-memory position state only")
		return cache
	}

	cache.client = client
	cache.logger.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")
	return cache
}

func positionKey(userID, symbol string) string {
	return fmt.Sprintf("%s:%s:%s", positionKeyPrefix, userID, symbol)
}

// Save writes the latest state of a position.
func (c *PositionStateCache) Save(ctx context.Context, state *PositionState) error {
	state.UpdatedAt = time.Now()
	key := positionKey(state.UserID, state.Symbol)

	c.mu.Lock()
	c.fallback[key] = state
	c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal position state: %w", err)
	}
	if err := c.client.Set(ctx, key, data, positionStateTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Redis write failed, in-memory state retained")
		return nil
	}
	return nil
}

// Get retrieves the latest state of a position, preferring Redis.
func (c *PositionStateCache) Get(ctx context.Context, userID, symbol string) (*PositionState, error) {
	key := positionKey(userID, symbol)

	if c.client != nil {
		data, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			state := &PositionState{}
			if err := json.Unmarshal(data, state); err != nil {
				return nil, fmt.Errorf("unmarshal position state: %w", err)
			}
			return state, nil
		}
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Redis read failed, trying in-memory state")
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if state, ok := c.fallback[key]; ok {
		return state, nil
	}
	return nil, nil
}

// Delete removes a closed position's state.
func (c *PositionStateCache) Delete(ctx context.Context, userID, symbol string) {
	key := positionKey(userID, symbol)

	c.mu.Lock()
	delete(c.fallback, key)
	c.mu.Unlock()

	if c.client != nil {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Redis delete failed")
		}
	}
}

// Close releases the Redis connection.
func (c *PositionStateCache) Close() {
	if c.client != nil {
		_ = c.client.Close()
	}
}
