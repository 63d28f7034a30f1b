package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration.
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// NewDB creates a new database connection pool and verifies connectivity.
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger = logger.With().Str("component", "database").Logger()
	logger.Info().Str("database", cfg.Database).Msg("Connected to PostgreSQL")

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

// RunMigrations creates the engine's tables and indexes if they are missing.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("Running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id UUID PRIMARY KEY,
			type VARCHAR(50) NOT NULL,
			payload JSONB,
			run_at TIMESTAMPTZ NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL DEFAULT 5,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			last_error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs(status, run_at)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`,

		`CREATE TABLE IF NOT EXISTS snipe_targets (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(30) NOT NULL,
			vcoin_id VARCHAR(64) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			position_size_usdt DECIMAL(20, 8) NOT NULL DEFAULT 0,
			priority INTEGER NOT NULL DEFAULT 5,
			target_execution_time TIMESTAMPTZ NOT NULL,
			confidence_score DECIMAL(10, 4) NOT NULL DEFAULT 0,
			stop_loss_percent DECIMAL(10, 4) NOT NULL DEFAULT 0,
			take_profit_percent DECIMAL(10, 4) NOT NULL DEFAULT 0,
			error_count INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_targets_due ON snipe_targets(status, target_execution_time)`,
		`CREATE INDEX IF NOT EXISTS idx_targets_user ON snipe_targets(user_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_targets_vcoin_user ON snipe_targets(vcoin_id, user_id)`,

		`CREATE TABLE IF NOT EXISTS positions (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(30) NOT NULL,
			side VARCHAR(4) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			current_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			quantity DECIMAL(20, 8) NOT NULL,
			stop_loss_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			take_profit_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			stop_loss_percent DECIMAL(10, 4) NOT NULL DEFAULT 0,
			take_profit_percent DECIMAL(10, 4) NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'open',
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ,
			exit_price DECIMAL(20, 8),
			exit_reason VARCHAR(50),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol)`,

		`CREATE TABLE IF NOT EXISTS execution_records (
			id UUID PRIMARY KEY,
			target_id BIGINT NOT NULL,
			position_id BIGINT REFERENCES positions(id) ON DELETE SET NULL,
			user_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(30) NOT NULL,
			order_side VARCHAR(4) NOT NULL,
			order_type VARCHAR(20) NOT NULL,
			requested_qty DECIMAL(20, 8) NOT NULL DEFAULT 0,
			executed_qty DECIMAL(20, 8) NOT NULL DEFAULT 0,
			executed_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			total_cost DECIMAL(20, 8) NOT NULL DEFAULT 0,
			fees DECIMAL(20, 8) NOT NULL DEFAULT 0,
			exchange_order_id VARCHAR(64),
			exchange_status VARCHAR(30),
			latency_ms BIGINT NOT NULL DEFAULT 0,
			slippage_percent DECIMAL(10, 4) NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL,
			error_code VARCHAR(30),
			error_message TEXT,
			requested_at TIMESTAMPTZ NOT NULL,
			executed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_records_target ON execution_records(target_id)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_records_requested_at ON execution_records(requested_at)`,

		`CREATE TABLE IF NOT EXISTS audit_events (
			id BIGSERIAL PRIMARY KEY,
			type VARCHAR(50) NOT NULL,
			correlation_id VARCHAR(64) NOT NULL,
			payload JSONB,
			timestamp TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_correlation ON audit_events(correlation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(type)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Msg("Database migrations completed")
	return nil
}
