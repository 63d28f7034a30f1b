package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MexcConfig         MexcConfig         `json:"mexc"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	ExecutionConfig    ExecutionConfig    `json:"execution"`
	SizingConfig       SizingConfig       `json:"sizing"`
	MonitorConfig      MonitorConfig      `json:"monitor"`
	SchedulerConfig    SchedulerConfig    `json:"scheduler"`
	CalendarConfig     CalendarConfig     `json:"calendar"`
	SafetyConfig       SafetyConfig       `json:"safety"`
	HousekeepingConfig HousekeepingConfig `json:"housekeeping"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

type MexcConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	MockMode  bool   `json:"mock_mode"` // Use simulated exchange instead of live API
	// StreamSymbols are pre-subscribed on the websocket price stream.
	StreamSymbols []string `json:"stream_symbols"`
	// MaxRequestWeight is the per-minute REST weight budget.
	MaxRequestWeight int `json:"max_request_weight"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ExecutionConfig struct {
	UserID                   string  `json:"user_id"`
	QuoteAsset               string  `json:"quote_asset"`
	BalanceBufferPercent     float64 `json:"balance_buffer_percent"`
	MaxConcurrent            int     `json:"max_concurrent"`
	MaxTargetRetries         int     `json:"max_target_retries"`
	DefaultStopLossPercent   float64 `json:"default_stop_loss_percent"`
	DefaultTakeProfitPercent float64 `json:"default_take_profit_percent"`
}

type SizingConfig struct {
	PerTradeFraction       float64 `json:"per_trade_fraction"`
	MaxUtilizationFraction float64 `json:"max_utilization_fraction"`
	MinPositionSize        float64 `json:"min_position_size"`
	MaxPositionSize        float64 `json:"max_position_size"`
}

type MonitorConfig struct {
	CheckInterval time.Duration `json:"check_interval"`
}

type SchedulerConfig struct {
	TickInterval      time.Duration `json:"tick_interval"`
	BatchSize         int           `json:"batch_size"`
	MaxConcurrentJobs int           `json:"max_concurrent_jobs"`
	// Cadences for the recurring engine jobs.
	RiskCheckInterval    time.Duration `json:"risk_check_interval"`
	CalendarSyncInterval time.Duration `json:"calendar_sync_interval"`
	HousekeepingInterval time.Duration `json:"housekeeping_interval"`
}

type CalendarConfig struct {
	Enabled                 bool          `json:"enabled"`
	DefaultPositionSizeUsdt float64       `json:"default_position_size_usdt"`
	DefaultPriority         int           `json:"default_priority"`
	LeadTime                time.Duration `json:"lead_time"`
}

type SafetyConfig struct {
	ProbeSymbol            string `json:"probe_symbol"`
	MaxConsecutiveFailures int    `json:"max_consecutive_failures"`
}

type HousekeepingConfig struct {
	JobRetention    time.Duration `json:"job_retention"`
	TargetRetention time.Duration `json:"target_retention"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // JSON output instead of console
}

// Load reads config.json if present and applies environment overrides on
// top. A local .env file is loaded first so development settings live
// outside the shell profile.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	// Exchange
	cfg.MexcConfig.APIKey = getEnvOrDefault("MEXC_API_KEY", cfg.MexcConfig.APIKey)
	cfg.MexcConfig.SecretKey = getEnvOrDefault("MEXC_SECRET_KEY", cfg.MexcConfig.SecretKey)
	cfg.MexcConfig.BaseURL = getEnvOrDefault("MEXC_BASE_URL", cfg.MexcConfig.BaseURL)
	cfg.MexcConfig.MockMode = getEnvOrDefault("MEXC_MOCK_MODE", boolString(cfg.MexcConfig.MockMode)) == "true"
	cfg.MexcConfig.MaxRequestWeight = getEnvIntOrDefault("MEXC_MAX_REQUEST_WEIGHT", defaultInt(cfg.MexcConfig.MaxRequestWeight, 1200))

	// Database
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultString(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultString(cfg.DatabaseConfig.Database, "sniper"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultString(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis
	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Addr)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Execution
	cfg.ExecutionConfig.UserID = getEnvOrDefault("SNIPER_USER_ID", defaultString(cfg.ExecutionConfig.UserID, "default"))
	cfg.ExecutionConfig.QuoteAsset = getEnvOrDefault("SNIPER_QUOTE_ASSET", defaultString(cfg.ExecutionConfig.QuoteAsset, "USDT"))
	cfg.ExecutionConfig.BalanceBufferPercent = getEnvFloatOrDefault("SNIPER_BALANCE_BUFFER_PERCENT", defaultFloat(cfg.ExecutionConfig.BalanceBufferPercent, 5))
	cfg.ExecutionConfig.MaxConcurrent = getEnvIntOrDefault("SNIPER_MAX_CONCURRENT", defaultInt(cfg.ExecutionConfig.MaxConcurrent, 5))
	cfg.ExecutionConfig.MaxTargetRetries = getEnvIntOrDefault("SNIPER_MAX_TARGET_RETRIES", defaultInt(cfg.ExecutionConfig.MaxTargetRetries, 3))
	cfg.ExecutionConfig.DefaultStopLossPercent = getEnvFloatOrDefault("SNIPER_DEFAULT_STOP_LOSS", defaultFloat(cfg.ExecutionConfig.DefaultStopLossPercent, 10))
	cfg.ExecutionConfig.DefaultTakeProfitPercent = getEnvFloatOrDefault("SNIPER_DEFAULT_TAKE_PROFIT", defaultFloat(cfg.ExecutionConfig.DefaultTakeProfitPercent, 20))

	// Sizing
	cfg.SizingConfig.PerTradeFraction = getEnvFloatOrDefault("SIZING_PER_TRADE_FRACTION", defaultFloat(cfg.SizingConfig.PerTradeFraction, 0.02))
	cfg.SizingConfig.MaxUtilizationFraction = getEnvFloatOrDefault("SIZING_MAX_UTILIZATION_FRACTION", defaultFloat(cfg.SizingConfig.MaxUtilizationFraction, 0.10))
	cfg.SizingConfig.MinPositionSize = getEnvFloatOrDefault("SIZING_MIN_POSITION_SIZE", defaultFloat(cfg.SizingConfig.MinPositionSize, 1))
	cfg.SizingConfig.MaxPositionSize = getEnvFloatOrDefault("SIZING_MAX_POSITION_SIZE", defaultFloat(cfg.SizingConfig.MaxPositionSize, 1000))

	// Monitor
	cfg.MonitorConfig.CheckInterval = getEnvDurationOrDefault("MONITOR_CHECK_INTERVAL", defaultDuration(cfg.MonitorConfig.CheckInterval, 2*time.Second))

	// Scheduler
	cfg.SchedulerConfig.TickInterval = getEnvDurationOrDefault("SCHEDULER_TICK_INTERVAL", defaultDuration(cfg.SchedulerConfig.TickInterval, time.Second))
	cfg.SchedulerConfig.BatchSize = getEnvIntOrDefault("SCHEDULER_BATCH_SIZE", defaultInt(cfg.SchedulerConfig.BatchSize, 10))
	cfg.SchedulerConfig.MaxConcurrentJobs = getEnvIntOrDefault("SCHEDULER_MAX_CONCURRENT_JOBS", defaultInt(cfg.SchedulerConfig.MaxConcurrentJobs, 4))
	cfg.SchedulerConfig.RiskCheckInterval = getEnvDurationOrDefault("SCHEDULER_RISK_CHECK_INTERVAL", defaultDuration(cfg.SchedulerConfig.RiskCheckInterval, time.Minute))
	cfg.SchedulerConfig.CalendarSyncInterval = getEnvDurationOrDefault("SCHEDULER_CALENDAR_SYNC_INTERVAL", defaultDuration(cfg.SchedulerConfig.CalendarSyncInterval, 5*time.Minute))
	cfg.SchedulerConfig.HousekeepingInterval = getEnvDurationOrDefault("SCHEDULER_HOUSEKEEPING_INTERVAL", defaultDuration(cfg.SchedulerConfig.HousekeepingInterval, 24*time.Hour))

	// Calendar
	cfg.CalendarConfig.Enabled = getEnvOrDefault("CALENDAR_ENABLED", boolString(cfg.CalendarConfig.Enabled)) == "true"
	cfg.CalendarConfig.DefaultPositionSizeUsdt = getEnvFloatOrDefault("CALENDAR_DEFAULT_POSITION_SIZE", defaultFloat(cfg.CalendarConfig.DefaultPositionSizeUsdt, 100))
	cfg.CalendarConfig.DefaultPriority = getEnvIntOrDefault("CALENDAR_DEFAULT_PRIORITY", defaultInt(cfg.CalendarConfig.DefaultPriority, 5))
	cfg.CalendarConfig.LeadTime = getEnvDurationOrDefault("CALENDAR_LEAD_TIME", cfg.CalendarConfig.LeadTime)

	// Safety
	cfg.SafetyConfig.ProbeSymbol = getEnvOrDefault("SAFETY_PROBE_SYMBOL", defaultString(cfg.SafetyConfig.ProbeSymbol, "BTCUSDT"))
	cfg.SafetyConfig.MaxConsecutiveFailures = getEnvIntOrDefault("SAFETY_MAX_CONSECUTIVE_FAILURES", defaultInt(cfg.SafetyConfig.MaxConsecutiveFailures, 5))

	// Housekeeping
	cfg.HousekeepingConfig.JobRetention = getEnvDurationOrDefault("HOUSEKEEPING_JOB_RETENTION", defaultDuration(cfg.HousekeepingConfig.JobRetention, 7*24*time.Hour))
	cfg.HousekeepingConfig.TargetRetention = getEnvDurationOrDefault("HOUSEKEEPING_TARGET_RETENTION", defaultDuration(cfg.HousekeepingConfig.TargetRetention, 30*24*time.Hour))

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", boolString(cfg.LoggingConfig.JSONFormat)) == "true"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

func defaultFloat(value, fallback float64) float64 {
	if value == 0 {
		return fallback
	}
	return value
}

func defaultDuration(value, fallback time.Duration) time.Duration {
	if value == 0 {
		return fallback
	}
	return value
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
