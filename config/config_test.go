package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabaseConfig.Host != "localhost" || cfg.DatabaseConfig.Port != 5432 {
		t.Errorf("database defaults = %+v", cfg.DatabaseConfig)
	}
	if cfg.ExecutionConfig.QuoteAsset != "USDT" {
		t.Errorf("quote asset = %q", cfg.ExecutionConfig.QuoteAsset)
	}
	if cfg.SizingConfig.PerTradeFraction != 0.02 {
		t.Errorf("per-trade fraction = %v", cfg.SizingConfig.PerTradeFraction)
	}
	if cfg.SchedulerConfig.TickInterval != time.Second {
		t.Errorf("tick interval = %v", cfg.SchedulerConfig.TickInterval)
	}
	if cfg.MonitorConfig.CheckInterval != 2*time.Second {
		t.Errorf("check interval = %v", cfg.MonitorConfig.CheckInterval)
	}
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	t.Setenv("SNIPER_QUOTE_ASSET", "USDC")
	t.Setenv("SNIPER_MAX_CONCURRENT", "2")
	t.Setenv("MONITOR_CHECK_INTERVAL", "500ms")
	t.Setenv("SIZING_MAX_POSITION_SIZE", "250.5")
	t.Setenv("MEXC_MOCK_MODE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ExecutionConfig.QuoteAsset != "USDC" {
		t.Errorf("quote asset = %q", cfg.ExecutionConfig.QuoteAsset)
	}
	if cfg.ExecutionConfig.MaxConcurrent != 2 {
		t.Errorf("max concurrent = %d", cfg.ExecutionConfig.MaxConcurrent)
	}
	if cfg.MonitorConfig.CheckInterval != 500*time.Millisecond {
		t.Errorf("check interval = %v", cfg.MonitorConfig.CheckInterval)
	}
	if cfg.SizingConfig.MaxPositionSize != 250.5 {
		t.Errorf("max position size = %v", cfg.SizingConfig.MaxPositionSize)
	}
	if !cfg.MexcConfig.MockMode {
		t.Error("mock mode override not applied")
	}
}

func TestMalformedEnvValueFallsBack(t *testing.T) {
	t.Setenv("SNIPER_MAX_CONCURRENT", "not-a-number")
	t.Setenv("MONITOR_CHECK_INTERVAL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ExecutionConfig.MaxConcurrent != 5 {
		t.Errorf("max concurrent = %d, want default 5", cfg.ExecutionConfig.MaxConcurrent)
	}
	if cfg.MonitorConfig.CheckInterval != 2*time.Second {
		t.Errorf("check interval = %v, want default 2s", cfg.MonitorConfig.CheckInterval)
	}
}
