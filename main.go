package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"mexc-sniper-bot/config"
	"mexc-sniper-bot/internal/database"
	"mexc-sniper-bot/internal/events"
	"mexc-sniper-bot/internal/executor"
	"mexc-sniper-bot/internal/jobs"
	"mexc-sniper-bot/internal/mexc"
	"mexc-sniper-bot/internal/monitor"
	"mexc-sniper-bot/internal/safety"
	"mexc-sniper-bot/internal/sizing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().Msg("Starting sniper engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	repo := database.NewRepository(db)

	stateCache := database.NewPositionStateCache(database.RedisConfig{
		Addr:     cfg.RedisConfig.Addr,
		Password: cfg.RedisConfig.Password,
		DB:       cfg.RedisConfig.DB,
	}, logger)
	defer stateCache.Close()

	// Audit event bus with a persisting sink
	bus := events.NewBus()
	bus.SubscribeAll(events.SinkSubscriber(database.NewAuditSink(repo, logger)))

	// Exchange client: live (signed REST + websocket prices) or mock
	prices := mexc.NewPriceCache()
	var client mexc.ExchangeClient
	var stream *mexc.PriceStream
	if cfg.MexcConfig.MockMode {
		logger.Warn().Msg("Mock mode enabled, no live orders will be placed")
		client = mexc.NewMockClient()
	} else {
		limiter := mexc.NewRateLimiter(cfg.MexcConfig.MaxRequestWeight)
		client = mexc.NewClient(cfg.MexcConfig.APIKey, cfg.MexcConfig.SecretKey, cfg.MexcConfig.BaseURL, limiter, prices)

		stream = mexc.NewPriceStream("", prices, logger)
		for _, symbol := range cfg.MexcConfig.StreamSymbols {
			stream.Subscribe(symbol)
		}
		if err := stream.Start(); err != nil {
			logger.Warn().Err(err).Msg("Price stream unavailable, monitors fall back to REST prices")
			stream = nil
		}
	}

	// Safety gate and assessment
	safetyCtl := safety.NewController(bus, logger)
	assessor := safety.NewAssessor(client, repo, safetyCtl, safety.AssessConfig{
		ProbeSymbol:            cfg.SafetyConfig.ProbeSymbol,
		MaxConsecutiveFailures: cfg.SafetyConfig.MaxConsecutiveFailures,
	})

	// Position monitoring
	mon := monitor.NewManager(client, repo, stateCache, bus, monitor.Config{
		CheckInterval: cfg.MonitorConfig.CheckInterval,
	}, logger)

	// Execution core
	exec := executor.NewExecutor(client, repo, mon, safetyCtl, bus, executor.Config{
		QuoteAsset:               cfg.ExecutionConfig.QuoteAsset,
		BalanceBufferPercent:     cfg.ExecutionConfig.BalanceBufferPercent,
		MaxConcurrent:            cfg.ExecutionConfig.MaxConcurrent,
		MaxTargetRetries:         cfg.ExecutionConfig.MaxTargetRetries,
		DefaultStopLossPercent:   cfg.ExecutionConfig.DefaultStopLossPercent,
		DefaultTakeProfitPercent: cfg.ExecutionConfig.DefaultTakeProfitPercent,
		Sizing: sizing.Config{
			PerTradeFraction:       cfg.SizingConfig.PerTradeFraction,
			MaxUtilizationFraction: cfg.SizingConfig.MaxUtilizationFraction,
			MinPositionSize:        cfg.SizingConfig.MinPositionSize,
			MaxPositionSize:        cfg.SizingConfig.MaxPositionSize,
		},
	}, logger)

	// Job handlers and queue
	registry, err := jobs.NewRegistry(
		jobs.NewHousekeepingHandler(repo, bus, jobs.HousekeepingConfig{
			JobRetention:    cfg.HousekeepingConfig.JobRetention,
			TargetRetention: cfg.HousekeepingConfig.TargetRetention,
		}, logger),
		jobs.NewRiskCheckHandler(assessor, safetyCtl, logger),
		jobs.NewCalendarSyncHandler(newCalendarSource(cfg.CalendarConfig, logger), repo, bus, jobs.CalendarSyncConfig{
			UserID:                  cfg.ExecutionConfig.UserID,
			DefaultPositionSizeUsdt: cfg.CalendarConfig.DefaultPositionSizeUsdt,
			DefaultPriority:         cfg.CalendarConfig.DefaultPriority,
			LeadTime:                cfg.CalendarConfig.LeadTime,
		}, logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Job handler registration failed")
	}

	queue := jobs.NewQueue(repo, registry, bus, logger)

	recurring := []jobs.RecurringJob{
		{Type: jobs.JobTypeRiskCheck, Interval: cfg.SchedulerConfig.RiskCheckInterval},
		{Type: jobs.JobTypeHousekeeping, Interval: cfg.SchedulerConfig.HousekeepingInterval},
	}
	if cfg.CalendarConfig.Enabled {
		recurring = append(recurring, jobs.RecurringJob{
			Type:     jobs.JobTypeCalendarSync,
			Interval: cfg.SchedulerConfig.CalendarSyncInterval,
		})
	}

	scheduler := jobs.NewScheduler(queue, exec, jobs.SchedulerConfig{
		TickInterval:      cfg.SchedulerConfig.TickInterval,
		BatchSize:         cfg.SchedulerConfig.BatchSize,
		MaxConcurrentJobs: cfg.SchedulerConfig.MaxConcurrentJobs,
		Recurring:         recurring,
	}, logger)

	// Re-arm exit monitoring for positions that were open at last shutdown.
	if open, err := repo.GetOpenPositions(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to load open positions")
	} else {
		for _, position := range open {
			mon.Start(position)
		}
		if len(open) > 0 {
			logger.Info().Int("count", len(open)).Msg("Resumed monitoring for open positions")
		}
	}

	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	logger.Info().Msg("Sniper engine running")

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	scheduler.Stop()
	mon.CancelAll()
	if stream != nil {
		stream.Stop()
	}
	cancel()

	logger.Info().Msg("Shutdown complete")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.JSONFormat {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// mexcCalendarSource adapts the exchange calendar client to the job handler.
type mexcCalendarSource struct {
	client *mexc.CalendarClient
}

func (s *mexcCalendarSource) FetchUpcomingListings(ctx context.Context) ([]jobs.Listing, error) {
	entries, err := s.client.FetchUpcomingListings(ctx)
	if err != nil {
		return nil, err
	}
	listings := make([]jobs.Listing, 0, len(entries))
	for _, e := range entries {
		listings = append(listings, jobs.Listing{
			VcoinID:    e.VcoinID,
			Symbol:     e.Symbol,
			LaunchTime: e.LaunchTime,
		})
	}
	return listings, nil
}

// noopCalendarSource stands in when calendar sync is disabled; the handler
// stays registered but never sees a listing.
type noopCalendarSource struct{}

func (noopCalendarSource) FetchUpcomingListings(context.Context) ([]jobs.Listing, error) {
	return nil, nil
}

func newCalendarSource(cfg config.CalendarConfig, logger zerolog.Logger) jobs.CalendarSource {
	if !cfg.Enabled {
		return noopCalendarSource{}
	}
	return &mexcCalendarSource{client: mexc.NewCalendarClient(logger)}
}
