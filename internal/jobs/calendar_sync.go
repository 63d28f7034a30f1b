package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mexc-sniper-bot/internal/database"
	"mexc-sniper-bot/internal/events"
)

// Listing is one upcoming listing from the exchange calendar.
type Listing struct {
	VcoinID    string    `json:"vcoin_id"`
	Symbol     string    `json:"symbol"`
	LaunchTime time.Time `json:"launch_time"`
	Priority   int       `json:"priority,omitempty"`
}

// CalendarSource produces upcoming listings. Implementations wrap the
// exchange's listing calendar endpoint.
type CalendarSource interface {
	FetchUpcomingListings(ctx context.Context) ([]Listing, error)
}

// TargetStore is the target persistence surface calendar sync needs.
type TargetStore interface {
	UpsertSnipeTarget(ctx context.Context, target *database.SnipeTarget) error
}

// CalendarSyncConfig controls how listings become snipe targets.
type CalendarSyncConfig struct {
	// UserID is the account targets are created for.
	UserID string `json:"user_id"`
	// DefaultPositionSizeUsdt is the static fallback size on new targets.
	DefaultPositionSizeUsdt float64 `json:"default_position_size_usdt"`
	// DefaultPriority applies when the listing carries none (1 = most urgent).
	DefaultPriority int `json:"default_priority"`
	// LeadTime shifts execution ahead of the announced launch.
	LeadTime time.Duration `json:"lead_time"`
}

// DefaultCalendarSyncConfig returns default calendar sync settings.
func DefaultCalendarSyncConfig() CalendarSyncConfig {
	return CalendarSyncConfig{
		UserID:                  "default",
		DefaultPositionSizeUsdt: 100,
		DefaultPriority:         5,
	}
}

// CalendarSyncHandler turns upcoming listings into scheduled snipe targets.
type CalendarSyncHandler struct {
	source CalendarSource
	store  TargetStore
	bus    events.Emitter
	config CalendarSyncConfig
	logger zerolog.Logger
}

// NewCalendarSyncHandler creates the calendar sync handler.
func NewCalendarSyncHandler(source CalendarSource, store TargetStore, bus events.Emitter, config CalendarSyncConfig, logger zerolog.Logger) *CalendarSyncHandler {
	if config.UserID == "" {
		config = DefaultCalendarSyncConfig()
	}
	return &CalendarSyncHandler{
		source: source,
		store:  store,
		bus:    bus,
		config: config,
		logger: logger.With().Str("component", "calendar_sync").Logger(),
	}
}

func (h *CalendarSyncHandler) Type() JobType { return JobTypeCalendarSync }

// Handle fetches the calendar and upserts one target per listing. A listing
// the source cannot be trusted to have parsed correctly fails the job
// permanently: retrying a malformed feed reproduces the same garbage.
func (h *CalendarSyncHandler) Handle(ctx context.Context, job *database.Job) (*Result, error) {
	listings, err := h.source.FetchUpcomingListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing calendar: %w", err)
	}

	synced := 0
	for _, listing := range listings {
		if listing.Symbol == "" || listing.VcoinID == "" || listing.LaunchTime.IsZero() {
			return nil, Permanent(fmt.Errorf("malformed listing in calendar feed: %+v", listing))
		}

		priority := listing.Priority
		if priority <= 0 {
			priority = h.config.DefaultPriority
		}

		target := &database.SnipeTarget{
			UserID:              h.config.UserID,
			Symbol:              listing.Symbol,
			VcoinID:             listing.VcoinID,
			Status:              database.TargetStatusReady,
			PositionSizeUsdt:    h.config.DefaultPositionSizeUsdt,
			Priority:            priority,
			TargetExecutionTime: listing.LaunchTime.Add(-h.config.LeadTime),
		}
		if err := h.store.UpsertSnipeTarget(ctx, target); err != nil {
			return nil, fmt.Errorf("failed to upsert target for %s: %w", listing.Symbol, err)
		}
		synced++

		if h.bus != nil {
			h.bus.Emit(events.EventTargetScheduled, job.ID, map[string]interface{}{
				"symbol":         listing.Symbol,
				"vcoin_id":       listing.VcoinID,
				"execution_time": target.TargetExecutionTime,
			})
		}
	}

	h.logger.Info().Int("listings", len(listings)).Int("synced", synced).Msg("Calendar synced")
	if h.bus != nil {
		h.bus.Emit(events.EventCalendarSynced, job.ID, map[string]interface{}{"synced": synced})
	}
	return &Result{Message: fmt.Sprintf("synced %d listings", synced), Details: map[string]interface{}{"synced": synced}}, nil
}
