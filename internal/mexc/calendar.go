package mexc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const calendarURL = "https://www.mexc.com/api/operation/new_coin_calendar"

// CalendarEntry is one upcoming listing from the new-coin calendar.
type CalendarEntry struct {
	VcoinID    string
	Symbol     string
	LaunchTime time.Time
}

// CalendarClient fetches the exchange's new-coin listing calendar. The
// endpoint is public and unsigned.
type CalendarClient struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

// NewCalendarClient creates a calendar client.
func NewCalendarClient(logger zerolog.Logger) *CalendarClient {
	return &CalendarClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    calendarURL,
		logger:     logger.With().Str("component", "mexc_calendar").Logger(),
	}
}

type calendarResponse struct {
	Data struct {
		NewCoins []struct {
			VcoinID       string `json:"vcoinId"`
			VcoinName     string `json:"vcoinName"`
			FirstOpenTime int64  `json:"firstOpenTime"` // epoch millis
		} `json:"newCoins"`
	} `json:"data"`
}

// FetchUpcomingListings returns listings whose launch time is in the future.
func (c *CalendarClient) FetchUpcomingListings(ctx context.Context) ([]CalendarEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar request returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed calendarResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse calendar response: %w", err)
	}

	now := time.Now()
	var entries []CalendarEntry
	for _, coin := range parsed.Data.NewCoins {
		launch := time.UnixMilli(coin.FirstOpenTime)
		if !launch.After(now) {
			continue
		}
		entries = append(entries, CalendarEntry{
			VcoinID:    coin.VcoinID,
			Symbol:     coin.VcoinName + "USDT",
			LaunchTime: launch,
		})
	}

	c.logger.Debug().Int("upcoming", len(entries)).Msg("Fetched listing calendar")
	return entries, nil
}
