package mexc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultStreamURL is the MEXC spot websocket endpoint.
const DefaultStreamURL = "wss://wbs.mexc.com/ws"

// PriceStream subscribes to miniTicker updates and keeps the shared price
// cache hot. Connection loss triggers reconnection with backoff; the stream
// is an optimization, monitors always have the REST fallback.
type PriceStream struct {
	url    string
	cache  *PriceCache
	logger zerolog.Logger

	mu       sync.Mutex
	symbols  map[string]struct{}
	conn     *websocket.Conn
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPriceStream creates a stream writing into the given cache.
func NewPriceStream(url string, cache *PriceCache, logger zerolog.Logger) *PriceStream {
	if url == "" {
		url = DefaultStreamURL
	}
	return &PriceStream{
		url:     url,
		cache:   cache,
		logger:  logger.With().Str("component", "price_stream").Logger(),
		symbols: make(map[string]struct{}),
	}
}

// Subscribe adds a symbol to the stream. Safe to call while running; the
// subscription is sent on the live connection when one exists.
func (ps *PriceStream) Subscribe(symbol string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, ok := ps.symbols[symbol]; ok {
		return
	}
	ps.symbols[symbol] = struct{}{}

	if ps.conn != nil {
		if err := ps.sendSubscription(ps.conn, []string{symbol}); err != nil {
			ps.logger.Warn().Err(err).Str("symbol", symbol).Msg("Subscribe failed, will retry on reconnect")
		}
	}
}

// Start begins the connect/read loop.
func (ps *PriceStream) Start() error {
	ps.mu.Lock()
	if ps.running {
		ps.mu.Unlock()
		return fmt.Errorf("price stream already running")
	}
	ps.running = true
	ps.stopChan = make(chan struct{})
	ps.mu.Unlock()

	ps.wg.Add(1)
	go ps.run()
	return nil
}

// Stop tears down the stream and waits for the read loop to exit.
func (ps *PriceStream) Stop() {
	ps.mu.Lock()
	if !ps.running {
		ps.mu.Unlock()
		return
	}
	ps.running = false
	close(ps.stopChan)
	if ps.conn != nil {
		_ = ps.conn.Close()
	}
	ps.mu.Unlock()

	ps.wg.Wait()
}

func (ps *PriceStream) run() {
	defer ps.wg.Done()

	backoff := time.Second
	for {
		select {
		case <-ps.stopChan:
			return
		default:
		}

		if err := ps.connectAndRead(); err != nil {
			ps.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Price stream disconnected")
		}

		select {
		case <-ps.stopChan:
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (ps *PriceStream) connectAndRead() error {
	conn, _, err := websocket.DefaultDialer.Dial(ps.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", ps.url, err)
	}

	ps.mu.Lock()
	ps.conn = conn
	symbols := make([]string, 0, len(ps.symbols))
	for s := range ps.symbols {
		symbols = append(symbols, s)
	}
	ps.mu.Unlock()

	defer func() {
		ps.mu.Lock()
		ps.conn = nil
		ps.mu.Unlock()
		_ = conn.Close()
	}()

	if len(symbols) > 0 {
		if err := ps.sendSubscription(conn, symbols); err != nil {
			return err
		}
	}
	ps.logger.Info().Int("symbols", len(symbols)).Msg("Price stream connected")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ps.handleMessage(message)
	}
}

// subscriptionRequest is the MEXC websocket subscription frame.
type subscriptionRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

func (ps *PriceStream) sendSubscription(conn *websocket.Conn, symbols []string) error {
	params := make([]string, len(symbols))
	for i, s := range symbols {
		params[i] = fmt.Sprintf("spot@public.miniTicker.v3.api@%s@UTC+8", s)
	}
	return conn.WriteJSON(subscriptionRequest{Method: "SUBSCRIPTION", Params: params})
}

// tickerMessage is the miniTicker push frame; only price and symbol matter.
type tickerMessage struct {
	Channel string `json:"c"`
	Symbol  string `json:"s"`
	Data    struct {
		Price string `json:"p"`
	} `json:"d"`
}

func (ps *PriceStream) handleMessage(message []byte) {
	var tick tickerMessage
	if err := json.Unmarshal(message, &tick); err != nil {
		return // control frames and acks are not ticker pushes
	}
	if tick.Symbol == "" || tick.Data.Price == "" {
		return
	}

	price, err := strconv.ParseFloat(tick.Data.Price, 64)
	if err != nil || price <= 0 {
		return
	}
	ps.cache.Set(tick.Symbol, price)
}
