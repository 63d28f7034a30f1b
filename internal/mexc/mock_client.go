package mexc

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MockClient provides deterministic exchange behavior for tests and dry-run
// mode. Prices, balances and order outcomes are all settable.
type MockClient struct {
	mu sync.RWMutex

	prices   map[string]float64
	balances map[string]AssetBalance

	// orderErr, when set, fails the next PlaceOrder calls.
	orderErr error
	// priceErr, when set, fails GetCurrentPrice calls.
	priceErr error
	// balanceErr, when set, fails GetAccountBalance calls.
	balanceErr error
	// fillRatio scales executed quantity against requested (1.0 = full fill).
	fillRatio float64

	orderSeq     int64
	placedOrders []OrderRequest
}

// NewMockClient creates a mock with a small set of seeded prices and a
// funded USDT balance.
func NewMockClient() *MockClient {
	return &MockClient{
		prices: map[string]float64{
			"BTCUSDT": 104500.00,
			"ETHUSDT": 3900.00,
			"NEWUSDT": 0.50,
		},
		balances: map[string]AssetBalance{
			"USDT": {Asset: "USDT", Free: 10000, Locked: 0},
		},
		fillRatio: 1.0,
	}
}

// SetPrice sets the current price for a symbol.
func (mc *MockClient) SetPrice(symbol string, price float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.prices[symbol] = price
}

// SetBalance sets the balance for an asset.
func (mc *MockClient) SetBalance(asset string, free, locked float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.balances[asset] = AssetBalance{Asset: asset, Free: free, Locked: locked}
}

// SetOrderError makes subsequent PlaceOrder calls fail with err.
func (mc *MockClient) SetOrderError(err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.orderErr = err
}

// SetPriceError makes subsequent GetCurrentPrice calls fail with err.
func (mc *MockClient) SetPriceError(err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.priceErr = err
}

// SetBalanceError makes subsequent GetAccountBalance calls fail with err.
func (mc *MockClient) SetBalanceError(err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.balanceErr = err
}

// SetFillRatio scales how much of each order fills (1.0 = full).
func (mc *MockClient) SetFillRatio(ratio float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.fillRatio = ratio
}

// PlacedOrders returns a copy of every order placed so far.
func (mc *MockClient) PlacedOrders() []OrderRequest {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := make([]OrderRequest, len(mc.placedOrders))
	copy(out, mc.placedOrders)
	return out
}

// GetAccountBalance returns the configured balances.
func (mc *MockClient) GetAccountBalance(ctx context.Context, asset string) ([]AssetBalance, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if mc.balanceErr != nil {
		return nil, mc.balanceErr
	}

	if asset != "" {
		if b, ok := mc.balances[asset]; ok {
			return []AssetBalance{b}, nil
		}
		return []AssetBalance{{Asset: asset}}, nil
	}

	out := make([]AssetBalance, 0, len(mc.balances))
	for _, b := range mc.balances {
		out = append(out, b)
	}
	return out, nil
}

// GetCurrentPrice returns the configured price for a symbol.
func (mc *MockClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if mc.priceErr != nil {
		return 0, mc.priceErr
	}
	price, ok := mc.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("Invalid symbol %s", symbol)
	}
	return price, nil
}

// PlaceOrder simulates an immediate fill at the configured price.
func (mc *MockClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.orderErr != nil {
		return nil, mc.orderErr
	}

	price, ok := mc.prices[req.Symbol]
	if !ok {
		return nil, fmt.Errorf("Invalid symbol %s", req.Symbol)
	}

	quantity := req.Quantity
	if quantity == 0 && req.QuoteOrderQty > 0 {
		quantity = req.QuoteOrderQty / price
	}
	executed := quantity * mc.fillRatio

	status := "FILLED"
	if mc.fillRatio < 1.0 {
		status = "PARTIALLY_FILLED"
	}

	mc.orderSeq++
	mc.placedOrders = append(mc.placedOrders, req)

	return &OrderResponse{
		Symbol:              req.Symbol,
		OrderID:             "mock-" + strconv.FormatInt(mc.orderSeq, 10),
		TransactTime:        time.Now().UnixMilli(),
		Price:               price,
		OrigQty:             quantity,
		ExecutedQty:         executed,
		CummulativeQuoteQty: executed * price,
		Status:              status,
		Type:                req.Type,
		Side:                req.Side,
	}, nil
}
