// Package mexc implements the MEXC spot exchange client used by the
// execution engine: a signed REST client, a websocket price stream feeding a
// shared price cache, and a deterministic mock for tests and dry runs.
package mexc

import "context"

// ExchangeClient defines the exchange operations the engine consumes.
type ExchangeClient interface {
	// GetAccountBalance returns balances, optionally filtered to one asset.
	GetAccountBalance(ctx context.Context, asset string) ([]AssetBalance, error)

	// GetCurrentPrice returns the latest price for a symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)

	// PlaceOrder submits an order and returns the exchange response.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
}

// AssetBalance represents a single asset balance.
type AssetBalance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free,string"`
	Locked float64 `json:"locked,string"`
}

// Order sides and types accepted by the exchange.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
)

// OrderRequest describes an order to place. For market buys QuoteOrderQty
// (spend amount in quote currency) is used instead of Quantity.
type OrderRequest struct {
	Symbol        string
	Side          string
	Type          string
	Quantity      float64
	QuoteOrderQty float64
	Price         float64
	TimeInForce   string
}

// OrderResponse represents a response from placing an order.
type OrderResponse struct {
	Symbol              string  `json:"symbol"`
	OrderID             string  `json:"orderId"`
	TransactTime        int64   `json:"transactTime"`
	Price               float64 `json:"price,string"`
	OrigQty             float64 `json:"origQty,string"`
	ExecutedQty         float64 `json:"executedQty,string"`
	CummulativeQuoteQty float64 `json:"cummulativeQuoteQty,string"`
	Status              string  `json:"status"`
	Type                string  `json:"type"`
	Side                string  `json:"side"`
}

// Filled reports whether the order executed any quantity.
func (r *OrderResponse) Filled() bool {
	return r != nil && r.ExecutedQty > 0
}

// AvgFillPrice returns the effective fill price. Market orders report price 0
// on MEXC; the average is derived from the quote amount actually spent.
func (r *OrderResponse) AvgFillPrice() float64 {
	if r.ExecutedQty > 0 && r.CummulativeQuoteQty > 0 {
		return r.CummulativeQuoteQty / r.ExecutedQty
	}
	return r.Price
}

// Ensure both Client and MockClient implement ExchangeClient.
var _ ExchangeClient = (*Client)(nil)
var _ ExchangeClient = (*MockClient)(nil)
