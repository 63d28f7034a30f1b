package mexc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the MEXC spot REST endpoint.
const DefaultBaseURL = "https://api.mexc.com"

// Client is the signed MEXC spot REST client.
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
	prices     *PriceCache
}

// NewClient creates a new MEXC client. The price cache is optional; when set,
// GetCurrentPrice serves fresh websocket prices without a REST round trip.
func NewClient(apiKey, secretKey, baseURL string, limiter *RateLimiter, prices *PriceCache) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		prices:     prices,
	}
}

// sign computes the HMAC-SHA256 signature over the sorted query string.
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// signedRequest executes an authenticated request, returning the raw body.
// API error bodies are surfaced verbatim inside the error so the retry
// classifier can match exchange rejection codes.
func (c *Client) signedRequest(ctx context.Context, method, path string, params map[string]string) ([]byte, error) {
	params["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
	params["signature"] = c.sign(params)

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = values.Encode()
	req.Header.Set("X-MEXC-APIKEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s", string(body))
	}
	return body, nil
}

// accountResponse is the /api/v3/account payload.
type accountResponse struct {
	CanTrade bool           `json:"canTrade"`
	Balances []AssetBalance `json:"balances"`
}

// GetAccountBalance fetches account balances. With a non-empty asset only
// that asset's balance is returned.
func (c *Client) GetAccountBalance(ctx context.Context, asset string) ([]AssetBalance, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, weightAccount); err != nil {
			return nil, err
		}
	}

	body, err := c.signedRequest(ctx, http.MethodGet, "/api/v3/account", map[string]string{})
	if err != nil {
		return nil, fmt.Errorf("error fetching account: %w", err)
	}

	var account accountResponse
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("error parsing account: %w", err)
	}

	if asset == "" {
		return account.Balances, nil
	}
	for _, b := range account.Balances {
		if b.Asset == asset {
			return []AssetBalance{b}, nil
		}
	}
	return []AssetBalance{{Asset: asset}}, nil
}

// GetCurrentPrice fetches the current price for a symbol, serving from the
// websocket price cache when the cached quote is fresh.
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if c.prices != nil {
		if price, ok := c.prices.Get(symbol); ok {
			return price, nil
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, weightTicker); err != nil {
			return 0, err
		}
	}

	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error fetching price: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API error: %s", string(body))
	}

	var priceResp struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price,string"`
	}
	if err := json.Unmarshal(body, &priceResp); err != nil {
		return 0, fmt.Errorf("error parsing price: %w", err)
	}

	if c.prices != nil {
		c.prices.Set(symbol, priceResp.Price)
	}
	return priceResp.Price, nil
}

// PlaceOrder submits an order. Order placement is never throttled by the
// rate limiter: a blocked entry or exit order is worse than a rate warning.
func (c *Client) PlaceOrder(ctx context.Context, orderReq OrderRequest) (*OrderResponse, error) {
	params := map[string]string{
		"symbol": orderReq.Symbol,
		"side":   orderReq.Side,
		"type":   orderReq.Type,
	}
	if orderReq.Quantity > 0 {
		params["quantity"] = strconv.FormatFloat(orderReq.Quantity, 'f', -1, 64)
	}
	if orderReq.QuoteOrderQty > 0 {
		params["quoteOrderQty"] = strconv.FormatFloat(orderReq.QuoteOrderQty, 'f', -1, 64)
	}
	if orderReq.Price > 0 {
		params["price"] = strconv.FormatFloat(orderReq.Price, 'f', -1, 64)
	}
	if orderReq.TimeInForce != "" {
		params["timeInForce"] = orderReq.TimeInForce
	}

	if c.limiter != nil {
		c.limiter.Record(weightOrder)
	}

	body, err := c.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, fmt.Errorf("error placing order: %w", err)
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(body, &orderResp); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}
	return &orderResp, nil
}
