// Package binance implements the exchange client against Binance USDT-M
// futures. Symbols are base coins ("BTC"); the quote suffix is appended for
// wire calls.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"perp-trader/pkg/exchanges/common"
)

const quoteSuffix = "USDT"

// Config holds Binance USDT-M futures credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
}

// Client handles Binance USDT-M futures.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	rateLimiter *common.RateLimiter
}

// NewClient creates a new USDT-M futures client.
func NewClient(cfg Config) *Client {
	base := "https://fapi.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binancefuture.com"
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	return &Client{
		cfg:         cfg,
		baseURL:     base,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		rateLimiter: common.NewRateLimiter(2400, time.Minute), // 2400 weight/min for futures
	}
}

func pair(symbol string) string {
	if strings.HasSuffix(symbol, quoteSuffix) {
		return symbol
	}
	return symbol + quoteSuffix
}

func coin(pairSym string) string {
	return strings.TrimSuffix(pairSym, quoteSuffix)
}

// GetAccountState returns the authoritative account snapshot: positions,
// margin summary, and resting orders in one view.
func (c *Client) GetAccountState(ctx context.Context) (common.AccountState, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.AccountState{}, errors.New("binance futures: API key/secret required")
	}

	params := url.Values{}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	body, err := c.doSigned(ctx, http.MethodGet, c.baseURL+"/fapi/v2/account", params)
	if err != nil {
		return common.AccountState{}, err
	}

	var info accountInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return common.AccountState{}, fmt.Errorf("decode account info: %w", err)
	}

	state := common.AccountState{
		Margin: common.MarginSummary{
			AccountValue:    parseF(info.TotalMarginBalance),
			TotalMarginUsed: parseF(info.TotalInitialMargin),
		},
	}
	for _, p := range info.Positions {
		qty := parseF(p.PositionAmt)
		if qty == 0 {
			continue
		}
		lev, _ := strconv.Atoi(p.Leverage)
		state.Positions = append(state.Positions, common.Position{
			Symbol:        coin(p.Symbol),
			Qty:           qty,
			EntryPrice:    parseF(p.EntryPrice),
			UnrealizedPnL: parseF(p.UnRealizedProfit),
			Leverage:      lev,
		})
	}

	open, err := c.openOrders(ctx)
	if err != nil {
		return common.AccountState{}, err
	}
	state.OpenOrders = open
	return state, nil
}

func (c *Client) openOrders(ctx context.Context) ([]common.OpenOrder, error) {
	params := url.Values{}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	body, err := c.doSigned(ctx, http.MethodGet, c.baseURL+"/fapi/v1/openOrders", params)
	if err != nil {
		return nil, err
	}
	var raw []openOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	out := make([]common.OpenOrder, 0, len(raw))
	for _, o := range raw {
		out = append(out, common.OpenOrder{
			OrderID:   strconv.FormatInt(o.OrderID, 10),
			Symbol:    coin(o.Symbol),
			Side:      common.Side(o.Side),
			Qty:       parseF(o.OrigQty),
			Price:     parseF(o.Price),
			CreatedAt: time.UnixMilli(o.Time),
		})
	}
	return out, nil
}

// SubmitOrder places an order.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.OrderResult{}, errors.New("binance futures: API key/secret required")
	}

	params := url.Values{}
	params.Set("symbol", pair(req.Symbol))
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", formatFloat(req.Qty))
	if req.Type == common.OrderTypeLimit {
		params.Set("price", formatFloat(req.Price))
		params.Set("timeInForce", "GTC")
	}
	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))

	body, err := c.doSigned(ctx, http.MethodPost, c.baseURL+"/fapi/v1/order", params)
	if err != nil {
		return common.OrderResult{}, err
	}
	var resp orderResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order: %w", err)
	}
	return common.OrderResult{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:          mapStatus(resp.Status),
		ClientID:        resp.ClientOrderID,
		FilledQty:       parseF(resp.ExecutedQty),
		AvgPrice:        parseF(resp.AvgPrice),
	}, nil
}

// CancelOrder cancels an order by symbol and ID.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", pair(symbol))
	params.Set("orderId", orderID)
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	_, err := c.doSigned(ctx, http.MethodDelete, c.baseURL+"/fapi/v1/order", params)
	return err
}

// GetOrderStatus fetches the normalized status of one order.
func (c *Client) GetOrderStatus(ctx context.Context, symbol, orderID string) (common.OrderStatus, error) {
	params := url.Values{}
	params.Set("symbol", pair(symbol))
	params.Set("orderId", orderID)
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	body, err := c.doSigned(ctx, http.MethodGet, c.baseURL+"/fapi/v1/order", params)
	if err != nil {
		return common.StatusUnknown, err
	}
	var resp orderResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.StatusUnknown, fmt.Errorf("decode order status: %w", err)
	}
	return mapStatus(resp.Status), nil
}

// GetAllMidPrices returns last prices for every symbol, keyed by base coin.
func (c *Client) GetAllMidPrices(ctx context.Context) (map[string]float64, error) {
	body, err := c.doPublic(ctx, "/fapi/v1/ticker/price", nil)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode ticker prices: %w", err)
	}
	out := make(map[string]float64, len(raw))
	for _, t := range raw {
		if !strings.HasSuffix(t.Symbol, quoteSuffix) {
			continue
		}
		out[coin(t.Symbol)] = parseF(t.Price)
	}
	return out, nil
}

// GetAssetMetadata returns mark prices and leverage info per symbol.
func (c *Client) GetAssetMetadata(ctx context.Context) (map[string]common.AssetMeta, error) {
	body, err := c.doPublic(ctx, "/fapi/v1/premiumIndex", nil)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Symbol    string `json:"symbol"`
		MarkPrice string `json:"markPrice"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode premium index: %w", err)
	}
	out := make(map[string]common.AssetMeta, len(raw))
	for _, m := range raw {
		if !strings.HasSuffix(m.Symbol, quoteSuffix) {
			continue
		}
		sym := coin(m.Symbol)
		out[sym] = common.AssetMeta{Symbol: sym, MarkPrice: parseF(m.MarkPrice)}
	}
	return out, nil
}

// SetLeverage sets leverage for a symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", pair(symbol))
	params.Set("leverage", strconv.Itoa(leverage))
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	_, err := c.doSigned(ctx, http.MethodPost, c.baseURL+"/fapi/v1/leverage", params)
	return err
}

// doSigned signs and sends an authenticated request.
func (c *Client) doSigned(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	// The signature covers the encoded payload and must come last.
	encoded := params.Encode()
	encoded += "&signature=" + sign(encoded, c.cfg.APISecret)

	var (
		req *http.Request
		err error
	)
	switch method {
	case http.MethodGet, http.MethodDelete:
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)

	return c.send(req)
}

func (c *Client) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.send(req)
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	c.rateLimiter.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("binance futures %s %s status %d: %s", req.Method, req.URL.Path, res.StatusCode, string(body))
	}
	return body, nil
}

type orderResp struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	ExecutedQty   string `json:"executedQty"`
	AvgPrice      string `json:"avgPrice"`
}

type openOrder struct {
	OrderID int64  `json:"orderId"`
	Symbol  string `json:"symbol"`
	Side    string `json:"side"`
	OrigQty string `json:"origQty"`
	Price   string `json:"price"`
	Time    int64  `json:"time"`
}

type accountInfo struct {
	TotalMarginBalance string `json:"totalMarginBalance"`
	TotalInitialMargin string `json:"totalInitialMargin"`
	Positions          []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		UnRealizedProfit string `json:"unRealizedProfit"`
		Leverage         string `json:"leverage"`
	} `json:"positions"`
}

func mapStatus(s string) common.OrderStatus {
	switch s {
	case "NEW":
		return common.StatusNew
	case "PARTIALLY_FILLED":
		return common.StatusPartial
	case "FILLED":
		return common.StatusFilled
	case "CANCELED":
		return common.StatusCanceled
	case "REJECTED":
		return common.StatusRejected
	case "EXPIRED":
		return common.StatusExpired
	default:
		return common.StatusUnknown
	}
}

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
