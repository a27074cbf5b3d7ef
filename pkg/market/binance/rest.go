// Package market wraps the Binance spot REST endpoints used as the secondary
// price source when the futures venue is unreachable.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client wraps public REST access to Binance spot market data.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a REST client; use testnet to switch base URLs.
func NewClient(testnet bool) *Client {
	base := "https://api.binance.com"
	if testnet {
		base = "https://testnet.binance.vision"
	}
	return &Client{
		BaseURL:    base,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetPrice fetches the latest trade price for a symbol pair (e.g. BTCUSDT).
func (c *Client) GetPrice(ctx context.Context, symbolPair string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbolPair)
	u := fmt.Sprintf("%s/api/v3/ticker/price?%s", c.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("binance ticker status %d", res.StatusCode)
	}

	var out struct {
		Price string `json:"price"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price: %w", err)
	}
	return price, nil
}

// GetCloses fetches the most recent close prices for a symbol pair,
// oldest first, newest last.
func (c *Client) GetCloses(ctx context.Context, symbolPair, interval string, limit int) ([]float64, error) {
	params := url.Values{}
	params.Set("symbol", symbolPair)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	u := fmt.Sprintf("%s/api/v3/klines?%s", c.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance klines status %d", res.StatusCode)
	}

	var raw [][]any
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, err
	}

	closes := make([]float64, 0, len(raw))
	for _, item := range raw {
		// Binance returns 12 fields per kline; index 4 is the close.
		if len(item) < 5 {
			continue
		}
		closes = append(closes, toFloat(item[4]))
	}
	return closes, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	default:
		return 0
	}
}
