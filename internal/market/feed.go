// Package market resolves prices for the control loop. The primary source is
// the trading venue itself; when it degrades the feed walks a fallback chain
// and escalates log severity the deeper it has to go.
package market

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"perp-trader/internal/events"
	"perp-trader/pkg/cache"
	"perp-trader/pkg/exchanges/common"
)

const freshFor = 20 * time.Second

// staticDefaults are last-resort prices used only when every live source and
// the cache have failed. They keep sizing math finite until a source recovers.
var staticDefaults = map[string]float64{
	"BTC": 110000,
	"ETH": 3500,
	"SOL": 160,
}

const staticFallback = 100.0

// SpotSource is the secondary market-data venue (spot REST).
type SpotSource interface {
	GetPrice(ctx context.Context, symbolPair string) (float64, error)
	GetCloses(ctx context.Context, symbolPair, interval string, limit int) ([]float64, error)
}

// Feed caches and resolves prices with a layered fallback chain.
type Feed struct {
	client   common.Client
	spot     SpotSource
	cache    *cache.PriceCache
	bus      *events.Bus
	freshFor time.Duration
}

// NewFeed builds a price feed. spot and bus may be nil.
func NewFeed(client common.Client, spot SpotSource, bus *events.Bus) *Feed {
	return &Feed{
		client:   client,
		spot:     spot,
		cache:    cache.New(),
		bus:      bus,
		freshFor: freshFor,
	}
}

// Pair maps a base coin to its USDT-quoted pair name.
func Pair(symbol string) string {
	return strings.ToUpper(symbol) + "USDT"
}

// Observe records an externally sourced price (websocket stream).
func (f *Feed) Observe(symbol string, price float64, source string) {
	if price <= 0 {
		return
	}
	f.cache.Set(symbol, price, source)
	if f.bus != nil {
		f.bus.Publish(events.EventPriceTick, map[string]any{"symbol": symbol, "price": price, "source": source})
	}
}

// GetPrice resolves the current price for a base coin. Resolution order:
// fresh cache, venue mid prices, venue mark prices, spot REST, stale cache,
// static default. It never returns zero.
func (f *Feed) GetPrice(ctx context.Context, symbol string) float64 {
	if price, _, ok := f.cache.GetFresh(symbol, f.freshFor); ok {
		return price
	}

	if mids, err := f.client.GetAllMidPrices(ctx); err == nil {
		for sym, p := range mids {
			if p > 0 {
				f.cache.Set(sym, p, "mid")
			}
		}
		if p, ok := mids[symbol]; ok && p > 0 {
			return p
		}
	} else {
		log.Printf("[market] mid prices unavailable: %v", err)
	}

	if meta, err := f.client.GetAssetMetadata(ctx); err == nil {
		if m, ok := meta[symbol]; ok && m.MarkPrice > 0 {
			f.cache.Set(symbol, m.MarkPrice, "mark")
			return m.MarkPrice
		}
	} else {
		log.Printf("[market] asset metadata unavailable: %v", err)
	}

	if f.spot != nil {
		if p, err := f.spot.GetPrice(ctx, Pair(symbol)); err == nil && p > 0 {
			f.cache.Set(symbol, p, "spot")
			return p
		} else if err != nil {
			log.Printf("[market] spot price for %s unavailable: %v", symbol, err)
		}
	}

	if p, age, ok := f.cache.GetAny(symbol); ok {
		log.Printf("[market] WARNING using stale cached price for %s (age %s)", symbol, age.Round(time.Second))
		return p
	}

	p := staticDefaults[symbol]
	if p == 0 {
		p = staticFallback
	}
	log.Printf("[market] ERROR all price sources failed for %s, using static default %.2f", symbol, p)
	return p
}

// GetPrices resolves prices for a set of base coins.
func (f *Feed) GetPrices(ctx context.Context, symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		out[sym] = f.GetPrice(ctx, sym)
	}
	return out
}

// GetHistoricalCloses fetches recent close prices for a base coin, oldest
// first. Indicator evaluation needs at least 60 samples.
func (f *Feed) GetHistoricalCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	if f.spot == nil {
		return nil, fmt.Errorf("no historical source configured")
	}
	closes, err := f.spot.GetCloses(ctx, Pair(symbol), interval, limit)
	if err != nil {
		return nil, fmt.Errorf("closes for %s: %w", symbol, err)
	}
	return closes, nil
}

// CleanupCache drops cache entries older than maxAge.
func (f *Feed) CleanupCache(maxAge time.Duration) int {
	return f.cache.Cleanup(maxAge)
}
