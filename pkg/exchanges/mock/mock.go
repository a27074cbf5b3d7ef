// Package mock provides a deterministic in-memory exchange for dry runs and
// tests. Market orders fill instantly at the posted mark price; limit orders
// rest until Fill or Cancel is called.
package mock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"perp-trader/pkg/exchanges/common"
)

// Exchange simulates a perp venue.
type Exchange struct {
	mu sync.Mutex

	balance   float64
	prices    map[string]float64
	positions map[string]*common.Position
	orders    map[string]*restingOrder
	nextID    int64
	leverage  int

	// failures to inject before the next submissions succeed
	failSubmits int
	// when true, market orders rest instead of filling instantly
	RestOrders bool
}

type restingOrder struct {
	order  common.OpenOrder
	status common.OrderStatus
}

// New creates a mock exchange with the given starting balance.
func New(balance float64, leverage int) *Exchange {
	return &Exchange{
		balance:   balance,
		prices:    make(map[string]float64),
		positions: make(map[string]*common.Position),
		orders:    make(map[string]*restingOrder),
		leverage:  leverage,
	}
}

// SetPrice posts a mark price for a symbol.
func (e *Exchange) SetPrice(symbol string, price float64) {
	e.mu.Lock()
	e.prices[symbol] = price
	e.mu.Unlock()
}

// SetPosition seeds a position directly (test setup).
func (e *Exchange) SetPosition(symbol string, qty, entry float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if qty == 0 {
		delete(e.positions, symbol)
		return
	}
	e.positions[symbol] = &common.Position{
		Symbol: symbol, Qty: qty, EntryPrice: entry, Leverage: e.leverage,
	}
}

// FailNextSubmits makes the next n SubmitOrder calls return an error.
func (e *Exchange) FailNextSubmits(n int) {
	e.mu.Lock()
	e.failSubmits = n
	e.mu.Unlock()
}

// GetAccountState reports the simulated account.
func (e *Exchange) GetAccountState(ctx context.Context) (common.AccountState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := common.AccountState{}
	marginUsed := 0.0
	for _, p := range e.positions {
		price := e.prices[p.Symbol]
		if price == 0 {
			price = p.EntryPrice
		}
		pos := *p
		pos.UnrealizedPnL = (price - p.EntryPrice) * p.Qty
		state.Positions = append(state.Positions, pos)
		marginUsed += math.Abs(p.Qty) * price / float64(e.leverage)
	}
	state.Margin = common.MarginSummary{
		AccountValue:    e.balance,
		TotalMarginUsed: marginUsed,
	}
	for _, o := range e.orders {
		if o.status == common.StatusNew {
			state.OpenOrders = append(state.OpenOrders, o.order)
		}
	}
	return state, nil
}

// SubmitOrder places an order. Market orders fill at the posted price unless
// RestOrders is set.
func (e *Exchange) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failSubmits > 0 {
		e.failSubmits--
		return common.OrderResult{}, errors.New("mock exchange: injected submit failure")
	}
	if req.Qty <= 0 {
		return common.OrderResult{}, fmt.Errorf("mock exchange: non-positive qty %v", req.Qty)
	}

	e.nextID++
	id := strconv.FormatInt(e.nextID, 10)

	if req.Type == common.OrderTypeMarket && !e.RestOrders {
		price := e.prices[req.Symbol]
		if price == 0 {
			return common.OrderResult{}, fmt.Errorf("mock exchange: no price for %s", req.Symbol)
		}
		e.applyFill(req.Symbol, req.Side, req.Qty, price)
		return common.OrderResult{
			ExchangeOrderID: id,
			Status:          common.StatusFilled,
			ClientID:        req.ClientID,
			FilledQty:       req.Qty,
			AvgPrice:        price,
		}, nil
	}

	price := req.Price
	if price == 0 {
		price = e.prices[req.Symbol]
	}
	e.orders[id] = &restingOrder{
		order: common.OpenOrder{
			OrderID:   id,
			Symbol:    req.Symbol,
			Side:      req.Side,
			Qty:       req.Qty,
			Price:     price,
			CreatedAt: time.Now(),
		},
		status: common.StatusNew,
	}
	return common.OrderResult{ExchangeOrderID: id, Status: common.StatusNew, ClientID: req.ClientID}, nil
}

// Fill force-fills a resting order (test control).
func (e *Exchange) Fill(orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok || o.status != common.StatusNew {
		return fmt.Errorf("mock exchange: order %s not resting", orderID)
	}
	o.status = common.StatusFilled
	e.applyFill(o.order.Symbol, o.order.Side, o.order.Qty, o.order.Price)
	return nil
}

// CancelOrder cancels a resting order.
func (e *Exchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return fmt.Errorf("mock exchange: unknown order %s", orderID)
	}
	if o.status == common.StatusNew {
		o.status = common.StatusCanceled
	}
	return nil
}

// GetOrderStatus reports a resting order's status.
func (e *Exchange) GetOrderStatus(ctx context.Context, symbol, orderID string) (common.OrderStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return common.StatusUnknown, fmt.Errorf("mock exchange: unknown order %s", orderID)
	}
	return o.status, nil
}

// GetAllMidPrices returns the posted prices.
func (e *Exchange) GetAllMidPrices(ctx context.Context) (map[string]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64, len(e.prices))
	for k, v := range e.prices {
		out[k] = v
	}
	return out, nil
}

// GetAssetMetadata mirrors the posted prices as mark prices.
func (e *Exchange) GetAssetMetadata(ctx context.Context) (map[string]common.AssetMeta, error) {
	mids, _ := e.GetAllMidPrices(ctx)
	out := make(map[string]common.AssetMeta, len(mids))
	for sym, price := range mids {
		out[sym] = common.AssetMeta{Symbol: sym, MarkPrice: price}
	}
	return out, nil
}

// applyFill nets a fill into the position book. Caller holds the lock.
func (e *Exchange) applyFill(symbol string, side common.Side, qty, price float64) {
	delta := qty
	if side == common.SideSell {
		delta = -qty
	}

	p, ok := e.positions[symbol]
	if !ok {
		e.positions[symbol] = &common.Position{
			Symbol: symbol, Qty: delta, EntryPrice: price, Leverage: e.leverage,
		}
		return
	}

	newQty := p.Qty + delta
	switch {
	case newQty == 0:
		e.balance += (price - p.EntryPrice) * p.Qty
		delete(e.positions, symbol)
	case (p.Qty > 0) == (newQty > 0) && math.Abs(newQty) > math.Abs(p.Qty):
		// adding to the same side: blend entry
		p.EntryPrice = (p.EntryPrice*math.Abs(p.Qty) + price*qty) / math.Abs(newQty)
		p.Qty = newQty
	default:
		// partial reduce or flip: realize PnL on the closed portion
		closed := math.Min(math.Abs(delta), math.Abs(p.Qty))
		sign := 1.0
		if p.Qty < 0 {
			sign = -1
		}
		e.balance += (price - p.EntryPrice) * closed * sign
		p.Qty = newQty
		if (p.Qty > 0) != (sign > 0) {
			p.EntryPrice = price
		}
	}
}
