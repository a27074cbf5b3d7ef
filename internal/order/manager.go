package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"perp-trader/internal/events"
	"perp-trader/internal/risk"
	"perp-trader/pkg/catalog"
	"perp-trader/pkg/db"
	"perp-trader/pkg/exchanges/common"
)

const (
	maxAttempts    = 2
	retryBackoff   = 2 * time.Second
	settleDelay    = 3 * time.Second
	pendingTimeout = 5 * time.Minute
	// hardDropAfter removes entries whose status cannot be examined,
	// regardless of failures, so the tracker never leaks.
	hardDropAfter = 10 * time.Minute

	positionDeltaEps = 0.0001
)

// ErrDuplicatePending is returned when an order for (symbol, side) is
// already pending locally or on the exchange.
var ErrDuplicatePending = errors.New("order already pending for symbol and side")

// Manager owns the pending-order registry and the submission state machine.
type Manager struct {
	client  common.Client
	db      *db.Database
	bus     *events.Bus
	catalog *catalog.Catalog

	retryBackoff time.Duration
	settleDelay  time.Duration

	mu           sync.Mutex
	pending      map[string]*PendingOrder
	exchangeOpen []common.OpenOrder
}

// NewManager builds an order manager.
func NewManager(client common.Client, database *db.Database, bus *events.Bus, cat *catalog.Catalog) *Manager {
	return &Manager{
		client:       client,
		db:           database,
		bus:          bus,
		catalog:      cat,
		retryBackoff: retryBackoff,
		settleDelay:  settleDelay,
		pending:      make(map[string]*PendingOrder),
	}
}

// SetTimings overrides the retry backoff and post-fill settle delay. Dry
// runs against the in-memory exchange have nothing to wait for.
func (m *Manager) SetTimings(retry, settle time.Duration) {
	m.retryBackoff = retry
	m.settleDelay = settle
}

// SyncExchangeOrders replaces the exchange-side open-orders view used for
// the duplicate check. Called by the loop after each account pull, since
// local tracking can lag the venue.
func (m *Manager) SyncExchangeOrders(orders []common.OpenOrder) {
	m.mu.Lock()
	m.exchangeOpen = orders
	m.mu.Unlock()
}

// HasPending reports whether any tracked order is pending for symbol.
func (m *Manager) HasPending(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pending {
		if p.Symbol == symbol && p.Status == PendingOpen {
			return true
		}
	}
	return false
}

// Pending returns a copy of all tracked pending orders.
func (m *Manager) Pending() []PendingOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PendingOrder, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, *p)
	}
	return out
}

// PendingEstimates converts tracked orders into margin estimates.
func (m *Manager) PendingEstimates(leverage int) []risk.PendingEstimate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]risk.PendingEstimate, 0, len(m.pending))
	for _, p := range m.pending {
		if p.Status != PendingOpen {
			continue
		}
		out = append(out, risk.PendingEstimate{Size: p.Size, Price: p.Price, Leverage: leverage})
	}
	return out
}

func (m *Manager) duplicateFor(symbol string, side common.Side) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pending {
		if p.Symbol == symbol && p.Side == side && p.Status == PendingOpen {
			return true
		}
	}
	for _, o := range m.exchangeOpen {
		if o.Symbol == symbol && o.Side == side {
			return true
		}
	}
	return false
}

// Execute drives one trade request through submission. Retries once on
// error, but re-checks the live position between attempts: an unexplained
// position delta is treated as the order having taken effect, overriding the
// error path, because a false negative beats a duplicate submission.
func (m *Manager) Execute(ctx context.Context, req Request) (Outcome, error) {
	if req.Size <= 0 {
		return Outcome{Kind: OutcomeFailed, Reason: "non-positive size"}, fmt.Errorf("order size %v", req.Size)
	}
	if m.duplicateFor(req.Symbol, req.Side) {
		return Outcome{Kind: OutcomeFailed, Reason: ErrDuplicatePending.Error()}, ErrDuplicatePending
	}

	before, err := m.positionQty(ctx, req.Symbol)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Reason: "account state unavailable"}, err
	}

	clientID := uuid.NewString()
	wire := common.OrderRequest{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Qty:        req.Size,
		ClientID:   clientID,
		ReduceOnly: req.ReduceOnly,
	}
	if req.Type == common.OrderTypeLimit {
		wire.Price = m.snapPrice(req.Symbol, req.Price)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		m.publish(events.EventOrderSubmitted, events.TradeRecord{
			Symbol: req.Symbol, Side: string(req.Side), Category: req.Category,
			Size: req.Size, Price: req.Price,
		})

		res, err := m.client.SubmitOrder(ctx, wire)
		if err == nil {
			return m.afterAccept(ctx, req, clientID, res)
		}
		lastErr = err
		log.Printf("[order] %s %s attempt %d failed: %v", req.Side, req.Symbol, attempt, err)

		if attempt == maxAttempts {
			break
		}
		if !sleepCtx(ctx, m.retryBackoff) {
			return Outcome{Kind: OutcomeFailed, Reason: "cancelled"}, ctx.Err()
		}

		// The error may have been on the response path only.
		after, perr := m.positionQty(ctx, req.Symbol)
		if perr == nil && math.Abs(after-before) > positionDeltaEps {
			log.Printf("[order] %s position moved %.6f -> %.6f after error; treating as filled", req.Symbol, before, after)
			return Outcome{Kind: OutcomeFilled, AvgPrice: req.Price}, nil
		}
	}

	return Outcome{Kind: OutcomeFailed, Reason: lastErr.Error()}, lastErr
}

func (m *Manager) afterAccept(ctx context.Context, req Request, clientID string, res common.OrderResult) (Outcome, error) {
	row := db.Order{
		ID:              clientID,
		ExchangeOrderID: res.ExchangeOrderID,
		Symbol:          req.Symbol,
		Side:            string(req.Side),
		Category:        req.Category,
		Type:            string(req.Type),
		Price:           req.Price,
		Qty:             req.Size,
		Status:          string(res.Status),
	}
	if m.db != nil {
		if err := m.db.CreateOrder(ctx, row); err != nil {
			log.Printf("[order] persist order %s: %v", clientID, err)
		}
	}

	if res.Status == common.StatusFilled {
		m.recordFill(ctx, clientID, req, res)
		// Give the venue a moment to settle before the caller reconciles.
		sleepCtx(ctx, m.settleDelay)
		price := res.AvgPrice
		if price == 0 {
			price = req.Price
		}
		return Outcome{Kind: OutcomeFilled, OrderID: res.ExchangeOrderID, AvgPrice: price}, nil
	}

	if res.Status == common.StatusRejected {
		return Outcome{Kind: OutcomeFailed, Reason: "rejected by exchange"}, fmt.Errorf("order %s rejected", clientID)
	}

	m.mu.Lock()
	m.pending[res.ExchangeOrderID] = &PendingOrder{
		OrderID:   res.ExchangeOrderID,
		ClientID:  clientID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Size:      req.Size,
		Price:     req.Price,
		Status:    PendingOpen,
		CreatedAt: time.Now(),
	}
	m.mu.Unlock()

	return Outcome{Kind: OutcomePending, OrderID: res.ExchangeOrderID}, nil
}

func (m *Manager) recordFill(ctx context.Context, clientID string, req Request, res common.OrderResult) {
	price := res.AvgPrice
	if price == 0 {
		price = req.Price
	}
	if m.db != nil {
		_ = m.db.UpdateOrderStatus(ctx, clientID, string(common.StatusFilled))
		_ = m.db.CreateTrade(ctx, db.Trade{
			ID:       uuid.NewString(),
			OrderID:  clientID,
			Symbol:   req.Symbol,
			Side:     string(req.Side),
			Category: req.Category,
			Price:    price,
			Qty:      req.Size,
		})
	}
	m.publish(events.EventOrderFilled, events.TradeRecord{
		Symbol: req.Symbol, Side: string(req.Side), Category: req.Category,
		Size: req.Size, Price: price,
	})
}

// positionQty pulls the live signed position for symbol from the exchange.
func (m *Manager) positionQty(ctx context.Context, symbol string) (float64, error) {
	state, err := m.client.GetAccountState(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range state.Positions {
		if p.Symbol == symbol {
			return p.Qty, nil
		}
	}
	return 0, nil
}

// snapPrice aligns a limit price to the asset's tick size.
func (m *Manager) snapPrice(symbol string, price float64) float64 {
	prec := m.catalog.Get(symbol).PricePrecision
	factor := math.Pow(10, float64(prec))
	return math.Round(price*factor) / factor
}

func (m *Manager) publish(e events.Event, payload any) {
	if m.bus != nil {
		m.bus.Publish(e, payload)
	}
}

// sleepCtx sleeps for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
