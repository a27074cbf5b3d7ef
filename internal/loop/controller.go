// Package loop runs the periodic decision cycle: reconcile, observe, decide,
// act. One trade per symbol class per tick, with hard fail-stop on repeated
// errors.
package loop

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"perp-trader/internal/events"
	"perp-trader/internal/indicators"
	"perp-trader/internal/market"
	"perp-trader/internal/order"
	"perp-trader/internal/risk"
	"perp-trader/internal/signal"
	"perp-trader/internal/state"
	"perp-trader/pkg/catalog"
	"perp-trader/pkg/config"
	"perp-trader/pkg/db"
	"perp-trader/pkg/exchanges/common"
)

const (
	maxConsecutiveErrors = 5
	symbolLockFor        = 60 * time.Second
	sleepSlice           = time.Second
	maxBackoff           = 300 * time.Second
	historyLimit         = 100
)

// Controller owns one run of the trading cycle.
type Controller struct {
	cfg     config.TradingConfig
	client  common.Client
	feed    *market.Feed
	engine  *indicators.Engine
	risk    *risk.Manager
	orders  *order.Manager
	store   *state.Store
	bus     *events.Bus
	db      *db.Database
	catalog *catalog.Catalog

	tickInterval time.Duration
	lockFor      time.Duration
	backoffUnit  time.Duration
	locks        map[string]time.Time

	tick        int64
	consecutive int

	// margin is the working margin view for the current tick, refreshed
	// after every executed trade.
	margin risk.MarginState
}

// Deps bundles the controller's collaborators.
type Deps struct {
	Client  common.Client
	Feed    *market.Feed
	Risk    *risk.Manager
	Orders  *order.Manager
	Store   *state.Store
	Bus     *events.Bus
	DB      *db.Database
	Catalog *catalog.Catalog
}

// NewController wires a controller from config and dependencies.
func NewController(cfg config.TradingConfig, d Deps) *Controller {
	ind := indicators.DefaultConfig()
	ind.EnableMA = cfg.EnableMA
	ind.EnableRSI = cfg.EnableRSI
	ind.EnableMACD = cfg.EnableMACD
	ind.EnableBollinger = cfg.EnableBollinger

	return &Controller{
		cfg:          cfg,
		client:       d.Client,
		feed:         d.Feed,
		engine:       indicators.NewEngine(ind),
		risk:         d.Risk,
		orders:       d.Orders,
		store:        d.Store,
		bus:          d.Bus,
		db:           d.DB,
		catalog:      d.Catalog,
		tickInterval: time.Duration(cfg.TickIntervalS) * time.Second,
		lockFor:      symbolLockFor,
		backoffUnit:  30 * time.Second,
		locks:        make(map[string]time.Time),
	}
}

// Run drives ticks until ctx is cancelled or the error budget is spent.
func (c *Controller) Run(ctx context.Context) {
	log.Printf("[loop] starting: %d symbols, tick %s, policy %s", len(c.cfg.Symbols), c.tickInterval, c.cfg.Policy)
	for {
		if err := c.RunTick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.consecutive++
			log.Printf("[loop] tick failed (%d consecutive): %v", c.consecutive, err)
			if c.consecutive >= maxConsecutiveErrors {
				msg := fmt.Sprintf("halted after %d consecutive tick failures: %v", c.consecutive, err)
				log.Printf("[loop] %s", msg)
				c.store.SetHalted(msg)
				c.publish(events.EventLoopHalted, msg)
				c.journalEvent(ctx, "halt", msg)
				return
			}
			backoff := time.Duration(c.consecutive) * c.backoffUnit
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			if !c.sleep(ctx, backoff) {
				return
			}
			continue
		}
		c.consecutive = 0
		if !c.sleep(ctx, c.tickInterval) {
			return
		}
	}
}

// RunTick executes one full decision cycle.
func (c *Controller) RunTick(ctx context.Context) error {
	started := time.Now()

	// Settle resting orders before reading the account so positions reflect
	// anything that filled since the last tick.
	c.orders.CheckPending(ctx)

	acct, err := c.client.GetAccountState(ctx)
	if err != nil {
		return fmt.Errorf("account state: %w", err)
	}
	c.orders.SyncExchangeOrders(acct.OpenOrders)
	c.store.ReplacePositions(acct.Positions)
	c.margin = c.risk.ComputeMarginState(
		acct.Margin.AccountValue,
		acct.Margin.TotalMarginUsed,
		c.orders.PendingEstimates(c.cfg.Leverage),
	)
	c.store.SetMargin(c.margin)

	symbols := c.evaluateSymbols(ctx, acct)

	traded := false
	reduced := c.reduceOverweight(ctx, symbols)
	if reduced {
		traded = true
	}
	if c.manageExits(ctx, symbols) {
		traded = true
	}
	if c.protectProfits(ctx, symbols) {
		traded = true
	}
	// Exit and protection trades do not consume the tick's signal trade;
	// only a risk reduction does.
	if !reduced && c.executeBestIntent(ctx, symbols) {
		traded = true
	}

	c.tick++
	c.store.SetTick(c.tick)
	c.publish(events.EventTickSummary, events.TickSummary{
		Tick:         c.tick,
		AccountValue: c.margin.AccountValue,
		MarginRatio:  c.margin.EffectiveRatio(),
		OpenSymbols:  len(acct.Positions),
		Traded:       traded,
		DurationMs:   time.Since(started).Milliseconds(),
	})
	return nil
}

// symbolView is the per-symbol working set for one tick.
type symbolView struct {
	symbol   string
	price    float64
	closes   []float64
	position common.Position
	decision signal.Decision
}

func (c *Controller) evaluateSymbols(ctx context.Context, acct common.AccountState) []*symbolView {
	positions := make(map[string]common.Position, len(acct.Positions))
	for _, p := range acct.Positions {
		positions[p.Symbol] = p
	}

	weights := c.cfg.IndicatorWeights()
	out := make([]*symbolView, 0, len(c.cfg.Symbols))
	for _, sym := range c.cfg.Symbols {
		view := &symbolView{
			symbol:   sym,
			price:    c.feed.GetPrice(ctx, sym),
			position: positions[sym],
		}

		closes, err := c.feed.GetHistoricalCloses(ctx, sym, c.cfg.Interval, historyLimit)
		if err != nil {
			log.Printf("[loop] history for %s unavailable: %v", sym, err)
		}
		view.closes = closes

		snap := c.engine.Evaluate(closes)
		view.decision = signal.Aggregate(signal.Input{
			Snapshot:       snap,
			Weights:        weights,
			PositionQty:    view.position.Qty,
			CanAddExposure: c.risk.CanAddExposure(c.margin, sym, view.position.Qty, view.price),
			Threshold:      c.cfg.SignalThreshold,
			Policy:         signal.Policy(c.cfg.Policy),
		})

		c.store.SetSignal(state.SignalView{
			Symbol:    sym,
			Direction: string(view.decision.Direction),
			Advice:    view.decision.Advice,
			Strength:  view.decision.Strength,
			Price:     view.price,
			UpdatedAt: time.Now(),
		})
		c.journalSignal(ctx, view)
		c.publish(events.EventSignalSnapshot, map[string]any{
			"symbol": sym, "direction": string(view.decision.Direction), "price": view.price,
		})
		out = append(out, view)
	}
	return out
}

// reduceOverweight trims the single worst cap violation. At most one
// reduction per tick.
func (c *Controller) reduceOverweight(ctx context.Context, views []*symbolView) bool {
	for _, v := range views {
		if math.Abs(v.position.Qty) <= signal.FlatEpsilon {
			continue
		}
		red, ok := c.risk.ReduceExposure(c.margin, v.symbol, v.position.Qty, v.price)
		if !ok {
			continue
		}
		size := c.roundSize(v.symbol, math.Abs(v.position.Qty)*red.Fraction)
		if size <= 0 {
			continue
		}
		c.alert(v.symbol, red.Reason)
		if c.execute(ctx, order.Request{
			Symbol:     v.symbol,
			Side:       closingSide(v.position.Qty),
			Size:       size,
			Price:      v.price,
			Type:       common.OrderTypeMarket,
			Category:   "reduceRisk",
			ReduceOnly: true,
		}, red.Reason) {
			return true
		}
	}
	return false
}

// manageExits applies stop-loss and take-profit on open positions. A strong
// same-direction signal lets a winner run past the take-profit line.
func (c *Controller) manageExits(ctx context.Context, views []*symbolView) bool {
	acted := false
	for _, v := range views {
		v.position = c.store.Position(v.symbol)
		if math.Abs(v.position.Qty) <= signal.FlatEpsilon {
			continue
		}
		pnl := c.risk.PnLPct(v.position.EntryPrice, v.price, v.position.Qty)

		if pnl <= -c.cfg.StopLossPct {
			reason := fmt.Sprintf("stop loss: %.1f%% at or under -%.1f%%", pnl, c.cfg.StopLossPct)
			if c.closePosition(ctx, v, "stopOut", reason) {
				acted = true
			}
			continue
		}

		if pnl >= c.cfg.TakeProfitPct {
			if c.sameDirectionStrength(v) >= c.cfg.ProfitSignalThreshold {
				log.Printf("[loop] %s at +%.1f%% but signal still strong, letting it run", v.symbol, pnl)
				continue
			}
			reason := fmt.Sprintf("take profit: %.1f%% at or over %.1f%%", pnl, c.cfg.TakeProfitPct)
			if c.closePosition(ctx, v, "takeProfit", reason) {
				acted = true
			}
		}
	}
	return acted
}

// protectProfits locks in part of a moderate winner when momentum fades.
// At most one protective cut per tick.
func (c *Controller) protectProfits(ctx context.Context, views []*symbolView) bool {
	for _, v := range views {
		v.position = c.store.Position(v.symbol)
		if math.Abs(v.position.Qty) <= signal.FlatEpsilon {
			continue
		}
		pnl := c.risk.PnLPct(v.position.EntryPrice, v.price, v.position.Qty)
		red, ok := c.risk.ProfitProtection(pnl, v.closes, v.position.Qty, v.price)
		if !ok {
			continue
		}
		size := c.roundSize(v.symbol, math.Abs(v.position.Qty)*red.Fraction)
		if size <= 0 {
			continue
		}
		if c.execute(ctx, order.Request{
			Symbol:     v.symbol,
			Side:       closingSide(v.position.Qty),
			Size:       size,
			Price:      v.price,
			Type:       common.OrderTypeMarket,
			Category:   "profitProtect",
			ReduceOnly: true,
		}, red.Reason) {
			return true
		}
	}
	return false
}

// executeBestIntent classifies directional decisions into increase, open and
// decrease buckets and works through them in that strict order, highest
// conviction first within each bucket. At most one signal-driven trade per
// tick.
func (c *Controller) executeBestIntent(ctx context.Context, views []*symbolView) bool {
	type intent struct {
		view  *symbolView
		score float64
	}

	openCount := 0
	for _, v := range views {
		if math.Abs(v.position.Qty) > signal.FlatEpsilon {
			openCount++
		}
	}

	var increases, opens, decreases []intent
	for _, v := range views {
		if v.decision.Direction == signal.DirectionHold {
			continue
		}
		if c.locked(v.symbol) {
			log.Printf("[loop] %s recently traded, skipping", v.symbol)
			continue
		}
		in := intent{view: v, score: math.Max(v.decision.Strength.Buy, v.decision.Strength.Sell)}
		flat := math.Abs(v.position.Qty) <= signal.FlatEpsilon
		long := v.position.Qty > signal.FlatEpsilon
		switch {
		case flat:
			opens = append(opens, in)
		case (long && v.decision.Direction == signal.DirectionBuy) ||
			(!long && v.decision.Direction == signal.DirectionSell):
			increases = append(increases, in)
		default:
			decreases = append(decreases, in)
		}
	}

	byScore := func(in []intent) {
		sort.SliceStable(in, func(i, j int) bool { return in[i].score > in[j].score })
	}
	byScore(increases)
	byScore(opens)
	byScore(decreases)

	for _, in := range increases {
		if c.tradeSignal(ctx, in.view, "increase", openCount) {
			return true
		}
	}
	for _, in := range opens {
		if c.tradeSignal(ctx, in.view, "open", openCount) {
			return true
		}
	}
	for _, in := range decreases {
		v := in.view
		reason := fmt.Sprintf("signal reversal: %s", v.decision.Advice)
		if c.closePosition(ctx, v, "decrease", reason) {
			return true
		}
	}
	return false
}

// tradeSignal sizes and submits one open or increase intent.
func (c *Controller) tradeSignal(ctx context.Context, v *symbolView, category string, openCount int) bool {
	opening := category == "open"
	check := c.risk.CheckTrade(c.margin, v.symbol, opening, openCount, c.orders.HasPending(v.symbol))
	if !check.Allowed {
		c.reject(v, category, check.Reason)
		return false
	}
	if check.Warning != "" {
		log.Printf("[loop] %s: %s", v.symbol, check.Warning)
	}
	size := math.Abs(c.risk.SizePosition(c.margin, v.symbol, v.decision.Direction == signal.DirectionBuy,
		check.AvailableMargin, v.position.Qty, v.price))
	if size == 0 {
		c.reject(v, category, "position sizing produced no tradable size")
		return false
	}
	side := common.SideBuy
	if v.decision.Direction == signal.DirectionSell {
		side = common.SideSell
	}
	return c.execute(ctx, order.Request{
		Symbol:   v.symbol,
		Side:     side,
		Size:     size,
		Price:    v.price,
		Type:     common.OrderTypeMarket,
		Category: category,
	}, v.decision.Advice)
}

func (c *Controller) closePosition(ctx context.Context, v *symbolView, category, reason string) bool {
	size := c.roundSize(v.symbol, math.Abs(v.position.Qty))
	if size <= 0 {
		return false
	}
	return c.execute(ctx, order.Request{
		Symbol:     v.symbol,
		Side:       closingSide(v.position.Qty),
		Size:       size,
		Price:      v.price,
		Type:       common.OrderTypeMarket,
		Category:   category,
		ReduceOnly: true,
	}, reason)
}

// execute submits one request and refreshes the margin view on success.
func (c *Controller) execute(ctx context.Context, req order.Request, reason string) bool {
	out, err := c.orders.Execute(ctx, req)
	if err != nil {
		log.Printf("[loop] %s %s %s failed: %v", req.Category, req.Side, req.Symbol, err)
		c.publish(events.EventTradeRejected, events.TradeRecord{
			Symbol: req.Symbol, Side: string(req.Side), Category: req.Category,
			Size: req.Size, Price: req.Price, Reason: out.Reason,
		})
		return false
	}

	log.Printf("[loop] %s %s %s size=%v price=%v outcome=%s (%s)",
		req.Category, req.Side, req.Symbol, req.Size, req.Price, out.Kind, reason)
	c.publish(events.EventTradeExecuted, events.TradeRecord{
		Symbol: req.Symbol, Side: string(req.Side), Category: req.Category,
		Size: req.Size, Price: req.Price, Reason: reason,
	})
	c.locks[req.Symbol] = time.Now()
	c.refreshMargin(ctx)
	return true
}

// refreshMargin re-reads the account after a trade so later checks in the
// same tick see the committed margin.
func (c *Controller) refreshMargin(ctx context.Context) {
	acct, err := c.client.GetAccountState(ctx)
	if err != nil {
		log.Printf("[loop] margin refresh failed: %v", err)
		return
	}
	c.orders.SyncExchangeOrders(acct.OpenOrders)
	c.store.ReplacePositions(acct.Positions)
	c.margin = c.risk.ComputeMarginState(
		acct.Margin.AccountValue,
		acct.Margin.TotalMarginUsed,
		c.orders.PendingEstimates(c.cfg.Leverage),
	)
	c.store.SetMargin(c.margin)
}

func (c *Controller) locked(symbol string) bool {
	at, ok := c.locks[symbol]
	return ok && time.Since(at) < c.lockFor
}

func (c *Controller) reject(v *symbolView, category, reason string) {
	log.Printf("[loop] %s %s rejected: %s", category, v.symbol, reason)
	c.publish(events.EventTradeRejected, events.TradeRecord{
		Symbol: v.symbol, Category: category, Price: v.price, Reason: reason,
	})
}

func (c *Controller) alert(symbol, reason string) {
	c.publish(events.EventRiskAlert, events.RiskAlert{
		Symbol: symbol, Reason: reason, Ratio: c.margin.EffectiveRatio(),
	})
}

func (c *Controller) sameDirectionStrength(v *symbolView) float64 {
	if v.position.Qty > 0 {
		return v.decision.Strength.Buy
	}
	return v.decision.Strength.Sell
}

func (c *Controller) roundSize(symbol string, size float64) float64 {
	prec := c.catalog.Get(symbol).SizePrecision
	if prec <= 0 {
		return math.Trunc(size)
	}
	factor := math.Pow(10, float64(prec))
	return math.Round(size*factor) / factor
}

func (c *Controller) journalSignal(ctx context.Context, v *symbolView) {
	if c.db == nil {
		return
	}
	err := c.db.CreateSignal(ctx, db.SignalRow{
		Symbol:       v.symbol,
		Direction:    string(v.decision.Direction),
		BuyStrength:  v.decision.Strength.Buy,
		SellStrength: v.decision.Strength.Sell,
		HoldStrength: v.decision.Strength.Hold,
		Advice:       v.decision.Advice,
		Price:        v.price,
	})
	if err != nil {
		log.Printf("[loop] journal signal for %s: %v", v.symbol, err)
	}
}

func (c *Controller) journalEvent(ctx context.Context, kind, detail string) {
	if c.db == nil {
		return
	}
	if err := c.db.CreateLoopEvent(ctx, kind, detail); err != nil {
		log.Printf("[loop] journal event: %v", err)
	}
}

func (c *Controller) publish(e events.Event, payload any) {
	if c.bus != nil {
		c.bus.Publish(e, payload)
	}
}

// sleep waits for d in one-second slices so shutdown stays responsive.
func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := sleepSlice
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(slice):
		}
	}
}

func closingSide(qty float64) common.Side {
	if qty > 0 {
		return common.SideSell
	}
	return common.SideBuy
}
