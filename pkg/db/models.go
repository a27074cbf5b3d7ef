package db

import (
	"context"
	"time"
)

// Order represents a trading order stored in the DB.
type Order struct {
	ID              string
	ExchangeOrderID string
	Symbol          string
	Side            string
	Category        string
	Type            string
	Price           float64
	Qty             float64
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Trade represents an executed trade stored in the DB.
type Trade struct {
	ID        string
	OrderID   string
	Symbol    string
	Side      string
	Category  string
	Price     float64
	Qty       float64
	CreatedAt time.Time
}

// SignalRow is one journaled per-symbol signal snapshot.
type SignalRow struct {
	ID           int64
	Symbol       string
	Direction    string
	BuyStrength  float64
	SellStrength float64
	HoldStrength float64
	Advice       string
	Price        float64
	CreatedAt    time.Time
}

// CreateOrder inserts a new order row.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (
			id, exchange_order_id, symbol, side, category, type, price, qty, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID, o.ExchangeOrderID, o.Symbol, o.Side, o.Category, o.Type, o.Price, o.Qty, o.Status,
	)
	return err
}

// UpdateOrderStatus moves an order to a new status.
func (d *Database) UpdateOrderStatus(ctx context.Context, id, status string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, id)
	return err
}

// CreateTrade inserts a new trade row.
func (d *Database) CreateTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (
			id, order_id, symbol, side, category, price, qty
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.OrderID, t.Symbol, t.Side, t.Category, t.Price, t.Qty,
	)
	return err
}

// CreateSignal journals one signal snapshot.
func (d *Database) CreateSignal(ctx context.Context, s SignalRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO signals (
			symbol, direction, buy_strength, sell_strength, hold_strength, advice, price
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		s.Symbol, s.Direction, s.BuyStrength, s.SellStrength, s.HoldStrength, s.Advice, s.Price,
	)
	return err
}

// CreateLoopEvent journals a control-loop event (halt, backoff, reload).
func (d *Database) CreateLoopEvent(ctx context.Context, kind, detail string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO loop_events (kind, detail) VALUES (?, ?)
	`, kind, detail)
	return err
}
