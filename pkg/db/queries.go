package db

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("not found")

// GetOrder fetches one order by its local ID.
func (d *Database) GetOrder(ctx context.Context, id string) (Order, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, exchange_order_id, symbol, side, category, type, price, qty, status, created_at, updated_at
		FROM orders WHERE id = ?
	`, id)

	var o Order
	err := row.Scan(&o.ID, &o.ExchangeOrderID, &o.Symbol, &o.Side, &o.Category, &o.Type, &o.Price, &o.Qty, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// ListRecentTrades returns the latest trades, newest first.
func (d *Database) ListRecentTrades(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, order_id, symbol, side, category, price, qty, created_at
		FROM trades ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Symbol, &t.Side, &t.Category, &t.Price, &t.Qty, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListRecentSignals returns the latest journaled signals for a symbol.
func (d *Database) ListRecentSignals(ctx context.Context, symbol string, limit int) ([]SignalRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, direction, buy_strength, sell_strength, hold_strength, advice, price, created_at
		FROM signals WHERE symbol = ? ORDER BY created_at DESC LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignalRow
	for rows.Next() {
		var s SignalRow
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Direction, &s.BuyStrength, &s.SellStrength, &s.HoldStrength, &s.Advice, &s.Price, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
