package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := ApplyMigrations(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func TestOrderLifecycle(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	order := Order{
		ID:              "local-1",
		ExchangeOrderID: "ex-1",
		Symbol:          "ETH",
		Side:            "BUY",
		Category:        "open",
		Type:            "MARKET",
		Price:           3000,
		Qty:             1.5,
		Status:          "NEW",
	}
	if err := d.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := d.UpdateOrderStatus(ctx, "local-1", "FILLED"); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := d.GetOrder(ctx, "local-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "FILLED" || got.Symbol != "ETH" {
		t.Fatalf("order=%+v, expected filled ETH order", got)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	d := newTestDB(t)
	if _, err := d.GetOrder(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, expected ErrNotFound", err)
	}
}

func TestTradeAndSignalJournal(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	if err := d.CreateTrade(ctx, Trade{
		ID: "t-1", OrderID: "local-1", Symbol: "ETH", Side: "BUY",
		Category: "open", Price: 3000, Qty: 1,
	}); err != nil {
		t.Fatalf("trade: %v", err)
	}
	if err := d.CreateSignal(ctx, SignalRow{
		Symbol: "ETH", Direction: "buy",
		BuyStrength: 0.7, SellStrength: 0.1, HoldStrength: 0.2,
		Advice: "open long", Price: 3000,
	}); err != nil {
		t.Fatalf("signal: %v", err)
	}

	trades, err := d.ListRecentTrades(ctx, 10)
	if err != nil {
		t.Fatalf("list trades: %v", err)
	}
	if len(trades) != 1 || trades[0].Symbol != "ETH" {
		t.Fatalf("trades=%+v, expected one ETH trade", trades)
	}

	signals, err := d.ListRecentSignals(ctx, "ETH", 10)
	if err != nil {
		t.Fatalf("list signals: %v", err)
	}
	if len(signals) != 1 || signals[0].Direction != "buy" {
		t.Fatalf("signals=%+v, expected one buy row", signals)
	}
}

func TestLoopEventJournal(t *testing.T) {
	d := newTestDB(t)
	if err := d.CreateLoopEvent(context.Background(), "halt", "5 consecutive errors"); err != nil {
		t.Fatalf("loop event: %v", err)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	d := newTestDB(t)
	if err := ApplyMigrations(d); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
}
