package state

import (
	"testing"

	"perp-trader/internal/risk"
	"perp-trader/pkg/exchanges/common"
)

func TestReplacePositionsIsWholesale(t *testing.T) {
	s := NewStore()
	s.ReplacePositions([]common.Position{
		{Symbol: "ETH", Qty: 1},
		{Symbol: "BTC", Qty: 0.5},
	})
	s.ReplacePositions([]common.Position{{Symbol: "SOL", Qty: 10}})

	if got := s.Position("ETH"); got.Qty != 0 {
		t.Fatalf("ETH=%+v, expected gone after replacement", got)
	}
	if got := s.Position("SOL"); got.Qty != 10 {
		t.Fatalf("SOL=%+v, expected qty 10", got)
	}
	if got := len(s.Positions()); got != 1 {
		t.Fatalf("positions=%d, expected 1", got)
	}
}

func TestMarginRoundTrip(t *testing.T) {
	s := NewStore()
	s.SetMargin(risk.MarginState{AccountValue: 10000, TotalMarginUsed: 2000})

	m := s.Margin()
	if m.AccountValue != 10000 || m.TotalMarginUsed != 2000 {
		t.Fatalf("margin=%+v, expected stored values", m)
	}
}

func TestSignalsOverwritePerSymbol(t *testing.T) {
	s := NewStore()
	s.SetSignal(SignalView{Symbol: "ETH", Direction: "buy"})
	s.SetSignal(SignalView{Symbol: "ETH", Direction: "hold"})

	sigs := s.Signals()
	if len(sigs) != 1 {
		t.Fatalf("signals=%d, expected 1", len(sigs))
	}
	if sigs[0].Direction != "hold" {
		t.Fatalf("direction=%s, expected the later write", sigs[0].Direction)
	}
}

func TestHaltedFlag(t *testing.T) {
	s := NewStore()
	if ok, _ := s.Halted(); ok {
		t.Fatal("new store reports halted")
	}
	s.SetHalted("boom")
	ok, msg := s.Halted()
	if !ok || msg != "boom" {
		t.Fatalf("halted=(%v,%q), expected (true, boom)", ok, msg)
	}
}
