package order

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"perp-trader/pkg/catalog"
	"perp-trader/pkg/exchanges/common"
	"perp-trader/pkg/exchanges/mock"
)

func newTestManager(t *testing.T) (*Manager, *mock.Exchange) {
	t.Helper()
	cat, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog load: %v", err)
	}
	ex := mock.New(10000, 3)
	mgr := NewManager(ex, nil, nil, cat)
	mgr.retryBackoff = 0
	mgr.settleDelay = 0
	return mgr, ex
}

func TestExecuteMarketOrderFills(t *testing.T) {
	mgr, ex := newTestManager(t)
	ex.SetPrice("ETH", 3000)

	out, err := mgr.Execute(context.Background(), Request{
		Symbol: "ETH", Side: common.SideBuy, Size: 1, Price: 3000,
		Type: common.OrderTypeMarket, Category: "open",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Kind != OutcomeFilled {
		t.Fatalf("outcome=%v, expected filled", out.Kind)
	}
	if out.AvgPrice != 3000 {
		t.Fatalf("avg price=%v, expected 3000", out.AvgPrice)
	}

	state, _ := ex.GetAccountState(context.Background())
	if len(state.Positions) != 1 || state.Positions[0].Qty != 1 {
		t.Fatalf("positions=%+v, expected one long 1 ETH", state.Positions)
	}
	if mgr.HasPending("ETH") {
		t.Fatal("filled market order left a pending entry")
	}
}

func TestExecuteRejectsNonPositiveSize(t *testing.T) {
	mgr, _ := newTestManager(t)
	out, err := mgr.Execute(context.Background(), Request{
		Symbol: "ETH", Side: common.SideBuy, Size: 0, Type: common.OrderTypeMarket,
	})
	if err == nil || out.Kind != OutcomeFailed {
		t.Fatalf("out=%+v err=%v, expected failure", out, err)
	}
}

func TestExecuteBlocksDuplicateSymbolSide(t *testing.T) {
	mgr, ex := newTestManager(t)
	ex.SetPrice("ETH", 3000)
	ex.RestOrders = true

	out, err := mgr.Execute(context.Background(), Request{
		Symbol: "ETH", Side: common.SideBuy, Size: 1, Price: 2990,
		Type: common.OrderTypeLimit, Category: "open",
	})
	if err != nil || out.Kind != OutcomePending {
		t.Fatalf("first order: out=%+v err=%v, expected pending", out, err)
	}

	_, err = mgr.Execute(context.Background(), Request{
		Symbol: "ETH", Side: common.SideBuy, Size: 0.5, Price: 2990,
		Type: common.OrderTypeLimit, Category: "increase",
	})
	if !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("err=%v, expected duplicate pending", err)
	}

	// The opposite side for the same symbol is not a duplicate.
	out, err = mgr.Execute(context.Background(), Request{
		Symbol: "ETH", Side: common.SideSell, Size: 0.5, Price: 3010,
		Type: common.OrderTypeLimit, Category: "decrease",
	})
	if err != nil || out.Kind != OutcomePending {
		t.Fatalf("opposite side: out=%+v err=%v, expected pending", out, err)
	}
}

func TestExecuteBlocksAgainstExchangeOpenOrders(t *testing.T) {
	mgr, ex := newTestManager(t)
	ex.SetPrice("BTC", 110000)

	// Order known only to the exchange, e.g. placed before a restart.
	mgr.SyncExchangeOrders([]common.OpenOrder{
		{OrderID: "ext-1", Symbol: "BTC", Side: common.SideBuy, Qty: 0.01, Price: 109000},
	})

	_, err := mgr.Execute(context.Background(), Request{
		Symbol: "BTC", Side: common.SideBuy, Size: 0.01, Price: 110000,
		Type: common.OrderTypeMarket, Category: "open",
	})
	if !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("err=%v, expected duplicate pending from exchange view", err)
	}
}

func TestExecuteRetriesAfterTransientError(t *testing.T) {
	mgr, ex := newTestManager(t)
	ex.SetPrice("SOL", 160)
	ex.FailNextSubmits(1)

	out, err := mgr.Execute(context.Background(), Request{
		Symbol: "SOL", Side: common.SideBuy, Size: 2, Price: 160,
		Type: common.OrderTypeMarket, Category: "open",
	})
	if err != nil || out.Kind != OutcomeFilled {
		t.Fatalf("out=%+v err=%v, expected filled on retry", out, err)
	}
}

func TestExecutePositionDeltaOverridesError(t *testing.T) {
	mgr, ex := newTestManager(t)
	ex.SetPrice("SOL", 160)
	ex.FailNextSubmits(2)

	// The first attempt "failed" on the response path only: the position
	// moved anyway. The manager must not submit again.
	done := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		ex.SetPosition("SOL", 2, 160)
		close(done)
	}()
	mgr.retryBackoff = 50 * time.Millisecond

	out, err := mgr.Execute(context.Background(), Request{
		Symbol: "SOL", Side: common.SideBuy, Size: 2, Price: 160,
		Type: common.OrderTypeMarket, Category: "open",
	})
	<-done
	if err != nil || out.Kind != OutcomeFilled {
		t.Fatalf("out=%+v err=%v, expected delta treated as fill", out, err)
	}

	state, _ := ex.GetAccountState(context.Background())
	if len(state.Positions) != 1 || state.Positions[0].Qty != 2 {
		t.Fatalf("positions=%+v, expected the single seeded position", state.Positions)
	}
}

func TestExecuteFailsAfterAllAttempts(t *testing.T) {
	mgr, ex := newTestManager(t)
	ex.SetPrice("ETH", 3000)
	ex.FailNextSubmits(2)

	out, err := mgr.Execute(context.Background(), Request{
		Symbol: "ETH", Side: common.SideBuy, Size: 1, Price: 3000,
		Type: common.OrderTypeMarket, Category: "open",
	})
	if err == nil || out.Kind != OutcomeFailed {
		t.Fatalf("out=%+v err=%v, expected failure after retries", out, err)
	}
}

func TestExecuteSnapsLimitPrice(t *testing.T) {
	mgr, ex := newTestManager(t)
	ex.SetPrice("BTC", 110000)
	ex.RestOrders = true

	// BTC quotes at two decimals.
	out, err := mgr.Execute(context.Background(), Request{
		Symbol: "BTC", Side: common.SideBuy, Size: 0.01, Price: 109999.987,
		Type: common.OrderTypeLimit, Category: "open",
	})
	if err != nil || out.Kind != OutcomePending {
		t.Fatalf("out=%+v err=%v, expected pending", out, err)
	}

	state, _ := ex.GetAccountState(context.Background())
	if len(state.OpenOrders) != 1 {
		t.Fatalf("open orders=%d, expected 1", len(state.OpenOrders))
	}
	if got := state.OpenOrders[0].Price; math.Abs(got-109999.99) > 1e-9 {
		t.Fatalf("limit price=%v, expected 109999.99", got)
	}
}

func TestCheckPendingRemovesFilled(t *testing.T) {
	mgr, ex := newTestManager(t)
	ex.SetPrice("ETH", 3000)
	ex.RestOrders = true

	out, err := mgr.Execute(context.Background(), Request{
		Symbol: "ETH", Side: common.SideBuy, Size: 1, Price: 2990,
		Type: common.OrderTypeLimit, Category: "open",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := ex.Fill(out.OrderID); err != nil {
		t.Fatalf("fill: %v", err)
	}

	mgr.CheckPending(context.Background())
	if mgr.HasPending("ETH") {
		t.Fatal("filled resting order still tracked after maintenance")
	}
}

func TestCheckPendingCancelsStale(t *testing.T) {
	mgr, ex := newTestManager(t)
	ex.SetPrice("ETH", 3000)
	ex.RestOrders = true

	out, err := mgr.Execute(context.Background(), Request{
		Symbol: "ETH", Side: common.SideBuy, Size: 1, Price: 2990,
		Type: common.OrderTypeLimit, Category: "open",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	mgr.mu.Lock()
	mgr.pending[out.OrderID].CreatedAt = time.Now().Add(-301 * time.Second)
	mgr.mu.Unlock()

	mgr.CheckPending(context.Background())
	if mgr.HasPending("ETH") {
		t.Fatal("stale order still tracked after maintenance")
	}
	status, err := ex.GetOrderStatus(context.Background(), "ETH", out.OrderID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != common.StatusCanceled {
		t.Fatalf("status=%v, expected canceled on exchange", status)
	}
}

func TestCheckPendingAbandonsUntrackable(t *testing.T) {
	mgr, _ := newTestManager(t)

	// An order id the exchange no longer knows: every status check errors.
	mgr.mu.Lock()
	mgr.pending["ghost"] = &PendingOrder{
		OrderID: "ghost", ClientID: "c1", Symbol: "ETH", Side: common.SideBuy,
		Size: 1, Price: 2990, Status: PendingOpen,
		CreatedAt: time.Now().Add(-11 * time.Minute),
	}
	mgr.mu.Unlock()

	mgr.CheckPending(context.Background())
	if mgr.HasPending("ETH") {
		t.Fatal("untrackable order not abandoned past the hard deadline")
	}
}

func TestCheckPendingKeepsYoungUntrackable(t *testing.T) {
	mgr, _ := newTestManager(t)

	mgr.mu.Lock()
	mgr.pending["ghost"] = &PendingOrder{
		OrderID: "ghost", ClientID: "c1", Symbol: "ETH", Side: common.SideBuy,
		Size: 1, Price: 2990, Status: PendingOpen,
		CreatedAt: time.Now().Add(-1 * time.Minute),
	}
	mgr.mu.Unlock()

	mgr.CheckPending(context.Background())
	if !mgr.HasPending("ETH") {
		t.Fatal("young order dropped on a transient status failure")
	}
}

func TestPendingEstimates(t *testing.T) {
	mgr, ex := newTestManager(t)
	ex.SetPrice("ETH", 3000)
	ex.RestOrders = true

	if _, err := mgr.Execute(context.Background(), Request{
		Symbol: "ETH", Side: common.SideBuy, Size: 2, Price: 3000,
		Type: common.OrderTypeLimit, Category: "open",
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	ests := mgr.PendingEstimates(3)
	if len(ests) != 1 {
		t.Fatalf("estimates=%d, expected 1", len(ests))
	}
	if ests[0].Size != 2 || ests[0].Price != 3000 || ests[0].Leverage != 3 {
		t.Fatalf("estimate=%+v, expected size 2 at 3000 with 3x", ests[0])
	}
}
