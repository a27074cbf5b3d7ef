package risk

import (
	"math"
	"testing"
)

func flatCloses(price float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func TestReduceExposureTriggersOverSingleCoinCap(t *testing.T) {
	mgr := newTestManager(t)
	state := mgr.ComputeMarginState(1000, 500, nil)

	// 0.5 ETH at 3000 and 3x = 500 margin = 50% usage, over the 40% cap.
	red, ok := mgr.ReduceExposure(state, "ETH", 0.5, 3000)
	if !ok {
		t.Fatal("reduction not triggered at 50% usage")
	}
	want := (50.0 - 40.0) / 50.0 // excess over cap as share of usage
	if math.Abs(red.Fraction-want) > 1e-9 {
		t.Fatalf("fraction=%v, expected %v", red.Fraction, want)
	}
}

func TestReduceExposureClampsFraction(t *testing.T) {
	mgr := newTestManager(t)
	state := mgr.ComputeMarginState(1000, 0, nil)

	// 41% usage: raw fraction ~0.024, clamps up to 0.2.
	red, ok := mgr.ReduceExposure(state, "ETH", 0.41, 3000)
	if !ok {
		t.Fatal("reduction not triggered just over the cap")
	}
	if red.Fraction != 0.2 {
		t.Fatalf("fraction=%v, expected clamp floor 0.2", red.Fraction)
	}

	// Extreme usage clamps at 0.8.
	red, ok = mgr.ReduceExposure(state, "ETH", 10, 3000)
	if !ok {
		t.Fatal("reduction not triggered at extreme usage")
	}
	if red.Fraction != 0.8 {
		t.Fatalf("fraction=%v, expected clamp ceiling 0.8", red.Fraction)
	}
}

func TestReduceExposureSkipsUnderCapAndDust(t *testing.T) {
	mgr := newTestManager(t)
	state := mgr.ComputeMarginState(1000, 0, nil)

	if _, ok := mgr.ReduceExposure(state, "ETH", 0.1, 3000); ok {
		t.Fatal("reduction triggered at 10% usage, under the cap")
	}

	// Tiny account: over the cap but the cut is worth under 10 USD.
	small := mgr.ComputeMarginState(10, 0, nil)
	if _, ok := mgr.ReduceExposure(small, "ADA", 15, 1.0); ok {
		t.Fatal("dust reduction not skipped")
	}
}

// weakTrendCloses declines hard, then chops sideways: moving averages level
// off while RSI drifts back toward neutral, so trend strength lands low.
func weakTrendCloses() []float64 {
	closes := make([]float64, 0, 100)
	for i := 0; i < 60; i++ {
		closes = append(closes, 200-float64(i))
	}
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			closes = append(closes, 140.5)
		} else {
			closes = append(closes, 140)
		}
	}
	return closes
}

func TestProfitProtectionWeakTrendCutsHalf(t *testing.T) {
	mgr := newTestManager(t)
	closes := weakTrendCloses()

	red, ok := mgr.ProfitProtection(7, closes, -1.0, 150)
	if !ok {
		t.Fatal("profit protection not triggered on weak trend at 7% profit")
	}
	if red.Fraction != 0.5 {
		t.Fatalf("fraction=%v, expected 0.5", red.Fraction)
	}
}

func TestProfitProtectionBandBoundaries(t *testing.T) {
	mgr := newTestManager(t)
	closes := weakTrendCloses()

	for _, pnl := range []float64{4.9, 10, 15, -3} {
		if _, ok := mgr.ProfitProtection(pnl, closes, -1.0, 150); ok {
			t.Fatalf("protection triggered at %.1f%% outside the 5-10%% band", pnl)
		}
	}
}

func TestProfitProtectionNotionalGate(t *testing.T) {
	mgr := newTestManager(t)
	closes := weakTrendCloses()

	// 0.5 * 0.1 * 100 = 5 USD cut, below the 30 USD floor.
	if _, ok := mgr.ProfitProtection(7, closes, -0.1, 100); ok {
		t.Fatal("sub-notional protection not skipped")
	}
	// 0.5 * 1.0 * 100 = 50 USD clears the floor.
	if _, ok := mgr.ProfitProtection(7, closes, -1.0, 100); !ok {
		t.Fatal("protection skipped despite clearing the notional floor")
	}
}

func TestProfitProtectionConsolidationTrigger(t *testing.T) {
	mgr := newTestManager(t)

	// Flat series: trend strength is (0.3 + 1.0)/2 = 0.65 (RSI pins at 100
	// with no losses), price equals the 20-period high, volatility is 0.
	// At 8% profit the resistance trigger fires first (price at the high).
	closes := flatCloses(100, 80)
	red, ok := mgr.ProfitProtection(8, closes, 2.0, 100)
	if !ok {
		t.Fatal("no protection on flat series at 8% profit")
	}
	if red.Fraction != 0.4 {
		t.Fatalf("fraction=%v, expected resistance trigger 0.4", red.Fraction)
	}
}

func TestPnLPctIsPriceBased(t *testing.T) {
	mgr := newTestManager(t)

	// +10% price move on a long is +10%, whatever the configured leverage.
	got := mgr.PnLPct(100, 110, 1)
	if math.Abs(got-10) > 1e-9 {
		t.Fatalf("long PnL=%v, expected 10", got)
	}
	// Same move against a short.
	got = mgr.PnLPct(100, 110, -1)
	if math.Abs(got+10) > 1e-9 {
		t.Fatalf("short PnL=%v, expected -10", got)
	}
	if got := mgr.PnLPct(0, 110, 1); got != 0 {
		t.Fatalf("PnL with zero entry=%v, expected 0", got)
	}
	if got := mgr.PnLPct(100, 110, 0); got != 0 {
		t.Fatalf("PnL on a flat book=%v, expected 0", got)
	}
}
