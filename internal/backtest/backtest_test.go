package backtest

import (
	"math"
	"testing"

	"perp-trader/internal/indicators"
	"perp-trader/internal/signal"
)

func maOnly() indicators.Config {
	cfg := indicators.DefaultConfig()
	cfg.EnableRSI = false
	cfg.EnableMACD = false
	cfg.EnableBollinger = false
	return cfg
}

func maOnlyWeights() map[string]float64 {
	return map[string]float64{"ma": 1, "rsi": 0, "macd": 0, "bollinger": 0}
}

// rampSeries holds flat, ramps up hard, then collapses: one long round trip
// under a moving-average cross strategy.
func rampSeries() []float64 {
	out := make([]float64, 0, 120)
	for i := 0; i < 60; i++ {
		out = append(out, 100)
	}
	for i := 0; i < 30; i++ {
		out = append(out, 100+float64(i+1)*2) // up to 160
	}
	for i := 0; i < 30; i++ {
		out = append(out, 160-float64(i+1)*3) // down to 70
	}
	return out
}

func TestRunRejectsShortSeries(t *testing.T) {
	_, err := Run(Config{
		Closes:         make([]float64, 30),
		InitialBalance: 1000,
		Indicators:     maOnly(),
		Weights:        maOnlyWeights(),
	})
	if err == nil {
		t.Fatal("short series accepted")
	}
}

func TestRunFlatSeriesNeverTrades(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100
	}
	rep, err := Run(Config{
		Symbol:         "ETH",
		Closes:         closes,
		InitialBalance: 1000,
		Leverage:       3,
		Policy:         signal.PolicyWeighted,
		Indicators:     maOnly(),
		Weights:        maOnlyWeights(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rep.Trades) != 0 {
		t.Fatalf("trades=%d on a flat series, expected 0", len(rep.Trades))
	}
	if rep.FinalBalance != 1000 {
		t.Fatalf("balance=%v, expected unchanged 1000", rep.FinalBalance)
	}
}

func TestRunRoundTripOnRamp(t *testing.T) {
	rep, err := Run(Config{
		Symbol:         "ETH",
		Closes:         rampSeries(),
		InitialBalance: 1000,
		Leverage:       3,
		Policy:         signal.PolicyWeighted,
		Indicators:     maOnly(),
		Weights:        maOnlyWeights(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rep.Trades) < 2 {
		t.Fatalf("trades=%d, expected at least an open and a close", len(rep.Trades))
	}
	if rep.Trades[0].Action != "openLong" {
		t.Fatalf("first trade=%s, expected openLong on the ramp", rep.Trades[0].Action)
	}
	closed := false
	for _, tr := range rep.Trades {
		if tr.Action == "close" {
			closed = true
		}
	}
	if !closed {
		t.Fatal("position never closed")
	}
	if rep.Wins+rep.Losses == 0 {
		t.Fatal("no round trips counted")
	}

	want := (rep.FinalBalance - 1000) / 1000 * 100
	if math.Abs(rep.ReturnPct-want) > 1e-9 {
		t.Fatalf("return=%v, expected %v", rep.ReturnPct, want)
	}
}

func TestRunAppliesDefaults(t *testing.T) {
	rep, err := Run(Config{
		Symbol:         "ETH",
		Closes:         rampSeries(),
		InitialBalance: 1000,
		Indicators:     maOnly(),
		Weights:        maOnlyWeights(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Samples != 120 {
		t.Fatalf("samples=%d, expected 120", rep.Samples)
	}
}

func TestRunTracksDrawdownOnCollapse(t *testing.T) {
	rep, err := Run(Config{
		Symbol:         "ETH",
		Closes:         rampSeries(),
		InitialBalance: 1000,
		Leverage:       3,
		Policy:         signal.PolicyWeighted,
		Indicators:     maOnly(),
		Weights:        maOnlyWeights(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.MaxDrawdownPct <= 0 {
		t.Fatalf("drawdown=%v, expected a positive drawdown through the collapse", rep.MaxDrawdownPct)
	}
}
