package indicators

import (
	"math"
	"testing"
)

// series builds a deterministic price path of length n starting at base,
// moving by step each sample.
func series(base, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + step*float64(i)
	}
	return out
}

func TestShortHistoryNeverVotesDirectionally(t *testing.T) {
	eng := NewEngine(DefaultConfig())
	for n := 0; n < MinHistory; n++ {
		snap := eng.Evaluate(series(100, 0.5, n))
		for name, v := range map[string]Vote{
			"ma": snap.MA, "rsi": snap.RSI, "macd": snap.MACD, "bollinger": snap.Bollinger,
		} {
			if v != VoteInsufficientData {
				t.Fatalf("len=%d %s vote=%v, expected insufficient data", n, name, v)
			}
		}
	}
}

func TestDisabledIndicatorReportsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableMACD = false
	eng := NewEngine(cfg)

	snap := eng.Evaluate(series(100, 0.5, 80))
	if snap.MACD != VoteDisabled {
		t.Fatalf("MACD vote=%v, expected disabled", snap.MACD)
	}
	if snap.MA == VoteDisabled {
		t.Fatal("MA reported disabled while enabled")
	}
}

func TestMACrossRequiresMargin(t *testing.T) {
	// Steady uptrend: short MA above long MA, last price well above short MA.
	up := series(100, 1, 80)
	if got := MACross(up, 10, 20); got != VoteBuy {
		t.Fatalf("uptrend vote=%v, expected buy", got)
	}

	// Flat series: short == long == price, no 1% margin either way.
	flat := series(100, 0, 80)
	if got := MACross(flat, 10, 20); got != VoteHold {
		t.Fatalf("flat vote=%v, expected hold", got)
	}

	down := series(200, -1, 80)
	if got := MACross(down, 10, 20); got != VoteSell {
		t.Fatalf("downtrend vote=%v, expected sell", got)
	}
}

func TestRSIExtremes(t *testing.T) {
	// Monotonic gains push RSI to 100.
	up := series(100, 1, 80)
	if rsi := RSI(up, 14); rsi != 100 {
		t.Fatalf("RSI of pure gains=%v, expected 100", rsi)
	}
	if got := RSIVote(up, 14); got != VoteSell {
		t.Fatalf("overbought vote=%v, expected sell", got)
	}

	down := series(500, -1, 80)
	if got := RSIVote(down, 14); got != VoteBuy {
		t.Fatalf("oversold vote=%v, expected buy", got)
	}
}

func TestMACDInsufficientBelowSlowPlusSignal(t *testing.T) {
	closes := series(100, 0.5, 34) // below 26+9
	if got := MACDVote(closes, 12, 26, 9); got != VoteInsufficientData {
		t.Fatalf("vote=%v, expected insufficient data", got)
	}
	closes = series(100, 0.5, 35)
	if got := MACDVote(closes, 12, 26, 9); got == VoteInsufficientData {
		t.Fatal("35 samples reported insufficient data")
	}
}

func TestMACDWeakGapHolds(t *testing.T) {
	// A long flat stretch keeps MACD and signal glued together.
	flat := series(100, 0, 120)
	if got := MACDVote(flat, 12, 26, 9); got != VoteHold {
		t.Fatalf("flat vote=%v, expected hold", got)
	}
}

func TestBollingerBreach(t *testing.T) {
	// Flat series then a spike far above the upper band.
	closes := series(100, 0, 79)
	closes = append(closes, 150)
	if got := BollingerVote(closes, 20, 2); got != VoteSell {
		t.Fatalf("spike vote=%v, expected sell", got)
	}

	closes = series(100, 0, 79)
	closes = append(closes, 60)
	if got := BollingerVote(closes, 20, 2); got != VoteBuy {
		t.Fatalf("crash vote=%v, expected buy", got)
	}

	flat := series(100, 0, 80)
	if got := BollingerVote(flat, 20, 2); got != VoteHold {
		t.Fatalf("flat vote=%v, expected hold", got)
	}
}

func TestDeterministicOutputs(t *testing.T) {
	closes := make([]float64, 100)
	// Seeded pseudo-random walk with a fixed linear congruential step.
	x := int64(12345)
	price := 100.0
	for i := range closes {
		x = (x*1103515245 + 12345) % (1 << 31)
		price += float64(x%200-100) / 100
		closes[i] = price
	}

	eng := NewEngine(DefaultConfig())
	first := eng.Evaluate(closes)
	for i := 0; i < 10; i++ {
		if got := eng.Evaluate(closes); got != first {
			t.Fatalf("evaluation %d=%+v, differs from first %+v", i, got, first)
		}
	}
}

func TestVolatilityFlatSeriesIsZero(t *testing.T) {
	if v := Volatility(series(100, 0, 40), 20); v != 0 {
		t.Fatalf("flat volatility=%v, expected 0", v)
	}
	if v := Volatility(series(100, 2, 40), 20); v <= 0 {
		t.Fatalf("trending volatility=%v, expected > 0", v)
	}
}

func TestHighestClose(t *testing.T) {
	closes := append(series(100, 1, 30), 90)
	want := 129.0
	if got := HighestClose(closes, 20); math.Abs(got-want) > 1e-9 {
		t.Fatalf("HighestClose=%v, expected %v", got, want)
	}
}
