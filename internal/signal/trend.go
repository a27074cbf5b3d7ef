package signal

import (
	"math"

	"perp-trader/internal/indicators"
)

// TrendStrength scores how strongly the current trend supports holding a
// position, in [0.1, 1.0]. It blends the moving-average alignment with how
// far RSI sits from its neutral midpoint.
func TrendStrength(closes []float64, shortPeriod, longPeriod, rsiPeriod int) float64 {
	if len(closes) < longPeriod || len(closes) < rsiPeriod+1 {
		return 0.1
	}

	maStrength := 0.3
	if indicators.SMA(closes, shortPeriod) > indicators.SMA(closes, longPeriod) {
		maStrength = 1.0
	}

	rsi := indicators.RSI(closes, rsiPeriod)
	rsiStrength := math.Abs(rsi-50) / 50

	strength := (maStrength + rsiStrength) / 2
	return math.Min(1.0, math.Max(0.1, strength))
}
