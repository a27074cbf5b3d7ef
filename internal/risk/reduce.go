package risk

import (
	"fmt"
	"math"

	"perp-trader/internal/indicators"
	"perp-trader/internal/signal"
)

const (
	minReduceNotional  = 10 // USD floor below which a risk reduction is skipped
	minProtectNotional = 30 // USD floor for profit-protection cuts
)

// ReduceExposure computes the cut fraction for a symbol whose margin usage
// exceeds its single-asset cap. The fraction is the excess over the cap as a
// share of current usage, clamped to [0.2, 0.8] so cuts are meaningful but
// never total. Cuts worth under 10 USD are skipped as not worth the fees.
func (m *Manager) ReduceExposure(state MarginState, symbol string, positionQty, price float64) (Reduction, bool) {
	if state.AccountValue <= 0 || math.Abs(positionQty) <= signal.FlatEpsilon {
		return Reduction{}, false
	}

	lev, _ := m.usedLeverage(symbol)
	currentMargin := math.Abs(positionQty) * price / float64(lev)
	usagePct := currentMargin / state.AccountValue * 100
	if usagePct <= m.cfg.SingleCoinPosPct {
		return Reduction{}, false
	}

	fraction := (usagePct - m.cfg.SingleCoinPosPct) / usagePct
	fraction = math.Min(0.8, math.Max(0.2, fraction))

	if math.Abs(positionQty)*fraction*price < minReduceNotional {
		return Reduction{}, false
	}

	return Reduction{
		Fraction: fraction,
		Reason: fmt.Sprintf("%s margin usage %.1f%% over %.0f%% single-asset cap",
			symbol, usagePct, m.cfg.SingleCoinPosPct),
	}, true
}

// ProfitProtection decides whether to bank part of a position showing a
// moderate unrealized profit (5-10%). Above 10% the take-profit logic owns
// the exit; below 5% there is nothing worth protecting. Four qualitative
// triggers each carry their own cut fraction and minimum profit level.
func (m *Manager) ProfitProtection(pnlPct float64, closes []float64, positionQty, price float64) (Reduction, bool) {
	if pnlPct < 5 || pnlPct >= 10 {
		return Reduction{}, false
	}
	if len(closes) < indicators.MinHistory {
		return Reduction{}, false
	}

	var red Reduction
	trend := signal.TrendStrength(closes, 10, 20, 14)
	high20 := indicators.HighestClose(closes, 20)
	vol20 := indicators.Volatility(closes, 20)

	switch {
	case trend < 0.3 && pnlPct >= 5:
		red = Reduction{Fraction: 0.5, Reason: fmt.Sprintf("trend strength %.2f weakening at %.1f%% profit", trend, pnlPct)}
	case high20 > 0 && price >= high20*0.95 && pnlPct >= 6:
		red = Reduction{Fraction: 0.4, Reason: fmt.Sprintf("price %.4f near 20-period high %.4f resistance", price, high20)}
	case vol20 < 0.02 && pnlPct >= 8:
		red = Reduction{Fraction: 0.25, Reason: fmt.Sprintf("consolidation: 20-period volatility %.4f", vol20)}
	case volatilitySpike(closes) && pnlPct >= 7:
		red = Reduction{Fraction: 0.3, Reason: "recent volatility more than doubled"}
	default:
		return Reduction{}, false
	}

	if math.Abs(positionQty)*red.Fraction*price < minProtectNotional {
		return Reduction{}, false
	}
	return red, true
}

// volatilitySpike compares the last 10-period volatility window with the one
// before it.
func volatilitySpike(closes []float64) bool {
	if len(closes) < 20 {
		return false
	}
	recent := indicators.Volatility(closes, 10)
	prior := indicators.Volatility(closes[:len(closes)-10], 10)
	return prior > 0 && recent > prior*2
}

// PnLPct is the unrealized return in percent of the entry price, signed by
// position direction. Take-profit, stop-loss and the protection band are all
// expressed against this price-based number; leverage does not enter it.
func (m *Manager) PnLPct(entryPrice, markPrice, qty float64) float64 {
	if entryPrice <= 0 || math.Abs(qty) <= signal.FlatEpsilon {
		return 0
	}
	move := (markPrice - entryPrice) / entryPrice
	if qty < 0 {
		move = -move
	}
	return move * 100
}
