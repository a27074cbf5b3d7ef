package risk

import (
	"log"
	"math"
)

// usedLeverage clamps the configured leverage to the asset's maximum.
func (m *Manager) usedLeverage(symbol string) (int, bool) {
	maxLev := m.catalog.Get(symbol).MaxLeverage
	if m.cfg.Leverage > maxLev {
		return maxLev, true
	}
	return m.cfg.Leverage, false
}

// SizePosition converts an approved margin budget into a concrete signed
// order size for symbol, honoring the asset's precision and minimum size.
// Returns 0 when the post-trade projection would breach the total margin cap.
func (m *Manager) SizePosition(state MarginState, symbol string, isLong bool, availableMargin, currentQty, price float64) float64 {
	if price <= 0 || availableMargin <= 0 {
		return 0
	}

	asset := m.catalog.Get(symbol)
	lev, clamped := m.usedLeverage(symbol)
	if clamped {
		log.Printf("[risk] %s leverage clamped from %dx to asset max %dx", symbol, m.cfg.Leverage, lev)
	}

	currentMargin := math.Abs(currentQty) * price / float64(lev)
	headroom := state.AccountValue*m.cfg.SingleMarginPct/100 - currentMargin
	if headroom <= 0 {
		return 0
	}

	budget := math.Min(headroom, availableMargin)
	size := m.roundSize(budget/price*float64(lev), asset.SizePrecision, asset.MinSize)
	if size == 0 {
		return 0
	}
	if !isLong {
		size = -size
	}

	// Final gate: project total margin after this trade. If the projection
	// breaches the cap, retry with the total headroom alone; if even that
	// projection breaches, the trade is off.
	totalAvailable := state.AccountValue*m.cfg.TotalMarginPct/100 - state.EffectiveMarginUsed
	if m.projectedOver(state, size, price, lev) {
		budget = math.Min(totalAvailable, availableMargin)
		size = m.roundSize(budget/price*float64(lev), asset.SizePrecision, asset.MinSize)
		if size == 0 {
			return 0
		}
		if !isLong {
			size = -size
		}
		if m.projectedOver(state, size, price, lev) {
			log.Printf("[risk] %s sized order would breach %.0f%% total margin cap; aborting", symbol, m.cfg.TotalMarginPct)
			return 0
		}
	}

	return size
}

func (m *Manager) projectedOver(state MarginState, size, price float64, lev int) bool {
	projected := state.EffectiveMarginUsed + math.Abs(size)*price/float64(lev)
	return projected/state.AccountValue*100 > m.cfg.TotalMarginPct
}

// roundSize rounds a positive magnitude to the asset's size precision,
// snapping up to the minimum rather than down to zero. Integer-sized assets
// always come out as a non-zero whole number.
func (m *Manager) roundSize(magnitude float64, precision int, minSize float64) float64 {
	if magnitude <= 0 {
		return 0
	}
	if precision <= 0 {
		size := math.Trunc(magnitude)
		if size < 1 {
			size = 1
		}
		if size < minSize {
			size = math.Ceil(minSize)
		}
		return size
	}

	factor := math.Pow(10, float64(precision))
	size := math.Round(magnitude*factor) / factor
	if size < minSize {
		size = minSize
	}
	return size
}
