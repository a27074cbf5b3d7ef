package risk

import (
	"fmt"
	"math"
)

// ComputeMarginState derives the per-tick margin view from the exchange
// snapshot plus locally tracked resting orders.
func (m *Manager) ComputeMarginState(accountValue, totalMarginUsed float64, pendings []PendingEstimate) MarginState {
	pendingEst := 0.0
	for _, p := range pendings {
		lev := p.Leverage
		if lev < 1 {
			lev = m.cfg.Leverage
		}
		pendingEst += math.Abs(p.Size) * p.Price / float64(lev)
	}
	return MarginState{
		AccountValue:        accountValue,
		TotalMarginUsed:     totalMarginUsed,
		PendingMarginEst:    pendingEst,
		EffectiveMarginUsed: totalMarginUsed + pendingEst,
	}
}

// CheckTrade validates a prospective trade against the margin budget.
// Risk-reducing trades (opening=false) pass even over the total cap so the
// system can always de-risk.
func (m *Manager) CheckTrade(state MarginState, symbol string, opening bool, openPositions int, pendingForSymbol bool) Decision {
	if state.AccountValue <= 0 {
		return Decision{Reason: "account value unavailable"}
	}

	effRatio := state.EffectiveRatio()
	if effRatio >= m.cfg.TotalMarginPct {
		if !opening {
			return Decision{
				Allowed: true,
				Warning: fmt.Sprintf("margin ratio %.1f%% over %.0f%% cap; reduce-only", effRatio, m.cfg.TotalMarginPct),
			}
		}
		return Decision{
			Reason: fmt.Sprintf("effective margin %.1f%% at or over %.0f%% cap (account=%.2f, effective=%.2f)",
				effRatio, m.cfg.TotalMarginPct, state.AccountValue, state.EffectiveMarginUsed),
		}
	}

	totalAvailable := state.AccountValue*m.cfg.TotalMarginPct/100 - state.EffectiveMarginUsed
	availRatio := totalAvailable / state.AccountValue * 100

	if opening {
		if availRatio < 5 {
			return Decision{Reason: fmt.Sprintf("available margin %.1f%% under the %.0f%% total cap: below 5%% hard floor", availRatio, m.cfg.TotalMarginPct)}
		}
		if availRatio < 10 {
			return Decision{Reason: fmt.Sprintf("available margin %.1f%% under the %.0f%% total cap: below 10%%, declining new exposure", availRatio, m.cfg.TotalMarginPct)}
		}
		if pendingForSymbol {
			return Decision{Reason: fmt.Sprintf("order already pending for %s", symbol)}
		}
		if openPositions >= m.cfg.MaxCoins {
			return Decision{Reason: fmt.Sprintf("open position count %d at max %d", openPositions, m.cfg.MaxCoins)}
		}
	}

	singleCap := state.AccountValue * m.cfg.SingleMarginPct / 100
	available := math.Min(singleCap, totalAvailable)

	return Decision{Allowed: true, AvailableMargin: available}
}

// CanAddExposure reports whether symbol's committed margin is still under
// its single-asset cap, for the aggregator's position-aware add check.
func (m *Manager) CanAddExposure(state MarginState, symbol string, positionQty, price float64) bool {
	if state.AccountValue <= 0 {
		return false
	}
	lev, _ := m.usedLeverage(symbol)
	currentMargin := math.Abs(positionQty) * price / float64(lev)
	return currentMargin < state.AccountValue*m.cfg.SingleMarginPct/100
}
