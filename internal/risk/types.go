// Package risk computes margin budgets, order sizes, and exposure
// reductions. All checks work off a MarginState recomputed from the
// exchange's authoritative snapshot; nothing here caches across ticks.
package risk

import "perp-trader/pkg/catalog"

// Config carries the risk-relevant slice of the trading configuration.
type Config struct {
	TotalMarginPct   float64 // hard cap on effective margin, percent of account value
	SingleMarginPct  float64 // per-asset margin cap, percent of account value
	SingleCoinPosPct float64 // per-asset usage above which exposure is reduced
	MaxCoins         int
	Leverage         int
}

// DefaultConfig mirrors the shipped trading defaults.
func DefaultConfig() Config {
	return Config{
		TotalMarginPct:   60,
		SingleMarginPct:  20,
		SingleCoinPosPct: 40,
		MaxCoins:         5,
		Leverage:         3,
	}
}

// MarginState is the per-tick derived margin view. EffectiveMarginUsed folds
// in an estimate for resting orders that would consume margin when filled.
type MarginState struct {
	AccountValue        float64
	TotalMarginUsed     float64
	PendingMarginEst    float64
	EffectiveMarginUsed float64
}

// EffectiveRatio returns effective margin used as a percent of account value.
func (m MarginState) EffectiveRatio() float64 {
	if m.AccountValue <= 0 {
		return 100
	}
	return m.EffectiveMarginUsed / m.AccountValue * 100
}

// PendingEstimate describes one resting order for the margin estimate.
type PendingEstimate struct {
	Size     float64
	Price    float64
	Leverage int
}

// Decision is the outcome of a risk check.
type Decision struct {
	Allowed         bool
	Reason          string
	Warning         string
	AvailableMargin float64
}

// Reduction describes a computed exposure cut.
type Reduction struct {
	Fraction float64
	Reason   string
}

// Manager evaluates risk checks and sizes orders.
type Manager struct {
	cfg     Config
	catalog *catalog.Catalog
}

// NewManager builds a risk manager over the asset catalog.
func NewManager(cfg Config, cat *catalog.Catalog) *Manager {
	return &Manager{cfg: cfg, catalog: cat}
}

// Config returns a copy of the active risk configuration.
func (m *Manager) Config() Config {
	return m.cfg
}
