// Package backtest replays a close series through the indicator and signal
// pipeline with a simplified single-position fill model. It shares the live
// decision code so a strategy change shows up here first.
package backtest

import (
	"fmt"
	"math"

	"perp-trader/internal/indicators"
	"perp-trader/internal/signal"
)

// Config parameterizes one backtest run.
type Config struct {
	Symbol         string             `json:"symbol"`
	Closes         []float64          `json:"closes"`
	InitialBalance float64            `json:"initial_balance"`
	Leverage       int                `json:"leverage"`
	Threshold      float64            `json:"threshold"`
	Policy         signal.Policy      `json:"policy"`
	Weights        map[string]float64 `json:"-"`
	Indicators     indicators.Config  `json:"-"`

	// MarginFraction of the balance committed per entry. Defaults to 0.2,
	// mirroring the live single-asset cap.
	MarginFraction float64 `json:"margin_fraction"`
}

// Trade is one simulated entry or exit.
type Trade struct {
	Index  int     `json:"index"`
	Action string  `json:"action"` // openLong | openShort | close
	Price  float64 `json:"price"`
	Size   float64 `json:"size"`
	PnL    float64 `json:"pnl"`
}

// Report summarizes a completed run.
type Report struct {
	Symbol         string  `json:"symbol"`
	Samples        int     `json:"samples"`
	Trades         []Trade `json:"trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	FinalBalance   float64 `json:"final_balance"`
	ReturnPct      float64 `json:"return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// Run replays the series bar by bar. The first decision happens once the
// warm-up window is full.
func Run(cfg Config) (Report, error) {
	if len(cfg.Closes) < indicators.MinHistory+1 {
		return Report{}, fmt.Errorf("need at least %d closes, got %d", indicators.MinHistory+1, len(cfg.Closes))
	}
	if cfg.InitialBalance <= 0 {
		return Report{}, fmt.Errorf("initial balance %v", cfg.InitialBalance)
	}
	if cfg.Leverage < 1 {
		cfg.Leverage = 1
	}
	if cfg.MarginFraction <= 0 || cfg.MarginFraction > 1 {
		cfg.MarginFraction = 0.2
	}
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		cfg.Threshold = 0.6
	}

	engine := indicators.NewEngine(cfg.Indicators)
	report := Report{Symbol: cfg.Symbol, Samples: len(cfg.Closes)}

	balance := cfg.InitialBalance
	peak := balance
	var qty, entry float64

	for i := indicators.MinHistory; i < len(cfg.Closes); i++ {
		window := cfg.Closes[:i+1]
		price := cfg.Closes[i]

		snap := engine.Evaluate(window)
		dec := signal.Aggregate(signal.Input{
			Snapshot:       snap,
			Weights:        cfg.Weights,
			PositionQty:    qty,
			CanAddExposure: false,
			Threshold:      cfg.Threshold,
			Policy:         cfg.Policy,
		})

		long := qty > signal.FlatEpsilon
		short := qty < -signal.FlatEpsilon

		switch {
		case !long && !short && dec.Direction == signal.DirectionBuy:
			size := balance * cfg.MarginFraction * float64(cfg.Leverage) / price
			qty, entry = size, price
			report.Trades = append(report.Trades, Trade{Index: i, Action: "openLong", Price: price, Size: size})

		case !long && !short && dec.Direction == signal.DirectionSell:
			size := balance * cfg.MarginFraction * float64(cfg.Leverage) / price
			qty, entry = -size, price
			report.Trades = append(report.Trades, Trade{Index: i, Action: "openShort", Price: price, Size: size})

		case long && dec.Direction == signal.DirectionSell,
			short && dec.Direction == signal.DirectionBuy:
			pnl := (price - entry) * qty
			balance += pnl
			report.Trades = append(report.Trades, Trade{Index: i, Action: "close", Price: price, Size: math.Abs(qty), PnL: pnl})
			if pnl >= 0 {
				report.Wins++
			} else {
				report.Losses++
			}
			qty, entry = 0, 0
		}

		equity := balance + (price-entry)*qty
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd := (peak - equity) / peak * 100
			if dd > report.MaxDrawdownPct {
				report.MaxDrawdownPct = dd
			}
		}
	}

	// Mark any open position to the last close.
	if math.Abs(qty) > signal.FlatEpsilon {
		last := cfg.Closes[len(cfg.Closes)-1]
		pnl := (last - entry) * qty
		balance += pnl
		report.Trades = append(report.Trades, Trade{Index: len(cfg.Closes) - 1, Action: "close", Price: last, Size: math.Abs(qty), PnL: pnl})
		if pnl >= 0 {
			report.Wins++
		} else {
			report.Losses++
		}
	}

	report.FinalBalance = balance
	report.ReturnPct = (balance - cfg.InitialBalance) / cfg.InitialBalance * 100
	return report, nil
}
