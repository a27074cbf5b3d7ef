package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// TradingConfig is the immutable behavior configuration consumed by the
// control loop. It is constructed once on startup (or explicit reload) and
// never re-read mid-decision.
type TradingConfig struct {
	Symbols       []string `yaml:"symbols"`
	Interval      string   `yaml:"interval"`
	TickIntervalS int      `yaml:"tick_interval_seconds"`

	// Indicator toggles
	EnableMA        bool `yaml:"enable_ma"`
	EnableRSI       bool `yaml:"enable_rsi"`
	EnableMACD      bool `yaml:"enable_macd"`
	EnableBollinger bool `yaml:"enable_bollinger"`

	// Signal aggregation
	Policy          string `yaml:"policy"` // weighted | strict | majority
	Weights         string `yaml:"weights"`
	SignalThreshold float64 `yaml:"signal_threshold"`

	// Risk caps (percent of account value)
	SingleMarginPct  float64 `yaml:"single_margin_pct"`
	TotalMarginPct   float64 `yaml:"total_margin_pct"`
	SingleCoinPosPct float64 `yaml:"single_coin_pos_pct"`
	MaxCoins         int     `yaml:"max_coins"`

	// Exit management (percent PnL)
	TakeProfitPct         float64 `yaml:"take_profit_pct"`
	StopLossPct           float64 `yaml:"stop_loss_pct"`
	ProfitSignalThreshold float64 `yaml:"profit_signal_threshold"`

	Leverage      int  `yaml:"leverage"`
	AutoRebalance bool `yaml:"auto_rebalance"`
}

// DefaultTradingConfig returns the baseline configuration used when no yaml
// file is present.
func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		Symbols:               []string{"BTC", "ETH", "SOL"},
		Interval:              "1m",
		TickIntervalS:         60,
		EnableMA:              true,
		EnableRSI:             true,
		EnableMACD:            true,
		EnableBollinger:       true,
		Policy:                "weighted",
		Weights:               "1.5,1.2,1.0,0.8",
		SignalThreshold:       0.6,
		SingleMarginPct:       20,
		TotalMarginPct:        60,
		SingleCoinPosPct:      40,
		MaxCoins:              5,
		TakeProfitPct:         15,
		StopLossPct:           8,
		ProfitSignalThreshold: 0.7,
		Leverage:              3,
		AutoRebalance:         false,
	}
}

// LoadTradingConfig reads the yaml file at path, layered over defaults.
// A missing file is not an error; malformed yaml is.
func LoadTradingConfig(path string) (TradingConfig, error) {
	cfg := DefaultTradingConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read trading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse trading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the loop cannot safely run with.
func (c TradingConfig) Validate() error {
	switch c.Policy {
	case "weighted", "strict", "majority":
	default:
		return fmt.Errorf("unknown decision policy %q", c.Policy)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}
	if c.SignalThreshold <= 0 || c.SignalThreshold >= 1 {
		return fmt.Errorf("signal_threshold %v out of (0,1)", c.SignalThreshold)
	}
	if c.TotalMarginPct <= 0 || c.TotalMarginPct > 100 {
		return fmt.Errorf("total_margin_pct %v out of (0,100]", c.TotalMarginPct)
	}
	if c.SingleMarginPct <= 0 || c.SingleMarginPct > c.TotalMarginPct {
		return fmt.Errorf("single_margin_pct %v out of (0,total]", c.SingleMarginPct)
	}
	if c.Leverage < 1 {
		return fmt.Errorf("leverage %d below 1", c.Leverage)
	}
	if c.TickIntervalS < 1 {
		return fmt.Errorf("tick_interval_seconds %d below 1", c.TickIntervalS)
	}
	return nil
}

// IndicatorWeights parses the raw weight list (ma, rsi, macd, bollinger order)
// and normalizes it to sum to 1. Malformed or non-positive entries fall back
// to the default weights.
func (c TradingConfig) IndicatorWeights() map[string]float64 {
	raw := parseWeights(c.Weights)
	if raw == nil {
		raw = parseWeights(DefaultTradingConfig().Weights)
	}
	total := raw[0] + raw[1] + raw[2] + raw[3]
	return map[string]float64{
		"ma":        raw[0] / total,
		"rsi":       raw[1] / total,
		"macd":      raw[2] / total,
		"bollinger": raw[3] / total,
	}
}

func parseWeights(s string) []float64 {
	parts := splitAndTrim(s)
	if len(parts) != 4 {
		return nil
	}
	out := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || f <= 0 {
			return nil
		}
		out[i] = f
	}
	return out
}
