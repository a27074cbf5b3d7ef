package events

// Event enumerates high-level topics inside the trading core.
type Event string

const (
	EventPriceTick      Event = "price.tick"
	EventSignalSnapshot Event = "signal.snapshot"
	EventRiskAlert      Event = "risk.alert"
	EventOrderSubmitted Event = "order.submitted"
	EventOrderFilled    Event = "order.filled"
	EventOrderCancelled Event = "order.cancelled"
	EventTradeExecuted  Event = "trade.executed"
	EventTradeRejected  Event = "trade.rejected"
	EventTickSummary    Event = "tick.summary"
	EventLoopHalted     Event = "loop.halted"
)

// TradeRecord is the payload for trade.executed / trade.rejected.
type TradeRecord struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Category string  `json:"category"`
	Size     float64 `json:"size"`
	Price    float64 `json:"price"`
	Reason   string  `json:"reason,omitempty"`
}

// RiskAlert is the payload for risk.alert.
type RiskAlert struct {
	Symbol string  `json:"symbol"`
	Reason string  `json:"reason"`
	Ratio  float64 `json:"ratio"`
}

// TickSummary is the payload for tick.summary.
type TickSummary struct {
	Tick         int64   `json:"tick"`
	AccountValue float64 `json:"account_value"`
	MarginRatio  float64 `json:"margin_ratio"`
	OpenSymbols  int     `json:"open_symbols"`
	Traded       bool    `json:"traded"`
	DurationMs   int64   `json:"duration_ms"`
}
