// Package indicators holds the pure technical-indicator functions the signal
// aggregator votes on. All functions take a finite close series, oldest
// first, newest last.
package indicators

// MinHistory is the minimum number of closes required before any indicator
// will emit a directional vote.
const MinHistory = 60

// Vote is the closed set of outcomes an indicator can produce.
type Vote int

const (
	VoteHold Vote = iota
	VoteBuy
	VoteSell
	// VoteDisabled marks an indicator switched off in configuration.
	VoteDisabled
	// VoteInsufficientData marks a series too short to evaluate.
	VoteInsufficientData
)

func (v Vote) String() string {
	switch v {
	case VoteBuy:
		return "buy"
	case VoteSell:
		return "sell"
	case VoteHold:
		return "hold"
	case VoteDisabled:
		return "disabled"
	case VoteInsufficientData:
		return "insufficient_data"
	default:
		return "unknown"
	}
}

// Active reports whether the vote participates in aggregation.
func (v Vote) Active() bool {
	return v == VoteBuy || v == VoteSell || v == VoteHold
}

// Snapshot bundles the per-indicator votes for one symbol at one instant.
type Snapshot struct {
	MA        Vote
	RSI       Vote
	MACD      Vote
	Bollinger Vote

	// Raw values retained for trend assessment and display.
	ShortMA  float64
	LongMA   float64
	RSIValue float64
}
