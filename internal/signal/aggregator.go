// Package signal combines per-indicator votes into one directional decision.
package signal

import (
	"fmt"
	"math"

	"perp-trader/internal/indicators"
)

// Direction is the aggregated decision for one symbol.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionHold Direction = "hold"
)

// Strength partitions the active strategy weight into buy/sell/hold buckets.
// The three fields sum to 1 whenever at least one indicator is active.
type Strength struct {
	Buy  float64 `json:"buy"`
	Sell float64 `json:"sell"`
	Hold float64 `json:"hold"`
}

// Policy selects how votes become a decision.
type Policy string

const (
	PolicyWeighted Policy = "weighted"
	PolicyStrict   Policy = "strict"
	PolicyMajority Policy = "majority"
)

// Input carries everything one aggregation needs.
type Input struct {
	Snapshot indicators.Snapshot
	// Weights for ma/rsi/macd/bollinger, normalized to sum to 1.
	Weights map[string]float64
	// PositionQty is the signed live position: positive long, negative short,
	// |qty| below the flat epsilon counts as no position.
	PositionQty float64
	// CanAddExposure reports whether the single-asset cap allows adding to an
	// existing position. Computed by the risk engine, consumed here.
	CanAddExposure bool
	Threshold      float64
	Policy         Policy
}

// Decision is the aggregation result.
type Decision struct {
	Direction Direction
	Advice    string
	Strength  Strength
}

// FlatEpsilon is the position size below which a position counts as flat.
const FlatEpsilon = 0.001

// Aggregate runs the configured policy over the indicator votes.
func Aggregate(in Input) Decision {
	strength, active := computeStrength(in.Snapshot, in.Weights)
	if active == 0 {
		return Decision{Direction: DirectionHold, Advice: "no active indicators", Strength: strength}
	}

	switch in.Policy {
	case PolicyStrict:
		return strictDecision(in, strength)
	case PolicyMajority:
		return majorityDecision(in, strength)
	default:
		return weightedDecision(in, strength)
	}
}

func computeStrength(snap indicators.Snapshot, weights map[string]float64) (Strength, int) {
	votes := []struct {
		vote   indicators.Vote
		weight float64
	}{
		{snap.MA, weights["ma"]},
		{snap.RSI, weights["rsi"]},
		{snap.MACD, weights["macd"]},
		{snap.Bollinger, weights["bollinger"]},
	}

	var s Strength
	total := 0.0
	active := 0
	for _, v := range votes {
		if !v.vote.Active() {
			continue
		}
		active++
		total += v.weight
		switch v.vote {
		case indicators.VoteBuy:
			s.Buy += v.weight
		case indicators.VoteSell:
			s.Sell += v.weight
		default:
			s.Hold += v.weight
		}
	}

	if active == 0 || total == 0 {
		return Strength{Hold: 1}, 0
	}
	s.Buy /= total
	s.Sell /= total
	s.Hold /= total
	return s, active
}

func weightedDecision(in Input, s Strength) Decision {
	long := in.PositionQty > FlatEpsilon
	short := in.PositionQty < -FlatEpsilon

	switch {
	case long:
		if s.Sell > in.Threshold && s.Buy < 0.2 {
			return Decision{DirectionSell, "strong sell signal: close long", s}
		}
		if s.Sell > 0.4 && s.Buy < 0.3 {
			return Decision{DirectionHold, "sell pressure building: consider trimming long", s}
		}
		if s.Buy > in.Threshold {
			if in.CanAddExposure {
				return Decision{DirectionBuy, "strong buy signal: add to long", s}
			}
			return Decision{DirectionHold, "buy signal capped by single-asset exposure limit", s}
		}
		return Decision{DirectionHold, "holding long", s}

	case short:
		if s.Buy > in.Threshold && s.Sell < 0.2 {
			return Decision{DirectionBuy, "strong buy signal: close short", s}
		}
		if s.Buy > 0.4 && s.Sell < 0.3 {
			return Decision{DirectionHold, "buy pressure building: consider trimming short", s}
		}
		if s.Sell > in.Threshold {
			if in.CanAddExposure {
				return Decision{DirectionSell, "strong sell signal: add to short", s}
			}
			return Decision{DirectionHold, "sell signal capped by single-asset exposure limit", s}
		}
		return Decision{DirectionHold, "holding short", s}

	default:
		if s.Buy > s.Sell && s.Buy > in.Threshold {
			return Decision{DirectionBuy, "open long", s}
		}
		if s.Sell > s.Buy && s.Sell > in.Threshold {
			return Decision{DirectionSell, "open short", s}
		}
		if s.Buy > 0.5 && s.Sell < 0.3 {
			return Decision{DirectionHold, fmt.Sprintf("buy interest %.2f below threshold %.2f", s.Buy, in.Threshold), s}
		}
		return Decision{DirectionHold, "no actionable signal", s}
	}
}

// strictDecision requires every active vote to agree; any disagreement holds.
func strictDecision(in Input, s Strength) Decision {
	votes := activeVotes(in.Snapshot)
	first := votes[0]
	for _, v := range votes[1:] {
		if v != first {
			return Decision{DirectionHold, "indicators disagree", s}
		}
	}
	switch first {
	case indicators.VoteBuy:
		return Decision{DirectionBuy, "unanimous buy", s}
	case indicators.VoteSell:
		return Decision{DirectionSell, "unanimous sell", s}
	default:
		return Decision{DirectionHold, "unanimous hold", s}
	}
}

// majorityDecision needs a strict majority of active votes. Sell signals only
// ever close an existing long; with no position a majority sell stays hold.
// This conservative bias is deliberate and must not be symmetrized.
func majorityDecision(in Input, s Strength) Decision {
	votes := activeVotes(in.Snapshot)
	buys, sells := 0, 0
	for _, v := range votes {
		switch v {
		case indicators.VoteBuy:
			buys++
		case indicators.VoteSell:
			sells++
		}
	}
	half := float64(len(votes)) / 2

	flat := math.Abs(in.PositionQty) <= FlatEpsilon
	switch {
	case float64(buys) > half:
		return Decision{DirectionBuy, "majority buy", s}
	case float64(sells) > half:
		if flat {
			return Decision{DirectionHold, "majority sell with no position: standing aside", s}
		}
		return Decision{DirectionSell, "majority sell", s}
	default:
		return Decision{DirectionHold, "no majority", s}
	}
}

func activeVotes(snap indicators.Snapshot) []indicators.Vote {
	var out []indicators.Vote
	for _, v := range []indicators.Vote{snap.MA, snap.RSI, snap.MACD, snap.Bollinger} {
		if v.Active() {
			out = append(out, v)
		}
	}
	return out
}
