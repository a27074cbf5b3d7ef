package indicators

import "math"

// EMA computes the exponential moving average series for the given period.
// The first value seeds with a simple average over the first period samples.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)
	out = append(out, seed)

	k := 2.0 / float64(period+1)
	prev := seed
	for i := period; i < len(values); i++ {
		prev = values[i]*k + prev*(1-k)
		out = append(out, prev)
	}
	return out
}

// MACDVote votes on the MACD(fast, slow, signal) line crossing its signal
// line. The gap must exceed 10% of the signal line's magnitude to count;
// smaller gaps hold. A series shorter than slow+signal cannot be evaluated.
func MACDVote(closes []float64, fast, slow, signal int) Vote {
	if len(closes) < slow+signal {
		return VoteInsufficientData
	}

	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	// Align the two EMA series on their tails.
	n := len(slowEMA)
	macd := make([]float64, n)
	offset := len(fastEMA) - n
	for i := 0; i < n; i++ {
		macd[i] = fastEMA[i+offset] - slowEMA[i]
	}

	signalLine := EMA(macd, signal)
	if len(signalLine) == 0 {
		return VoteInsufficientData
	}

	m := macd[len(macd)-1]
	s := signalLine[len(signalLine)-1]
	strength := math.Abs(m-s) / (math.Abs(s) + 1e-6)

	switch {
	case m > s && strength > 0.1:
		return VoteBuy
	case m < s && strength > 0.1:
		return VoteSell
	default:
		return VoteHold
	}
}
