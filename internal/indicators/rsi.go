package indicators

// RSI computes the Wilder-smoothed Relative Strength Index over the series.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder smoothing over the remainder of the series.
	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// RSIVote votes on RSI extremes: overbought above 75 sells, oversold below
// 25 buys, everything in between holds.
func RSIVote(closes []float64, period int) Vote {
	if len(closes) < period+1 {
		return VoteInsufficientData
	}
	rsi := RSI(closes, period)
	switch {
	case rsi > 75:
		return VoteSell
	case rsi < 25:
		return VoteBuy
	default:
		return VoteHold
	}
}
