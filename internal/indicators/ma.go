package indicators

// SMA calculates the simple moving average over the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// MACross votes on a short/long moving-average crossover. The last price must
// clear the short average by more than 1% in the crossover's direction;
// a bare crossover without that margin stays hold.
func MACross(closes []float64, shortPeriod, longPeriod int) Vote {
	if len(closes) < longPeriod {
		return VoteInsufficientData
	}
	short := SMA(closes, shortPeriod)
	long := SMA(closes, longPeriod)
	price := closes[len(closes)-1]

	switch {
	case short > long && price > short*1.01:
		return VoteBuy
	case short < long && price < short*0.99:
		return VoteSell
	default:
		return VoteHold
	}
}
