package indicators

import "math"

// Bollinger returns the middle band and standard deviation for the window.
func Bollinger(values []float64, period int) (middle, stddev float64) {
	if period <= 0 || len(values) < period {
		return 0, 0
	}
	middle = SMA(values, period)
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		d := values[i] - middle
		sum += d * d
	}
	return middle, math.Sqrt(sum / float64(period))
}

// BollingerVote votes on band breaches: above the upper band sells, below the
// lower band buys. Prices within 2% of the middle band are explicitly hold,
// as is anything else between the bands.
func BollingerVote(closes []float64, period int, width float64) Vote {
	if len(closes) < period {
		return VoteInsufficientData
	}
	middle, sd := Bollinger(closes, period)
	price := closes[len(closes)-1]
	upper := middle + width*sd
	lower := middle - width*sd

	switch {
	case price > upper:
		return VoteSell
	case price < lower:
		return VoteBuy
	case math.Abs(price-middle) <= middle*0.02:
		return VoteHold
	default:
		return VoteHold
	}
}

// Volatility returns the standard deviation of period returns divided by the
// mean price, a unitless dispersion measure over the last period closes.
func Volatility(closes []float64, period int) float64 {
	if period <= 1 || len(closes) < period {
		return 0
	}
	window := closes[len(closes)-period:]
	mean := SMA(window, period)
	if mean == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range window {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum/float64(period)) / mean
}

// HighestClose returns the maximum close over the last period values.
func HighestClose(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	high := closes[len(closes)-period]
	for _, v := range closes[len(closes)-period:] {
		if v > high {
			high = v
		}
	}
	return high
}
