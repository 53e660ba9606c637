package indicator

import (
	"math"
)

// RSI computes the relative strength index over the provided closes. It
// returns the neutral value when there is not enough history.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}

	var gainSum, lossSum float64
	deltas := closes[len(closes)-period-1:]
	for idx := 1; idx < len(deltas); idx++ {
		delta := deltas[idx] - deltas[idx-1]
		switch {
		case delta > 0:
			gainSum += delta
		case delta < 0:
			lossSum -= delta
		}
	}

	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// SMA computes the simple moving average of the last period values. It falls
// back to averaging all values when there is not enough history.
func SMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) < period {
		period = len(values)
	}

	var sum float64
	for _, value := range values[len(values)-period:] {
		sum += value
	}

	return sum / float64(period)
}

// EMA computes the exponential moving average of the provided values, seeded
// with a simple average of the first period values.
func EMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) < period {
		return SMA(values, period)
	}

	ema := SMA(values[:period], period)
	multiplier := 2 / (float64(period) + 1)
	for _, value := range values[period:] {
		ema = (value-ema)*multiplier + ema
	}

	return ema
}

// ATR computes the average true range over the provided candle history.
func ATR(highs []float64, lows []float64, closes []float64, period int) float64 {
	if len(closes) < 2 {
		return 0
	}
	if len(closes) < period+1 {
		period = len(closes) - 1
	}

	var sum float64
	start := len(closes) - period
	for idx := start; idx < len(closes); idx++ {
		trueRange := highs[idx] - lows[idx]
		trueRange = math.Max(trueRange, math.Abs(highs[idx]-closes[idx-1]))
		trueRange = math.Max(trueRange, math.Abs(lows[idx]-closes[idx-1]))
		sum += trueRange
	}

	return sum / float64(period)
}

// VolumeRatio computes the most recent volume relative to the average of the
// preceding lookback volumes.
func VolumeRatio(volumes []float64, lookback int) float64 {
	if len(volumes) < 2 {
		return 1
	}

	prev := volumes[:len(volumes)-1]
	if len(prev) > lookback {
		prev = prev[len(prev)-lookback:]
	}

	var sum float64
	for _, volume := range prev {
		sum += volume
	}

	avg := sum / float64(len(prev))
	if avg == 0 {
		return 1
	}

	return volumes[len(volumes)-1] / avg
}

// KeyLevels finds support and resistance from local pivots of the provided
// closes. It falls back to a band around the last close when the history is
// too short for pivots.
func KeyLevels(closes []float64) (float64, float64) {
	if len(closes) < 20 {
		last := closes[len(closes)-1]
		return last * 0.95, last * 1.05
	}

	const span = 5
	highs := make([]float64, 0)
	lows := make([]float64, 0)

	for i := span; i < len(closes)-span; i++ {
		localHigh := true
		localLow := true
		for j := 1; j <= span; j++ {
			if closes[i] < closes[i-j] || closes[i] < closes[i+j] {
				localHigh = false
			}
			if closes[i] > closes[i-j] || closes[i] > closes[i+j] {
				localLow = false
			}
		}
		if localHigh {
			highs = append(highs, closes[i])
		}
		if localLow {
			lows = append(lows, closes[i])
		}
	}

	tail := closes
	if len(tail) > 20 {
		tail = tail[len(tail)-20:]
	}

	support := tailMin(tail)
	if len(lows) > 0 {
		support = meanOfLast(lows, 3)
	}

	resistance := tailMax(tail)
	if len(highs) > 0 {
		resistance = meanOfLast(highs, 3)
	}

	return support, resistance
}

// meanOfLast averages the last n values.
func meanOfLast(values []float64, n int) float64 {
	if len(values) > n {
		values = values[len(values)-n:]
	}

	var sum float64
	for _, value := range values {
		sum += value
	}

	return sum / float64(len(values))
}

// tailMin returns the minimum of the provided values.
func tailMin(values []float64) float64 {
	min := values[0]
	for _, value := range values {
		if value < min {
			min = value
		}
	}

	return min
}

// tailMax returns the maximum of the provided values.
func tailMax(values []float64) float64 {
	max := values[0]
	for _, value := range values {
		if value > max {
			max = value
		}
	}

	return max
}
