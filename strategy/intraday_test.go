package strategy

import (
	"testing"

	"github.com/dwelch/tickstream/indicator"
	"github.com/dwelch/tickstream/shared"
	"github.com/peterldowns/testy/assert"
)

// trendSnapshot builds a thirty candle snapshot that trends by step for the
// first twenty four candles and retraces by pullback for the last six.
func trendSnapshot(start float64, step float64, pullback float64) *indicator.Snapshot {
	closes := make([]float64, 0, 30)
	for idx := range 24 {
		closes = append(closes, start+step*float64(idx))
	}
	for idx := range 6 {
		closes = append(closes, closes[23]+pullback*float64(idx+1))
	}

	highs := make([]float64, len(closes))
	lows := make([]float64, len(closes))
	volumes := make([]float64, len(closes))
	for idx := range closes {
		highs[idx] = closes[idx] + 1
		lows[idx] = closes[idx] - 1
		volumes[idx] = 10
	}

	return &indicator.Snapshot{
		Market:    "BTCUSDT",
		Timeframe: shared.OneHour,
		Closes:    closes,
		Highs:     highs,
		Lows:      lows,
		Volumes:   volumes,
	}
}

func TestIntradayEvaluate(t *testing.T) {
	intraday := NewIntraday()

	// Ensure evaluation requires enough history.
	assert.Nil(t, intraday.Evaluate(&indicator.Snapshot{Closes: []float64{100}}))

	// Ensure an uptrend with a pullback that cools the index below the
	// midline is a buy sized from the average true range.
	snap := trendSnapshot(100, 2.5, -4)
	advice := intraday.Evaluate(snap)
	assert.Equal(t, advice.Action, shared.Buy)
	assert.Equal(t, advice.Confidence, float64(70))
	assert.True(t, advice.Actionable(intraday.MinConfidence()))

	price := snap.LastClose()
	atr := indicator.ATR(snap.Highs, snap.Lows, snap.Closes, 14)
	assert.GreaterThan(t, atr, float64(0))
	assert.Equal(t, advice.StopLoss, price-atr*2)
	assert.Equal(t, len(advice.Targets), 3)
	assert.Equal(t, advice.Targets[0], price+atr*2)
	assert.Equal(t, advice.Targets[2], price+atr*6)

	// Ensure the mirrored downtrend with a bounce is a sell.
	snap = trendSnapshot(200, -2.5, 4)
	advice = intraday.Evaluate(snap)
	assert.Equal(t, advice.Action, shared.Sell)
	assert.Equal(t, advice.Confidence, float64(70))

	price = snap.LastClose()
	atr = indicator.ATR(snap.Highs, snap.Lows, snap.Closes, 14)
	assert.Equal(t, advice.StopLoss, price+atr*2)
	assert.Equal(t, advice.Targets[0], price-atr*2)

	// Ensure a flat market holds.
	flat := trendSnapshot(100, 0, 0)
	advice = intraday.Evaluate(flat)
	assert.Equal(t, advice.Action, shared.Hold)
	assert.False(t, advice.Actionable(intraday.MinConfidence()))
}
