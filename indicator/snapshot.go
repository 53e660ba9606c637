package indicator

import (
	"github.com/dwelch/tickstream/shared"
)

// Snapshot represents the candle history of a series flattened for indicator
// computation. A snapshot is immutable once taken.
type Snapshot struct {
	Market    string
	Timeframe shared.Timeframe
	Closes    []float64
	Highs     []float64
	Lows      []float64
	Volumes   []float64
}

// NewSnapshot flattens the provided candles, oldest first, into a snapshot.
func NewSnapshot(market string, timeframe shared.Timeframe, candles []*shared.Candlestick) *Snapshot {
	snap := &Snapshot{
		Market:    market,
		Timeframe: timeframe,
		Closes:    make([]float64, len(candles)),
		Highs:     make([]float64, len(candles)),
		Lows:      make([]float64, len(candles)),
		Volumes:   make([]float64, len(candles)),
	}

	for idx := range candles {
		snap.Closes[idx] = candles[idx].Close
		snap.Highs[idx] = candles[idx].High
		snap.Lows[idx] = candles[idx].Low
		snap.Volumes[idx] = candles[idx].Volume
	}

	return snap
}

// Size returns the number of candles in the snapshot.
func (s *Snapshot) Size() int {
	return len(s.Closes)
}

// LastClose returns the most recent close of the snapshot.
func (s *Snapshot) LastClose() float64 {
	if len(s.Closes) == 0 {
		return 0
	}

	return s.Closes[len(s.Closes)-1]
}
