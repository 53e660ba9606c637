package strategy

import (
	"github.com/dwelch/tickstream/indicator"
	"github.com/dwelch/tickstream/shared"
)

// Intraday represents the day trading strategy for the middle timeframes. It
// scores an RSI read, an EMA crossover and an SMA confirmation, and sizes the
// stop from the average true range.
type Intraday struct {
	rsiPeriod         int
	rsiOverbought     float64
	rsiOversold       float64
	smaShort          int
	smaLong           int
	emaShort          int
	emaLong           int
	atrPeriod         int
	stopATRMultiplier float64
	targetMultipliers []float64
	minConfidence     float64
}

// Ensure Intraday implements the Evaluator interface.
var _ Evaluator = (*Intraday)(nil)

// NewIntraday initializes the day trading strategy.
func NewIntraday() *Intraday {
	return &Intraday{
		rsiPeriod:         14,
		rsiOverbought:     70,
		rsiOversold:       30,
		smaShort:          9,
		smaLong:           21,
		emaShort:          12,
		emaLong:           26,
		atrPeriod:         14,
		stopATRMultiplier: 2,
		targetMultipliers: []float64{1, 2, 3},
		minConfidence:     60,
	}
}

// Name identifies the strategy.
func (s *Intraday) Name() string {
	return "intraday"
}

// MinHistory is the candle count required before evaluation.
func (s *Intraday) MinHistory() int {
	return 30
}

// MinConfidence is the actionable confidence threshold of the strategy.
func (s *Intraday) MinConfidence() float64 {
	return s.minConfidence
}

// Evaluate maps the provided snapshot to a candidate intraday trade.
func (s *Intraday) Evaluate(snap *indicator.Snapshot) *Advice {
	if snap.Size() < s.MinHistory() {
		return nil
	}

	price := snap.LastClose()
	rsi := indicator.RSI(snap.Closes, s.rsiPeriod)
	smaShort := indicator.SMA(snap.Closes, s.smaShort)
	smaLong := indicator.SMA(snap.Closes, s.smaLong)
	emaShort := indicator.EMA(snap.Closes, s.emaShort)
	emaLong := indicator.EMA(snap.Closes, s.emaLong)
	atr := indicator.ATR(snap.Highs, snap.Lows, snap.Closes, s.atrPeriod)

	advice := &Advice{Action: shared.Hold, EntryPrice: price}
	if atr == 0 {
		return advice
	}

	var confidence float64
	bullish := emaShort > emaLong
	bearish := emaShort < emaLong

	switch {
	case bullish && smaShort > smaLong:
		confidence = 55
		if rsi < 50 {
			// Momentum up with RSI still below midline leaves room to run.
			confidence += 15
		}
		if rsi < s.rsiOversold {
			confidence += 10
		}
		if rsi <= s.rsiOverbought {
			advice.Action = shared.Buy
		}
	case bearish && smaShort < smaLong:
		confidence = 55
		if rsi > 50 {
			confidence += 15
		}
		if rsi > s.rsiOverbought {
			confidence += 10
		}
		if rsi >= s.rsiOversold {
			advice.Action = shared.Sell
		}
	}

	if advice.Action == shared.Hold {
		return advice
	}

	advice.Confidence = confidence
	risk := atr * s.stopATRMultiplier

	switch advice.Action {
	case shared.Buy:
		advice.StopLoss = price - risk
		for _, multiplier := range s.targetMultipliers {
			advice.Targets = append(advice.Targets, price+risk*multiplier)
		}
	case shared.Sell:
		advice.StopLoss = price + risk
		for _, multiplier := range s.targetMultipliers {
			advice.Targets = append(advice.Targets, price-risk*multiplier)
		}
	}

	return advice
}
