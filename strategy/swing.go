package strategy

import (
	"github.com/dwelch/tickstream/indicator"
	"github.com/dwelch/tickstream/shared"
)

// trend represents the moving average trend direction.
type trend int

const (
	neutral trend = iota
	bullish
	strongBullish
	bearish
	strongBearish
)

// Swing represents the swing trading strategy for the large timeframes. It
// trades pullbacks towards key levels in the direction of the moving average
// trend.
type Swing struct {
	rsiPeriod         int
	rsiOverbought     float64
	rsiOversold       float64
	smaShort          int
	smaLong           int
	smaTrend          int
	minConfidence     float64
	stopLossPct       float64
	targetMultipliers []float64
}

// Ensure Swing implements the Evaluator interface.
var _ Evaluator = (*Swing)(nil)

// NewSwing initializes the swing trading strategy.
func NewSwing() *Swing {
	return &Swing{
		rsiPeriod:         14,
		rsiOverbought:     65,
		rsiOversold:       35,
		smaShort:          20,
		smaLong:           50,
		smaTrend:          200,
		minConfidence:     45,
		stopLossPct:       3,
		targetMultipliers: []float64{1.2, 2, 3.5},
	}
}

// Name identifies the strategy.
func (s *Swing) Name() string {
	return "swing"
}

// MinHistory is the candle count required before evaluation.
func (s *Swing) MinHistory() int {
	return 50
}

// MinConfidence is the actionable confidence threshold of the strategy.
func (s *Swing) MinConfidence() float64 {
	return s.minConfidence
}

// analyzeTrend determines the moving average trend direction.
func (s *Swing) analyzeTrend(smaShort float64, smaLong float64, smaTrend float64) trend {
	switch {
	case smaShort > smaLong && smaLong > smaTrend:
		return strongBullish
	case smaShort > smaLong:
		return bullish
	case smaShort < smaLong && smaLong < smaTrend:
		return strongBearish
	case smaShort < smaLong:
		return bearish
	default:
		return neutral
	}
}

// Evaluate maps the provided snapshot to a candidate swing trade.
func (s *Swing) Evaluate(snap *indicator.Snapshot) *Advice {
	if snap.Size() < s.MinHistory() {
		return nil
	}

	price := snap.LastClose()
	rsi := indicator.RSI(snap.Closes, s.rsiPeriod)
	smaShort := indicator.SMA(snap.Closes, s.smaShort)
	smaLong := indicator.SMA(snap.Closes, s.smaLong)
	smaTrend := smaLong
	if snap.Size() >= s.smaTrend {
		smaTrend = indicator.SMA(snap.Closes, s.smaTrend)
	}

	closes := snap.Closes
	if len(closes) > 100 {
		closes = closes[len(closes)-100:]
	}
	support, resistance := indicator.KeyLevels(closes)

	direction := s.analyzeTrend(smaShort, smaLong, smaTrend)

	var distanceToSupport float64
	if support > 0 {
		distanceToSupport = (price - support) / support
	}
	var distanceToResistance float64
	if resistance > 0 {
		distanceToResistance = (resistance - price) / price
	}

	advice := &Advice{Action: shared.Hold, EntryPrice: price}

	switch {
	case (direction == bullish || direction == strongBullish) &&
		rsi > s.rsiOversold && rsi < 60 &&
		smaShort > smaLong && distanceToSupport < 0.02:

		confidence := float64(65)
		if distanceToSupport < 0.01 {
			confidence += 10
		}
		if rsi < 45 {
			confidence += 10
		}

		advice.Action = shared.Buy
		advice.Confidence = min(confidence, 90)
		advice.StopLoss = support * 0.98
		advice.Targets = []float64{
			price * (1 + s.targetMultipliers[0]*s.stopLossPct/100),
			price * (1 + s.targetMultipliers[1]*s.stopLossPct/100),
			resistance * 0.98,
		}

	case (direction == bearish || direction == strongBearish) &&
		rsi < s.rsiOverbought && rsi > 40 &&
		smaShort < smaLong && distanceToResistance < 0.02:

		confidence := float64(65)
		if distanceToResistance < 0.01 {
			confidence += 10
		}
		if rsi > 55 {
			confidence += 10
		}

		advice.Action = shared.Sell
		advice.Confidence = min(confidence, 90)
		advice.StopLoss = resistance * 1.02
		advice.Targets = []float64{
			price * (1 - s.targetMultipliers[0]*s.stopLossPct/100),
			price * (1 - s.targetMultipliers[1]*s.stopLossPct/100),
			support * 1.02,
		}
	}

	return advice
}
