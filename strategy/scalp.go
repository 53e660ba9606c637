package strategy

import (
	"github.com/dwelch/tickstream/indicator"
	"github.com/dwelch/tickstream/shared"
)

// Scalp represents the scalping strategy, trading quick mean reversions on
// minute timeframes with oversold/overbought RSI, a fast/slow average cross
// and a volume surge.
type Scalp struct {
	rsiPeriod      int
	rsiOverbought  float64
	rsiOversold    float64
	smaFast        int
	smaSlow        int
	minConfidence  float64
	minVolumeRatio float64
	stopLossPct    float64
	targetPct      float64
}

// Ensure Scalp implements the Evaluator interface.
var _ Evaluator = (*Scalp)(nil)

// NewScalp initializes the scalping strategy.
func NewScalp() *Scalp {
	return &Scalp{
		rsiPeriod:      7,
		rsiOverbought:  75,
		rsiOversold:    25,
		smaFast:        3,
		smaSlow:        8,
		minConfidence:  75,
		minVolumeRatio: 1.5,
		stopLossPct:    0.5,
		targetPct:      0.8,
	}
}

// Name identifies the strategy.
func (s *Scalp) Name() string {
	return "scalp"
}

// MinHistory is the candle count required before evaluation.
func (s *Scalp) MinHistory() int {
	return 20
}

// MinConfidence is the actionable confidence threshold of the strategy.
func (s *Scalp) MinConfidence() float64 {
	return s.minConfidence
}

// Evaluate maps the provided snapshot to a candidate scalp trade.
func (s *Scalp) Evaluate(snap *indicator.Snapshot) *Advice {
	if snap.Size() < s.MinHistory() {
		return nil
	}

	price := snap.LastClose()
	rsi := indicator.RSI(snap.Closes, s.rsiPeriod)
	smaFast := indicator.SMA(snap.Closes, s.smaFast)
	smaSlow := indicator.SMA(snap.Closes, s.smaSlow)
	volumeRatio := indicator.VolumeRatio(snap.Volumes, 10)

	advice := &Advice{Action: shared.Hold, EntryPrice: price}

	switch {
	case rsi < s.rsiOversold && smaFast > smaSlow && volumeRatio > s.minVolumeRatio:
		advice.Action = shared.Buy
		advice.Confidence = 80
		advice.StopLoss = price * (1 - s.stopLossPct/100)
		advice.Targets = []float64{price * (1 + s.targetPct/100)}
	case rsi > s.rsiOverbought && smaFast < smaSlow && volumeRatio > s.minVolumeRatio:
		advice.Action = shared.Sell
		advice.Confidence = 80
		advice.StopLoss = price * (1 + s.stopLossPct/100)
		advice.Targets = []float64{price * (1 - s.targetPct/100)}
	}

	return advice
}
