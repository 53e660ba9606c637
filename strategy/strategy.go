package strategy

import (
	"github.com/dwelch/tickstream/indicator"
	"github.com/dwelch/tickstream/shared"
)

// Advice represents a candidate trade produced by a strategy evaluator.
type Advice struct {
	Action     shared.Action
	Confidence float64
	EntryPrice float64
	StopLoss   float64
	Targets    []float64
}

// Actionable reports whether the advice clears the provided confidence
// threshold and recommends a direction.
func (a *Advice) Actionable(minConfidence float64) bool {
	return a != nil && a.Action != shared.Hold && a.Confidence >= minConfidence
}

// Evaluator defines the requirements for evaluating an indicator snapshot
// into a candidate trade. Evaluators are pure, all state lives in the
// snapshot.
type Evaluator interface {
	// Name identifies the strategy.
	Name() string
	// MinHistory is the candle count required before evaluation.
	MinHistory() int
	// MinConfidence is the confidence threshold below which advice from this
	// strategy is not actionable.
	MinConfidence() float64
	// Evaluate maps the provided snapshot to a candidate trade.
	Evaluate(snap *indicator.Snapshot) *Advice
}

// ForTimeframe binds a timeframe to its evaluator: scalping on minute
// buckets, intraday on the middle buckets and swing on the large ones.
func ForTimeframe(timeframe shared.Timeframe) Evaluator {
	switch timeframe {
	case shared.OneMinute, shared.FiveMinute:
		return NewScalp()
	case shared.FifteenMinute, shared.OneHour:
		return NewIntraday()
	default:
		return NewSwing()
	}
}
