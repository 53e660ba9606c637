package shared

import (
	"time"

	"github.com/google/uuid"
)

// Action represents the direction of a trading signal.
type Action int

const (
	Hold Action = iota
	Buy
	Sell
)

// String stringifies the provided action.
func (a Action) String() string {
	switch a {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	case Hold:
		return "HOLD"
	default:
		return "unknown"
	}
}

// ParseAction parses the provided action string.
func ParseAction(action string) Action {
	switch action {
	case "BUY":
		return Buy
	case "SELL":
		return Sell
	default:
		return Hold
	}
}

// SignalStatus represents the lifecycle status of a signal.
type SignalStatus int

const (
	Active SignalStatus = iota
	HitStop
	HitTarget
	HitTarget2
	HitTarget3
	Expired
)

// String stringifies the provided signal status.
func (s SignalStatus) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case HitStop:
		return "HIT_STOP"
	case HitTarget:
		return "HIT_TARGET"
	case HitTarget2:
		return "HIT_TARGET_2"
	case HitTarget3:
		return "HIT_TARGET_3"
	case Expired:
		return "EXPIRED"
	default:
		return "unknown"
	}
}

// ParseSignalStatus parses the provided signal status string.
func ParseSignalStatus(status string) SignalStatus {
	switch status {
	case "HIT_STOP":
		return HitStop
	case "HIT_TARGET":
		return HitTarget
	case "HIT_TARGET_2":
		return HitTarget2
	case "HIT_TARGET_3":
		return HitTarget3
	case "EXPIRED":
		return Expired
	default:
		return Active
	}
}

// IsTerminal reports whether the provided status is terminal. No transitions
// leave a terminal status.
func (s SignalStatus) IsTerminal() bool {
	return s != Active
}

// Signal represents a directional trade recommendation with entry, stop,
// targets and a lifecycle status. A signal is created by a strategy evaluator
// and mutated only by the signal monitor.
type Signal struct {
	ID          string
	Market      string
	Strategy    string
	Timeframe   Timeframe
	Action      Action
	EntryPrice  float64
	StopLoss    float64
	Targets     []float64
	Confidence  float64
	Status      SignalStatus
	CreatedOn   time.Time
	UpdatedOn   time.Time
	PNLPercent  float64
	MaxProfit   float64
	MaxDrawdown float64
	ExitPrice   float64
	ExitTime    time.Time
}

// NewSignal initializes a new active signal.
func NewSignal(market string, strategy string, timeframe Timeframe, action Action,
	entryPrice float64, stopLoss float64, targets []float64, confidence float64, created time.Time) *Signal {
	if len(targets) > 3 {
		targets = targets[:3]
	}

	return &Signal{
		ID:         uuid.New().String(),
		Market:     market,
		Strategy:   strategy,
		Timeframe:  timeframe,
		Action:     action,
		EntryPrice: entryPrice,
		StopLoss:   stopLoss,
		Targets:    targets,
		Confidence: confidence,
		Status:     Active,
		CreatedOn:  created,
		UpdatedOn:  created,
	}
}

// UpdatePNLPercent updates the side-aware percentage change of the signal given
// the current price, tracking running profit and drawdown extrema.
func (s *Signal) UpdatePNLPercent(currentPrice float64) float64 {
	switch s.Action {
	case Buy:
		s.PNLPercent = ((currentPrice - s.EntryPrice) / s.EntryPrice) * 100
	case Sell:
		s.PNLPercent = ((s.EntryPrice - currentPrice) / s.EntryPrice) * 100
	}

	if s.PNLPercent > s.MaxProfit {
		s.MaxProfit = s.PNLPercent
	}
	if s.PNLPercent < s.MaxDrawdown {
		s.MaxDrawdown = s.PNLPercent
	}

	return s.PNLPercent
}

// Target returns the n-th (1-based) target of the signal and whether it is set.
func (s *Signal) Target(n int) (float64, bool) {
	if n < 1 || n > len(s.Targets) {
		return 0, false
	}

	return s.Targets[n-1], true
}
