package market

import (
	"sync"

	"github.com/dwelch/tickstream/indicator"
	"github.com/dwelch/tickstream/shared"
	"github.com/dwelch/tickstream/strategy"
)

// TimeframeConfig represents the configuration of one aggregated timeframe.
type TimeframeConfig struct {
	// Timeframe is the bucket width of the series.
	Timeframe shared.Timeframe
	// Retention is the closed candle count held in memory.
	Retention int
	// Evaluator analyzes the series on every candle roll.
	Evaluator strategy.Evaluator
}

// DefaultTimeframes returns the standard set of aggregated timeframes with
// their retention windows and bound strategies.
func DefaultTimeframes() []TimeframeConfig {
	timeframes := []struct {
		timeframe shared.Timeframe
		retention int
	}{
		{shared.OneMinute, 1440},
		{shared.FiveMinute, 576},
		{shared.FifteenMinute, 384},
		{shared.OneHour, 720},
		{shared.FourHour, 180},
		{shared.OneDay, 365},
	}

	set := make([]TimeframeConfig, len(timeframes))
	for idx := range timeframes {
		set[idx] = TimeframeConfig{
			Timeframe: timeframes[idx].timeframe,
			Retention: timeframes[idx].retention,
			Evaluator: strategy.ForTimeframe(timeframes[idx].timeframe),
		}
	}

	return set
}

// Series aggregates ticks into candlesticks for one timeframe. It holds the
// open candle of the current period and a snapshot of closed candles.
type Series struct {
	cfg    *TimeframeConfig
	market string

	mtx       sync.RWMutex
	current   *shared.Candlestick
	snapshot  *CandleSnapshot
	lastPrice float64
}

// NewSeries initializes a new series for the provided market and timeframe.
func NewSeries(market string, cfg *TimeframeConfig) *Series {
	return &Series{
		cfg:      cfg,
		market:   market,
		snapshot: NewCandleSnapshot(cfg.Retention),
	}
}

// Ingest folds the provided tick into the series. When the tick opens a new
// period the previous candle is closed and returned, otherwise nil.
func (s *Series) Ingest(tick *shared.Tick) *shared.Candlestick {
	periodStart := s.cfg.Timeframe.AlignTime(tick.Timestamp)

	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.lastPrice = tick.Price

	switch {
	case s.current == nil:
		s.current = shared.NewCandlestick(s.market, s.cfg.Timeframe, periodStart, tick.Price, tick.Volume)
		return nil
	case s.current.PeriodStart.Equal(periodStart):
		s.current.Update(tick.Price, tick.Volume)
		return nil
	default:
		closed := s.current
		s.snapshot.Update(closed)
		s.current = shared.NewCandlestick(s.market, s.cfg.Timeframe, periodStart, tick.Price, tick.Volume)
		return closed
	}
}

// Seed preloads the series with persisted candles, oldest first. The open
// candle of the current period is left unset, it is rebuilt from live ticks.
func (s *Series) Seed(candles []*shared.Candlestick) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for idx := range candles {
		s.snapshot.Update(candles[idx])
	}
}

// Data returns the closed candles of the series followed by the open candle
// of the current period, oldest first.
func (s *Series) Data() []*shared.Candlestick {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	set := s.snapshot.LastN(s.snapshot.Count())
	if s.current != nil {
		current := *s.current
		set = append(set, &current)
	}

	return set
}

// Closed returns the closed candles of the series, oldest first. The open
// candle of the current period is excluded.
func (s *Series) Closed() []*shared.Candlestick {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.snapshot.LastN(s.snapshot.Count())
}

// Indicators returns a snapshot of the closed candles of the series flattened
// for indicator computation. The open candle is excluded so indicator values
// do not shift mid period.
func (s *Series) Indicators() *indicator.Snapshot {
	return indicator.NewSnapshot(s.market, s.cfg.Timeframe, s.Closed())
}

// Current returns a copy of the open candle of the current period.
func (s *Series) Current() *shared.Candlestick {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if s.current == nil {
		return nil
	}

	current := *s.current
	return &current
}
