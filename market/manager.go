package market

import (
	"context"
	"fmt"
	"time"

	"github.com/dwelch/tickstream/shared"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	// persistTimeout is the maximum duration of a candle write.
	persistTimeout = time.Second * 10
	// persistThreshold is the smallest timeframe whose candles are persisted.
	// Smaller buckets churn too fast to be worth durable storage.
	persistThreshold = time.Minute * 5
)

// CandleStorer defines the requirements for persisting and restoring closed
// candlesticks.
type CandleStorer interface {
	// UpsertCandle persists the provided candle, replacing any existing candle
	// for the same market, timeframe and period.
	UpsertCandle(ctx context.Context, candle *shared.Candlestick) error
	// RecentCandles fetches up to limit persisted candles for the provided
	// market and timeframe, oldest first.
	RecentCandles(ctx context.Context, market string, timeframe shared.Timeframe, limit int) ([]*shared.Candlestick, error)
}

// ManagerConfig represents the market manager configuration.
type ManagerConfig struct {
	// Market is the name of the aggregated market.
	Market string
	// Timeframes is the set of aggregated timeframes.
	Timeframes []TimeframeConfig
	// Store persists closed candles for the larger timeframes.
	Store CandleStorer
	// SignalEntry relays an actionable signal for tracking and persistence.
	SignalEntry func(signal *shared.Signal)
	// MinSignalConfidence is the floor below which no signal is relayed,
	// regardless of strategy thresholds.
	MinSignalConfidence float64
	// Logger is the market manager logger.
	Logger *zerolog.Logger
}

// ManagerStats is a snapshot of the market manager counters.
type ManagerStats struct {
	TicksAggregated uint64
	CandlesClosed   uint64
	SignalsRelayed  uint64
}

// Manager aggregates admitted ticks into candlesticks across all configured
// timeframes and evaluates the bound strategy of a series whenever one of its
// candles closes.
type Manager struct {
	cfg    *ManagerConfig
	series []*Series

	ticksAggregated atomic.Uint64
	candlesClosed   atomic.Uint64
	signalsRelayed  atomic.Uint64
}

// Ensure Manager implements the TickSubscriber interface.
var _ shared.TickSubscriber = (*Manager)(nil)

// NewManager initializes a new market manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	if len(cfg.Timeframes) == 0 {
		return nil, fmt.Errorf("no timeframes configured for %s", cfg.Market)
	}

	series := make([]*Series, len(cfg.Timeframes))
	for idx := range cfg.Timeframes {
		series[idx] = NewSeries(cfg.Market, &cfg.Timeframes[idx])
	}

	return &Manager{
		cfg:    cfg,
		series: series,
	}, nil
}

// Name identifies the market manager as a tick subscriber.
func (m *Manager) Name() string {
	return "market"
}

// LoadHistory seeds every series from persisted candles so strategies have
// usable history immediately after a restart.
func (m *Manager) LoadHistory(ctx context.Context) error {
	for idx := range m.series {
		series := m.series[idx]

		candles, err := m.cfg.Store.RecentCandles(ctx, m.cfg.Market, series.cfg.Timeframe, series.cfg.Retention)
		if err != nil {
			return fmt.Errorf("loading %s history: %w", series.cfg.Timeframe, err)
		}

		series.Seed(candles)
		m.cfg.Logger.Info().Str("timeframe", series.cfg.Timeframe.String()).
			Int("candles", len(candles)).Msg("seeded series history")
	}

	return nil
}

// ProcessTick folds the provided tick into every configured series. A series
// whose candle closes gets the closed candle persisted and its strategy
// evaluated.
func (m *Manager) ProcessTick(tick *shared.Tick) error {
	m.ticksAggregated.Inc()

	for idx := range m.series {
		series := m.series[idx]

		closed := series.Ingest(tick)
		if closed == nil {
			continue
		}

		m.candlesClosed.Inc()
		m.cfg.Logger.Debug().Str("timeframe", series.cfg.Timeframe.String()).
			Time("period", closed.PeriodStart).Float64("close", closed.Close).
			Uint32("ticks", closed.TickCount).Msg("closed candle")

		if series.cfg.Timeframe.Duration() >= persistThreshold {
			m.persistCandle(closed)
		}

		m.evaluate(series, closed)
	}

	return nil
}

// persistCandle writes the provided closed candle to storage. Write failures
// are logged and absorbed, the in-memory series remains authoritative.
func (m *Manager) persistCandle(candle *shared.Candlestick) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := m.cfg.Store.UpsertCandle(ctx, candle); err != nil {
		m.cfg.Logger.Error().Err(err).Str("timeframe", candle.Timeframe.String()).
			Msg("persisting candle")
	}
}

// evaluate runs the bound strategy of the provided series against its closed
// candle history and relays any actionable signal.
func (m *Manager) evaluate(series *Series, closed *shared.Candlestick) {
	evaluator := series.cfg.Evaluator
	if evaluator == nil {
		return
	}

	snap := series.Indicators()
	if snap.Size() < evaluator.MinHistory() {
		return
	}

	advice := evaluator.Evaluate(snap)
	if !advice.Actionable(evaluator.MinConfidence()) || advice.Confidence < m.cfg.MinSignalConfidence {
		return
	}

	signal := shared.NewSignal(m.cfg.Market, evaluator.Name(), series.cfg.Timeframe,
		advice.Action, advice.EntryPrice, advice.StopLoss, advice.Targets,
		advice.Confidence, time.Now().UTC())

	m.signalsRelayed.Inc()
	m.cfg.Logger.Info().Str("strategy", evaluator.Name()).
		Str("timeframe", series.cfg.Timeframe.String()).
		Str("action", signal.Action.String()).Float64("entry", signal.EntryPrice).
		Float64("confidence", signal.Confidence).Msg("relaying signal")

	m.cfg.SignalEntry(signal)
}

// Data returns the candles of the series for the provided timeframe, oldest
// first, including the open candle of the current period.
func (m *Manager) Data(timeframe shared.Timeframe) ([]*shared.Candlestick, error) {
	for idx := range m.series {
		if m.series[idx].cfg.Timeframe == timeframe {
			return m.series[idx].Data(), nil
		}
	}

	return nil, fmt.Errorf("no series configured for timeframe %s", timeframe)
}

// Stats returns a snapshot of the market manager counters.
func (m *Manager) Stats() *ManagerStats {
	return &ManagerStats{
		TicksAggregated: m.ticksAggregated.Load(),
		CandlesClosed:   m.candlesClosed.Load(),
		SignalsRelayed:  m.signalsRelayed.Load(),
	}
}
