package market

import (
	"context"
	"testing"
	"time"

	"github.com/dwelch/tickstream/indicator"
	"github.com/dwelch/tickstream/shared"
	"github.com/dwelch/tickstream/strategy"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

type stubStore struct {
	upserts []*shared.Candlestick
	recent  map[shared.Timeframe][]*shared.Candlestick
}

func (s *stubStore) UpsertCandle(ctx context.Context, candle *shared.Candlestick) error {
	s.upserts = append(s.upserts, candle)
	return nil
}

func (s *stubStore) RecentCandles(ctx context.Context, market string, timeframe shared.Timeframe, limit int) ([]*shared.Candlestick, error) {
	return s.recent[timeframe], nil
}

type stubEvaluator struct {
	minHistory int
	advice     *strategy.Advice
}

func (e *stubEvaluator) Name() string { return "stub" }

func (e *stubEvaluator) MinHistory() int { return e.minHistory }

func (e *stubEvaluator) MinConfidence() float64 { return 70 }

func (e *stubEvaluator) Evaluate(snap *indicator.Snapshot) *strategy.Advice { return e.advice }

func TestManagerAggregation(t *testing.T) {
	store := &stubStore{}

	signals := make(chan *shared.Signal, 2)
	evaluator := &stubEvaluator{minHistory: 1, advice: &strategy.Advice{
		Action:     shared.Buy,
		Confidence: 80,
		EntryPrice: 100,
		StopLoss:   99,
		Targets:    []float64{102},
	}}

	// Ensure a manager requires at least one timeframe.
	_, err := NewManager(&ManagerConfig{Market: "BTCUSDT", Logger: &log.Logger})
	assert.Error(t, err)

	mgr, err := NewManager(&ManagerConfig{
		Market: "BTCUSDT",
		Timeframes: []TimeframeConfig{
			{Timeframe: shared.OneMinute, Retention: 10, Evaluator: evaluator},
			{Timeframe: shared.FiveMinute, Retention: 10},
		},
		Store:               store,
		SignalEntry:         func(signal *shared.Signal) { signals <- signal },
		MinSignalConfidence: 60,
		Logger:              &log.Logger,
	})
	assert.NoError(t, err)

	start := time.Date(2024, 3, 5, 14, 35, 0, 0, time.UTC)

	// Ensure ticks fold into every configured timeframe.
	assert.NoError(t, mgr.ProcessTick(&shared.Tick{Price: 100, Volume: 5, Timestamp: start}))
	assert.NoError(t, mgr.ProcessTick(&shared.Tick{Price: 102, Volume: 3, Timestamp: start.Add(time.Second * 30)}))
	assert.Equal(t, mgr.Stats().CandlesClosed, uint64(0))

	// Ensure a bucket roll closes the minute candle, evaluates its strategy
	// and relays the resulting signal.
	assert.NoError(t, mgr.ProcessTick(&shared.Tick{Price: 101, Volume: 2, Timestamp: start.Add(time.Second * 65)}))
	assert.Equal(t, mgr.Stats().CandlesClosed, uint64(1))
	assert.Equal(t, mgr.Stats().SignalsRelayed, uint64(1))

	signal := <-signals
	assert.Equal(t, signal.Market, "BTCUSDT")
	assert.Equal(t, signal.Strategy, "stub")
	assert.Equal(t, signal.Timeframe, shared.OneMinute)
	assert.Equal(t, signal.Action, shared.Buy)
	assert.Equal(t, signal.Status, shared.Active)

	// Ensure minute candles are not persisted, they churn too fast.
	assert.Equal(t, len(store.upserts), 0)

	// Ensure the data view exposes the aggregated candles.
	data, err := mgr.Data(shared.OneMinute)
	assert.NoError(t, err)
	assert.Equal(t, len(data), 2)

	_, err = mgr.Data(shared.OneDay)
	assert.Error(t, err)

	// Ensure rolling a five minute bucket persists the closed candle.
	assert.NoError(t, mgr.ProcessTick(&shared.Tick{Price: 103, Volume: 1, Timestamp: start.Add(time.Minute * 6)}))
	assert.Equal(t, len(store.upserts), 1)
	assert.Equal(t, store.upserts[0].Timeframe, shared.FiveMinute)
}

func TestManagerSignalGating(t *testing.T) {
	store := &stubStore{}

	signals := make(chan *shared.Signal, 2)
	evaluator := &stubEvaluator{minHistory: 1, advice: &strategy.Advice{
		Action:     shared.Buy,
		Confidence: 65,
		EntryPrice: 100,
	}}

	mgr, err := NewManager(&ManagerConfig{
		Market: "BTCUSDT",
		Timeframes: []TimeframeConfig{
			{Timeframe: shared.OneMinute, Retention: 10, Evaluator: evaluator},
		},
		Store:               store,
		SignalEntry:         func(signal *shared.Signal) { signals <- signal },
		MinSignalConfidence: 60,
		Logger:              &log.Logger,
	})
	assert.NoError(t, err)

	start := time.Date(2024, 3, 5, 14, 35, 0, 0, time.UTC)

	// Ensure advice below the strategy threshold is not relayed even when it
	// clears the global floor.
	assert.NoError(t, mgr.ProcessTick(&shared.Tick{Price: 100, Volume: 1, Timestamp: start}))
	assert.NoError(t, mgr.ProcessTick(&shared.Tick{Price: 101, Volume: 1, Timestamp: start.Add(time.Minute)}))
	assert.Equal(t, mgr.Stats().SignalsRelayed, uint64(0))

	// Ensure hold advice is never relayed regardless of confidence.
	evaluator.advice = &strategy.Advice{Action: shared.Hold, Confidence: 95, EntryPrice: 100}
	assert.NoError(t, mgr.ProcessTick(&shared.Tick{Price: 102, Volume: 1, Timestamp: start.Add(time.Minute * 2)}))
	assert.Equal(t, mgr.Stats().SignalsRelayed, uint64(0))

	// Ensure nil advice from a strategy short on history is tolerated.
	evaluator.advice = nil
	assert.NoError(t, mgr.ProcessTick(&shared.Tick{Price: 103, Volume: 1, Timestamp: start.Add(time.Minute * 3)}))
	assert.Equal(t, mgr.Stats().SignalsRelayed, uint64(0))
}

func TestManagerLoadHistory(t *testing.T) {
	start := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	store := &stubStore{recent: map[shared.Timeframe][]*shared.Candlestick{
		shared.OneHour: {
			{Market: "BTCUSDT", Timeframe: shared.OneHour, PeriodStart: start, Close: 100},
			{Market: "BTCUSDT", Timeframe: shared.OneHour, PeriodStart: start.Add(time.Hour), Close: 101},
		},
	}}

	mgr, err := NewManager(&ManagerConfig{
		Market: "BTCUSDT",
		Timeframes: []TimeframeConfig{
			{Timeframe: shared.OneHour, Retention: 10},
		},
		Store:       store,
		SignalEntry: func(signal *shared.Signal) {},
		Logger:      &log.Logger,
	})
	assert.NoError(t, err)

	// Ensure persisted candles seed the series on startup.
	assert.NoError(t, mgr.LoadHistory(context.Background()))

	data, err := mgr.Data(shared.OneHour)
	assert.NoError(t, err)
	assert.Equal(t, len(data), 2)
	assert.Equal(t, data[1].Close, float64(101))
}
