package market

import (
	"testing"
	"time"

	"github.com/dwelch/tickstream/shared"
	"github.com/peterldowns/testy/assert"
)

func TestSeriesIngest(t *testing.T) {
	series := NewSeries("BTCUSDT", &TimeframeConfig{
		Timeframe: shared.OneMinute,
		Retention: 10,
	})

	start := time.Date(2024, 3, 5, 14, 35, 0, 0, time.UTC)

	// Ensure the first tick opens a candle without closing one.
	closed := series.Ingest(&shared.Tick{Price: 100, Volume: 5, Timestamp: start})
	assert.Nil(t, closed)

	current := series.Current()
	assert.NotNil(t, current)
	assert.Equal(t, current.PeriodStart, start)
	assert.Equal(t, current.Open, float64(100))

	// Ensure a tick in the same bucket folds into the open candle.
	closed = series.Ingest(&shared.Tick{Price: 102, Volume: 3, Timestamp: start.Add(time.Second * 30)})
	assert.Nil(t, closed)

	current = series.Current()
	assert.Equal(t, current.High, float64(102))
	assert.Equal(t, current.Close, float64(102))
	assert.Equal(t, current.Volume, float64(8))
	assert.Equal(t, current.TickCount, uint32(2))

	// Ensure a tick in the next bucket closes the previous candle and opens a
	// new one.
	closed = series.Ingest(&shared.Tick{Price: 101, Volume: 2, Timestamp: start.Add(time.Second * 65)})
	assert.NotNil(t, closed)
	assert.Equal(t, closed.PeriodStart, start)
	assert.Equal(t, closed.Open, float64(100))
	assert.Equal(t, closed.High, float64(102))
	assert.Equal(t, closed.Low, float64(100))
	assert.Equal(t, closed.Close, float64(102))
	assert.Equal(t, closed.Volume, float64(8))
	assert.Equal(t, closed.TickCount, uint32(2))

	// Ensure there is exactly one open candle per series.
	current = series.Current()
	assert.Equal(t, current.PeriodStart, start.Add(time.Minute))
	assert.Equal(t, current.Open, float64(101))
	assert.Equal(t, series.snapshot.Count(), 1)

	// Ensure the data view includes the closed candles and the open candle.
	data := series.Data()
	assert.Equal(t, len(data), 2)
	assert.Equal(t, data[0].PeriodStart, start)
	assert.Equal(t, data[1].PeriodStart, start.Add(time.Minute))

	// Ensure the closed view excludes the open candle.
	assert.Equal(t, len(series.Closed()), 1)
}

func TestSeriesSeed(t *testing.T) {
	series := NewSeries("BTCUSDT", &TimeframeConfig{
		Timeframe: shared.FiveMinute,
		Retention: 10,
	})

	start := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	candles := make([]*shared.Candlestick, 3)
	for idx := range candles {
		candles[idx] = &shared.Candlestick{
			Market:      "BTCUSDT",
			Timeframe:   shared.FiveMinute,
			PeriodStart: start.Add(time.Duration(idx) * time.Minute * 5),
			Close:       float64(100 + idx),
		}
	}

	// Ensure seeded candles populate the closed history with no open candle.
	series.Seed(candles)
	assert.Equal(t, len(series.Closed()), 3)
	assert.Nil(t, series.Current())

	// Ensure the indicator snapshot reflects the seeded history.
	snap := series.Indicators()
	assert.Equal(t, snap.Size(), 3)
	assert.Equal(t, snap.LastClose(), float64(102))
}

func TestDefaultTimeframes(t *testing.T) {
	timeframes := DefaultTimeframes()
	assert.Equal(t, len(timeframes), 6)

	// Ensure every timeframe carries a retention window and a bound strategy.
	for idx := range timeframes {
		assert.True(t, timeframes[idx].Retention > 0)
		assert.NotNil(t, timeframes[idx].Evaluator)
	}

	// Ensure retention follows the configured windows.
	assert.Equal(t, timeframes[0].Timeframe, shared.OneMinute)
	assert.Equal(t, timeframes[0].Retention, 1440)
	assert.Equal(t, timeframes[5].Timeframe, shared.OneDay)
	assert.Equal(t, timeframes[5].Retention, 365)
}
