package shared

import (
	"time"
)

// RollupAnalytics represents a summary over a trailing time window of
// persisted ticks. A new rollup is recomputed on every batch flush that
// inserted at least one row.
type RollupAnalytics struct {
	WindowStart   time.Time
	WindowEnd     time.Time
	AveragePrice  float64
	MinPrice      float64
	MaxPrice      float64
	VolatilityPct float64
	TotalVolume   float64
	DataPoints    uint32
	CreatedOn     time.Time
}

// NewRollupAnalytics derives a rollup over the provided window of ticks. The
// ticks are expected in chronological order.
func NewRollupAnalytics(ticks []*Tick, now time.Time) *RollupAnalytics {
	if len(ticks) == 0 {
		return nil
	}

	rollup := &RollupAnalytics{
		WindowStart: ticks[0].Timestamp,
		WindowEnd:   ticks[len(ticks)-1].Timestamp,
		MinPrice:    ticks[0].Price,
		MaxPrice:    ticks[0].Price,
		DataPoints:  uint32(len(ticks)),
		CreatedOn:   now,
	}

	var priceSum float64
	for idx := range ticks {
		price := ticks[idx].Price
		priceSum += price

		if price < rollup.MinPrice {
			rollup.MinPrice = price
		}
		if price > rollup.MaxPrice {
			rollup.MaxPrice = price
		}
		if ticks[idx].Volume > 0 {
			rollup.TotalVolume += ticks[idx].Volume
		}
	}

	rollup.AveragePrice = priceSum / float64(len(ticks))
	if rollup.AveragePrice > 0 {
		rollup.VolatilityPct = (rollup.MaxPrice - rollup.MinPrice) / rollup.AveragePrice * 100
	}

	return rollup
}
