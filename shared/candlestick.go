package shared

import (
	"time"
)

// Candlestick represents a unit OHLCV candlestick for a market.
type Candlestick struct {
	Market      string
	Timeframe   Timeframe
	PeriodStart time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	TickCount   uint32
}

// NewCandlestick seeds a new candlestick for the provided period from the first
// tick of the bucket.
func NewCandlestick(market string, timeframe Timeframe, periodStart time.Time, price float64, volume float64) *Candlestick {
	return &Candlestick{
		Market:      market,
		Timeframe:   timeframe,
		PeriodStart: periodStart,
		Open:        price,
		High:        price,
		Low:         price,
		Close:       price,
		Volume:      volume,
		TickCount:   1,
	}
}

// Update folds the provided price and volume into the open candlestick.
func (c *Candlestick) Update(price float64, volume float64) {
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.Volume += volume
	c.TickCount++
}
