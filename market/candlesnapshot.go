package market

import (
	"github.com/dwelch/tickstream/shared"
)

// CandleSnapshot represents a fixed-capacity snapshot of closed candlesticks
// for one timeframe. The oldest candle is evicted once the snapshot is at
// capacity. Access is synchronized by the owning series.
type CandleSnapshot struct {
	data  []*shared.Candlestick
	start int
	count int
	size  int
}

// NewCandleSnapshot initializes a new candle snapshot.
func NewCandleSnapshot(size int) *CandleSnapshot {
	return &CandleSnapshot{
		data: make([]*shared.Candlestick, size),
		size: size,
	}
}

// Update adds the provided candle to the snapshot.
func (s *CandleSnapshot) Update(candle *shared.Candlestick) {
	end := (s.start + s.count) % s.size
	s.data[end] = candle

	if s.count == s.size {
		// Overwrite the oldest entry when the snapshot is at capacity.
		s.start = (s.start + 1) % s.size
	} else {
		s.count++
	}
}

// Count returns the number of candles held by the snapshot.
func (s *CandleSnapshot) Count() int {
	return s.count
}

// Last fetches the most recent candle from the snapshot.
func (s *CandleSnapshot) Last() *shared.Candlestick {
	if s.count == 0 {
		return nil
	}

	return s.data[(s.start+s.count-1)%s.size]
}

// LastN fetches the last n number of candles from the snapshot, oldest first.
func (s *CandleSnapshot) LastN(n int) []*shared.Candlestick {
	if n <= 0 {
		return nil
	}

	// Clamp the number of elements expected if it is greater than the snapshot count.
	if n > s.count {
		n = s.count
	}

	set := make([]*shared.Candlestick, n)
	start := (s.start + s.count - n + s.size) % s.size

	for i := range n {
		idx := (start + i) % s.size
		set[i] = s.data[idx]
	}

	return set
}
