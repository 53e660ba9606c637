package market

import (
	"testing"

	"github.com/dwelch/tickstream/shared"
	"github.com/peterldowns/testy/assert"
)

func TestCandleSnapshot(t *testing.T) {
	// Ensure a candle snapshot can be created and updated.
	size := 4
	snapshot := NewCandleSnapshot(size)

	for idx := range size {
		snapshot.Update(&shared.Candlestick{Close: float64(100 + idx)})
	}

	assert.Equal(t, snapshot.Count(), size)
	assert.Equal(t, snapshot.Last().Close, float64(103))

	// Ensure updates at capacity evict the oldest candle.
	snapshot.Update(&shared.Candlestick{Close: 104})
	assert.Equal(t, snapshot.Count(), size)
	assert.Equal(t, snapshot.Last().Close, float64(104))

	// Ensure the last n elements are fetched oldest first.
	set := snapshot.LastN(2)
	assert.Equal(t, set[0].Close, float64(103))
	assert.Equal(t, set[1].Close, float64(104))

	// Ensure the evicted candle is no longer reachable.
	all := snapshot.LastN(snapshot.Count())
	assert.Equal(t, all[0].Close, float64(101))

	// Ensure requests beyond the count are clamped.
	assert.Equal(t, len(snapshot.LastN(100)), size)
	assert.Nil(t, snapshot.LastN(0))
}
