package fetch

import (
	"testing"

	"github.com/dwelch/tickstream/shared"
	"github.com/peterldowns/testy/assert"
)

func TestTickSnapshot(t *testing.T) {
	// Ensure a tick snapshot can be created and updated.
	size := 4
	snapshot := NewTickSnapshot(size)
	assert.Equal(t, snapshot.Count(), 0)
	assert.Nil(t, snapshot.Last())

	for idx := range size {
		snapshot.Update(&shared.Tick{Price: float64(100 + idx)})
	}

	assert.Equal(t, snapshot.Count(), size)
	assert.Equal(t, snapshot.Last().Price, float64(103))

	// Ensure updates at capacity evict the oldest tick.
	snapshot.Update(&shared.Tick{Price: 104})
	assert.Equal(t, snapshot.Count(), size)
	assert.Equal(t, snapshot.Last().Price, float64(104))

	// Ensure the last n elements are fetched oldest first.
	set := snapshot.LastN(2)
	assert.Equal(t, len(set), 2)
	assert.Equal(t, set[0].Price, float64(103))
	assert.Equal(t, set[1].Price, float64(104))

	// Ensure the evicted tick is no longer reachable.
	all := snapshot.LastN(snapshot.Count())
	assert.Equal(t, len(all), size)
	assert.Equal(t, all[0].Price, float64(101))

	// Ensure requests beyond the count are clamped.
	assert.Equal(t, len(snapshot.LastN(100)), size)
	assert.Nil(t, snapshot.LastN(0))
}
