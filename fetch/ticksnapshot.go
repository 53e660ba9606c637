package fetch

import (
	"sync"

	"github.com/dwelch/tickstream/shared"
)

// TickSnapshot represents a fixed-capacity snapshot of admitted ticks. The
// oldest tick is evicted once the snapshot is at capacity. Reads and writes
// are synchronized since the snapshot is read outside the poll loop.
type TickSnapshot struct {
	mtx   sync.RWMutex
	data  []*shared.Tick
	start int
	count int
	size  int
}

// NewTickSnapshot initializes a new tick snapshot.
func NewTickSnapshot(size int) *TickSnapshot {
	return &TickSnapshot{
		data: make([]*shared.Tick, size),
		size: size,
	}
}

// Update adds the provided tick to the snapshot.
func (s *TickSnapshot) Update(tick *shared.Tick) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	end := (s.start + s.count) % s.size
	s.data[end] = tick

	if s.count == s.size {
		// Overwrite the oldest entry when the snapshot is at capacity.
		s.start = (s.start + 1) % s.size
	} else {
		s.count++
	}
}

// Count returns the number of ticks held by the snapshot.
func (s *TickSnapshot) Count() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.count
}

// Last fetches the most recent tick from the snapshot.
func (s *TickSnapshot) Last() *shared.Tick {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if s.count == 0 {
		return nil
	}

	return s.data[(s.start+s.count-1)%s.size]
}

// LastN fetches the last n number of ticks from the snapshot, oldest first.
func (s *TickSnapshot) LastN(n int) []*shared.Tick {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if n <= 0 {
		return nil
	}

	// Clamp the number of elements expected if it is greater than the snapshot count.
	if n > s.count {
		n = s.count
	}

	set := make([]*shared.Tick, n)
	start := (s.start + s.count - n + s.size) % s.size

	for i := range n {
		idx := (start + i) % s.size
		set[i] = s.data[idx]
	}

	return set
}
