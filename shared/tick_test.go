package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestNewIdempotencyKey(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 37, 42, 0, time.UTC)
	tick := &Tick{
		Market:    "BTCUSDT",
		Price:     65000.25,
		Timestamp: ts,
		Source:    "binance",
	}

	// Ensure the key is deterministic for identical ticks.
	first := NewIdempotencyKey(tick)
	second := NewIdempotencyKey(tick)
	assert.Equal(t, first, second)
	assert.Equal(t, len(first), 16)

	// Ensure a price change produces a different key.
	moved := *tick
	moved.Price = 65000.26
	assert.NotEqual(t, NewIdempotencyKey(&moved), first)

	// Ensure a timestamp change produces a different key.
	later := *tick
	later.Timestamp = ts.Add(time.Second)
	assert.NotEqual(t, NewIdempotencyKey(&later), first)

	// Ensure a source change produces a different key.
	other := *tick
	other.Source = "coinbase"
	assert.NotEqual(t, NewIdempotencyKey(&other), first)
}
