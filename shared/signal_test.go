package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestNewSignal(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)

	// Ensure a new signal starts active with its components set.
	signal := NewSignal("BTCUSDT", "scalp", OneMinute, Buy, 65000, 64675,
		[]float64{65520}, 80, now)
	assert.NotEqual(t, signal.ID, "")
	assert.Equal(t, signal.Status, Active)
	assert.Equal(t, signal.CreatedOn, now)
	assert.Equal(t, signal.UpdatedOn, now)

	// Ensure targets are capped at three.
	capped := NewSignal("BTCUSDT", "swing", FourHour, Sell, 65000, 66300,
		[]float64{64000, 63000, 62000, 61000}, 70, now)
	assert.Equal(t, len(capped.Targets), 3)

	// Ensure target lookups are one based and bounds checked.
	target, ok := capped.Target(1)
	assert.True(t, ok)
	assert.Equal(t, target, float64(64000))

	_, ok = capped.Target(0)
	assert.False(t, ok)
	_, ok = capped.Target(4)
	assert.False(t, ok)
}

func TestUpdatePNLPercent(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)

	// Ensure buy side performance follows the price up.
	buy := NewSignal("BTCUSDT", "intraday", OneHour, Buy, 100, 95, []float64{110}, 70, now)
	pnl := buy.UpdatePNLPercent(105)
	assert.Equal(t, pnl, float64(5))
	assert.Equal(t, buy.MaxProfit, float64(5))

	// Ensure sell side performance inverts the move. A drop from an entry of
	// 100 to 97.5 is a 2.5% gain for the short.
	sell := NewSignal("BTCUSDT", "intraday", OneHour, Sell, 100, 105, []float64{90}, 70, now)
	pnl = sell.UpdatePNLPercent(97.5)
	assert.Equal(t, pnl, float64(2.5))
	assert.Equal(t, sell.MaxProfit, float64(2.5))

	// Ensure an adverse move on the short is a drawdown of the same magnitude.
	pnl = sell.UpdatePNLPercent(106)
	assert.Equal(t, pnl, float64(-6))
	assert.Equal(t, sell.MaxProfit, float64(2.5))
	assert.Equal(t, sell.MaxDrawdown, float64(-6))

	// Ensure extrema survive a recovery.
	pnl = sell.UpdatePNLPercent(100)
	assert.Equal(t, pnl, float64(0))
	assert.Equal(t, sell.MaxProfit, float64(2.5))
	assert.Equal(t, sell.MaxDrawdown, float64(-6))
}

func TestSignalStatus(t *testing.T) {
	// Ensure only the active status is non-terminal.
	assert.False(t, Active.IsTerminal())
	for _, status := range []SignalStatus{HitStop, HitTarget, HitTarget2, HitTarget3, Expired} {
		assert.True(t, status.IsTerminal())
	}

	// Ensure statuses roundtrip through their string forms.
	for _, status := range []SignalStatus{Active, HitStop, HitTarget, HitTarget2, HitTarget3, Expired} {
		assert.Equal(t, ParseSignalStatus(status.String()), status)
	}

	// Ensure actions roundtrip through their string forms.
	for _, action := range []Action{Hold, Buy, Sell} {
		assert.Equal(t, ParseAction(action.String()), action)
	}
}
