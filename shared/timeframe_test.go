package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestTimeframeAlignTime(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 37, 42, 0, time.UTC)

	// Ensure timestamps align to the start of their buckets.
	tests := []struct {
		timeframe Timeframe
		want      time.Time
	}{
		{OneMinute, time.Date(2024, 3, 5, 14, 37, 0, 0, time.UTC)},
		{FiveMinute, time.Date(2024, 3, 5, 14, 35, 0, 0, time.UTC)},
		{FifteenMinute, time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)},
		{OneHour, time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)},
		{FourHour, time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)},
		{OneDay, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, test := range tests {
		got := test.timeframe.AlignTime(ts)
		assert.Equal(t, got, test.want)
	}

	// Ensure a timestamp on a bucket boundary aligns to itself.
	boundary := time.Date(2024, 3, 5, 14, 35, 0, 0, time.UTC)
	assert.Equal(t, FiveMinute.AlignTime(boundary), boundary)

	// Ensure timestamps in the same bucket share an alignment and timestamps in
	// the next bucket do not.
	first := time.Date(2024, 3, 5, 14, 35, 0, 0, time.UTC)
	second := first.Add(time.Second * 30)
	third := first.Add(time.Second * 65)
	assert.Equal(t, OneMinute.AlignTime(first), OneMinute.AlignTime(second))
	assert.NotEqual(t, OneMinute.AlignTime(first), OneMinute.AlignTime(third))
}

func TestParseTimeframe(t *testing.T) {
	// Ensure all timeframes roundtrip through their string forms.
	timeframes := []Timeframe{OneMinute, FiveMinute, FifteenMinute, OneHour, FourHour, OneDay}
	for _, timeframe := range timeframes {
		parsed, err := ParseTimeframe(timeframe.String())
		assert.NoError(t, err)
		assert.Equal(t, parsed, timeframe)
	}

	// Ensure an unknown timeframe errors.
	_, err := ParseTimeframe("3m")
	assert.Error(t, err)
}
