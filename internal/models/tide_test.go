package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTideData_EventsOn(t *testing.T) {
	pacific := time.FixedZone("PST", -8*3600)
	day := time.Date(2025, 1, 14, 0, 0, 0, 0, pacific)
	td := &TideData{
		StationID: "9439040",
		Events: []TideEvent{
			{Time: time.Date(2025, 1, 13, 23, 10, 0, 0, pacific), Type: TideHigh, Height: 8.9},
			{Time: time.Date(2025, 1, 14, 5, 2, 0, 0, pacific), Type: TideLow, Height: 2.1},
			{Time: time.Date(2025, 1, 14, 11, 20, 0, 0, pacific), Type: TideHigh, Height: 9.4},
			{Time: time.Date(2025, 1, 14, 17, 45, 0, 0, pacific), Type: TideLow, Height: -0.6},
			{Time: time.Date(2025, 1, 15, 0, 0, 0, 0, pacific), Type: TideHigh, Height: 8.2},
		},
	}

	tests := []struct {
		name string
		day  time.Time
		want int
	}{
		{"full day", day, 3},
		{"afternoon of the same day", day.Add(15 * time.Hour), 3},
		{"midnight belongs to the next day", day.AddDate(0, 0, 1), 1},
		{"no predictions", day.AddDate(0, 0, 5), 0},
		// In UTC the 13th 23:10 PST event lands on the 14th and the
		// 17:45 PST one on the 15th.
		{"boundaries follow the day's zone", time.Date(2025, 1, 14, 1, 0, 0, 0, time.UTC), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, td.EventsOn(tt.day), tt.want)
		})
	}
}

func TestTideData_Next(t *testing.T) {
	base := time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC)
	td := &TideData{
		Events: []TideEvent{
			{Time: base.Add(6 * time.Hour), Type: TideLow, Height: 0.5},
			{Time: base.Add(12 * time.Hour), Type: TideHigh, Height: 5.2},
		},
	}

	next, ok := td.Next(base.Add(7 * time.Hour))
	require.True(t, ok)
	assert.Equal(t, TideHigh, next.Type)

	next, ok = td.Next(base.Add(6 * time.Hour))
	require.True(t, ok, "an event exactly at t is not next")
	assert.Equal(t, 5.2, next.Height)

	_, ok = td.Next(base.Add(13 * time.Hour))
	assert.False(t, ok)
}

func TestTideType_Label(t *testing.T) {
	assert.Equal(t, "High", TideHigh.Label())
	assert.Equal(t, "Low", TideLow.Label())
}
