package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngmaloney/weather-terminal/internal/database"
	"github.com/ngmaloney/weather-terminal/internal/identity"
	"github.com/ngmaloney/weather-terminal/internal/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestTier(t *testing.T) (*DurableTier, *MemoryTier) {
	t.Helper()
	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mem := NewMemoryTier(DefaultMemoryCapacity)
	return NewDurableTier(db, mem, WithClock(func() time.Time { return testNow })), mem
}

func portlandPayload() models.WeatherPayload {
	return models.WeatherPayload{
		Location: models.NewLocation(45.52, -122.68, "Portland", "OR"),
		Periods: []models.ForecastPeriod{
			{
				Number:          1,
				Name:            "This Afternoon",
				StartTime:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
				EndTime:         time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC),
				IsDaytime:       true,
				Temperature:     72,
				TemperatureUnit: "F",
				ShortForecast:   "Sunny",
			},
		},
		Alerts: []models.Alert{
			{ID: "urn:1", Event: "Heat Advisory", Severity: models.SeverityModerate,
				Expires: time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)},
		},
		GeneratedAt: time.Date(2025, 6, 1, 11, 55, 0, 0, time.UTC),
	}
}

func TestDurableTier_RoundTrip(t *testing.T) {
	ctx := context.Background()
	tier, _ := newTestTier(t)
	slot := identity.UIDSlot("loc_45.5200_-122.6800")

	temp := 21.5
	obs := &models.Observation{StationID: "KPDX", Timestamp: testNow.Add(-20 * time.Minute), TemperatureC: &temp}
	fetchedAt := testNow.Add(-2 * time.Minute)

	stamp, err := tier.Save(ctx, slot, portlandPayload(), obs, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, SourceExplicit, stamp.Source)

	got, err := tier.Load(ctx, slot)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, portlandPayload(), got.Payload)
	assert.Equal(t, obs, got.Observations)
	assert.True(t, got.ObservationsAvailable)
	assert.True(t, fetchedAt.Equal(got.FetchedAt))
	assert.Equal(t, "Portland, OR", got.LocationDisplay)
}

func TestDurableTier_RoundTripNonUTCInstant(t *testing.T) {
	ctx := context.Background()
	tier, _ := newTestTier(t)
	pacific := time.FixedZone("PDT", -7*60*60)
	fetchedAt := time.Date(2025, 6, 1, 4, 58, 30, 123456789, pacific)

	_, err := tier.Save(ctx, identity.DefaultSlot(), portlandPayload(), nil, fetchedAt)
	require.NoError(t, err)

	got, err := tier.Load(ctx, identity.DefaultSlot())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, fetchedAt.Equal(got.FetchedAt))
	assert.Nil(t, got.Observations)
	assert.False(t, got.ObservationsAvailable)
}

func TestDurableTier_SaveMirrorsDefaultSlot(t *testing.T) {
	ctx := context.Background()
	tier, _ := newTestTier(t)

	_, err := tier.Save(ctx, identity.LegacySlot("Portland,OR"), portlandPayload(), nil, testNow)
	require.NoError(t, err)

	def, err := tier.Load(ctx, identity.DefaultSlot())
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "Portland, OR", def.LocationDisplay)
	assert.True(t, testNow.Equal(def.FetchedAt))
}

func TestDurableTier_SaveWithoutTimestampPreservesFetchedAt(t *testing.T) {
	ctx := context.Background()
	tier, _ := newTestTier(t)
	slot := identity.UIDSlot("loc_45.5200_-122.6800")
	fetchedAt := testNow.Add(-15 * time.Minute)

	_, err := tier.Save(ctx, slot, portlandPayload(), nil, fetchedAt)
	require.NoError(t, err)

	// Warm the memory tier so the enrichment write must invalidate it.
	_, err = tier.Load(ctx, slot)
	require.NoError(t, err)

	enriched := portlandPayload()
	enriched.Tides = &models.TideData{StationID: "9439040", StationName: "Astoria"}
	stamp, err := tier.Save(ctx, slot, enriched, nil, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, SourceSlot, stamp.Source)

	got, err := tier.Load(ctx, slot)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, fetchedAt.Equal(got.FetchedAt))
	require.NotNil(t, got.Payload.Tides)
	assert.Equal(t, "Astoria", got.Payload.Tides.StationName)
}

func TestDurableTier_SaveIfFetchedAt(t *testing.T) {
	ctx := context.Background()
	tier, _ := newTestTier(t)
	slot := identity.UIDSlot("loc_45.5200_-122.6800")
	first := testNow.Add(-5 * time.Minute)

	_, err := tier.Save(ctx, slot, portlandPayload(), nil, first)
	require.NoError(t, err)
	_, err = tier.Load(ctx, slot) // warm the memory tier
	require.NoError(t, err)

	enriched := portlandPayload()
	enriched.Tides = &models.TideData{StationID: "9439040", StationName: "Astoria"}
	saved, err := tier.SaveIfFetchedAt(ctx, slot, enriched, nil, first)
	require.NoError(t, err)
	assert.True(t, saved)

	got, err := tier.Load(ctx, slot)
	require.NoError(t, err)
	require.NotNil(t, got.Payload.Tides)
	assert.True(t, first.Equal(got.FetchedAt))

	def, err := tier.Load(ctx, identity.DefaultSlot())
	require.NoError(t, err)
	assert.NotNil(t, def.Payload.Tides)

	// A newer fetch replaces the slot; the older content must not land.
	second := testNow.Add(-time.Minute)
	newer := portlandPayload()
	newer.Periods[0].ShortForecast = "Showers"
	_, err = tier.Save(ctx, slot, newer, nil, second)
	require.NoError(t, err)

	saved, err = tier.SaveIfFetchedAt(ctx, slot, enriched, nil, first)
	require.NoError(t, err)
	assert.False(t, saved)

	got, err = tier.Load(ctx, slot)
	require.NoError(t, err)
	assert.Equal(t, "Showers", got.Payload.Periods[0].ShortForecast)
	assert.Nil(t, got.Payload.Tides)
	assert.True(t, second.Equal(got.FetchedAt))

	saved, err = tier.SaveIfFetchedAt(ctx, identity.UIDSlot("loc_0.0000_0.0000"), enriched, nil, first)
	require.NoError(t, err)
	assert.False(t, saved, "missing slot")
}

func TestDurableTier_TimestampFallbackChain(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to the default slot", func(t *testing.T) {
		tier, _ := newTestTier(t)
		defaultAt := testNow.Add(-3 * time.Minute)
		_, err := tier.Save(ctx, identity.DefaultSlot(), portlandPayload(), nil, defaultAt)
		require.NoError(t, err)

		// A fresh tier has no last-known time, so only the stored default can answer.
		fresh := NewDurableTier(tier.db, nil, WithClock(func() time.Time { return testNow }))
		stamp, err := fresh.Save(ctx, identity.UIDSlot("loc_new"), portlandPayload(), nil, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, SourceDefault, stamp.Source)
		assert.True(t, defaultAt.Equal(stamp.FetchedAt))
	})

	t.Run("falls back to the last known fetch time", func(t *testing.T) {
		tier, _ := newTestTier(t)
		knownAt := testNow.Add(-4 * time.Minute)
		_, err := tier.Save(ctx, identity.UIDSlot("loc_a"), portlandPayload(), nil, knownAt)
		require.NoError(t, err)
		require.NoError(t, tier.ClearAll(ctx))

		stamp, err := tier.Save(ctx, identity.UIDSlot("loc_b"), portlandPayload(), nil, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, SourceLastKnown, stamp.Source)
		assert.True(t, knownAt.Equal(stamp.FetchedAt))
	})

	t.Run("uses the current time as a last resort", func(t *testing.T) {
		tier, _ := newTestTier(t)
		stamp, err := tier.Save(ctx, identity.UIDSlot("loc_c"), portlandPayload(), nil, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, SourceNow, stamp.Source)
		assert.True(t, testNow.Equal(stamp.FetchedAt))
	})
}

func TestDurableTier_LoadMissingFields(t *testing.T) {
	ctx := context.Background()
	tier, _ := newTestTier(t)

	insert := `INSERT INTO weather_cache (slot, payload, location_display, fetched_at, updated_at) VALUES (?, '{}', ?, ?, 'x')`
	_, err := tier.db.Exec(insert, "no-location", nil, formatTime(testNow))
	require.NoError(t, err)
	_, err = tier.db.Exec(insert, "no-timestamp", "Somewhere", nil)
	require.NoError(t, err)
	_, err = tier.db.Exec(insert, "empty-location", "", formatTime(testNow))
	require.NoError(t, err)

	tests := []struct {
		slot    string
		wantHit bool
	}{
		{"absent", false},
		{"no-location", false},
		{"no-timestamp", false},
		{"empty-location", true},
	}

	for _, tt := range tests {
		t.Run(tt.slot, func(t *testing.T) {
			got, err := tier.Load(ctx, identity.LegacySlot(tt.slot))
			require.NoError(t, err)
			assert.Equal(t, tt.wantHit, got != nil)
		})
	}
}

func TestDurableTier_CorruptRowIsClearedAndMisses(t *testing.T) {
	ctx := context.Background()
	tier, _ := newTestTier(t)
	slot := identity.LegacySlot("Broken,XX")

	_, err := tier.db.Exec(`INSERT INTO weather_cache (slot, payload, location_display, fetched_at, updated_at)
		VALUES (?, '{not json', 'Broken, XX', ?, 'x')`, slot.String(), formatTime(testNow))
	require.NoError(t, err)

	got, err := tier.Load(ctx, slot)
	require.NoError(t, err)
	assert.Nil(t, got)

	var count int
	require.NoError(t, tier.db.QueryRow("SELECT COUNT(*) FROM weather_cache WHERE slot = ?", slot.String()).Scan(&count))
	assert.Zero(t, count)
}

func TestDurableTier_ClearPurgesMemory(t *testing.T) {
	ctx := context.Background()
	tier, mem := newTestTier(t)
	slot := identity.UIDSlot("loc_1")

	_, err := tier.Save(ctx, slot, portlandPayload(), nil, testNow)
	require.NoError(t, err)
	_, err = tier.Load(ctx, slot)
	require.NoError(t, err)
	require.Equal(t, 1, mem.Len())

	require.NoError(t, tier.Clear(ctx, slot))
	assert.Equal(t, 0, mem.Len())

	got, err := tier.Load(ctx, slot)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDurableTier_Copy(t *testing.T) {
	ctx := context.Background()
	tier, _ := newTestTier(t)
	from := identity.LegacySlot("Portland,OR")
	to := identity.UIDSlot("loc_45.5200_-122.6800")
	fetchedAt := testNow.Add(-30 * time.Minute)

	_, err := tier.Save(ctx, from, portlandPayload(), nil, fetchedAt)
	require.NoError(t, err)

	copied, err := tier.Copy(ctx, from, to)
	require.NoError(t, err)
	assert.True(t, copied)

	got, err := tier.Load(ctx, to)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, fetchedAt.Equal(got.FetchedAt))

	// The source is copied, not moved.
	src, err := tier.Load(ctx, from)
	require.NoError(t, err)
	assert.NotNil(t, src)

	copied, err = tier.Copy(ctx, identity.LegacySlot("Nowhere,ZZ"), to)
	require.NoError(t, err)
	assert.False(t, copied)
}

func TestDurableTier_Slots(t *testing.T) {
	ctx := context.Background()
	tier, _ := newTestTier(t)

	_, err := tier.Save(ctx, identity.UIDSlot("loc_1"), portlandPayload(), nil, testNow)
	require.NoError(t, err)

	infos, err := tier.Slots(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, identity.DefaultSlot(), infos[0].Slot)
	assert.Equal(t, identity.UIDSlot("loc_1"), infos[1].Slot)
	assert.True(t, testNow.Equal(infos[1].FetchedAt))
}

func TestDurableTier_LastViewed(t *testing.T) {
	ctx := context.Background()
	tier, _ := newTestTier(t)

	v, err := tier.LastViewed(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, tier.SetLastViewed(ctx, "Portland, OR"))
	require.NoError(t, tier.SetLastViewed(ctx, "here"))

	v, err = tier.LastViewed(ctx)
	require.NoError(t, err)
	assert.Equal(t, "here", v)
}
