package favorites

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngmaloney/weather-terminal/internal/identity"
	"github.com/ngmaloney/weather-terminal/internal/models"
)

func TestMigrate_RecoversLocationFromCachedPayload(t *testing.T) {
	ctx := context.Background()
	store, tier := newTestStore(t)

	// The favorite was saved with the country code as its state and no
	// coordinates; the cached payload under its old key knows better.
	legacy := models.Favorite{
		Key:         "Portland,US",
		Name:        "Portland, US",
		Location:    models.Location{City: "Portland", State: "US"},
		SearchQuery: "portland",
	}
	_, err := store.Import(ctx, []models.Favorite{legacy})
	require.NoError(t, err)

	fetchedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err = tier.Save(ctx, identity.LegacySlot("Portland,US"), models.WeatherPayload{Location: portland}, nil, fetchedAt)
	require.NoError(t, err)

	result, err := store.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Repaired)
	assert.Equal(t, 1, result.Copied)

	favs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, "loc_45.5200_-122.6800", favs[0].UID)
	assert.Equal(t, "Portland,OR", favs[0].Key)

	entry, err := tier.Load(ctx, identity.UIDSlot(favs[0].UID))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, fetchedAt.Equal(entry.FetchedAt))

	old, err := tier.Load(ctx, identity.LegacySlot("Portland,US"))
	require.NoError(t, err)
	assert.NotNil(t, old, "legacy slot is copied, not moved")
}

func TestMigrate_FallsBackToStoredLocation(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Import(ctx, []models.Favorite{
		{Key: "Seattle,WA", Name: "Seattle", Location: models.Location{City: "Seattle", State: "WA"}},
	})
	require.NoError(t, err)

	result, err := store.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Repaired)
	assert.Zero(t, result.Copied)

	fav, err := store.FindByUID(ctx, "loc_seattle_WA")
	require.NoError(t, err)
	assert.Equal(t, "Seattle,WA", fav.Key)
}

func TestMigrate_IsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Add(ctx, portland, "Portland, OR", "portland", "")
	require.NoError(t, err)
	_, err = store.Import(ctx, []models.Favorite{
		{Key: "Seattle,WA", Name: "Seattle", Location: models.Location{City: "Seattle", State: "WA"}},
		{Key: "Boise,ID", Name: "Boise", Location: models.Location{City: "Boise", State: "ID"}},
		{Name: "Mystery", Location: models.Location{City: "Mystery"}},
	})
	require.NoError(t, err)

	result, err := store.Migrate(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMigrationFailed))
	assert.Equal(t, 4, result.Discarded)

	favs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, favs)
}

func TestMigrate_NoLegacyEntriesIsNoop(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Add(ctx, portland, "Portland, OR", "portland", "")
	require.NoError(t, err)

	result, err := store.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationResult{}, result)

	favs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, favs, 1)
}

func TestMigrate_MergesLegacyDuplicates(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Add(ctx, portland, "Portland, OR", "portland", "")
	require.NoError(t, err)
	_, err = store.Import(ctx, []models.Favorite{
		{Key: "Portland,OR", Name: "Portland again", Location: portland},
	})
	require.NoError(t, err)

	result, err := store.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Merged)

	favs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, "Portland, OR", favs[0].Name)
}
