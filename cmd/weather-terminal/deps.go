package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ngmaloney/weather-terminal/internal/cache"
	"github.com/ngmaloney/weather-terminal/internal/coastal"
	"github.com/ngmaloney/weather-terminal/internal/config"
	"github.com/ngmaloney/weather-terminal/internal/database"
	"github.com/ngmaloney/weather-terminal/internal/favorites"
	"github.com/ngmaloney/weather-terminal/internal/geocoding"
	"github.com/ngmaloney/weather-terminal/internal/locate"
	"github.com/ngmaloney/weather-terminal/internal/noaa"
	"github.com/ngmaloney/weather-terminal/internal/refresh"
	"github.com/ngmaloney/weather-terminal/internal/resilience"
	"github.com/ngmaloney/weather-terminal/internal/stations"
	"github.com/ngmaloney/weather-terminal/internal/zones"
)

// memoryTierCapacity bounds the decoded entries kept in process.
const memoryTierCapacity = 10

const migrationFailedNotice = "Saved favorites could not be migrated and were cleared"

// environment is everything a command needs, built from cfg.
type environment struct {
	db       *sql.DB
	tier     *cache.DurableTier
	favs     *favorites.Store
	geocoder *geocoding.Geocoder
	locator  refresh.Locator
	orch     *refresh.Orchestrator

	// notice is shown to the user once, e.g. after favorites were discarded.
	notice string
}

// openEnvironment opens the database, runs the favorites migration and wires
// the upstream clients into an orchestrator.
func openEnvironment(ctx context.Context) (*environment, error) {
	db, err := database.Open(ctx, database.DBPath(cfg.DataDir))
	if err != nil {
		return nil, err
	}

	env := &environment{db: db}
	env.tier = cache.NewDurableTier(db, cache.NewMemoryTier(memoryTierCapacity))
	env.favs = favorites.NewStore(db, env.tier)
	env.notice = migrateFavorites(ctx, env.favs)

	client := newResilienceClient(cfg)
	env.geocoder = geocoding.NewGeocoder(
		geocoding.NewZipcodeDB(db),
		geocoding.NewNominatim(client, cfg.Geocode.NominatimURL, cfg.Geocode.RatePerSecond),
	)
	env.locator = newLocator(cfg.Locate, client)

	enricher := coastal.NewEnricher(
		stations.NewRepository(db),
		zones.NewRepository(db),
		noaa.NewTideClient(client),
		coastal.Options{
			MaxStationMiles: cfg.Coastal.MaxStationMiles,
			MaxZoneMiles:    cfg.Coastal.MaxZoneMiles,
		},
	)

	env.orch = refresh.New(refresh.Deps{
		Cache:     env.tier,
		Favorites: env.favs,
		Geocoder:  env.geocoder,
		Locator:   env.locator,
		Fetcher:   noaa.NewFetcher(noaa.NewWeatherClient(client), noaa.NewAlertClient(client)),
		Enricher:  enricher,
	})
	return env, nil
}

// Close closes the database.
func (e *environment) Close() {
	if err := e.db.Close(); err != nil {
		zap.L().Warn("close database", zap.Error(err))
	}
}

func newResilienceClient(c *config.Config) *resilience.Client {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = c.Retry.MaxAttempts
	retry.InitialBackoff = c.Retry.InitialBackoff
	retry.MaxBackoff = c.Retry.MaxBackoff

	return resilience.NewClient(
		&http.Client{Timeout: c.HTTP.Timeout},
		c.HTTP.UserAgent,
		resilience.WithRetry(retry),
		resilience.WithBreakerTimeout(c.Breaker.Timeout),
	)
}

func newLocator(c config.LocateConfig, client *resilience.Client) refresh.Locator {
	if c.Provider == config.LocateStatic {
		return locate.NewStaticLocator(c.Lat, c.Lon, c.City, c.State)
	}
	return locate.NewIPLocator(client, c.IPURL)
}

// migrateFavorites repairs legacy favorites and returns a notice for the
// user when the list had to be discarded.
func migrateFavorites(ctx context.Context, favs *favorites.Store) string {
	_, err := favs.Migrate(ctx)
	switch {
	case errors.Is(err, favorites.ErrMigrationFailed):
		return migrationFailedNotice
	case err != nil:
		zap.L().Error("favorites migration", zap.Error(err))
	}
	return ""
}
