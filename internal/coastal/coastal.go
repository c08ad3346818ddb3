// Package coastal attaches tide predictions and the marine forecast zone to
// a fetched payload for locations near the coast.
package coastal

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/noaa"
	"github.com/ngmaloney/weather-terminal/internal/stations"
)

const (
	DefaultMaxStationMiles = 30.0
	DefaultMaxZoneMiles    = 25.0

	tideDays = 3
)

// StationFinder finds the nearest tide station.
type StationFinder interface {
	Nearest(ctx context.Context, lat, lon, maxMiles float64) (*stations.Station, error)
}

// ZoneFinder finds the nearest marine zone.
type ZoneFinder interface {
	Nearest(ctx context.Context, lat, lon, maxMiles float64) (*models.MarineZone, error)
}

// Options bound how far from a location a station or zone may be.
type Options struct {
	MaxStationMiles float64
	MaxZoneMiles    float64
}

// Enricher adds coastal data to payloads. Any of its finders may be nil.
type Enricher struct {
	stations StationFinder
	zones    ZoneFinder
	tides    noaa.TideClient
	opts     Options
	now      func() time.Time
}

// NewEnricher creates an Enricher. Zero options take the defaults.
func NewEnricher(stationFinder StationFinder, zoneFinder ZoneFinder, tides noaa.TideClient, opts Options) *Enricher {
	if opts.MaxStationMiles <= 0 {
		opts.MaxStationMiles = DefaultMaxStationMiles
	}
	if opts.MaxZoneMiles <= 0 {
		opts.MaxZoneMiles = DefaultMaxZoneMiles
	}
	return &Enricher{
		stations: stationFinder,
		zones:    zoneFinder,
		tides:    tides,
		opts:     opts,
		now:      time.Now,
	}
}

// Enrich fills in Tides and MarineZone when they are missing and something
// is within range. Lookups against unprovisioned tables find nothing. err is
// only returned when a lookup failed and nothing was added.
func (e *Enricher) Enrich(ctx context.Context, payload models.WeatherPayload) (models.WeatherPayload, bool, error) {
	lat, lon, ok := payload.Location.Coordinates()
	if !ok {
		return payload, false, nil
	}

	var changed bool
	var firstErr error

	if payload.MarineZone == nil && e.zones != nil {
		zone, err := e.zones.Nearest(ctx, lat, lon, e.opts.MaxZoneMiles)
		switch {
		case err != nil:
			firstErr = eris.Wrap(err, "coastal: marine zone lookup")
		case zone != nil:
			payload.MarineZone = zone
			changed = true
		}
	}

	if payload.Tides == nil && e.stations != nil && e.tides != nil {
		tides, err := e.lookupTides(ctx, payload.Location, lat, lon)
		switch {
		case err != nil:
			if firstErr == nil {
				firstErr = err
			}
		case tides != nil:
			payload.Tides = tides
			changed = true
		}
	}

	if changed {
		if firstErr != nil {
			zap.L().Warn("coastal: partial enrichment", zap.Error(firstErr))
		}
		return payload, true, nil
	}
	return payload, false, firstErr
}

func (e *Enricher) lookupTides(ctx context.Context, loc models.Location, lat, lon float64) (*models.TideData, error) {
	station, err := e.stations.Nearest(ctx, lat, lon, e.opts.MaxStationMiles)
	if err != nil {
		return nil, eris.Wrap(err, "coastal: tide station lookup")
	}
	if station == nil {
		return nil, nil
	}

	start := startOfDay(e.now(), loc.TimeZone)
	data, err := e.tides.GetTidePredictions(ctx, station.ID, start, start.AddDate(0, 0, tideDays-1))
	if err != nil {
		return nil, eris.Wrapf(err, "coastal: tides for station %s", station.ID)
	}

	if data.StationName == "" {
		data.StationName = station.Name
	}
	data.DistanceMiles = station.DistanceMiles
	return data, nil
}

// startOfDay is midnight of now's date in the named zone, or UTC when the
// zone is unknown.
func startOfDay(now time.Time, timeZone string) time.Time {
	loc := time.UTC
	if timeZone != "" {
		if l, err := time.LoadLocation(timeZone); err == nil {
			loc = l
		}
	}
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
