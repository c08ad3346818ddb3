package noaa

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ngmaloney/weather-terminal/internal/identity"
	"github.com/ngmaloney/weather-terminal/internal/models"
)

const (
	metersToFeet  = 3.28084
	hourlyPeriods = 24
)

// Fetcher assembles a WeatherPayload for a location from the points,
// forecast, hourly, observation and alert endpoints.
type Fetcher struct {
	weather WeatherClient
	alerts  AlertClient
	now     func() time.Time
}

// NewFetcher creates a Fetcher.
func NewFetcher(weather WeatherClient, alerts AlertClient) *Fetcher {
	return &Fetcher{weather: weather, alerts: alerts, now: time.Now}
}

// Fetch retrieves weather for loc. The forecast is required; hourly periods,
// the latest observation and alerts are best effort. The returned payload's
// location keeps loc's coordinates and fills in time zone, radar station,
// elevation and, when missing, city and state.
func (f *Fetcher) Fetch(ctx context.Context, loc models.Location) (models.WeatherPayload, *models.Observation, error) {
	lat, lon, ok := loc.Coordinates()
	if !ok {
		return models.WeatherPayload{}, nil, eris.Wrap(identity.ErrInvalidLocation, "noaa: location has no coordinates")
	}

	point, err := f.weather.GetPoint(ctx, lat, lon)
	if err != nil {
		return models.WeatherPayload{}, nil, err
	}

	var (
		forecast *Forecast
		hourly   *Forecast
		obs      *models.Observation
		alerts   []models.Alert
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		forecast, err = f.weather.GetForecast(gctx, point.ForecastURL)
		return err
	})
	g.Go(func() error {
		h, err := f.weather.GetForecast(gctx, point.HourlyURL)
		if err != nil {
			zap.L().Warn("noaa: hourly forecast unavailable", zap.Error(err))
			return nil
		}
		hourly = h
		return nil
	})
	g.Go(func() error {
		o, err := f.weather.GetLatestObservation(gctx, point.StationsURL)
		if err != nil {
			zap.L().Warn("noaa: observation unavailable", zap.Error(err))
			return nil
		}
		obs = o
		return nil
	})
	g.Go(func() error {
		a, err := f.alerts.GetActiveAlerts(gctx, lat, lon)
		if err != nil {
			zap.L().Warn("noaa: alerts unavailable", zap.Error(err))
			return nil
		}
		alerts = a
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.WeatherPayload{}, nil, err
	}

	payload := models.WeatherPayload{
		Location:    enrichLocation(loc, point, forecast),
		Periods:     forecast.Periods,
		Alerts:      alerts,
		GeneratedAt: f.now().UTC(),
	}
	if hourly != nil {
		payload.Hourly = hourly.Periods
		if len(payload.Hourly) > hourlyPeriods {
			payload.Hourly = payload.Hourly[:hourlyPeriods]
		}
	}
	return payload, obs, nil
}

func enrichLocation(loc models.Location, point *Point, forecast *Forecast) models.Location {
	if point.TimeZone != "" {
		loc.TimeZone = point.TimeZone
	}
	if point.RadarStation != "" {
		loc.RadarStation = point.RadarStation
	}
	if loc.City == "" {
		loc.City = point.City
	}
	if loc.State == "" {
		loc.State = point.State
	}
	if forecast != nil && forecast.ElevationMeters != nil {
		loc.ElevationFeet = math.Round(*forecast.ElevationMeters * metersToFeet)
	}
	return loc
}
