package noaa

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

func TestFetcher_Fetch(t *testing.T) {
	srv := newNWSServer(t)
	httpClient := testHTTP(srv)
	weather := NewWeatherClient(httpClient)
	weather.baseURL = srv.URL
	alerts := NewAlertClient(httpClient)
	alerts.baseURL = srv.URL

	f := NewFetcher(weather, alerts)
	generated := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return generated }

	loc := models.NewLocation(45.52, -122.68, "", "")
	payload, obs, err := f.Fetch(context.Background(), loc)
	require.NoError(t, err)

	assert.Len(t, payload.Periods, 2)
	assert.Len(t, payload.Hourly, 1)
	assert.Len(t, payload.Alerts, 2)
	require.NotNil(t, obs)
	assert.Equal(t, "KPDX", obs.StationID)
	assert.Equal(t, generated, payload.GeneratedAt)

	got := payload.Location
	assert.Equal(t, "Portland", got.City)
	assert.Equal(t, "OR", got.State)
	assert.Equal(t, "America/Los_Angeles", got.TimeZone)
	assert.Equal(t, "KRTX", got.RadarStation)
	assert.Equal(t, 50.0, got.ElevationFeet)

	before, _ := identity.ComputeUID(loc)
	after, _ := identity.ComputeUID(got)
	assert.Equal(t, before, after, "enrichment must not move the identity")
}

func TestFetcher_KeepsGeocodedCity(t *testing.T) {
	srv := newNWSServer(t)
	httpClient := testHTTP(srv)
	weather := NewWeatherClient(httpClient)
	weather.baseURL = srv.URL
	alerts := NewAlertClient(httpClient)
	alerts.baseURL = srv.URL

	loc := models.NewLocation(45.52, -122.68, "Downtown Portland", "OR")
	payload, _, err := NewFetcher(weather, alerts).Fetch(context.Background(), loc)
	require.NoError(t, err)
	assert.Equal(t, "Downtown Portland", payload.Location.City)
}

func TestFetcher_RequiresCoordinates(t *testing.T) {
	f := NewFetcher(&stubWeather{}, &stubAlerts{})
	_, _, err := f.Fetch(context.Background(), models.Location{City: "Portland", State: "OR"})
	assert.ErrorIs(t, err, identity.ErrInvalidLocation)
}

func TestFetcher_OptionalPartsFail(t *testing.T) {
	weather := &stubWeather{
		forecast:  &Forecast{Periods: []models.ForecastPeriod{{Number: 1, ShortForecast: "Sunny"}}},
		obsErr:    errors.New("station offline"),
		hourlyErr: errors.New("hourly unavailable"),
	}
	f := NewFetcher(weather, &stubAlerts{err: errors.New("alerts down")})

	payload, obs, err := f.Fetch(context.Background(), models.NewLocation(45.52, -122.68, "Portland", "OR"))
	require.NoError(t, err)
	assert.Nil(t, obs)
	assert.Empty(t, payload.Alerts)
	assert.Empty(t, payload.Hourly)
	assert.Len(t, payload.Periods, 1)
}

func TestFetcher_ForecastFailureIsFatal(t *testing.T) {
	weather := &stubWeather{forecastErr: errors.New("forecast down")}
	f := NewFetcher(weather, &stubAlerts{})

	_, _, err := f.Fetch(context.Background(), models.NewLocation(45.52, -122.68, "Portland", "OR"))
	assert.Error(t, err)
}

type stubWeather struct {
	forecast    *Forecast
	forecastErr error
	hourlyErr   error
	obsErr      error
}

func (s *stubWeather) GetPoint(ctx context.Context, lat, lon float64) (*Point, error) {
	return &Point{ForecastURL: "forecast", HourlyURL: "hourly", StationsURL: "stations"}, nil
}

func (s *stubWeather) GetForecast(ctx context.Context, url string) (*Forecast, error) {
	if url == "hourly" {
		if s.hourlyErr != nil {
			return nil, s.hourlyErr
		}
		return &Forecast{}, nil
	}
	if s.forecastErr != nil {
		return nil, s.forecastErr
	}
	return s.forecast, nil
}

func (s *stubWeather) GetLatestObservation(ctx context.Context, stationsURL string) (*models.Observation, error) {
	return nil, s.obsErr
}

type stubAlerts struct {
	err error
}

func (s *stubAlerts) GetActiveAlerts(ctx context.Context, lat, lon float64) ([]models.Alert, error) {
	return nil, s.err
}
