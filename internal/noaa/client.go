// Package noaa fetches forecasts, observations and alerts from
// api.weather.gov and tide predictions from NOAA CO-OPS.
package noaa

import (
	"context"
	"time"

	"github.com/ngmaloney/weather-terminal/internal/models"
)

// WeatherClient defines the interface for fetching weather data from NOAA
type WeatherClient interface {
	// GetPoint resolves a coordinate to its forecast office grid and URLs
	GetPoint(ctx context.Context, lat, lon float64) (*Point, error)

	// GetForecast retrieves forecast periods from a forecast or hourly URL
	GetForecast(ctx context.Context, forecastURL string) (*Forecast, error)

	// GetLatestObservation retrieves the latest reading from the first
	// station listed at stationsURL
	GetLatestObservation(ctx context.Context, stationsURL string) (*models.Observation, error)
}

// AlertClient defines the interface for fetching NOAA alerts
type AlertClient interface {
	// GetActiveAlerts retrieves alerts in effect for a point
	GetActiveAlerts(ctx context.Context, lat, lon float64) ([]models.Alert, error)
}

// TideClient defines the interface for fetching data from NOAA CO-OPS
type TideClient interface {
	// GetTidePredictions retrieves high/low predictions for a date range
	GetTidePredictions(ctx context.Context, stationID string, startDate, endDate time.Time) (*models.TideData, error)
}

// Point is the api.weather.gov metadata for a coordinate.
type Point struct {
	GridID       string
	GridX        int
	GridY        int
	ForecastURL  string
	HourlyURL    string
	StationsURL  string
	TimeZone     string
	RadarStation string
	City         string
	State        string
}

// Forecast is a list of periods plus the grid elevation in meters.
type Forecast struct {
	Periods         []models.ForecastPeriod
	ElevationMeters *float64
}
