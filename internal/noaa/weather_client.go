package noaa

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/resilience"
)

const defaultWeatherBaseURL = "https://api.weather.gov"

// NOAAWeatherClient implements WeatherClient using the NOAA Weather API
type NOAAWeatherClient struct {
	baseURL string
	http    *resilience.Client
}

// NewWeatherClient creates a new NOAA weather client
func NewWeatherClient(httpClient *resilience.Client) *NOAAWeatherClient {
	return &NOAAWeatherClient{
		baseURL: defaultWeatherBaseURL,
		http:    httpClient,
	}
}

func geoJSONHeader() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/geo+json")
	return h
}

// GetPoint gets the NOAA grid point and forecast URLs for a lat/lon
func (c *NOAAWeatherClient) GetPoint(ctx context.Context, lat, lon float64) (*Point, error) {
	url := fmt.Sprintf("%s/points/%.4f,%.4f", c.baseURL, lat, lon)

	var resp pointResponse
	if err := c.http.GetJSON(ctx, url, geoJSONHeader(), &resp); err != nil {
		return nil, eris.Wrap(err, "noaa: get grid point")
	}

	p := resp.Properties
	return &Point{
		GridID:       p.GridID,
		GridX:        p.GridX,
		GridY:        p.GridY,
		ForecastURL:  p.Forecast,
		HourlyURL:    p.ForecastHourly,
		StationsURL:  p.ObservationStations,
		TimeZone:     p.TimeZone,
		RadarStation: p.RadarStation,
		City:         p.RelativeLocation.Properties.City,
		State:        p.RelativeLocation.Properties.State,
	}, nil
}

// GetForecast retrieves forecast periods from a forecast URL returned by
// GetPoint.
func (c *NOAAWeatherClient) GetForecast(ctx context.Context, forecastURL string) (*Forecast, error) {
	if forecastURL == "" {
		return nil, eris.New("noaa: forecast url is required")
	}

	var resp forecastResponse
	if err := c.http.GetJSON(ctx, forecastURL, geoJSONHeader(), &resp); err != nil {
		return nil, eris.Wrap(err, "noaa: get forecast")
	}

	forecast := &Forecast{
		Periods:         make([]models.ForecastPeriod, 0, len(resp.Properties.Periods)),
		ElevationMeters: resp.Properties.Elevation.Value,
	}
	for _, p := range resp.Properties.Periods {
		start, _ := time.Parse(time.RFC3339, p.StartTime)
		end, _ := time.Parse(time.RFC3339, p.EndTime)

		period := models.ForecastPeriod{
			Number:           p.Number,
			Name:             p.Name,
			StartTime:        start,
			EndTime:          end,
			IsDaytime:        p.IsDaytime,
			Temperature:      p.Temperature,
			TemperatureUnit:  p.TemperatureUnit,
			WindSpeed:        p.WindSpeed,
			WindDirection:    p.WindDirection,
			ShortForecast:    p.ShortForecast,
			DetailedForecast: p.DetailedForecast,
		}
		if p.ProbabilityOfPrecipitation.Value != nil {
			period.PrecipChance = int(*p.ProbabilityOfPrecipitation.Value)
		}
		forecast.Periods = append(forecast.Periods, period)
	}

	return forecast, nil
}

// GetLatestObservation returns the latest observation from the nearest
// station. It returns nil, nil when the point lists no stations.
func (c *NOAAWeatherClient) GetLatestObservation(ctx context.Context, stationsURL string) (*models.Observation, error) {
	if stationsURL == "" {
		return nil, nil
	}

	var stations stationsResponse
	if err := c.http.GetJSON(ctx, stationsURL, geoJSONHeader(), &stations); err != nil {
		return nil, eris.Wrap(err, "noaa: list observation stations")
	}
	if len(stations.Features) == 0 {
		return nil, nil
	}
	station := stations.Features[0].Properties

	url := fmt.Sprintf("%s/stations/%s/observations/latest", c.baseURL, station.StationIdentifier)
	var resp observationResponse
	if err := c.http.GetJSON(ctx, url, geoJSONHeader(), &resp); err != nil {
		if resilience.IsNotFound(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "noaa: latest observation for %s", station.StationIdentifier)
	}

	p := resp.Properties
	ts, _ := time.Parse(time.RFC3339, p.Timestamp)
	return &models.Observation{
		StationID:     station.StationIdentifier,
		StationName:   station.Name,
		Timestamp:     ts,
		Description:   p.TextDescription,
		TemperatureC:  p.Temperature.Value,
		DewpointC:     p.Dewpoint.Value,
		HumidityPct:   p.RelativeHumidity.Value,
		WindSpeedKmh:  p.WindSpeed.Value,
		WindDirection: p.WindDirection.Value,
		PressurePa:    p.BarometricPressure.Value,
		VisibilityM:   p.Visibility.Value,
	}, nil
}

// Internal types for NOAA API responses

type quantity struct {
	UnitCode string   `json:"unitCode"`
	Value    *float64 `json:"value"`
}

type pointResponse struct {
	Properties struct {
		GridID              string `json:"gridId"`
		GridX               int    `json:"gridX"`
		GridY               int    `json:"gridY"`
		Forecast            string `json:"forecast"`
		ForecastHourly      string `json:"forecastHourly"`
		ObservationStations string `json:"observationStations"`
		TimeZone            string `json:"timeZone"`
		RadarStation        string `json:"radarStation"`
		RelativeLocation    struct {
			Properties struct {
				City  string `json:"city"`
				State string `json:"state"`
			} `json:"properties"`
		} `json:"relativeLocation"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Elevation quantity `json:"elevation"`
		Periods   []struct {
			Number                     int      `json:"number"`
			Name                       string   `json:"name"`
			StartTime                  string   `json:"startTime"`
			EndTime                    string   `json:"endTime"`
			IsDaytime                  bool     `json:"isDaytime"`
			Temperature                int      `json:"temperature"`
			TemperatureUnit            string   `json:"temperatureUnit"`
			ProbabilityOfPrecipitation quantity `json:"probabilityOfPrecipitation"`
			WindSpeed                  string   `json:"windSpeed"`
			WindDirection              string   `json:"windDirection"`
			ShortForecast              string   `json:"shortForecast"`
			DetailedForecast           string   `json:"detailedForecast"`
		} `json:"periods"`
	} `json:"properties"`
}

type stationsResponse struct {
	Features []struct {
		Properties struct {
			StationIdentifier string `json:"stationIdentifier"`
			Name              string `json:"name"`
		} `json:"properties"`
	} `json:"features"`
}

type observationResponse struct {
	Properties struct {
		Timestamp          string   `json:"timestamp"`
		TextDescription    string   `json:"textDescription"`
		Temperature        quantity `json:"temperature"`
		Dewpoint           quantity `json:"dewpoint"`
		RelativeHumidity   quantity `json:"relativeHumidity"`
		WindSpeed          quantity `json:"windSpeed"`
		WindDirection      quantity `json:"windDirection"`
		BarometricPressure quantity `json:"barometricPressure"`
		Visibility         quantity `json:"visibility"`
	} `json:"properties"`
}
