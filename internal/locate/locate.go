// Package locate detects the device's current location for the "here"
// search.
package locate

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/resilience"
)

// DefaultIPURL is the ip-api.com endpoint used by IPLocator.
const DefaultIPURL = "http://ip-api.com/json/?fields=status,message,lat,lon,city,region"

// ErrUnavailable means the current location could not be determined.
var ErrUnavailable = eris.New("locate: current location unavailable")

// IPLocator estimates location from the public IP address.
type IPLocator struct {
	url  string
	http *resilience.Client
}

// NewIPLocator creates an IPLocator. An empty url uses DefaultIPURL.
func NewIPLocator(httpClient *resilience.Client, url string) *IPLocator {
	if url == "" {
		url = DefaultIPURL
	}
	return &IPLocator{url: url, http: httpClient}
}

type ipResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
	Region  string  `json:"region"`
}

// Locate looks up the caller's IP location. Every call goes to the network.
func (l *IPLocator) Locate(ctx context.Context) (models.Location, error) {
	var resp ipResponse
	if err := l.http.GetJSON(ctx, l.url, nil, &resp); err != nil {
		return models.Location{}, eris.Wrapf(ErrUnavailable, "locate: ip lookup: %v", err)
	}
	if resp.Status != "success" {
		return models.Location{}, eris.Wrapf(ErrUnavailable, "locate: ip lookup: %s", resp.Message)
	}
	return models.NewLocation(resp.Lat, resp.Lon, resp.City, resp.Region), nil
}

// StaticLocator always reports the same configured location.
type StaticLocator struct {
	loc models.Location
}

// NewStaticLocator creates a StaticLocator.
func NewStaticLocator(lat, lon float64, city, state string) *StaticLocator {
	return &StaticLocator{loc: models.NewLocation(lat, lon, city, state)}
}

// Locate returns the configured location.
func (l *StaticLocator) Locate(ctx context.Context) (models.Location, error) {
	return l.loc, nil
}
