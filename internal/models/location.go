package models

import (
	"fmt"
	"math"
	"strings"
)

// Location is a geocoded or detected place. Latitude and Longitude are
// pointers so legacy records without coordinates survive a JSON round trip.
type Location struct {
	Latitude      *float64 `json:"lat,omitempty"`
	Longitude     *float64 `json:"lon,omitempty"`
	City          string   `json:"city,omitempty"`
	State         string   `json:"state,omitempty"`
	TimeZone      string   `json:"timeZone,omitempty"`
	ElevationFeet float64  `json:"elevationFeet,omitempty"`
	RadarStation  string   `json:"radarStation,omitempty"`
}

// NewLocation builds a Location with coordinates set.
func NewLocation(lat, lon float64, city, state string) Location {
	return Location{
		Latitude:  &lat,
		Longitude: &lon,
		City:      city,
		State:     state,
	}
}

// Coordinates returns the location's coordinates and whether both are
// present and finite.
func (l Location) Coordinates() (lat, lon float64, ok bool) {
	if l.Latitude == nil || l.Longitude == nil {
		return 0, 0, false
	}
	lat, lon = *l.Latitude, *l.Longitude
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return 0, 0, false
	}
	return lat, lon, true
}

// DisplayName is the human readable label shown in the header.
func (l Location) DisplayName() string {
	city := strings.TrimSpace(l.City)
	state := strings.TrimSpace(l.State)
	switch {
	case city != "" && state != "":
		return city + ", " + state
	case city != "":
		return city
	case state != "":
		return state
	}
	if lat, lon, ok := l.Coordinates(); ok {
		return fmt.Sprintf("%.4f, %.4f", lat, lon)
	}
	return ""
}

// Clone returns l with its coordinates no longer shared.
func (l Location) Clone() Location {
	l.Latitude = cloneFloat(l.Latitude)
	l.Longitude = cloneFloat(l.Longitude)
	return l
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
