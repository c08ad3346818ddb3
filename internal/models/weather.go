package models

import (
	"math"
	"slices"
	"time"
)

// ForecastPeriod is one named period ("Tonight", "Friday") or one hour of
// the NWS forecast.
type ForecastPeriod struct {
	Number           int       `json:"number"`
	Name             string    `json:"name,omitempty"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	IsDaytime        bool      `json:"isDaytime"`
	Temperature      int       `json:"temperature"`
	TemperatureUnit  string    `json:"temperatureUnit"`
	PrecipChance     int       `json:"precipChance"`
	WindSpeed        string    `json:"windSpeed,omitempty"`
	WindDirection    string    `json:"windDirection,omitempty"`
	ShortForecast    string    `json:"shortForecast"`
	DetailedForecast string    `json:"detailedForecast,omitempty"`
}

// Observation is the latest reading from the nearest observation station.
// Nil measurements were not reported.
type Observation struct {
	StationID     string    `json:"stationId"`
	StationName   string    `json:"stationName,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Description   string    `json:"description,omitempty"`
	TemperatureC  *float64  `json:"temperatureC,omitempty"`
	DewpointC     *float64  `json:"dewpointC,omitempty"`
	HumidityPct   *float64  `json:"humidityPct,omitempty"`
	WindSpeedKmh  *float64  `json:"windSpeedKmh,omitempty"`
	WindDirection *float64  `json:"windDirection,omitempty"`
	PressurePa    *float64  `json:"pressurePa,omitempty"`
	VisibilityM   *float64  `json:"visibilityM,omitempty"`
}

// TemperatureF converts the observed temperature to Fahrenheit.
func (o *Observation) TemperatureF() (float64, bool) {
	if o == nil || o.TemperatureC == nil {
		return 0, false
	}
	return math.Round(*o.TemperatureC*9/5 + 32), true
}

// MarineZone is the NWS marine forecast zone nearest a coastal location.
type MarineZone struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	DistanceMiles float64 `json:"distanceMiles"`
}

// WeatherPayload is everything fetched for one location. The location is
// embedded so a cached payload carries the place it was fetched for.
type WeatherPayload struct {
	Location    Location         `json:"location"`
	Periods     []ForecastPeriod `json:"periods"`
	Hourly      []ForecastPeriod `json:"hourly,omitempty"`
	Alerts      []Alert          `json:"alerts,omitempty"`
	Tides       *TideData        `json:"tides,omitempty"`
	MarineZone  *MarineZone      `json:"marineZone,omitempty"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// Current returns the first forecast period, if any.
func (p *WeatherPayload) Current() (ForecastPeriod, bool) {
	if p == nil || len(p.Periods) == 0 {
		return ForecastPeriod{}, false
	}
	return p.Periods[0], true
}

// ActiveAlerts returns the alerts in effect at now.
func (p *WeatherPayload) ActiveAlerts(now time.Time) []Alert {
	if p == nil {
		return nil
	}
	var active []Alert
	for _, a := range p.Alerts {
		if a.ActiveAt(now) {
			active = append(active, a)
		}
	}
	return active
}

// Clone returns a copy of o that shares no memory with it.
func (o *Observation) Clone() *Observation {
	if o == nil {
		return nil
	}
	cp := *o
	cp.TemperatureC = cloneFloat(o.TemperatureC)
	cp.DewpointC = cloneFloat(o.DewpointC)
	cp.HumidityPct = cloneFloat(o.HumidityPct)
	cp.WindSpeedKmh = cloneFloat(o.WindSpeedKmh)
	cp.WindDirection = cloneFloat(o.WindDirection)
	cp.PressurePa = cloneFloat(o.PressurePa)
	cp.VisibilityM = cloneFloat(o.VisibilityM)
	return &cp
}

// Clone returns a copy of p that shares no memory with it.
func (p WeatherPayload) Clone() WeatherPayload {
	p.Location = p.Location.Clone()
	p.Periods = slices.Clone(p.Periods)
	p.Hourly = slices.Clone(p.Hourly)
	p.Alerts = slices.Clone(p.Alerts)
	if p.Tides != nil {
		tides := *p.Tides
		tides.Events = slices.Clone(tides.Events)
		p.Tides = &tides
	}
	if p.MarineZone != nil {
		zone := *p.MarineZone
		p.MarineZone = &zone
	}
	return p
}
