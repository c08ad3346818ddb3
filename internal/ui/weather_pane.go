package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ngmaloney/weather-terminal/internal/cache"
	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/staleness"
)

const (
	maxForecastPeriods = 6
	maxHourlyPeriods   = 12
)

// statusLine shows how old the displayed data is and whether a refresh is
// running.
func (m Model) statusLine(now time.Time) string {
	var parts []string

	fetchedAt := m.dash.Entry.FetchedAt
	updated := "Updated " + humanize.RelTime(fetchedAt, now, "ago", "from now")
	if staleness.IsStale(now, fetchedAt) {
		parts = append(parts, staleStyle.Render(updated+" (stale)"))
	} else {
		parts = append(parts, mutedStyle.Render(updated))
	}

	if m.dash.Loading || m.resolving {
		parts = append(parts, m.spinner.View()+" "+mutedStyle.Render("Refreshing"))
	}
	parts = append(parts, mutedStyle.Render("Auto-refresh "+onOff(m.autoRefresh)))

	return " " + strings.Join(parts, mutedStyle.Render(" • "))
}

// renderCurrent shows the latest observation, falling back to the first
// forecast period when the station reported nothing.
func renderCurrent(entry *cache.Entry) string {
	var lines []string

	if obs := entry.Observations; entry.ObservationsAvailable && obs != nil {
		if temp, ok := obs.TemperatureF(); ok {
			line := temperatureStyle.Render(fmt.Sprintf("%.0f°F", temp))
			if obs.Description != "" {
				line += "  " + valueStyle.Render(obs.Description)
			}
			lines = append(lines, line)
		} else if obs.Description != "" {
			lines = append(lines, valueStyle.Render(obs.Description))
		}

		var details []string
		if obs.HumidityPct != nil {
			details = append(details, fmt.Sprintf("Humidity %.0f%%", *obs.HumidityPct))
		}
		if obs.WindSpeedKmh != nil {
			details = append(details, "Wind "+formatObservedWind(*obs.WindSpeedKmh, obs.WindDirection))
		}
		if obs.DewpointC != nil {
			details = append(details, fmt.Sprintf("Dewpoint %.0f°F", *obs.DewpointC*9/5+32))
		}
		if len(details) > 0 {
			lines = append(lines, mutedStyle.Render(strings.Join(details, " • ")))
		}
		station := obs.StationName
		if station == "" {
			station = obs.StationID
		}
		if station != "" {
			lines = append(lines, mutedStyle.Render("Observed at "+station))
		}
	}

	if len(lines) == 0 {
		current, ok := entry.Payload.Current()
		if !ok {
			return mutedStyle.Render("No current conditions available")
		}
		lines = append(lines,
			temperatureStyle.Render(fmt.Sprintf("%d°%s", current.Temperature, current.TemperatureUnit))+
				"  "+valueStyle.Render(current.ShortForecast),
		)
		if current.WindSpeed != "" {
			lines = append(lines, mutedStyle.Render("Wind "+strings.TrimSpace(current.WindDirection+" "+current.WindSpeed)))
		}
	}

	return strings.Join(lines, "\n")
}

// renderForecast lists the next named periods, skipping the first one
// when there are more to show.
func renderForecast(payload *models.WeatherPayload) string {
	periods := payload.Periods
	if len(periods) == 0 {
		return mutedStyle.Render("No forecast available")
	}
	if len(periods) > 1 {
		periods = periods[1:]
	}
	if len(periods) > maxForecastPeriods {
		periods = periods[:maxForecastPeriods]
	}

	var lines []string
	for _, p := range periods {
		line := fmt.Sprintf("  %-16s %s  %s",
			p.Name,
			temperatureStyle.Render(fmt.Sprintf("%3d°%s", p.Temperature, p.TemperatureUnit)),
			p.ShortForecast,
		)
		if p.PrecipChance > 0 {
			line += mutedStyle.Render(fmt.Sprintf(" (%d%%)", p.PrecipChance))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// renderHourly is a compact strip of the next hours in the location's time
// zone.
func renderHourly(hourly []models.ForecastPeriod, tz *time.Location) string {
	if len(hourly) > maxHourlyPeriods {
		hourly = hourly[:maxHourlyPeriods]
	}

	var hours, temps []string
	for _, h := range hourly {
		hours = append(hours, fmt.Sprintf("%5s", h.StartTime.In(tz).Format("3PM")))
		temps = append(temps, fmt.Sprintf("%4d°", h.Temperature))
	}
	return "  " + mutedStyle.Render(strings.Join(hours, " ")) + "\n  " + strings.Join(temps, " ")
}

func formatObservedWind(kmh float64, direction *float64) string {
	mph := math.Round(kmh * 0.621371)
	if direction == nil {
		return fmt.Sprintf("%.0f mph", mph)
	}
	return fmt.Sprintf("%s %.0f mph", compassPoint(*direction), mph)
}

var compassPoints = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// compassPoint converts degrees to one of eight compass directions.
func compassPoint(degrees float64) string {
	idx := int(math.Round(math.Mod(degrees+360, 360)/45)) % len(compassPoints)
	return compassPoints[idx]
}

// locationTZ is the location's time zone, or local time when unknown.
func locationTZ(loc models.Location) *time.Location {
	if loc.TimeZone != "" {
		if tz, err := time.LoadLocation(loc.TimeZone); err == nil {
			return tz
		}
	}
	return time.Local
}
