package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/ngmaloney/weather-terminal/internal/models"
)

const tideDays = 3

// renderCoastal shows the marine zone and tide predictions attached by
// coastal enrichment.
func renderCoastal(payload *models.WeatherPayload, now time.Time, tz *time.Location) string {
	var lines []string

	if z := payload.MarineZone; z != nil {
		lines = append(lines, labelStyle.Render("Marine zone: ")+
			valueStyle.Render(fmt.Sprintf("%s %s", z.Code, z.Name))+
			mutedStyle.Render(fmt.Sprintf(" (%.1f mi)", z.DistanceMiles)))
	}

	if payload.Tides != nil {
		lines = append(lines, renderTides(payload.Tides, now, tz))
	}
	return strings.Join(lines, "\n")
}

// renderTides groups tide events by day in the location's time zone
func renderTides(tides *models.TideData, now time.Time, tz *time.Location) string {
	header := labelStyle.Render("Tides: ") + valueStyle.Render(tides.StationName) +
		mutedStyle.Render(fmt.Sprintf(" (%.1f mi)", tides.DistanceMiles))

	if len(tides.Events) == 0 {
		return header + "\n" + mutedStyle.Render("  No tide predictions available")
	}

	lines := []string{header}
	if next, ok := tides.Next(now); ok {
		lines = append(lines, fmt.Sprintf("  Next: %s tide at %s", next.Type.Label(), next.Time.In(tz).Format("3:04 PM")))
	}
	today := now.In(tz)
	for day := 0; day < tideDays; day++ {
		date := today.AddDate(0, 0, day)
		events := tides.EventsOn(date)
		if len(events) == 0 {
			continue
		}

		var dayLabel string
		switch day {
		case 0:
			dayLabel = "Today"
		case 1:
			dayLabel = "Tomorrow"
		default:
			dayLabel = date.Format("Monday")
		}
		lines = append(lines, labelStyle.Render(fmt.Sprintf("  %s (%s)", dayLabel, date.Format("Jan 2"))))

		for _, event := range events {
			lines = append(lines, fmt.Sprintf("    %s  %-4s  %.1f ft",
				valueStyle.Render(event.Time.In(tz).Format("3:04 PM")),
				event.Type.Label(),
				event.Height))
		}
	}
	return strings.Join(lines, "\n")
}
