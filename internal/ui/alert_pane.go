package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/ngmaloney/weather-terminal/internal/models"
)

// renderAlerts lists active alerts in the order the client ranked them.
func renderAlerts(alerts []models.Alert, tz *time.Location) string {
	if len(alerts) == 0 {
		return successStyle.Render("✓ No active alerts")
	}

	var lines []string
	for _, alert := range alerts {
		lines = append(lines, alertStyle(alert.Severity).Render(fmt.Sprintf("⚠  %s", alert.Event)))
		if alert.Headline != "" {
			lines = append(lines, fmt.Sprintf("   %s", alert.Headline))
		}
		if !alert.Expires.IsZero() {
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("   Until %s", alert.Expires.In(tz).Format("Jan 2, 3:04 PM"))))
		}
	}
	return strings.Join(lines, "\n")
}
