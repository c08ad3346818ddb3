package noaa

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/resilience"
)

// NOAAAlertClient implements AlertClient using the NOAA Weather API
type NOAAAlertClient struct {
	baseURL string
	http    *resilience.Client
}

// NewAlertClient creates a new NOAA alert client
func NewAlertClient(httpClient *resilience.Client) *NOAAAlertClient {
	return &NOAAAlertClient{
		baseURL: defaultWeatherBaseURL,
		http:    httpClient,
	}
}

// GetActiveAlerts retrieves alerts in effect for a point, most severe first.
func (c *NOAAAlertClient) GetActiveAlerts(ctx context.Context, lat, lon float64) ([]models.Alert, error) {
	url := fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f", c.baseURL, lat, lon)

	var resp alertResponse
	if err := c.http.GetJSON(ctx, url, geoJSONHeader(), &resp); err != nil {
		return nil, eris.Wrap(err, "noaa: get active alerts")
	}

	alerts := make([]models.Alert, 0, len(resp.Features))
	for _, feature := range resp.Features {
		props := feature.Properties

		onset, _ := time.Parse(time.RFC3339, props.Onset)
		expires, _ := time.Parse(time.RFC3339, props.Expires)
		if props.Ends != "" {
			if ends, err := time.Parse(time.RFC3339, props.Ends); err == nil {
				expires = ends
			}
		}

		alerts = append(alerts, models.Alert{
			ID:          props.ID,
			Event:       props.Event,
			Headline:    props.Headline,
			Description: props.Description,
			Severity:    mapSeverity(props.Severity),
			Urgency:     props.Urgency,
			Onset:       onset,
			Expires:     expires,
			AreaDesc:    props.AreaDesc,
			Instruction: props.Instruction,
		})
	}

	sortBySeverity(alerts)
	return alerts, nil
}

func mapSeverity(s string) models.AlertSeverity {
	switch s {
	case "Extreme":
		return models.SeverityExtreme
	case "Severe":
		return models.SeveritySevere
	case "Moderate":
		return models.SeverityModerate
	case "Minor":
		return models.SeverityMinor
	default:
		return models.SeverityUnknown
	}
}

// sortBySeverity is a stable insertion sort; alert lists are short.
func sortBySeverity(alerts []models.Alert) {
	for i := 1; i < len(alerts); i++ {
		for j := i; j > 0 && alerts[j].Severity.Rank() > alerts[j-1].Severity.Rank(); j-- {
			alerts[j], alerts[j-1] = alerts[j-1], alerts[j]
		}
	}
}

// Internal types for NOAA Alert API responses

type alertResponse struct {
	Features []struct {
		ID         string `json:"id"`
		Properties struct {
			ID          string `json:"id"`
			Event       string `json:"event"`
			Headline    string `json:"headline"`
			Description string `json:"description"`
			Severity    string `json:"severity"`
			Urgency     string `json:"urgency"`
			Onset       string `json:"onset"`
			Expires     string `json:"expires"`
			Ends        string `json:"ends"`
			AreaDesc    string `json:"areaDesc"`
			Instruction string `json:"instruction"`
		} `json:"properties"`
	} `json:"features"`
}
