package noaa

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/resilience"
)

// NOAATideClient implements TideClient using the NOAA CO-OPS API
type NOAATideClient struct {
	baseURL string
	http    *resilience.Client
}

// NewTideClient creates a new NOAA tide client
func NewTideClient(httpClient *resilience.Client) *NOAATideClient {
	return &NOAATideClient{
		baseURL: "https://api.tidesandcurrents.noaa.gov/api/prod/datagetter",
		http:    httpClient,
	}
}

// GetTidePredictions retrieves high/low tide predictions for a date range.
// Times are requested in GMT and returned in UTC.
func (c *NOAATideClient) GetTidePredictions(ctx context.Context, stationID string, startDate, endDate time.Time) (*models.TideData, error) {
	params := url.Values{}
	params.Add("begin_date", startDate.UTC().Format("20060102"))
	params.Add("end_date", endDate.UTC().Format("20060102"))
	params.Add("station", stationID)
	params.Add("product", "predictions")
	params.Add("datum", "MLLW")    // Mean Lower Low Water
	params.Add("time_zone", "gmt") // UTC timestamps
	params.Add("interval", "hilo") // High and low tides only
	params.Add("units", "english") // Feet
	params.Add("format", "json")
	params.Add("application", "WeatherTerminal")

	requestURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	var tideResp tideResponse
	if err := c.http.GetJSON(ctx, requestURL, nil, &tideResp); err != nil {
		return nil, eris.Wrapf(err, "noaa: tide predictions for %s", stationID)
	}
	// CO-OPS reports bad stations with a 200 and an error body.
	if tideResp.Error != nil {
		return nil, eris.Errorf("noaa: tide predictions for %s: %s", stationID, tideResp.Error.Message)
	}

	tideData := &models.TideData{
		StationID:   stationID,
		StationName: tideResp.Metadata.Name,
		Events:      make([]models.TideEvent, 0, len(tideResp.Predictions)),
	}

	for _, pred := range tideResp.Predictions {
		eventTime, err := time.ParseInLocation("2006-01-02 15:04", pred.Time, time.UTC)
		if err != nil {
			continue
		}

		tideType := models.TideLow
		if pred.Type == "H" {
			tideType = models.TideHigh
		}

		height, err := strconv.ParseFloat(pred.Height, 64)
		if err != nil {
			continue
		}

		tideData.Events = append(tideData.Events, models.TideEvent{
			Time:   eventTime,
			Type:   tideType,
			Height: height,
		})
	}

	return tideData, nil
}

// Internal types for NOAA CO-OPS API responses

type tideResponse struct {
	Metadata struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Lat  string `json:"lat"`
		Lon  string `json:"lon"`
	} `json:"metadata"`
	Predictions []struct {
		Time   string `json:"t"`
		Height string `json:"v"`
		Type   string `json:"type"`
	} `json:"predictions"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}
