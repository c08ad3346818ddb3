package geocoding

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/resilience"
)

const nominatimURL = "https://nominatim.openstreetmap.org/search"

// Nominatim geocodes free text through OpenStreetMap's Nominatim service,
// limited to US results.
type Nominatim struct {
	baseURL string
	http    *resilience.Client
	limiter *rate.Limiter
}

// NewNominatim creates a client that issues at most perSecond requests per
// second, as the Nominatim usage policy requires (1).
func NewNominatim(httpClient *resilience.Client, baseURL string, perSecond float64) *Nominatim {
	if baseURL == "" {
		baseURL = nominatimURL
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Nominatim{
		baseURL: baseURL,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// nominatimResponse represents the Nominatim API response
type nominatimResponse struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Address     struct {
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
		Hamlet   string `json:"hamlet"`
		County   string `json:"county"`
		State    string `json:"state"`
		StateISO string `json:"ISO3166-2-lvl4"`
	} `json:"address"`
}

// Search returns the best match for query.
func (n *Nominatim) Search(ctx context.Context, query string) (models.Location, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return models.Location{}, eris.Wrap(err, "geocoding: rate limit wait")
	}

	params := url.Values{}
	params.Add("format", "jsonv2")
	params.Add("limit", "1")
	params.Add("addressdetails", "1")
	params.Add("countrycodes", "us")
	params.Add("q", query)

	var results []nominatimResponse
	reqURL := fmt.Sprintf("%s?%s", n.baseURL, params.Encode())
	if err := n.http.GetJSON(ctx, reqURL, nil, &results); err != nil {
		return models.Location{}, eris.Wrapf(err, "geocoding: nominatim search %q", query)
	}
	if len(results) == 0 {
		return models.Location{}, eris.Wrapf(ErrNotFound, "geocoding: no results for %q", query)
	}

	result := results[0]
	lat, err := strconv.ParseFloat(result.Lat, 64)
	if err != nil {
		return models.Location{}, eris.Wrap(err, "geocoding: parse latitude")
	}
	lon, err := strconv.ParseFloat(result.Lon, 64)
	if err != nil {
		return models.Location{}, eris.Wrap(err, "geocoding: parse longitude")
	}

	return models.NewLocation(lat, lon, result.city(), result.stateCode()), nil
}

func (r nominatimResponse) city() string {
	for _, c := range []string{r.Address.City, r.Address.Town, r.Address.Village, r.Address.Hamlet, r.Address.County} {
		if c != "" {
			return c
		}
	}
	name, _, _ := strings.Cut(r.DisplayName, ",")
	return strings.TrimSpace(name)
}

// stateCode prefers the two-letter code from "US-OR"; the full state name is
// the fallback.
func (r nominatimResponse) stateCode() string {
	if code, ok := strings.CutPrefix(r.Address.StateISO, "US-"); ok && code != "" {
		return code
	}
	return r.Address.State
}
