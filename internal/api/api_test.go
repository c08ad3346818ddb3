package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngmaloney/weather-terminal/internal/cache"
	"github.com/ngmaloney/weather-terminal/internal/database"
	"github.com/ngmaloney/weather-terminal/internal/favorites"
	"github.com/ngmaloney/weather-terminal/internal/geocoding"
	"github.com/ngmaloney/weather-terminal/internal/identity"
	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/refresh"
)

var portland = models.NewLocation(45.52, -122.68, "Portland", "OR")

type stubGeocoder struct{}

func (stubGeocoder) Geocode(_ context.Context, query string) (models.Location, error) {
	if query == "Portland, OR" {
		return portland, nil
	}
	return models.Location{}, geocoding.ErrNotFound
}

type stubLocator struct{}

func (stubLocator) Locate(context.Context) (models.Location, error) {
	return models.NewLocation(47.6062, -122.3321, "Seattle", "WA"), nil
}

type stubFetcher struct {
	calls atomic.Int32
	fail  bool
}

func (f *stubFetcher) Fetch(_ context.Context, loc models.Location) (models.WeatherPayload, *models.Observation, error) {
	f.calls.Add(1)
	if f.fail {
		return models.WeatherPayload{}, nil, errors.New("api.weather.gov unavailable")
	}
	payload := models.WeatherPayload{
		Location: loc,
		Periods: []models.ForecastPeriod{
			{Number: 1, Name: "Tonight", Temperature: 41, TemperatureUnit: "F", ShortForecast: "Light Rain"},
		},
	}
	return payload, nil, nil
}

type fakeAutoRefresh struct {
	enabled bool
}

func (f *fakeAutoRefresh) Enabled() bool           { return f.enabled }
func (f *fakeAutoRefresh) SetEnabled(on bool)      { f.enabled = on }
func (f *fakeAutoRefresh) Interval() time.Duration { return 5 * time.Minute }

type testServer struct {
	app     *fiber.App
	fetcher *stubFetcher
	favs    *favorites.Store
}

func newTestServer(t *testing.T, auto AutoRefresh) *testServer {
	t.Helper()
	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), database.FileName))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tier := cache.NewDurableTier(db, cache.NewMemoryTier(10))
	favs := favorites.NewStore(db, tier)
	fetcher := &stubFetcher{}
	orch := refresh.New(refresh.Deps{
		Cache:     tier,
		Favorites: favs,
		Geocoder:  stubGeocoder{},
		Locator:   stubLocator{},
		Fetcher:   fetcher,
	})
	session := refresh.NewSession(orch)
	t.Cleanup(session.Wait)

	return &testServer{
		app:     NewApp(NewServer(session, favs, auto)),
		fetcher: fetcher,
		favs:    favs,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", decode[map[string]string](t, body)["status"])
}

func TestDashboard_Empty(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, http.MethodGet, "/api/v1/dashboard", "")
	require.Equal(t, http.StatusOK, status)

	dash := decode[dashboardResponse](t, body)
	assert.Empty(t, dash.Place)
	assert.False(t, dash.Loading)
	assert.Nil(t, dash.Weather)
	assert.Nil(t, dash.FetchedAt)
}

func TestResolve(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, http.MethodPost, "/api/v1/resolve", `{"place":"Portland, OR"}`)
	require.Equal(t, http.StatusOK, status, string(body))

	dash := decode[dashboardResponse](t, body)
	assert.Equal(t, "Portland, OR", dash.Place)
	assert.Equal(t, "Portland", dash.Location.City)
	assert.False(t, dash.Loading)
	assert.False(t, dash.Stale)
	require.NotNil(t, dash.Weather)
	require.NotNil(t, dash.FetchedAt)
	assert.Equal(t, "Light Rain", dash.Weather.Periods[0].ShortForecast)
	assert.False(t, dash.ObservationsAvailable)

	status, body = s.do(t, http.MethodGet, "/api/v1/dashboard", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Portland, OR", decode[dashboardResponse](t, body).Place)

	// A second resolve of fresh data does not fetch again.
	status, _ = s.do(t, http.MethodPost, "/api/v1/resolve", `{"place":"Portland, OR"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(1), s.fetcher.calls.Load())
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fail   bool
		status int
	}{
		{name: "missing place", body: `{}`, status: http.StatusBadRequest},
		{name: "blank place", body: `{"place":"   "}`, status: http.StatusBadRequest},
		{name: "malformed json", body: `{"place":`, status: http.StatusBadRequest},
		{name: "unknown place", body: `{"place":"Atlantis"}`, status: http.StatusUnprocessableEntity},
		{name: "upstream failure", body: `{"place":"Portland, OR"}`, fail: true, status: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			s.fetcher.fail = tt.fail

			status, body := s.do(t, http.MethodPost, "/api/v1/resolve", tt.body)
			assert.Equal(t, tt.status, status, string(body))

			resp := decode[map[string]any](t, body)
			assert.Equal(t, true, resp["error"])
			assert.NotEmpty(t, resp["message"])
		})
	}
}

func TestRefresh(t *testing.T) {
	s := newTestServer(t, nil)

	status, _ := s.do(t, http.MethodPost, "/api/v1/refresh", "")
	assert.Equal(t, http.StatusConflict, status)

	status, _ = s.do(t, http.MethodPost, "/api/v1/resolve", `{"place":"here"}`)
	require.Equal(t, http.StatusOK, status)

	status, body := s.do(t, http.MethodPost, "/api/v1/refresh", "")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "Seattle", decode[dashboardResponse](t, body).Location.City)
	assert.Equal(t, int32(2), s.fetcher.calls.Load(), "refresh ignores age")
}

func TestFavorites_Lifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	status, _ := s.do(t, http.MethodPost, "/api/v1/favorites", "")
	assert.Equal(t, http.StatusConflict, status, "nothing displayed to save")

	status, _ = s.do(t, http.MethodPost, "/api/v1/resolve", `{"place":"Portland, OR"}`)
	require.Equal(t, http.StatusOK, status)

	status, body := s.do(t, http.MethodPost, "/api/v1/favorites", `{"name":"Home"}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	created := decode[favoriteResponse](t, body)
	uid, _ := identity.ComputeUID(portland)
	assert.Equal(t, uid, created.ID)
	assert.Equal(t, "Home", created.Label)
	assert.Equal(t, "Portland, OR", created.SearchQuery)

	status, body = s.do(t, http.MethodGet, "/api/v1/favorites", "")
	require.Equal(t, http.StatusOK, status)
	list := decode[[]favoriteResponse](t, body)
	require.Len(t, list, 1)
	assert.Equal(t, "Home", list[0].Label)

	status, _ = s.do(t, http.MethodPatch, "/api/v1/favorites/"+uid, `{"name":"Cabin"}`)
	assert.Equal(t, http.StatusNoContent, status)
	favs, err := s.favs.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Cabin", favs[0].Label())

	status, _ = s.do(t, http.MethodPatch, "/api/v1/favorites/"+uid, `{"name":""}`)
	assert.Equal(t, http.StatusNoContent, status)
	favs, err = s.favs.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Portland, OR", favs[0].Label(), "empty name restores the original")

	status, _ = s.do(t, http.MethodDelete, "/api/v1/favorites/"+uid, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/favorites/"+uid, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodPatch, "/api/v1/favorites/"+uid, `{"name":"Gone"}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAddFavorite_Coordinates(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "valid", body: `{"lat":42.3601,"lon":-71.0589,"city":"Boston","state":"MA"}`, status: http.StatusCreated},
		{name: "latitude out of range", body: `{"lat":95,"lon":-71}`, status: http.StatusBadRequest},
		{name: "longitude out of range", body: `{"lat":42,"lon":-190}`, status: http.StatusBadRequest},
		{name: "lat without lon", body: `{"lat":42.36}`, status: http.StatusBadRequest},
		{name: "bad state", body: `{"lat":42.36,"lon":-71.05,"state":"Mass"}`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			status, body := s.do(t, http.MethodPost, "/api/v1/favorites", tt.body)
			assert.Equal(t, tt.status, status, string(body))
		})
	}
}

func TestAutoRefresh(t *testing.T) {
	s := newTestServer(t, nil)
	status, _ := s.do(t, http.MethodGet, "/api/v1/auto-refresh", "")
	assert.Equal(t, http.StatusNotFound, status)

	auto := &fakeAutoRefresh{enabled: true}
	s = newTestServer(t, auto)

	status, body := s.do(t, http.MethodGet, "/api/v1/auto-refresh", "")
	require.Equal(t, http.StatusOK, status)
	got := decode[map[string]any](t, body)
	assert.Equal(t, true, got["enabled"])
	assert.Equal(t, "5m0s", got["interval"])

	status, body = s.do(t, http.MethodPut, "/api/v1/auto-refresh", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, decode[map[string]any](t, body)["enabled"])
	assert.False(t, auto.enabled)

	status, _ = s.do(t, http.MethodPut, "/api/v1/auto-refresh", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "fiber error", err: fiber.NewError(fiber.StatusConflict, "busy"), want: fiber.StatusConflict},
		{name: "favorite not found", err: eris.Wrap(favorites.ErrNotFound, "lookup"), want: fiber.StatusNotFound},
		{name: "invalid location", err: eris.Wrap(identity.ErrInvalidLocation, "resolve"), want: fiber.StatusUnprocessableEntity},
		{name: "fetch failed", err: eris.Wrap(refresh.ErrFetchFailed, "fetch"), want: fiber.StatusBadGateway},
		{name: "other", err: errors.New("disk full"), want: fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
