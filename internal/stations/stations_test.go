package stations

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngmaloney/weather-terminal/internal/database"
)

const stationsJSON = `{"count": 4, "stations": [
	{"id": "8443970", "name": "Boston", "state": "MA", "lat": 42.3539, "lng": -71.0503},
	{"id": "8447386", "name": "Fall River", "state": "MA", "lat": "41.7043", "lng": "-71.1641"},
	{"id": "9439040", "name": "Astoria", "state": "OR", "lat": 46.2073, "lng": -123.7683},
	{"id": "", "name": "No ID", "state": "ME", "lat": 43.0, "lng": -70.0}
]}`

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), database.FileName))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newMDAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stations.json" || r.URL.Query().Get("type") != "tidepredictions" {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, stationsJSON)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestProvision(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	server := newMDAPIServer(t)

	n, err := Provision(ctx, db, server.Client(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "the station without an id is skipped")

	n, err = Provision(ctx, db, server.Client(), server.URL)
	require.NoError(t, err)
	assert.Zero(t, n, "an existing table is left alone")
}

func TestProvision_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	db := testDB(t)
	_, err := Provision(context.Background(), db, server.Client(), server.URL)
	require.Error(t, err)

	ok, err := NewRepository(db).Available(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_Nearby(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	server := newMDAPIServer(t)
	_, err := Provision(ctx, db, server.Client(), server.URL)
	require.NoError(t, err)

	repo := NewRepository(db)

	tests := []struct {
		name     string
		lat, lon float64
		maxMiles float64
		wantIDs  []string
	}{
		{"downtown boston", 42.3601, -71.0589, 30, []string{"8443970"}},
		{"wider radius is sorted by distance", 42.3601, -71.0589, 60, []string{"8443970", "8447386"}},
		{"astoria", 46.19, -123.83, 30, []string{"9439040"}},
		{"inland", 39.7392, -104.9903, 30, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := repo.Nearby(ctx, tt.lat, tt.lon, tt.maxMiles)
			require.NoError(t, err)

			var ids []string
			for _, s := range found {
				ids = append(ids, s.ID)
				assert.LessOrEqual(t, s.DistanceMiles, tt.maxMiles)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestRepository_Nearest(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewRepository(db)

	station, err := repo.Nearest(ctx, 42.3601, -71.0589, 30)
	require.NoError(t, err)
	assert.Nil(t, station, "unprovisioned table finds nothing")

	server := newMDAPIServer(t)
	_, err = Provision(ctx, db, server.Client(), server.URL)
	require.NoError(t, err)

	station, err = repo.Nearest(ctx, 42.3601, -71.0589, 30)
	require.NoError(t, err)
	require.NotNil(t, station)
	assert.Equal(t, "Boston", station.Name)
	assert.Equal(t, "MA", station.State)
	assert.InDelta(t, 0.6, station.DistanceMiles, 0.3)
}
