package stations

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ngmaloney/weather-terminal/internal/database"
)

// MDAPIBaseURL is the NOAA CO-OPS metadata API.
const MDAPIBaseURL = "https://api.tidesandcurrents.noaa.gov/mdapi/prod/webapi"

// coordinate accepts both JSON numbers and quoted numbers; MDAPI has served
// both.
type coordinate float64

func (c *coordinate) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return eris.Wrapf(err, "stations: parse coordinate %s", s)
	}
	*c = coordinate(f)
	return nil
}

type mdapiStation struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	State string     `json:"state"`
	Lat   coordinate `json:"lat"`
	Lng   coordinate `json:"lng"`
}

type mdapiResponse struct {
	Stations []mdapiStation `json:"stations"`
}

// Provision fetches every tide prediction station from the MDAPI at baseURL
// and loads them into the tide_stations table. It does nothing when the
// table already exists and returns the number of stations inserted.
func Provision(ctx context.Context, db *sql.DB, httpClient *http.Client, baseURL string) (int, error) {
	exists, err := database.TableExists(ctx, db, stationsTable)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	zap.L().Info("provisioning tide stations", zap.String("url", baseURL))

	stations, err := fetchStations(ctx, httpClient, baseURL)
	if err != nil {
		return 0, err
	}
	return loadStations(ctx, db, stations)
}

func fetchStations(ctx context.Context, httpClient *http.Client, baseURL string) ([]mdapiStation, error) {
	apiURL := strings.TrimRight(baseURL, "/") + "/stations.json?type=tidepredictions"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "stations: create request")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "stations: fetch stations")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("stations: MDAPI returned HTTP %d", resp.StatusCode)
	}

	var body mdapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, eris.Wrap(err, "stations: decode stations")
	}
	return body.Stations, nil
}

func loadStations(ctx context.Context, db *sql.DB, stations []mdapiStation) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "stations: begin load")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE tide_stations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			state TEXT,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL
		);
		CREATE INDEX idx_tide_stations_coords ON tide_stations(latitude, longitude);
	`); err != nil {
		return 0, eris.Wrap(err, "stations: create tide_stations table")
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO tide_stations (id, name, state, latitude, longitude) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return 0, eris.Wrap(err, "stations: prepare insert")
	}
	defer stmt.Close()

	count := 0
	for _, s := range stations {
		if s.ID == "" || (s.Lat == 0 && s.Lng == 0) {
			continue
		}
		if _, err := stmt.ExecContext(ctx, s.ID, s.Name, s.State, float64(s.Lat), float64(s.Lng)); err != nil {
			zap.L().Warn("skipping tide station", zap.String("station", s.ID), zap.Error(err))
			continue
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "stations: commit tide stations")
	}

	zap.L().Info("provisioned tide stations", zap.Int("rows", count))
	return count, nil
}
