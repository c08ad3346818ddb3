// Package stations finds NOAA tide prediction stations near a location using
// the tide_stations table provisioned from the CO-OPS metadata API.
package stations

import (
	"context"
	"database/sql"
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/ngmaloney/weather-terminal/internal/database"
	"github.com/ngmaloney/weather-terminal/internal/zones"
)

const stationsTable = "tide_stations"

// Station is a tide station with its distance from the search point.
type Station struct {
	ID            string
	Name          string
	State         string
	Latitude      float64
	Longitude     float64
	DistanceMiles float64
}

// Repository queries the tide_stations table.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Available reports whether the tide_stations table has been provisioned.
func (r *Repository) Available(ctx context.Context) (bool, error) {
	return database.TableExists(ctx, r.db, stationsTable)
}

// Nearby returns stations within maxMiles of the point, nearest first. It
// returns nil when the table has not been provisioned.
func (r *Repository) Nearby(ctx context.Context, lat, lon, maxMiles float64) ([]Station, error) {
	ok, err := r.Available(ctx)
	if err != nil || !ok {
		return nil, err
	}

	// Bounding box prefilter: one degree of latitude is about 69 miles.
	latDelta := (maxMiles / 69.0) * 1.5
	lonDelta := latDelta / math.Max(math.Cos(lat*math.Pi/180), 0.01)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, state, latitude, longitude
		FROM tide_stations
		WHERE latitude BETWEEN ? AND ?
		  AND longitude BETWEEN ? AND ?`,
		lat-latDelta, lat+latDelta, lon-lonDelta, lon+lonDelta,
	)
	if err != nil {
		return nil, eris.Wrap(err, "stations: query stations")
	}
	defer rows.Close()

	var found []Station
	for rows.Next() {
		var s Station
		var state sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &state, &s.Latitude, &s.Longitude); err != nil {
			return nil, eris.Wrap(err, "stations: scan station")
		}
		s.State = state.String
		s.DistanceMiles = zones.DistanceMiles(lat, lon, s.Latitude, s.Longitude)
		if s.DistanceMiles <= maxMiles {
			found = append(found, s)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "stations: read stations")
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].DistanceMiles < found[j].DistanceMiles
	})
	return found, nil
}

// Nearest returns the closest station within maxMiles, or nil when there is
// none.
func (r *Repository) Nearest(ctx context.Context, lat, lon, maxMiles float64) (*Station, error) {
	found, err := r.Nearby(ctx, lat, lon, maxMiles)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}
