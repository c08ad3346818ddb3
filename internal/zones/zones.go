// Package zones finds the NWS marine forecast zone nearest a location using
// the marine_zones table built from the NOAA shapefile.
package zones

import (
	"context"
	"database/sql"
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/ngmaloney/weather-terminal/internal/database"
	"github.com/ngmaloney/weather-terminal/internal/models"
)

const zonesTable = "marine_zones"

// Zone is a row of the marine_zones table.
type Zone struct {
	Code      string
	Name      string
	MinLat    float64
	MaxLat    float64
	MinLon    float64
	MaxLon    float64
	CenterLat float64
	CenterLon float64
}

// DistanceFrom returns the distance in miles from a point to the closest edge
// of the zone's bounding box. A point inside the box is zero miles away.
func (z Zone) DistanceFrom(lat, lon float64) float64 {
	clampedLat := math.Max(z.MinLat, math.Min(lat, z.MaxLat))
	clampedLon := math.Max(z.MinLon, math.Min(lon, z.MaxLon))
	return DistanceMiles(lat, lon, clampedLat, clampedLon)
}

// Repository queries the marine_zones table.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Available reports whether the marine_zones table has been provisioned.
func (r *Repository) Available(ctx context.Context) (bool, error) {
	return database.TableExists(ctx, r.db, zonesTable)
}

// Nearby returns zones within maxMiles of the point, nearest first. It
// returns nil when the table has not been provisioned.
func (r *Repository) Nearby(ctx context.Context, lat, lon, maxMiles float64) ([]models.MarineZone, error) {
	ok, err := r.Available(ctx)
	if err != nil || !ok {
		return nil, err
	}

	latDelta := milesToDegrees(maxMiles) * 1.5
	lonDelta := latDelta / math.Max(math.Cos(lat*math.Pi/180), 0.01)

	rows, err := r.db.QueryContext(ctx, `
		SELECT zone_code, zone_name, bbox_min_lat, bbox_max_lat, bbox_min_lon, bbox_max_lon, center_lat, center_lon
		FROM marine_zones
		WHERE bbox_max_lat >= ? AND bbox_min_lat <= ?
		  AND bbox_max_lon >= ? AND bbox_min_lon <= ?`,
		lat-latDelta, lat+latDelta, lon-lonDelta, lon+lonDelta,
	)
	if err != nil {
		return nil, eris.Wrap(err, "zones: query marine zones")
	}
	defer rows.Close()

	var found []models.MarineZone
	for rows.Next() {
		var z Zone
		var name sql.NullString
		if err := rows.Scan(&z.Code, &name, &z.MinLat, &z.MaxLat, &z.MinLon, &z.MaxLon, &z.CenterLat, &z.CenterLon); err != nil {
			return nil, eris.Wrap(err, "zones: scan marine zone")
		}
		z.Name = name.String

		if d := z.DistanceFrom(lat, lon); d <= maxMiles {
			found = append(found, models.MarineZone{Code: z.Code, Name: z.Name, DistanceMiles: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "zones: read marine zones")
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].DistanceMiles < found[j].DistanceMiles
	})
	return found, nil
}

// Nearest returns the closest zone within maxMiles, or nil when there is
// none.
func (r *Repository) Nearest(ctx context.Context, lat, lon, maxMiles float64) (*models.MarineZone, error) {
	found, err := r.Nearby(ctx, lat, lon, maxMiles)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}
