package geocoding

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/ngmaloney/weather-terminal/internal/database"
	"github.com/ngmaloney/weather-terminal/internal/models"
)

// ZipcodeDB looks up places in the provisioned zipcodes table.
type ZipcodeDB struct {
	db *sql.DB
}

// NewZipcodeDB wraps an open database.
func NewZipcodeDB(db *sql.DB) *ZipcodeDB {
	return &ZipcodeDB{db: db}
}

// LookupZipcode returns the location of a five-digit zipcode.
func (z *ZipcodeDB) LookupZipcode(ctx context.Context, zipcode string) (models.Location, error) {
	return z.queryOne(ctx,
		"SELECT city, state, latitude, longitude FROM zipcodes WHERE zipcode = ?",
		zipcode,
	)
}

// LookupCityState returns the lowest-numbered zipcode matching city and
// state, compared case-insensitively.
func (z *ZipcodeDB) LookupCityState(ctx context.Context, city, state string) (models.Location, error) {
	return z.queryOne(ctx,
		`SELECT city, state, latitude, longitude FROM zipcodes
		 WHERE city = ? COLLATE NOCASE AND state = ? COLLATE NOCASE
		 ORDER BY zipcode LIMIT 1`,
		city, state,
	)
}

func (z *ZipcodeDB) queryOne(ctx context.Context, query string, args ...any) (models.Location, error) {
	ok, err := database.TableExists(ctx, z.db, zipcodeTable)
	if err != nil {
		return models.Location{}, err
	}
	if !ok {
		return models.Location{}, ErrNotFound
	}

	var city, state string
	var lat, lon float64
	err = z.db.QueryRowContext(ctx, query, args...).Scan(&city, &state, &lat, &lon)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Location{}, ErrNotFound
	}
	if err != nil {
		return models.Location{}, eris.Wrap(err, "geocoding: query zipcodes")
	}
	return models.NewLocation(lat, lon, city, state), nil
}
