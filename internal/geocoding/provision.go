package geocoding

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ngmaloney/weather-terminal/internal/database"
)

const (
	// ZipcodeCSVURL is the public-domain US zipcode dataset.
	ZipcodeCSVURL = "https://raw.githubusercontent.com/midwire/free_zipcode_data/develop/all_us_zipcodes.csv"

	zipcodeTable = "zipcodes"
)

// ProvisionZipcodes downloads the zipcode CSV from csvURL and loads it into
// the zipcodes table. It does nothing when the table already exists and
// returns the number of rows inserted.
func ProvisionZipcodes(ctx context.Context, db *sql.DB, httpClient *http.Client, csvURL string) (int, error) {
	exists, err := database.TableExists(ctx, db, zipcodeTable)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	zap.L().Info("provisioning zipcodes", zap.String("url", csvURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, csvURL, nil)
	if err != nil {
		return 0, eris.Wrap(err, "geocoding: create zipcode request")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "geocoding: download zipcodes")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, eris.Errorf("geocoding: download zipcodes: HTTP %d", resp.StatusCode)
	}

	return loadZipcodes(ctx, db, resp.Body)
}

// loadZipcodes builds the table from CSV in the format
// Zipcode,ZipCodeType,City,State,LocationType,Lat,Long,...
func loadZipcodes(ctx context.Context, db *sql.DB, r io.Reader) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "geocoding: begin zipcode load")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE zipcodes (
			zipcode TEXT PRIMARY KEY,
			city TEXT NOT NULL,
			state TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL
		);
		CREATE INDEX idx_zipcodes_city_state ON zipcodes(city, state);
	`); err != nil {
		return 0, eris.Wrap(err, "geocoding: create zipcodes table")
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO zipcodes (zipcode, city, state, latitude, longitude) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return 0, eris.Wrap(err, "geocoding: prepare zipcode insert")
	}
	defer stmt.Close()

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, eris.Wrap(err, "geocoding: read zipcode header")
	}

	count := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil || len(record) < 7 {
			continue
		}

		lat, err := strconv.ParseFloat(record[5], 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(record[6], 64)
		if err != nil {
			continue
		}

		if _, err := stmt.ExecContext(ctx, record[0], record[2], record[3], lat, lon); err != nil {
			continue
		}

		count++
		if count%5000 == 0 {
			zap.L().Debug("provisioning zipcodes", zap.Int("rows", count))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "geocoding: commit zipcodes")
	}

	zap.L().Info("provisioned zipcodes", zap.Int("rows", count))
	return count, nil
}
