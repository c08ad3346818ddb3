package zones

import (
	"archive/zip"
	"context"
	"database/sql"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ngmaloney/weather-terminal/internal/database"
)

// ShapefileURL is the NOAA marine zones shapefile (updated quarterly).
const ShapefileURL = "https://www.weather.gov/source/gis/Shapefiles/WSOM/mz18mr25.zip"

// Provision downloads the marine zone shapefile archive from archiveURL,
// extracts it under workDir and loads it into the marine_zones table. It
// does nothing when the table already exists and returns the number of
// zones inserted.
func Provision(ctx context.Context, db *sql.DB, httpClient *http.Client, archiveURL, workDir string) (int, error) {
	exists, err := database.TableExists(ctx, db, zonesTable)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	zap.L().Info("provisioning marine zones", zap.String("url", archiveURL))

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return 0, eris.Wrapf(err, "zones: create %s", workDir)
	}
	tmpDir, err := os.MkdirTemp(workDir, "marine-zones-")
	if err != nil {
		return 0, eris.Wrap(err, "zones: create temp dir")
	}
	defer os.RemoveAll(tmpDir)

	zipPath := filepath.Join(tmpDir, "zones.zip")
	if err := download(ctx, httpClient, archiveURL, zipPath); err != nil {
		return 0, err
	}
	if err := unzip(zipPath, tmpDir); err != nil {
		return 0, err
	}

	matches, err := filepath.Glob(filepath.Join(tmpDir, "*.shp"))
	if err != nil || len(matches) == 0 {
		return 0, eris.New("zones: archive contains no .shp file")
	}
	return LoadShapefile(ctx, db, matches[0])
}

func download(ctx context.Context, httpClient *http.Client, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrap(err, "zones: create download request")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "zones: download shapefile")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("zones: download shapefile: HTTP %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "zones: create archive file")
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return eris.Wrap(err, "zones: write archive file")
}

func unzip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return eris.Wrap(err, "zones: open archive")
	}
	defer r.Close()

	root := filepath.Clean(dest) + string(os.PathSeparator)
	for _, f := range r.File {
		fpath := filepath.Join(dest, f.Name)
		// ZipSlip
		if !strings.HasPrefix(fpath, root) {
			return eris.Errorf("zones: illegal path in archive: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0o755); err != nil {
				return eris.Wrap(err, "zones: extract directory")
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
			return eris.Wrap(err, "zones: extract directory")
		}
		if err := extractFile(f, fpath); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zones: open %s", f.Name)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return eris.Wrapf(err, "zones: create %s", dest)
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return eris.Wrapf(err, "zones: extract %s", f.Name)
}

// attribute columns in the NOAA marine zone dbf, used when a field name is
// not found.
var defaultColumns = map[string]int{"ID": 0, "NAME": 3, "LON": 4, "LAT": 5}

// LoadShapefile creates the marine_zones table from a polygon shapefile with
// ID, NAME, LON and LAT attributes.
func LoadShapefile(ctx context.Context, db *sql.DB, shpPath string) (int, error) {
	shape, err := shp.Open(shpPath)
	if err != nil {
		return 0, eris.Wrap(err, "zones: open shapefile")
	}
	defer shape.Close()

	cols := columnIndexes(shape.Fields())

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "zones: begin load")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE marine_zones (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			zone_code TEXT NOT NULL,
			zone_name TEXT,
			bbox_min_lat REAL NOT NULL,
			bbox_max_lat REAL NOT NULL,
			bbox_min_lon REAL NOT NULL,
			bbox_max_lon REAL NOT NULL,
			center_lat REAL NOT NULL,
			center_lon REAL NOT NULL
		);
		CREATE INDEX idx_zones_bbox ON marine_zones(bbox_min_lat, bbox_max_lat, bbox_min_lon, bbox_max_lon);
		CREATE INDEX idx_zones_code ON marine_zones(zone_code);
	`); err != nil {
		return 0, eris.Wrap(err, "zones: create marine_zones table")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO marine_zones (
			zone_code, zone_name,
			bbox_min_lat, bbox_max_lat, bbox_min_lon, bbox_max_lon,
			center_lat, center_lon
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "zones: prepare insert")
	}
	defer stmt.Close()

	count := 0
	for shape.Next() {
		n, p := shape.Shape()
		polygon, ok := p.(*shp.Polygon)
		if !ok {
			continue
		}

		code := readAttr(shape, n, cols["ID"])
		if code == "" {
			continue
		}
		name := readAttr(shape, n, cols["NAME"])

		bbox := polygon.BBox()
		centerLat, errLat := strconv.ParseFloat(readAttr(shape, n, cols["LAT"]), 64)
		centerLon, errLon := strconv.ParseFloat(readAttr(shape, n, cols["LON"]), 64)
		if errLat != nil || errLon != nil {
			centerLat = (bbox.MinY + bbox.MaxY) / 2
			centerLon = (bbox.MinX + bbox.MaxX) / 2
		}

		if _, err := stmt.ExecContext(ctx, code, name,
			bbox.MinY, bbox.MaxY, bbox.MinX, bbox.MaxX,
			centerLat, centerLon,
		); err != nil {
			zap.L().Warn("skipping marine zone", zap.String("zone", code), zap.Error(err))
			continue
		}

		count++
		if count%100 == 0 {
			zap.L().Debug("provisioning marine zones", zap.Int("rows", count))
		}
	}
	if err := shape.Err(); err != nil {
		return 0, eris.Wrap(err, "zones: read shapefile")
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "zones: commit marine zones")
	}

	zap.L().Info("provisioned marine zones", zap.Int("rows", count))
	return count, nil
}

func columnIndexes(fields []shp.Field) map[string]int {
	cols := make(map[string]int, len(defaultColumns))
	for name, idx := range defaultColumns {
		cols[name] = idx
	}
	for i, f := range fields {
		name := strings.ToUpper(strings.TrimSpace(f.String()))
		if _, ok := defaultColumns[name]; ok {
			cols[name] = i
		}
	}
	return cols
}

func readAttr(r *shp.Reader, row, field int) string {
	if field < 0 || field >= len(r.Fields()) {
		return ""
	}
	return strings.Trim(r.ReadAttribute(row, field), "\x00 ")
}
