// Package favorites persists the ordered list of saved locations.
package favorites

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ngmaloney/weather-terminal/internal/cache"
	"github.com/ngmaloney/weather-terminal/internal/identity"
	"github.com/ngmaloney/weather-terminal/internal/models"
)

var (
	// ErrNotFound is returned when no favorite matches an identifier.
	ErrNotFound = eris.New("favorites: not found")

	// ErrMigrationFailed means at least one legacy favorite could not be
	// repaired and the whole list was discarded.
	ErrMigrationFailed = eris.New("favorites: migration failed")
)

// SlotStore is the part of the durable cache favorites touch: removal clears
// a favorite's slot and migration reads and copies legacy slots.
type SlotStore interface {
	Load(ctx context.Context, slot identity.Slot) (*cache.Entry, error)
	Copy(ctx context.Context, from, to identity.Slot) (bool, error)
	Clear(ctx context.Context, slot identity.Slot) error
}

// Store is the sqlite-backed favorites list.
type Store struct {
	db    *sql.DB
	slots SlotStore
	now   func() time.Time
}

// NewStore creates a Store over an open database.
func NewStore(db *sql.DB, slots SlotStore) *Store {
	return &Store{db: db, slots: slots, now: time.Now}
}

type row struct {
	id  int64
	fav models.Favorite
}

const selectColumns = `SELECT id, uid, key, name, custom_name, location, search_query, created_at FROM favorites`

// List returns favorites in display order.
func (s *Store) List(ctx context.Context) ([]models.Favorite, error) {
	rows, err := s.queryRows(ctx, selectColumns+" ORDER BY position, id")
	if err != nil {
		return nil, err
	}
	favs := make([]models.Favorite, 0, len(rows))
	for _, r := range rows {
		favs = append(favs, r.fav)
	}
	return favs, nil
}

// Add saves a favorite. Adding a location whose UID is already saved returns
// the existing favorite, updating its custom name when one is given.
func (s *Store) Add(ctx context.Context, loc models.Location, name, searchQuery, customName string) (models.Favorite, error) {
	uid, okUID := identity.ComputeUID(loc)
	key, okKey := identity.ComputeKey(loc)
	if !okUID || !okKey {
		return models.Favorite{}, eris.Wrapf(identity.ErrInvalidLocation, "favorites: add %q", name)
	}

	existing, err := s.FindByUID(ctx, uid)
	switch {
	case err == nil:
		if customName != "" && customName != existing.CustomName {
			if err := s.setCustomName(ctx, uid, customName); err != nil {
				return models.Favorite{}, err
			}
			existing.CustomName = customName
		}
		return *existing, nil
	case !errors.Is(err, ErrNotFound):
		return models.Favorite{}, err
	}

	if name == "" {
		name = loc.DisplayName()
	}
	fav := models.Favorite{
		UID:         uid,
		Key:         key,
		Name:        name,
		CustomName:  customName,
		Location:    loc,
		SearchQuery: searchQuery,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.insert(ctx, s.db, fav); err != nil {
		return models.Favorite{}, err
	}
	zap.L().Info("favorites: added", zap.String("uid", uid), zap.String("name", name))
	return fav, nil
}

// Remove deletes the favorite matching identifier (a UID or a legacy key)
// and clears its cache slot.
func (s *Store) Remove(ctx context.Context, identifier string) error {
	r, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM favorites WHERE id = ?", r.id); err != nil {
		return eris.Wrapf(err, "favorites: remove %q", identifier)
	}
	if r.fav.UID != "" && s.slots != nil {
		if err := s.slots.Clear(ctx, identity.UIDSlot(r.fav.UID)); err != nil {
			return eris.Wrapf(err, "favorites: clear slot for %q", identifier)
		}
	}
	zap.L().Info("favorites: removed", zap.String("identifier", identifier))
	return nil
}

// Rename sets the favorite's custom display name. An empty name restores
// the original.
func (s *Store) Rename(ctx context.Context, identifier, newName string) error {
	r, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "UPDATE favorites SET custom_name = ? WHERE id = ?", strings.TrimSpace(newName), r.id)
	return eris.Wrapf(err, "favorites: rename %q", identifier)
}

// FindByUID returns the favorite with the given UID or ErrNotFound.
func (s *Store) FindByUID(ctx context.Context, uid string) (*models.Favorite, error) {
	return s.findOne(ctx, selectColumns+" WHERE uid = ?", uid)
}

// FindByKey returns the first favorite with the given legacy key or
// ErrNotFound.
func (s *Store) FindByKey(ctx context.Context, key string) (*models.Favorite, error) {
	return s.findOne(ctx, selectColumns+" WHERE key = ? ORDER BY position, id LIMIT 1", key)
}

// FindBySearchQuery returns the first favorite saved from query, ignoring
// case and surrounding space, or ErrNotFound.
func (s *Store) FindBySearchQuery(ctx context.Context, query string) (*models.Favorite, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, eris.Wrap(ErrNotFound, "favorites: empty search query")
	}
	return s.findOne(ctx, selectColumns+" WHERE lower(trim(search_query)) = lower(?) ORDER BY position, id LIMIT 1", query)
}

// Import appends favorites as-is, including legacy entries without a UID.
// Entries whose UID is already saved are skipped. Run Migrate afterwards.
func (s *Store) Import(ctx context.Context, favs []models.Favorite) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "favorites: begin import")
	}
	defer tx.Rollback()

	imported := 0
	for _, fav := range favs {
		if fav.CreatedAt.IsZero() {
			fav.CreatedAt = s.now().UTC()
		}
		if fav.Name == "" {
			fav.Name = fav.Location.DisplayName()
		}
		if fav.UID != "" {
			var n int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM favorites WHERE uid = ?", fav.UID).Scan(&n); err != nil {
				return 0, eris.Wrap(err, "favorites: check import uid")
			}
			if n > 0 {
				continue
			}
		}
		if err := s.insert(ctx, tx, fav); err != nil {
			return 0, err
		}
		imported++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "favorites: commit import")
	}
	return imported, nil
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) insert(ctx context.Context, q execQuerier, fav models.Favorite) error {
	locJSON, err := json.Marshal(fav.Location)
	if err != nil {
		return eris.Wrap(err, "favorites: encode location")
	}
	var uid sql.NullString
	if fav.UID != "" {
		uid = sql.NullString{String: fav.UID, Valid: true}
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO favorites (uid, key, name, custom_name, location, search_query, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM favorites), ?)
	`, uid, fav.Key, fav.Name, fav.CustomName, string(locJSON), fav.SearchQuery, fav.CreatedAt.Format(time.RFC3339Nano))
	return eris.Wrapf(err, "favorites: insert %q", fav.Name)
}

func (s *Store) setCustomName(ctx context.Context, uid, name string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE favorites SET custom_name = ? WHERE uid = ?", name, uid)
	return eris.Wrapf(err, "favorites: update custom name for %s", uid)
}

func (s *Store) findByIdentifier(ctx context.Context, identifier string) (*row, error) {
	rows, err := s.queryRows(ctx, selectColumns+" WHERE uid = ? OR key = ? ORDER BY (uid = ?) DESC, position, id LIMIT 1",
		identifier, identifier, identifier)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "favorites: %q", identifier)
	}
	return &rows[0], nil
}

func (s *Store) findOne(ctx context.Context, query string, args ...any) (*models.Favorite, error) {
	rows, err := s.queryRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "favorites: %v", args)
	}
	return &rows[0].fav, nil
}

func (s *Store) queryRows(ctx context.Context, query string, args ...any) ([]row, error) {
	rs, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "favorites: query")
	}
	defer rs.Close()

	var out []row
	for rs.Next() {
		var (
			r         row
			uid       sql.NullString
			locJSON   string
			createdAt string
		)
		if err := rs.Scan(&r.id, &uid, &r.fav.Key, &r.fav.Name, &r.fav.CustomName, &locJSON, &r.fav.SearchQuery, &createdAt); err != nil {
			return nil, eris.Wrap(err, "favorites: scan")
		}
		r.fav.UID = uid.String
		if err := json.Unmarshal([]byte(locJSON), &r.fav.Location); err != nil {
			zap.L().Warn("favorites: undecodable location", zap.Int64("id", r.id), zap.Error(err))
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.fav.CreatedAt = t.UTC()
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rs.Err(), "favorites: iterate")
}
