// Package cache implements the two weather cache tiers: a small in-process
// MemoryTier and the sqlite-backed DurableTier.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ngmaloney/weather-terminal/internal/identity"
	"github.com/ngmaloney/weather-terminal/internal/models"
)

// ErrStorageCorrupt marks a durable record that could not be decoded. The
// slot is cleared and the read is treated as a miss.
var ErrStorageCorrupt = eris.New("cache: storage corrupt")

// Entry is one cached fetch. FetchedAt is when the upstream fetch was
// started, not when the row was written.
type Entry struct {
	Payload               models.WeatherPayload `json:"payload"`
	Observations          *models.Observation   `json:"observations,omitempty"`
	ObservationsAvailable bool                  `json:"observationsAvailable"`
	LocationDisplay       string                `json:"locationDisplay"`
	FetchedAt             time.Time             `json:"fetchedAt"`
}

// SlotInfo summarizes a durable row without decoding its payload.
type SlotInfo struct {
	Slot            identity.Slot
	LocationDisplay string
	FetchedAt       time.Time
	UpdatedAt       time.Time
}

// Sources a saved fetchedAt can come from, in the order they are consulted.
const (
	SourceExplicit  = "explicit"
	SourceSlot      = "slot"
	SourceDefault   = "default"
	SourceLastKnown = "last-known"
	SourceNow       = "now"
)

// Stamp records which fetchedAt a save used and where it came from.
type Stamp struct {
	FetchedAt time.Time
	Source    string
}

const lastViewedKey = "last_viewed"

// DurableTier persists one weather_cache row per slot.
type DurableTier struct {
	db  *sql.DB
	mem *MemoryTier
	now func() time.Time

	mu        sync.Mutex
	lastKnown time.Time
}

// Option configures a DurableTier.
type Option func(*DurableTier)

// WithClock overrides the clock used for the last-resort timestamp.
func WithClock(now func() time.Time) Option {
	return func(d *DurableTier) { d.now = now }
}

// NewDurableTier wraps an open database. mem may be nil.
func NewDurableTier(db *sql.DB, mem *MemoryTier, opts ...Option) *DurableTier {
	if mem == nil {
		mem = NewMemoryTier(DefaultMemoryCapacity)
	}
	d := &DurableTier{db: db, mem: mem, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Save replaces the slot's record and mirrors it into the default slot. A
// zero fetchedAt keeps the timestamp already associated with the slot, so
// enrichment writes never move the "updated" time.
func (d *DurableTier) Save(ctx context.Context, slot identity.Slot, payload models.WeatherPayload, obs *models.Observation, fetchedAt time.Time) (Stamp, error) {
	stamp := Stamp{FetchedAt: fetchedAt, Source: SourceExplicit}
	if fetchedAt.IsZero() {
		stamp = d.resolveFetchedAt(ctx, slot)
	} else {
		d.remember(fetchedAt)
	}

	payloadJSON, obsJSON, err := encodePayload(payload, obs)
	if err != nil {
		return Stamp{}, err
	}

	row := []any{
		payloadJSON,
		obsJSON,
		obs != nil,
		payload.Location.DisplayName(),
		formatTime(stamp.FetchedAt),
		formatTime(d.now()),
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Stamp{}, eris.Wrap(err, "cache: begin save")
	}
	defer tx.Rollback()

	targets := []identity.Slot{slot}
	if !slot.IsDefault() {
		targets = append(targets, identity.DefaultSlot())
	}
	for _, target := range targets {
		args := append([]any{target.String()}, row...)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO weather_cache (slot, payload, observations, observations_available, location_display, fetched_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(slot) DO UPDATE SET
				payload = excluded.payload,
				observations = excluded.observations,
				observations_available = excluded.observations_available,
				location_display = excluded.location_display,
				fetched_at = excluded.fetched_at,
				updated_at = excluded.updated_at
		`, args...); err != nil {
			return Stamp{}, eris.Wrapf(err, "cache: save %s", target)
		}
	}
	if err := tx.Commit(); err != nil {
		return Stamp{}, eris.Wrap(err, "cache: commit save")
	}

	for _, target := range targets {
		d.mem.Purge(target)
	}

	zap.L().Debug("cache: saved",
		zap.String("slot", slot.String()),
		zap.Time("fetched_at", stamp.FetchedAt),
		zap.String("source", stamp.Source),
	)
	return stamp, nil
}

// SaveIfFetchedAt rewrites the slot's content only while the slot still
// holds the fetch stamped fetchedAt, leaving fetched_at untouched. The
// default slot is updated under the same condition. saved is false when a
// newer fetch has replaced the slot, or the slot is gone.
func (d *DurableTier) SaveIfFetchedAt(ctx context.Context, slot identity.Slot, payload models.WeatherPayload, obs *models.Observation, fetchedAt time.Time) (saved bool, err error) {
	payloadJSON, obsJSON, err := encodePayload(payload, obs)
	if err != nil {
		return false, err
	}
	stamp := formatTime(fetchedAt)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "cache: begin conditional save")
	}
	defer tx.Rollback()

	targets := []identity.Slot{slot}
	if !slot.IsDefault() {
		targets = append(targets, identity.DefaultSlot())
	}
	for i, target := range targets {
		res, err := tx.ExecContext(ctx, `
			UPDATE weather_cache SET
				payload = ?,
				observations = ?,
				observations_available = ?,
				location_display = ?,
				updated_at = ?
			WHERE slot = ? AND fetched_at = ?
		`, payloadJSON, obsJSON, obs != nil, payload.Location.DisplayName(), formatTime(d.now()), target.String(), stamp)
		if err != nil {
			return false, eris.Wrapf(err, "cache: conditional save %s", target)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, eris.Wrapf(err, "cache: conditional save %s", target)
		}
		if i == 0 && n == 0 {
			zap.L().Debug("cache: conditional save skipped",
				zap.String("slot", slot.String()),
				zap.Time("fetched_at", fetchedAt),
			)
			return false, nil
		}
	}
	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "cache: commit conditional save")
	}

	for _, target := range targets {
		d.mem.Purge(target)
	}
	return true, nil
}

func encodePayload(payload models.WeatherPayload, obs *models.Observation) (string, sql.NullString, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", sql.NullString{}, eris.Wrap(err, "cache: encode payload")
	}
	var obsJSON sql.NullString
	if obs != nil {
		b, err := json.Marshal(obs)
		if err != nil {
			return "", sql.NullString{}, eris.Wrap(err, "cache: encode observations")
		}
		obsJSON = sql.NullString{String: string(b), Valid: true}
	}
	return string(payloadJSON), obsJSON, nil
}

// Load returns the slot's entry, or nil when the row, its location string or
// its timestamp is missing. An empty location string is accepted. Corrupt
// rows are cleared and reported as a miss.
func (d *DurableTier) Load(ctx context.Context, slot identity.Slot) (*Entry, error) {
	var (
		payloadJSON     string
		obsJSON         sql.NullString
		obsAvailable    bool
		locationDisplay sql.NullString
		fetchedAtText   sql.NullString
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT payload, observations, observations_available, location_display, fetched_at
		FROM weather_cache WHERE slot = ?
	`, slot.String()).Scan(&payloadJSON, &obsJSON, &obsAvailable, &locationDisplay, &fetchedAtText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: load %s", slot)
	}
	if !locationDisplay.Valid || !fetchedAtText.Valid || fetchedAtText.String == "" {
		return nil, nil
	}

	if e, ok := d.mem.Get(slot, fetchedAtText.String); ok {
		return e, nil
	}

	entry, err := decodeEntry(payloadJSON, obsJSON, obsAvailable, locationDisplay.String, fetchedAtText.String)
	if err != nil {
		d.recoverCorrupt(ctx, slot, err)
		return nil, nil
	}

	d.remember(entry.FetchedAt)
	d.mem.Put(slot, fetchedAtText.String, entry)
	return entry, nil
}

func decodeEntry(payloadJSON string, obsJSON sql.NullString, obsAvailable bool, locationDisplay, fetchedAtText string) (*Entry, error) {
	fetchedAt, err := parseTime(fetchedAtText)
	if err != nil {
		return nil, eris.Wrapf(ErrStorageCorrupt, "fetched_at %q", fetchedAtText)
	}

	entry := &Entry{
		ObservationsAvailable: obsAvailable,
		LocationDisplay:       locationDisplay,
		FetchedAt:             fetchedAt,
	}
	if err := json.Unmarshal([]byte(payloadJSON), &entry.Payload); err != nil {
		return nil, eris.Wrapf(ErrStorageCorrupt, "payload: %v", err)
	}
	if obsJSON.Valid && obsJSON.String != "" {
		var obs models.Observation
		if err := json.Unmarshal([]byte(obsJSON.String), &obs); err != nil {
			return nil, eris.Wrapf(ErrStorageCorrupt, "observations: %v", err)
		}
		entry.Observations = &obs
	}
	return entry, nil
}

func (d *DurableTier) recoverCorrupt(ctx context.Context, slot identity.Slot, cause error) {
	zap.L().Error("cache: clearing corrupt slot",
		zap.String("slot", slot.String()),
		zap.Error(cause),
	)
	if err := d.Clear(ctx, slot); err != nil {
		zap.L().Error("cache: clear corrupt slot", zap.String("slot", slot.String()), zap.Error(err))
	}
}

// Clear removes the slot's record and its in-process entries.
func (d *DurableTier) Clear(ctx context.Context, slot identity.Slot) error {
	d.mem.Purge(slot)
	_, err := d.db.ExecContext(ctx, "DELETE FROM weather_cache WHERE slot = ?", slot.String())
	return eris.Wrapf(err, "cache: clear %s", slot)
}

// ClearAll removes every cached record.
func (d *DurableTier) ClearAll(ctx context.Context) error {
	d.mem.Reset()
	_, err := d.db.ExecContext(ctx, "DELETE FROM weather_cache")
	return eris.Wrap(err, "cache: clear all")
}

// Copy duplicates from's record into to, timestamp included. It reports
// false when from has no record.
func (d *DurableTier) Copy(ctx context.Context, from, to identity.Slot) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO weather_cache (slot, payload, observations, observations_available, location_display, fetched_at, updated_at)
		SELECT ?, payload, observations, observations_available, location_display, fetched_at, updated_at
		FROM weather_cache WHERE slot = ?
	`, to.String(), from.String())
	if err != nil {
		return false, eris.Wrapf(err, "cache: copy %s to %s", from, to)
	}
	d.mem.Purge(to)
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "cache: copy rows affected")
	}
	return n > 0, nil
}

// Slots lists every stored record ordered by slot name.
func (d *DurableTier) Slots(ctx context.Context) ([]SlotInfo, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT slot, COALESCE(location_display, ''), COALESCE(fetched_at, ''), updated_at
		FROM weather_cache ORDER BY slot
	`)
	if err != nil {
		return nil, eris.Wrap(err, "cache: list slots")
	}
	defer rows.Close()

	var infos []SlotInfo
	for rows.Next() {
		var name, display, fetchedAt, updatedAt string
		if err := rows.Scan(&name, &display, &fetchedAt, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "cache: scan slot")
		}
		slot, err := identity.ParseSlot(name)
		if err != nil {
			continue
		}
		info := SlotInfo{Slot: slot, LocationDisplay: display}
		info.FetchedAt, _ = parseTime(fetchedAt)
		info.UpdatedAt, _ = parseTime(updatedAt)
		infos = append(infos, info)
	}
	return infos, eris.Wrap(rows.Err(), "cache: iterate slots")
}

// LastViewed returns the place text recorded by SetLastViewed, or "".
func (d *DurableTier) LastViewed(ctx context.Context) (string, error) {
	var v string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM app_state WHERE key = ?", lastViewedKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, eris.Wrap(err, "cache: load last viewed")
}

// SetLastViewed records the place to restore on the next launch.
func (d *DurableTier) SetLastViewed(ctx context.Context, place string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO app_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastViewedKey, place)
	return eris.Wrap(err, "cache: save last viewed")
}

type timestampSource struct {
	name   string
	lookup func(ctx context.Context, slot identity.Slot) (time.Time, bool, error)
}

// timestampSources is the ordered fallback chain for saves without a
// timestamp. The current time is used only when every source comes up empty.
func (d *DurableTier) timestampSources() []timestampSource {
	return []timestampSource{
		{name: SourceSlot, lookup: d.storedFetchedAt},
		{name: SourceDefault, lookup: func(ctx context.Context, _ identity.Slot) (time.Time, bool, error) {
			return d.storedFetchedAt(ctx, identity.DefaultSlot())
		}},
		{name: SourceLastKnown, lookup: func(context.Context, identity.Slot) (time.Time, bool, error) {
			d.mu.Lock()
			defer d.mu.Unlock()
			return d.lastKnown, !d.lastKnown.IsZero(), nil
		}},
	}
}

func (d *DurableTier) resolveFetchedAt(ctx context.Context, slot identity.Slot) Stamp {
	for _, src := range d.timestampSources() {
		t, ok, err := src.lookup(ctx, slot)
		if err != nil {
			zap.L().Warn("cache: timestamp source failed",
				zap.String("slot", slot.String()),
				zap.String("source", src.name),
				zap.Error(err),
			)
			continue
		}
		if ok {
			return Stamp{FetchedAt: t, Source: src.name}
		}
	}

	now := d.now()
	zap.L().Error("cache: no fetch time to preserve, stamping with current time",
		zap.String("slot", slot.String()),
		zap.Time("fetched_at", now),
	)
	return Stamp{FetchedAt: now, Source: SourceNow}
}

func (d *DurableTier) storedFetchedAt(ctx context.Context, slot identity.Slot) (time.Time, bool, error) {
	var text sql.NullString
	err := d.db.QueryRowContext(ctx, "SELECT fetched_at FROM weather_cache WHERE slot = ?", slot.String()).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, eris.Wrapf(err, "cache: read fetched_at for %s", slot)
	}
	if !text.Valid || text.String == "" {
		return time.Time{}, false, nil
	}
	t, err := parseTime(text.String)
	if err != nil {
		return time.Time{}, false, eris.Wrapf(ErrStorageCorrupt, "fetched_at %q", text.String)
	}
	return t, true, nil
}

func (d *DurableTier) remember(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.After(d.lastKnown) {
		d.lastKnown = t
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
