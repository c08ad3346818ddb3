// Package refresh resolves a requested place to a cache slot and decides
// whether to show cached weather, refresh it in the background, or fetch it
// before showing anything.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ngmaloney/weather-terminal/internal/cache"
	"github.com/ngmaloney/weather-terminal/internal/favorites"
	"github.com/ngmaloney/weather-terminal/internal/geocoding"
	"github.com/ngmaloney/weather-terminal/internal/identity"
	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/staleness"
)

// ErrFetchFailed wraps geocoding, location and weather upstream failures.
var ErrFetchFailed = eris.New("refresh: fetch failed")

// Cache is the durable tier as seen by the orchestrator.
type Cache interface {
	Load(ctx context.Context, slot identity.Slot) (*cache.Entry, error)
	Save(ctx context.Context, slot identity.Slot, payload models.WeatherPayload, obs *models.Observation, fetchedAt time.Time) (cache.Stamp, error)
	SaveIfFetchedAt(ctx context.Context, slot identity.Slot, payload models.WeatherPayload, obs *models.Observation, fetchedAt time.Time) (bool, error)
	LastViewed(ctx context.Context) (string, error)
	SetLastViewed(ctx context.Context, place string) error
}

// Favorites finds saved favorites.
type Favorites interface {
	FindByUID(ctx context.Context, uid string) (*models.Favorite, error)
	FindByKey(ctx context.Context, key string) (*models.Favorite, error)
	FindBySearchQuery(ctx context.Context, query string) (*models.Favorite, error)
}

// Geocoder turns search text into a location.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (models.Location, error)
}

// Locator detects the current location.
type Locator interface {
	Locate(ctx context.Context) (models.Location, error)
}

// Fetcher retrieves weather for a location.
type Fetcher interface {
	Fetch(ctx context.Context, loc models.Location) (models.WeatherPayload, *models.Observation, error)
}

// Enricher adds data discovered after the fetch, such as tides. changed is
// false when there was nothing to add.
type Enricher interface {
	Enrich(ctx context.Context, payload models.WeatherPayload) (enriched models.WeatherPayload, changed bool, err error)
}

// Deps are the orchestrator's collaborators. Enricher may be nil.
type Deps struct {
	Cache     Cache
	Favorites Favorites
	Geocoder  Geocoder
	Locator   Locator
	Fetcher   Fetcher
	Enricher  Enricher
}

// Mode says how a refresh relates to what is on screen.
type Mode int

const (
	// Blocking refreshes run while the view shows a loading indicator.
	Blocking Mode = iota
	// Background refreshes revalidate data that is already shown.
	Background
	// Enrichment rewrites a slot's content without changing its fetchedAt.
	Enrichment
)

func (m Mode) String() string {
	switch m {
	case Background:
		return "background"
	case Enrichment:
		return "enrichment"
	}
	return "blocking"
}

// Refresh is a fetch the caller should run with Run.
type Refresh struct {
	ID       uuid.UUID
	Slot     identity.Slot
	Location models.Location
	Mode     Mode
}

// Resolution is the state to render now plus at most one refresh to start.
type Resolution struct {
	State   DashboardState
	Pending *Refresh
}

// Result is the outcome of Run or Enrich, to be passed to Apply.
type Result struct {
	Refresh Refresh
	Entry   *cache.Entry
	Err     error
}

// Orchestrator is safe for concurrent use; DashboardState values are not
// shared between calls.
type Orchestrator struct {
	deps  Deps
	now   func() time.Time
	group singleflight.Group

	mu       sync.Mutex
	inflight map[identity.Slot]int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:     deps,
		now:      time.Now,
		inflight: make(map[identity.Slot]int),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// target is a place resolved to a slot. entry is set when resolution already
// had to read the slot.
type target struct {
	slot     identity.Slot
	location models.Location
	entry    *cache.Entry
}

// Resolve decides what to show for place, given what state shows now. The
// rules are applied in order:
//
//  1. state already shows the slot and it is fresh: no I/O.
//  2. the durable slot is fresh: show it, refreshing in the background once
//     it passes the pre-emptive threshold.
//  3. the durable slot is stale: show it while a blocking refresh runs.
//  4. nothing cached: show loading while a blocking refresh runs.
//
// Force skips rules 1 and 2. The current location is never read from the
// durable tier. On error the returned state keeps what was displayed.
func (o *Orchestrator) Resolve(ctx context.Context, state DashboardState, place Place) (Resolution, error) {
	t, err := o.resolveTarget(ctx, place)
	if err != nil {
		state.Err = err
		state.Loading = false
		return Resolution{State: state}, err
	}
	o.recordLastViewed(ctx, place)

	now := o.now()
	shown := place
	shown.Force = false

	if !place.Force && state.Slot == t.slot && state.Entry != nil && !staleness.IsStale(now, state.Entry.FetchedAt) {
		state.Place = shown
		state.Err = nil
		o.logResolve(t.slot, "displayed", nil)
		return Resolution{State: state}, nil
	}

	next := DashboardState{Slot: t.slot, Place: shown, Location: t.location}

	entry := t.entry
	switch {
	case state.Slot == t.slot && state.Entry != nil:
		entry = state.Entry
	case entry == nil && place.Kind != PlaceCurrentLocation:
		entry = o.load(ctx, t.slot)
	}
	if entry != nil {
		next.Entry = entry
		if _, _, ok := t.location.Coordinates(); !ok {
			next.Location = entry.Payload.Location
		}
	}

	var pending *Refresh
	switch {
	case entry != nil && !place.Force && !staleness.IsStale(now, entry.FetchedAt):
		if staleness.ShouldPreempt(now, entry.FetchedAt) && !o.InFlight(t.slot) {
			pending = o.newRefresh(t.slot, next.Location, Background)
		}
		o.logResolve(t.slot, "cached", pending)
	case entry != nil:
		next.Loading = true
		pending = o.newRefresh(t.slot, next.Location, Blocking)
		o.logResolve(t.slot, "stale", pending)
	default:
		next.Loading = true
		pending = o.newRefresh(t.slot, next.Location, Blocking)
		o.logResolve(t.slot, "miss", pending)
	}

	return Resolution{State: next, Pending: pending}, nil
}

func (o *Orchestrator) resolveTarget(ctx context.Context, place Place) (target, error) {
	switch place.Kind {
	case PlaceFavorite:
		fav, err := o.deps.Favorites.FindByUID(ctx, place.UID)
		if err != nil {
			return target{}, eris.Wrapf(err, "refresh: favorite %s", place.UID)
		}
		return target{slot: identity.UIDSlot(fav.UID), location: fav.Location}, nil

	case PlaceCurrentLocation:
		loc, err := o.deps.Locator.Locate(ctx)
		if err != nil {
			return target{}, eris.Wrapf(ErrFetchFailed, "refresh: locate: %v", err)
		}
		uid, ok := identity.ComputeUID(loc)
		if !ok {
			return target{}, eris.Wrap(identity.ErrInvalidLocation, "refresh: current location")
		}
		return target{slot: identity.UIDSlot(uid), location: loc}, nil
	}

	return o.resolveSearch(ctx, place.Query)
}

// resolveSearch tries the "City, ST" key first so a cached or favorite
// location can be shown without geocoding.
func (o *Orchestrator) resolveSearch(ctx context.Context, query string) (target, error) {
	if query == "" {
		return target{}, eris.Wrap(identity.ErrInvalidLocation, "refresh: empty search")
	}

	if key, ok := identity.KeyFromQuery(query); ok {
		if fav := o.findFavorite(ctx, o.deps.Favorites.FindByKey, key); fav != nil && fav.UID != "" {
			return target{slot: identity.UIDSlot(fav.UID), location: fav.Location}, nil
		}
		slot := identity.LegacySlot(key)
		if entry := o.load(ctx, slot); entry != nil {
			return target{slot: slot, location: entry.Payload.Location, entry: entry}, nil
		}
	}

	loc, err := o.deps.Geocoder.Geocode(ctx, query)
	if err != nil {
		if fav := o.findFavorite(ctx, o.deps.Favorites.FindBySearchQuery, query); fav != nil && (fav.UID != "" || fav.Key != "") {
			zap.L().Debug("refresh: geocode failed, using saved favorite",
				zap.String("query", query), zap.Error(err))
			return favoriteTarget(fav), nil
		}
		if errors.Is(err, geocoding.ErrNotFound) {
			return target{}, eris.Wrapf(identity.ErrInvalidLocation, "refresh: %q not found", query)
		}
		return target{}, eris.Wrapf(ErrFetchFailed, "refresh: geocode %q: %v", query, err)
	}

	uid, hasUID := identity.ComputeUID(loc)
	if hasUID {
		if fav := o.findFavorite(ctx, o.deps.Favorites.FindByUID, uid); fav != nil {
			return target{slot: identity.UIDSlot(uid), location: loc}, nil
		}
	}
	if key, ok := identity.ComputeKey(loc); ok {
		return target{slot: identity.LegacySlot(key), location: loc}, nil
	}
	if hasUID {
		return target{slot: identity.UIDSlot(uid), location: loc}, nil
	}
	return target{slot: identity.DefaultSlot(), location: loc}, nil
}

// favoriteTarget places a favorite in its UID slot, or its legacy slot when
// it has not been migrated.
func favoriteTarget(fav *models.Favorite) target {
	if fav.UID != "" {
		return target{slot: identity.UIDSlot(fav.UID), location: fav.Location}
	}
	return target{slot: identity.LegacySlot(fav.Key), location: fav.Location}
}

func (o *Orchestrator) findFavorite(ctx context.Context, find func(context.Context, string) (*models.Favorite, error), id string) *models.Favorite {
	fav, err := find(ctx, id)
	if err != nil {
		if !errors.Is(err, favorites.ErrNotFound) {
			zap.L().Warn("refresh: favorite lookup failed", zap.String("id", id), zap.Error(err))
		}
		return nil
	}
	return fav
}

// load reads the durable tier, treating read errors as a miss.
func (o *Orchestrator) load(ctx context.Context, slot identity.Slot) *cache.Entry {
	entry, err := o.deps.Cache.Load(ctx, slot)
	if err != nil {
		zap.L().Warn("refresh: cache read failed", zap.String("slot", slot.String()), zap.Error(err))
		return nil
	}
	return entry
}

func (o *Orchestrator) recordLastViewed(ctx context.Context, place Place) {
	if err := o.deps.Cache.SetLastViewed(ctx, place.String()); err != nil {
		zap.L().Warn("refresh: record last viewed", zap.Error(err))
	}
}

// LastViewed returns the place shown when the dashboard last resolved one.
func (o *Orchestrator) LastViewed(ctx context.Context) (Place, bool, error) {
	text, err := o.deps.Cache.LastViewed(ctx)
	if err != nil || text == "" {
		return Place{}, false, err
	}
	return ParsePlace(text), true, nil
}

func (o *Orchestrator) newRefresh(slot identity.Slot, loc models.Location, mode Mode) *Refresh {
	return &Refresh{ID: uuid.New(), Slot: slot, Location: loc, Mode: mode}
}

func (o *Orchestrator) logResolve(slot identity.Slot, outcome string, pending *Refresh) {
	fields := []zap.Field{zap.String("slot", slot.String()), zap.String("outcome", outcome)}
	if pending != nil {
		fields = append(fields, zap.Stringer("refresh_id", pending.ID), zap.Stringer("mode", pending.Mode))
	}
	zap.L().Debug("refresh: resolved", fields...)
}

// InFlight reports whether a Run for slot has not finished.
func (o *Orchestrator) InFlight(slot identity.Slot) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inflight[slot] > 0
}

func (o *Orchestrator) track(slot identity.Slot, delta int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inflight[slot] += delta
	if o.inflight[slot] <= 0 {
		delete(o.inflight, slot)
	}
}

// Run fetches weather for r and writes it to r's slot. Concurrent runs for
// the same slot share one upstream fetch. The entry's FetchedAt is the
// moment the fetch started.
func (o *Orchestrator) Run(ctx context.Context, r Refresh) Result {
	o.track(r.Slot, 1)
	defer o.track(r.Slot, -1)

	v, err, shared := o.group.Do(r.Slot.String(), func() (interface{}, error) {
		return o.fetch(ctx, r)
	})
	if shared {
		zap.L().Debug("refresh: shared in-flight fetch", zap.String("slot", r.Slot.String()), zap.Stringer("refresh_id", r.ID))
	}
	if err != nil {
		zap.L().Warn("refresh: fetch failed",
			zap.String("slot", r.Slot.String()),
			zap.Stringer("refresh_id", r.ID),
			zap.Error(err),
		)
		return Result{Refresh: r, Err: err}
	}
	return Result{Refresh: r, Entry: v.(*cache.Entry)}
}

func (o *Orchestrator) fetch(ctx context.Context, r Refresh) (*cache.Entry, error) {
	fetchedAt := o.now().UTC()

	payload, obs, err := o.deps.Fetcher.Fetch(ctx, r.Location)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidLocation) {
			return nil, err
		}
		return nil, eris.Wrapf(ErrFetchFailed, "refresh: fetch %s: %v", r.Slot, err)
	}

	entry := &cache.Entry{
		Payload:               payload,
		Observations:          obs,
		ObservationsAvailable: obs != nil,
		LocationDisplay:       payload.Location.DisplayName(),
		FetchedAt:             fetchedAt,
	}
	if _, err := o.deps.Cache.Save(ctx, r.Slot, payload, obs, fetchedAt); err != nil {
		zap.L().Error("refresh: cache write failed", zap.String("slot", r.Slot.String()), zap.Error(err))
	}
	return entry, nil
}

// Enrich asks the Enricher to add data to entry and rewrites the slot
// without moving its fetchedAt. The write only lands while the slot still
// holds entry's fetch, so a newer Run finishing during the lookup wins. ok
// is false when there is nothing to apply.
func (o *Orchestrator) Enrich(ctx context.Context, slot identity.Slot, entry *cache.Entry) (Result, bool) {
	if o.deps.Enricher == nil || entry == nil {
		return Result{}, false
	}
	if current := o.load(ctx, slot); current == nil || !current.FetchedAt.Equal(entry.FetchedAt) {
		return Result{}, false
	}

	payload, changed, err := o.deps.Enricher.Enrich(ctx, entry.Payload)
	if err != nil {
		zap.L().Warn("refresh: enrichment failed", zap.String("slot", slot.String()), zap.Error(err))
		return Result{}, false
	}
	if !changed {
		return Result{}, false
	}

	saved, err := o.deps.Cache.SaveIfFetchedAt(ctx, slot, payload, entry.Observations, entry.FetchedAt)
	if err != nil {
		zap.L().Error("refresh: cache write failed", zap.String("slot", slot.String()), zap.Error(err))
		return Result{}, false
	}
	if !saved {
		zap.L().Debug("refresh: enrichment superseded by a newer fetch", zap.String("slot", slot.String()))
		return Result{}, false
	}

	enriched := *entry
	enriched.Payload = payload
	return Result{
		Refresh: Refresh{ID: uuid.New(), Slot: slot, Location: payload.Location, Mode: Enrichment},
		Entry:   &enriched,
	}, true
}

// Apply folds a finished refresh into state. A result for a slot other than
// the one displayed is discarded; its data is already in the durable tier.
// A failed refresh keeps whatever is displayed and only reports the error
// when there is nothing else to show. applied is false when state is
// returned unchanged.
func Apply(state DashboardState, res Result) (next DashboardState, applied bool) {
	if res.Refresh.Slot != state.Slot {
		zap.L().Debug("refresh: discarded result for another slot",
			zap.String("result_slot", res.Refresh.Slot.String()),
			zap.String("displayed_slot", state.Slot.String()),
			zap.Stringer("refresh_id", res.Refresh.ID),
		)
		return state, false
	}

	if res.Err != nil {
		if res.Refresh.Mode == Background {
			return state, false
		}
		state.Loading = false
		if state.Entry == nil {
			state.Err = res.Err
		}
		return state, true
	}

	if res.Refresh.Mode == Enrichment {
		if state.Entry == nil || !state.Entry.FetchedAt.Equal(res.Entry.FetchedAt) {
			return state, false
		}
	}

	state.Entry = res.Entry
	state.Location = res.Entry.Payload.Location
	state.Loading = false
	state.Err = nil
	return state, true
}
