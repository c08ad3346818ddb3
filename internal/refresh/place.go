package refresh

import (
	"strings"

	"github.com/ngmaloney/weather-terminal/internal/cache"
	"github.com/ngmaloney/weather-terminal/internal/identity"
	"github.com/ngmaloney/weather-terminal/internal/models"
)

// PlaceKind says how a Place names its location.
type PlaceKind int

const (
	PlaceSearch PlaceKind = iota
	PlaceCurrentLocation
	PlaceFavorite
)

// HereQuery is the search text that asks for the current location.
const HereQuery = "here"

const favoritePrefix = "favorite:"

// Place is what the user asked to see.
type Place struct {
	Kind  PlaceKind
	Query string
	UID   string

	// Force skips the freshness checks, as a manual refresh does.
	Force bool
}

// Search names a place by free text.
func Search(query string) Place { return Place{Kind: PlaceSearch, Query: strings.TrimSpace(query)} }

// CurrentLocation asks for the device's location.
func CurrentLocation() Place { return Place{Kind: PlaceCurrentLocation} }

// Favorite names a saved favorite by UID.
func Favorite(uid string) Place { return Place{Kind: PlaceFavorite, UID: uid} }

// ParsePlace is the inverse of Place.String. "here" in any case is the
// current location.
func ParsePlace(text string) Place {
	text = strings.TrimSpace(text)
	if strings.EqualFold(text, HereQuery) {
		return CurrentLocation()
	}
	if uid, ok := strings.CutPrefix(text, favoritePrefix); ok && uid != "" {
		return Favorite(uid)
	}
	return Search(text)
}

// String is the form stored as the last-viewed place.
func (p Place) String() string {
	switch p.Kind {
	case PlaceCurrentLocation:
		return HereQuery
	case PlaceFavorite:
		return favoritePrefix + p.UID
	}
	return p.Query
}

// IsZero reports whether p names nothing.
func (p Place) IsZero() bool {
	return p.Kind == PlaceSearch && p.Query == ""
}

// DashboardState is the in-process view: what is shown, for which slot, and
// whether a blocking refresh is pending. It is owned by the caller and only
// changed through Resolve and Apply.
type DashboardState struct {
	Slot     identity.Slot
	Place    Place
	Location models.Location
	Entry    *cache.Entry
	Loading  bool
	Err      error
}

// HasData reports whether there is weather to render.
func (s DashboardState) HasData() bool { return s.Entry != nil }
