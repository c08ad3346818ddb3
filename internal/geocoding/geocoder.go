// Package geocoding turns search text into a Location, using the local
// zipcode table first and Nominatim when the table has no answer.
package geocoding

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ngmaloney/weather-terminal/internal/models"
)

// ErrNotFound means no geocoder recognized the query.
var ErrNotFound = eris.New("geocoding: location not found")

var zipcodePattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// Geocoder converts search text to a Location
type Geocoder struct {
	local  *ZipcodeDB
	remote *Nominatim
}

// NewGeocoder creates a geocoder. Either source may be nil.
func NewGeocoder(local *ZipcodeDB, remote *Nominatim) *Geocoder {
	return &Geocoder{local: local, remote: remote}
}

// Geocode resolves a zipcode, "City, ST" or free-form place name.
func (g *Geocoder) Geocode(ctx context.Context, query string) (models.Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.Location{}, eris.Wrap(ErrNotFound, "geocoding: empty query")
	}

	if g.local != nil {
		loc, err := g.lookupLocal(ctx, query)
		if err == nil {
			return loc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			zap.L().Warn("geocoding: local lookup failed", zap.String("query", query), zap.Error(err))
		}
	}

	if g.remote == nil {
		return models.Location{}, eris.Wrapf(ErrNotFound, "geocoding: %q", query)
	}
	return g.remote.Search(ctx, query)
}

func (g *Geocoder) lookupLocal(ctx context.Context, query string) (models.Location, error) {
	if isZipcode(query) {
		return g.local.LookupZipcode(ctx, query[:5])
	}

	city, state, found := strings.Cut(query, ",")
	city, state = strings.TrimSpace(city), strings.TrimSpace(state)
	if !found || city == "" || state == "" {
		return models.Location{}, ErrNotFound
	}
	return g.local.LookupCityState(ctx, city, state)
}

// isZipcode checks if a string looks like a US zipcode
func isZipcode(s string) bool {
	return zipcodePattern.MatchString(s)
}
