// Package identity derives stable cache identities for locations.
//
// A UID is anchored to coordinates rounded to four decimal places whenever
// coordinates exist, so two geocoder responses for the same place agree even
// when their state field is formatted differently. A Key is the older
// "City,ST" form kept for cache slots written before UIDs existed.
package identity

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/ngmaloney/weather-terminal/internal/models"
)

// ErrInvalidLocation means neither a UID nor a Key can be derived.
var ErrInvalidLocation = eris.New("identity: invalid location")

const uidPrefix = "loc_"

// ComputeUID returns the location's UID. ok is false when the location has
// neither finite coordinates nor both city and state.
func ComputeUID(loc models.Location) (uid string, ok bool) {
	if lat, lon, hasCoords := loc.Coordinates(); hasCoords {
		return fmt.Sprintf("%s%.4f_%.4f", uidPrefix, round4(lat), round4(lon)), true
	}

	city := normalizeUIDCity(loc.City)
	state := normalizeState(loc.State)
	if city == "" || state == "" {
		return "", false
	}
	return uidPrefix + city + "_" + state, true
}

// ComputeKey returns the legacy "City,ST" key. ok is false when city or state
// is empty after normalization.
func ComputeKey(loc models.Location) (key string, ok bool) {
	city := collapseSpaces(loc.City)
	state := normalizeState(loc.State)
	if city == "" || state == "" {
		return "", false
	}
	return city + "," + state, true
}

// KeyFromQuery derives a legacy key from free text of the form "City, ST".
func KeyFromQuery(query string) (string, bool) {
	city, state, found := strings.Cut(query, ",")
	if !found {
		return "", false
	}
	return ComputeKey(models.Location{City: city, State: state})
}

// round4 rounds to four decimals and folds negative zero into zero so
// "-0.0000" never appears in a UID.
func round4(v float64) float64 {
	r := math.Round(v*1e4) / 1e4
	if r == 0 {
		return 0
	}
	return r
}

func normalizeUIDCity(city string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(city) {
		if isASCIIAlnum(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return collapseSpaces(b.String())
}

func normalizeState(state string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(state) {
		if isASCIIAlnum(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
