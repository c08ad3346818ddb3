package zones

import "github.com/golang/geo/s2"

// EarthRadiusMiles is the mean radius of the Earth.
const EarthRadiusMiles = 3958.8

// DistanceMiles returns the great-circle distance between two points.
func DistanceMiles(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMiles
}

// milesToDegrees is the latitude span of the given distance, used to build
// bounding-box prefilters.
func milesToDegrees(miles float64) float64 {
	return miles / 69.0
}
