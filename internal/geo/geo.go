package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// DefaultCellPrecision is the geohash length used to tag ride origins (~1.2km cells).
const DefaultCellPrecision = 6

// DistanceKm returns the great-circle distance between two coordinates in kilometers.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda

	// Rounding can push a slightly outside [0, 1] near antipodal points.
	a = math.Max(0, math.Min(1, a))

	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// MaxIndexLatitude is the highest absolute latitude a Web Mercator based
// index such as Redis GEO can store.
const MaxIndexLatitude = 85.05112878

// Indexable reports whether the coordinate can be stored in a GEO index.
func Indexable(lat, lng float64) bool {
	return ValidCoordinate(lat, lng) && math.Abs(lat) <= MaxIndexLatitude
}

// ValidCoordinate reports whether lat/lng are within WGS84 bounds.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Cell returns the geohash cell containing the coordinate.
func Cell(lat, lng float64, precision uint) string {
	if precision == 0 {
		precision = DefaultCellPrecision
	}
	return geohash.EncodeWithPrecision(lat, lng, precision)
}
