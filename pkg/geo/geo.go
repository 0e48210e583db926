// Package geo provides geospatial and time primitives for the detection pipeline
package geo

import (
	"errors"
	"math"
	"time"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances
const EarthRadiusKm = 6371.0088

var (
	// ErrInvalidCoordinate indicates a latitude/longitude outside the valid range
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrNonPositiveInterval indicates a zero or negative elapsed time between fixes,
	// which also signals out-of-order delivery
	ErrNonPositiveInterval = errors.New("non-positive time interval")
)

// Fix is a timestamped position
type Fix struct {
	Lat  float64
	Lon  float64
	Time time.Time
}

// ValidCoordinate reports whether lat/lon are finite and within ±90/±180 degrees
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// DistanceKm computes the haversine great-circle distance between two points in kilometers
func DistanceKm(lat1, lon1, lat2, lon2 float64) (float64, error) {
	if !ValidCoordinate(lat1, lon1) || !ValidCoordinate(lat2, lon2) {
		return 0, ErrInvalidCoordinate
	}

	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(dLambda/2)*math.Sin(dLambda/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c, nil
}

// ImpliedSpeedKmh computes the travel speed implied by two consecutive fixes.
// The second fix must be strictly later than the first.
func ImpliedSpeedKmh(a, b Fix) (float64, error) {
	if !b.Time.After(a.Time) {
		return 0, ErrNonPositiveInterval
	}

	dist, err := DistanceKm(a.Lat, a.Lon, b.Lat, b.Lon)
	if err != nil {
		return 0, err
	}

	elapsedHours := b.Time.Sub(a.Time).Hours()
	return dist / elapsedHours, nil
}
