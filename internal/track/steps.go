package track

import "github.com/golang/geo/s2"

// EarthRadiusMeters is the mean Earth radius used for distances.
const EarthRadiusMeters = 6371008.8

// DefaultStepLength is the assumed stride in meters.
const DefaultStepLength = 0.75

// Distance returns the great-circle distance in meters between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// StepCounts returns, for every point, the synthetic step count walked since
// the previous point (distance / stepLength). The first value is always 0.
func StepCounts(points []Point, stepLength float64) []float64 {
	if stepLength <= 0 {
		stepLength = DefaultStepLength
	}
	steps := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		steps[i] = Distance(a.Lat, a.Lon, b.Lat, b.Lon) / stepLength
	}
	return steps
}
