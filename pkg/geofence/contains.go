package geofence

import "math"

// EarthRadiusMeters is the spherical Earth radius used by Haversine.
const EarthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance in meters between two points
// given in decimal degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	dφ := (lat2 - lat1) * math.Pi / 180
	dλ := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dφ/2)*math.Sin(dφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(dλ/2)*math.Sin(dλ/2)
	// Rounding can push a past 1 for near-antipodal points.
	a = math.Min(1, a)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// InCircle reports whether the point is within c.RadiusMeters of the center.
// The boundary counts as inside.
func InCircle(lat, lon float64, c Circle) bool {
	return Haversine(lat, lon, c.Center.Lat, c.Center.Lon) <= c.RadiusMeters
}

// InPolygon is an even-odd ray casting test that treats latitude as x and
// longitude as y. Fewer than three vertices is always outside.
func InPolygon(lat, lon float64, polygon []LatLon) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}

	x, y := lat, lon
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := polygon[i].Lat, polygon[i].Lon
		xj, yj := polygon[j].Lat, polygon[j].Lon
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
