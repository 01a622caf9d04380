// Package geofence holds the user-defined zones a vehicle is watched against
// and the pure containment tests used to detect exits.
package geofence

import (
	"fmt"
	"math"
)

// LatLon is a position in decimal degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Circle is a zone shape given by a center and a radius in meters.
type Circle struct {
	Center       LatLon  `json:"center"`
	RadiusMeters float64 `json:"radiusMeters"`
}

// Zone is a named geofence. Exactly one of Circle and Polygon is set.
type Zone struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Circle  *Circle  `json:"circle,omitempty"`
	Polygon []LatLon `json:"polygon,omitempty"`
}

// Contains reports whether (lat, lon) lies inside the zone.
func (z Zone) Contains(lat, lon float64) bool {
	if z.Circle != nil {
		return InCircle(lat, lon, *z.Circle)
	}
	return InPolygon(lat, lon, z.Polygon)
}

// Equal reports whether two zones describe the same id, name and shape.
func (z Zone) Equal(o Zone) bool {
	if z.ID != o.ID || z.Name != o.Name {
		return false
	}
	if (z.Circle == nil) != (o.Circle == nil) {
		return false
	}
	if z.Circle != nil && *z.Circle != *o.Circle {
		return false
	}
	if len(z.Polygon) != len(o.Polygon) {
		return false
	}
	for i := range z.Polygon {
		if z.Polygon[i] != o.Polygon[i] {
			return false
		}
	}
	return true
}

// ValidationError explains why a zone was refused.
type ValidationError struct {
	ZoneID string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ZoneID == "" {
		return "invalid zone: " + e.Reason
	}
	return fmt.Sprintf("invalid zone %q: %s", e.ZoneID, e.Reason)
}

// Validate returns a *ValidationError if the zone cannot be stored.
func (z Zone) Validate() error {
	invalid := func(format string, args ...any) error {
		return &ValidationError{ZoneID: z.ID, Reason: fmt.Sprintf(format, args...)}
	}

	if z.ID == "" {
		return invalid("id is empty")
	}
	switch {
	case z.Circle == nil && len(z.Polygon) == 0:
		return invalid("zone has no shape")
	case z.Circle != nil && len(z.Polygon) > 0:
		return invalid("zone has both a circle and a polygon")
	}

	if c := z.Circle; c != nil {
		if math.IsNaN(c.RadiusMeters) || math.IsInf(c.RadiusMeters, 0) || c.RadiusMeters <= 0 {
			return invalid("radius must be a positive number of meters, got %v", c.RadiusMeters)
		}
		if err := checkPosition(c.Center); err != nil {
			return invalid("center %s", err)
		}
		return nil
	}

	if len(z.Polygon) < 3 {
		return invalid("polygon needs at least 3 vertices, got %d", len(z.Polygon))
	}
	for i, p := range z.Polygon {
		if err := checkPosition(p); err != nil {
			return invalid("vertex %d %s", i, err)
		}
	}
	return nil
}

func checkPosition(p LatLon) error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", p.Lat)
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %v out of range", p.Lon)
	}
	return nil
}
