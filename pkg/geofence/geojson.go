package geofence

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// GeoJSON feature properties understood by ParseGeoJSON.
const (
	PropertyID     = "id"
	PropertyName   = "name"
	PropertyRadius = "radius"
)

// ParseGeoJSON reads a FeatureCollection of zones. Polygon features become
// polygon zones; Point features with a "radius" property (meters) become
// circles. Features without an id get a random one. Every zone is
// validated and any failure rejects the whole collection.
func ParseGeoJSON(data []byte) ([]Zone, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse zone collection: %w", err)
	}

	var (
		zones []Zone
		errs  []error
		seen  = make(map[string]int, len(fc.Features))
	)
	for i, f := range fc.Features {
		z, err := zoneFromFeature(f)
		if err != nil {
			errs = append(errs, fmt.Errorf("feature %d: %w", i, err))
			continue
		}
		if j, dup := seen[z.ID]; dup {
			errs = append(errs, fmt.Errorf("feature %d: id %q already used by feature %d", i, z.ID, j))
			continue
		}
		seen[z.ID] = i
		if err := z.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("feature %d: %w", i, err))
			continue
		}
		zones = append(zones, z)
	}
	if len(errs) > 0 {
		return nil, utilerrors.NewAggregate(errs)
	}
	return zones, nil
}

func zoneFromFeature(f *geojson.Feature) (Zone, error) {
	z := Zone{ID: featureID(f)}
	if z.ID == "" {
		z.ID = uuid.NewString()
	}
	if v, ok := f.Properties[PropertyName]; ok && v != nil {
		name, ok := v.(string)
		if !ok {
			return z, &ValidationError{ZoneID: z.ID, Reason: fmt.Sprintf("name must be a string, got %T", v)}
		}
		z.Name = name
	}

	switch g := f.Geometry.(type) {
	case orb.Point:
		radius, _ := f.Properties[PropertyRadius].(float64)
		z.Circle = &Circle{
			Center:       LatLon{Lat: g.Lat(), Lon: g.Lon()},
			RadiusMeters: radius,
		}
	case orb.Polygon:
		if len(g) == 0 {
			return z, &ValidationError{ZoneID: z.ID, Reason: "polygon has no rings"}
		}
		if len(g) > 1 {
			return z, &ValidationError{ZoneID: z.ID, Reason: "polygon holes are not supported"}
		}
		ring := g[0]
		if len(ring) > 1 && ring.Closed() {
			ring = ring[:len(ring)-1]
		}
		for _, p := range ring {
			z.Polygon = append(z.Polygon, LatLon{Lat: p.Lat(), Lon: p.Lon()})
		}
	case nil:
		return z, &ValidationError{ZoneID: z.ID, Reason: "feature has no geometry"}
	default:
		return z, &ValidationError{ZoneID: z.ID, Reason: fmt.Sprintf("unsupported geometry %s", g.GeoJSONType())}
	}
	return z, nil
}

func featureID(f *geojson.Feature) string {
	switch id := f.ID.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	id, _ := f.Properties[PropertyID].(string)
	return id
}

// MarshalGeoJSON writes zones as a FeatureCollection readable by
// ParseGeoJSON. Polygon rings are closed on output.
func MarshalGeoJSON(zones []Zone) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, z := range zones {
		var f *geojson.Feature
		if z.Circle != nil {
			f = geojson.NewFeature(orb.Point{z.Circle.Center.Lon, z.Circle.Center.Lat})
			f.Properties[PropertyRadius] = z.Circle.RadiusMeters
		} else {
			ring := make(orb.Ring, 0, len(z.Polygon)+1)
			for _, p := range z.Polygon {
				ring = append(ring, orb.Point{p.Lon, p.Lat})
			}
			if len(ring) > 0 && !ring.Closed() {
				ring = append(ring, ring[0])
			}
			f = geojson.NewFeature(orb.Polygon{ring})
		}
		f.ID = z.ID
		f.Properties[PropertyName] = z.Name
		fc.Append(f)
	}
	return fc.MarshalJSON()
}
