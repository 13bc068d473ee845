package rover

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature kinds in the exported collection
const (
	FeatureArena    = "arena"
	FeatureObstacle = "obstacle"
	FeatureVehicle  = "vehicle"
)

// SnapshotToGeoJSON exports a snapshot in grid units: cell (x, y) is the
// unit square with lower-left corner (x, y). The arena is one polygon,
// obstacles and the vehicle footprint are polygons, and the vehicle heading
// is a point feature on the leading edge.
func SnapshotToGeoJSON(snap Snapshot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	arena := geojson.NewFeature(RectFromRanges(0, GridSize-1, 0, GridSize-1).Bound().ToPolygon())
	arena.Properties["kind"] = FeatureArena
	arena.Properties["size"] = GridSize
	fc.Append(arena)

	for _, o := range snap.Obstacles {
		f := geojson.NewFeature(RectFromRanges(o.X, o.X, o.Y, o.Y).Bound().ToPolygon())
		f.ID = o.ID
		f.Properties["kind"] = FeatureObstacle
		f.Properties["id"] = o.ID
		f.Properties["x"] = o.X
		f.Properties["y"] = o.Y
		f.Properties["direction"] = o.Direction.String()
		if o.HasTarget {
			f.Properties["targetId"] = o.TargetID
		}
		fc.Append(f)
	}

	if snap.Vehicle != nil {
		v := *snap.Vehicle
		b := v.Footprint().Bound()

		f := geojson.NewFeature(b.ToPolygon())
		f.Properties["kind"] = FeatureVehicle
		f.Properties["x"] = v.X
		f.Properties["y"] = v.Y
		f.Properties["heading"] = v.Heading.String()
		fc.Append(f)

		nose := geojson.NewFeature(leadingPoint(b, v.Heading))
		nose.Properties["kind"] = FeatureVehicle
		nose.Properties["heading"] = v.Heading.String()
		fc.Append(nose)
	}
	return fc
}

// leadingPoint returns the midpoint of the bound's edge facing d
func leadingPoint(b orb.Bound, d Direction) orb.Point {
	c := b.Center()
	switch d {
	case North:
		return orb.Point{c[0], b.Max[1]}
	case South:
		return orb.Point{c[0], b.Min[1]}
	case East:
		return orb.Point{b.Max[0], c[1]}
	default:
		return orb.Point{b.Min[0], c[1]}
	}
}
