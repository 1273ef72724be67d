// Package geo projects GeoJSON geometries into canvas pixel space.
package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/drawalign/drawalign/internal/calib"
)

// ProjectCollection applies the reference transform to every Polygon and
// MultiPolygon feature in fc, producing a new collection in canvas pixel
// coordinates. Ring order, ring nesting and point counts are preserved
// exactly; feature properties pass through unmodified.
//
// Features of any other geometry kind are skipped, not treated as errors.
// The returned count reports how many were omitted so callers can detect
// the reduced output instead of inferring it from a shorter list.
func ProjectCollection(fc *geojson.FeatureCollection, t *calib.ReferenceTransform) (*geojson.FeatureCollection, int) {
	out := geojson.NewFeatureCollection()
	skipped := 0

	for _, f := range fc.Features {
		var projected orb.Geometry

		switch g := f.Geometry.(type) {
		case orb.Polygon:
			projected = projectPolygon(g, t)
		case orb.MultiPolygon:
			mp := make(orb.MultiPolygon, len(g))
			for i, p := range g {
				mp[i] = projectPolygon(p, t)
			}
			projected = mp
		default:
			skipped++
			continue
		}

		nf := geojson.NewFeature(projected)
		nf.ID = f.ID
		nf.Properties = f.Properties
		out.Append(nf)
	}

	return out, skipped
}

func projectPolygon(p orb.Polygon, t *calib.ReferenceTransform) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		out[i] = projectRing(ring, t)
	}
	return out
}

func projectRing(r orb.Ring, t *calib.ReferenceTransform) orb.Ring {
	out := make(orb.Ring, len(r))
	for i, pt := range r {
		x, y := t.ToPixel(pt[0], pt[1])
		out[i] = orb.Point{x, y}
	}
	return out
}
