// Package projection re-projects geographic footprints into a local planar
// frame centered on the area of interest.
package projection

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"

	"github.com/joeblew999/plat-massing/internal/footprint"
)

// DefaultScale converts Web-Mercator metres into engine length units. The
// value was fitted against the host map rather than derived from feet.
const DefaultScale = 2.407454667562122

// CenterMode selects how the reference center is derived.
type CenterMode string

const (
	// CenterBound uses the center of the collection's bounding box.
	CenterBound CenterMode = "bbox"
	// CenterCentroid uses the area-weighted centroid of all polygons.
	CenterCentroid CenterMode = "centroid"
)

// ErrEmpty is returned when there is nothing to center on.
var ErrEmpty = errors.New("no footprints to project")

// ReferenceCenter is the shared origin of the local frame.
type ReferenceCenter struct {
	Geographic orb.Point
	Projected  orb.Point
}

// ProjectedFootprint is a footprint in local engine units. Height is filled
// in later by the caller.
type ProjectedFootprint struct {
	ID     string
	Rings  orb.Polygon
	Tags   map[string]string
	Height float64
}

// Projector maps WGS84 coordinates into the local frame.
type Projector struct {
	scale float64
	mode  CenterMode
}

// New creates a Projector. A non-positive scale falls back to DefaultScale.
func New(scale float64, mode CenterMode) *Projector {
	if scale <= 0 {
		scale = DefaultScale
	}
	if mode == "" {
		mode = CenterBound
	}
	return &Projector{scale: scale, mode: mode}
}

// Scale returns the metres-to-engine-units factor.
func (p *Projector) Scale() float64 {
	return p.scale
}

// Length converts a length in metres into engine units.
func (p *Projector) Length(meters float64) float64 {
	return meters * p.scale
}

// Center computes the reference center of a feature collection.
func (p *Projector) Center(fc *geojson.FeatureCollection) (ReferenceCenter, error) {
	if fc == nil || len(fc.Features) == 0 {
		return ReferenceCenter{}, ErrEmpty
	}

	var c orb.Point
	switch p.mode {
	case CenterBound:
		c = collectionBound(fc).Center()
	case CenterCentroid:
		c = centroid(fc)
	default:
		return ReferenceCenter{}, fmt.Errorf("unknown center mode %q", p.mode)
	}

	return ReferenceCenter{
		Geographic: c,
		Projected:  project.WGS84.ToMercator(c),
	}, nil
}

// Project converts every vertex of every footprint into the local frame.
func (p *Projector) Project(fps []footprint.Footprint, rc ReferenceCenter) []ProjectedFootprint {
	out := make([]ProjectedFootprint, 0, len(fps))
	for _, fp := range fps {
		rings := make(orb.Polygon, 0, len(fp.Polygon))
		for _, ring := range fp.Polygon {
			local := make(orb.Ring, len(ring))
			for i, v := range ring {
				local[i] = p.toLocal(v, rc)
			}
			rings = append(rings, local)
		}
		out = append(out, ProjectedFootprint{
			ID:    fp.ID,
			Rings: rings,
			Tags:  fp.Tags,
		})
	}
	return out
}

// Unproject maps a local point back to WGS84.
func (p *Projector) Unproject(pt orb.Point, rc ReferenceCenter) orb.Point {
	m := orb.Point{
		pt[0]/p.scale + rc.Projected[0],
		pt[1]/p.scale + rc.Projected[1],
	}
	return project.Mercator.ToWGS84(m)
}

func (p *Projector) toLocal(v orb.Point, rc ReferenceCenter) orb.Point {
	m := project.WGS84.ToMercator(v)
	return orb.Point{
		(m[0] - rc.Projected[0]) * p.scale,
		(m[1] - rc.Projected[1]) * p.scale,
	}
}

func collectionBound(fc *geojson.FeatureCollection) orb.Bound {
	b := fc.Features[0].Geometry.Bound()
	for _, f := range fc.Features[1:] {
		b = b.Union(f.Geometry.Bound())
	}
	return b
}

// centroid weights each polygon's centroid by its area, falling back to the
// bound center when every polygon is degenerate.
func centroid(fc *geojson.FeatureCollection) orb.Point {
	var sx, sy, total float64
	for _, f := range fc.Features {
		c, area := planar.CentroidArea(f.Geometry)
		if area == 0 {
			continue
		}
		sx += c[0] * area
		sy += c[1] * area
		total += area
	}
	if total == 0 {
		return collectionBound(fc).Center()
	}
	return orb.Point{sx / total, sy / total}
}
