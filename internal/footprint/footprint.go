// Package footprint converts raw OSM documents into polygonal building
// footprints.
package footprint

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmgeojson"
)

// Footprint is one building outline. Ring 0 is the outer boundary; any
// further rings are carried through unchanged.
type Footprint struct {
	ID      string
	Polygon orb.Polygon
	Tags    map[string]string
}

// Collection holds the retained footprints together with a feature
// collection over the same polygons.
type Collection struct {
	Footprints []Footprint
	Features   *geojson.FeatureCollection
}

// Len returns the number of footprints.
func (c Collection) Len() int {
	return len(c.Footprints)
}

// Convert turns an OSM document into footprints. Only features whose geometry
// is a Polygon are kept.
func Convert(doc *osm.OSM) (Collection, error) {
	fc := geojson.NewFeatureCollection()
	if doc == nil {
		return Collection{Features: fc}, nil
	}

	raw, err := osmgeojson.Convert(doc)
	if err != nil {
		return Collection{}, fmt.Errorf("converting osm to geojson: %w", err)
	}

	var footprints []Footprint
	for _, f := range raw.Features {
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok || len(poly) == 0 {
			continue
		}

		footprints = append(footprints, Footprint{
			ID:      featureID(f),
			Polygon: poly,
			Tags:    tagsOf(f.Properties),
		})
		fc.Append(f)
	}

	return Collection{Footprints: footprints, Features: fc}, nil
}

func featureID(f *geojson.Feature) string {
	if f.ID == nil {
		return ""
	}
	return fmt.Sprint(f.ID)
}

// tagsOf extracts the OSM tags osmgeojson stores under the "tags" property.
func tagsOf(props geojson.Properties) map[string]string {
	tags := map[string]string{}
	switch t := props["tags"].(type) {
	case map[string]string:
		for k, v := range t {
			tags[k] = v
		}
	case map[string]interface{}:
		for k, v := range t {
			if s, ok := v.(string); ok {
				tags[k] = s
			}
		}
	}
	return tags
}
