// Package overpass builds Overpass QL queries for a bounding box and fetches
// the matching OSM elements.
package overpass

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeblew999/plat-massing/internal/geo"
)

// BuildQuery returns the Overpass QL selecting every way and relation that
// carries one of the filter tags inside bbox, plus their child elements.
func BuildQuery(bbox geo.BoundingBox, filters []string, timeout time.Duration) string {
	var q strings.Builder

	fmt.Fprintf(&q, "[out:json][timeout:%d][bbox:%s,%s,%s,%s];",
		int(timeout.Seconds()),
		coord(bbox.MinLat), coord(bbox.MinLon), coord(bbox.MaxLat), coord(bbox.MaxLon),
	)

	if len(filters) > 0 {
		q.WriteString("(")
		for _, f := range filters {
			fmt.Fprintf(&q, "way[%s];", f)
			fmt.Fprintf(&q, "relation[%s];", f)
		}
		q.WriteString(");")
	}

	q.WriteString("(._;>;);")
	q.WriteString("out;")
	return q.String()
}

func coord(f float64) string {
	return fmt.Sprintf("%.7f", f)
}
