// Package geo holds the geographic input types: points, bounding boxes and
// the radius-to-bbox approximation used to scope a map query.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// boundarySamples is the number of points used to approximate the search
// circle. Four samples over-cover a true circle; callers rely on that.
const boundarySamples = 4

// bufferScale converts a radius in metres to kilometres, the unit the
// circle buffer is expressed in.
const bufferScale = 1e-3

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"latitude" doc:"Latitude in degrees" example:"51.50111"`
	Lon float64 `json:"longitude" doc:"Longitude in degrees" example:"-0.12531"`
}

// NewPoint validates and returns a Point.
func NewPoint(lat, lon float64) (Point, error) {
	if !finite(lat) || lat < -90 || lat > 90 {
		return Point{}, &InvalidInputError{Field: "latitude", Value: lat, Reason: "must be a finite number in [-90, 90]"}
	}
	if !finite(lon) || lon < -180 || lon > 180 {
		return Point{}, &InvalidInputError{Field: "longitude", Value: lon, Reason: "must be a finite number in [-180, 180]"}
	}
	return Point{Lat: lat, Lon: lon}, nil
}

// Orb returns the point as an orb.Point (lon, lat).
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// BoundingBox is an axis-aligned geographic box in degrees.
type BoundingBox struct {
	MinLon float64 `json:"minLon"`
	MinLat float64 `json:"minLat"`
	MaxLon float64 `json:"maxLon"`
	MaxLat float64 `json:"maxLat"`
}

// FromBound converts an orb.Bound.
func FromBound(b orb.Bound) BoundingBox {
	return BoundingBox{
		MinLon: b.Min.Lon(),
		MinLat: b.Min.Lat(),
		MaxLon: b.Max.Lon(),
		MaxLat: b.Max.Lat(),
	}
}

// Bound returns the box as an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// IsValid reports whether min <= max on both axes and the box lies on the globe.
func (b BoundingBox) IsValid() bool {
	return b.MinLat <= b.MaxLat &&
		b.MinLon <= b.MaxLon &&
		b.MinLat >= -90 && b.MaxLat <= 90 &&
		b.MinLon >= -180 && b.MaxLon <= 180
}

// Contains reports whether p lies inside the box, edges included.
func (b BoundingBox) Contains(p Point) bool {
	return b.Bound().Contains(p.Orb())
}

// BoundingBoxAround returns the bounding box of a four-sample circle of the
// given radius (metres) around center.
func BoundingBoxAround(center Point, radius float64) (BoundingBox, error) {
	if _, err := NewPoint(center.Lat, center.Lon); err != nil {
		return BoundingBox{}, err
	}
	if !finite(radius) || radius <= 0 {
		return BoundingBox{}, &InvalidInputError{Field: "radius", Value: radius, Reason: "must be a positive finite number"}
	}

	ring := circle(center.Orb(), radius*bufferScale, boundarySamples)
	return clamp(FromBound(ring.Bound())), nil
}

// circle samples steps points around c at radiusKM, walking counter-clockwise
// from north, and closes the ring.
func circle(c orb.Point, radiusKM float64, steps int) orb.Ring {
	ring := make(orb.Ring, 0, steps+1)
	for i := 0; i < steps; i++ {
		bearing := float64(i) * -360 / float64(steps)
		ring = append(ring, orbgeo.PointAtBearingAndDistance(c, bearing, radiusKM*1000))
	}
	return append(ring, ring[0])
}

func clamp(b BoundingBox) BoundingBox {
	b.MinLat = math.Max(b.MinLat, -90)
	b.MaxLat = math.Min(b.MaxLat, 90)
	b.MinLon = math.Max(b.MinLon, -180)
	b.MaxLon = math.Min(b.MaxLon, 180)
	return b
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
