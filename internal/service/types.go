// Package service contains the massing pipeline: it turns a point and radius
// into extruded buildings in the geometry engine.
package service

import "github.com/joeblew999/plat-massing/internal/geo"

// CreateRequest is the user input for one creation run.
type CreateRequest struct {
	Latitude  float64 `json:"latitude" doc:"Latitude of the site in degrees" example:"51.50111"`
	Longitude float64 `json:"longitude" doc:"Longitude of the site in degrees" example:"-0.12531"`
	Radius    float64 `json:"radius" doc:"Search radius in metres" example:"250"`
}

// RunFailure describes one failed engine call.
type RunFailure struct {
	Footprint int    `json:"footprint" doc:"Footprint index, -1 for run-level failures"`
	FeatureID string `json:"featureId,omitempty" doc:"OSM feature id" example:"way/123"`
	Ring      int    `json:"ring" doc:"Ring index within the footprint, -1 if not ring-specific"`
	Op        string `json:"op" doc:"Engine operation that failed" example:"create-extrusion"`
	Error     string `json:"error" doc:"Error message"`
}

// RunReport summarises a creation run.
type RunReport struct {
	History    int64           `json:"history" doc:"Engine history id recorded for undo"`
	Center     geo.Point       `json:"center" doc:"Reference center of the local frame"`
	BBox       geo.BoundingBox `json:"bbox" doc:"Bounding box queried"`
	Footprints int             `json:"footprints" doc:"Polygon footprints retrieved"`
	Rings      int             `json:"rings" doc:"Rings processed"`
	Extrusions int             `json:"extrusions" doc:"Extrusions created"`
	Skipped    int             `json:"skipped" doc:"Degenerate rings skipped"`
	Failures   []RunFailure    `json:"failures,omitempty" doc:"Per-footprint engine failures"`
}

// UndoReport is the result of an undo.
type UndoReport struct {
	Undone    bool  `json:"undone" doc:"Whether a history entry was removed"`
	History   int64 `json:"history,omitempty" doc:"History id removed"`
	Remaining int   `json:"remaining" doc:"Entries left on the history stack"`
}

// Location is the site location reported by the geometry engine.
type Location struct {
	Latitude  float64 `json:"latitude" doc:"Latitude in degrees"`
	Longitude float64 `json:"longitude" doc:"Longitude in degrees"`
}
