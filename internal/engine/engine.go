// Package engine defines the geometry-engine collaborator the extrusion
// pipeline drives. Every call may block on the host and may fail.
package engine

import (
	"context"
	"fmt"
)

// HistoryID identifies a reversible batch of geometry in the engine.
type HistoryID int64

func (h HistoryID) String() string { return fmt.Sprintf("history:%d", int64(h)) }

// GroupID identifies a group instance within a history.
type GroupID int64

func (g GroupID) String() string { return fmt.Sprintf("group:%d", int64(g)) }

// ObjectID identifies a created object (polyline, extrusion).
type ObjectID int64

// Point3d is a point in engine length units.
type Point3d struct {
	X, Y, Z float64
}

// Engine is the host geometry engine.
type Engine interface {
	// EditingHistory returns the history currently open for editing.
	EditingHistory(ctx context.Context) (HistoryID, error)
	// CreateGroup creates an empty group inside history h.
	CreateGroup(ctx context.Context, h HistoryID) (GroupID, error)
	// GroupHistory returns the history owned by group g, created in h.
	GroupHistory(ctx context.Context, h HistoryID, g GroupID) (HistoryID, error)
	// CreatePoint builds a point from engine-unit coordinates.
	CreatePoint(ctx context.Context, x, y, z float64) (Point3d, error)
	// CreatePolyline connects pts in order, closing back to the first when closed is set.
	CreatePolyline(ctx context.Context, h HistoryID, pts []Point3d, closed bool) (ObjectID, error)
	// CreateExtrusion sweeps the closed boundary pts upward by height.
	CreateExtrusion(ctx context.Context, h HistoryID, pts []Point3d, height float64) (ObjectID, error)
	// DeleteHistory removes all geometry created under h.
	DeleteHistory(ctx context.Context, h HistoryID) error
	// DeleteGroup removes group g from h together with everything inside it.
	DeleteGroup(ctx context.Context, h HistoryID, g GroupID) error
}

// Locator is implemented by engines that know the site location of the
// current model.
type Locator interface {
	Location(ctx context.Context) (lat, lon float64, err error)
}
