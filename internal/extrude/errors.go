package extrude

import "fmt"

// Op names the engine call that failed.
type Op string

const (
	OpEditingHistory Op = "editing-history"
	OpCreateGroup    Op = "create-group"
	OpGroupHistory   Op = "group-history"
	OpCreatePoint    Op = "create-point"
	OpCreatePolyline Op = "create-polyline"
	OpCreateExtrude  Op = "create-extrusion"
	OpDelete         Op = "delete-history"
)

// GeometryError reports a failed engine call. Footprint and Ring are -1 when
// the failure is not tied to one footprint or ring.
type GeometryError struct {
	Footprint int
	FeatureID string
	Ring      int
	Op        Op
	Err       error
}

func (e *GeometryError) Error() string {
	switch {
	case e.Footprint < 0:
		return fmt.Sprintf("geometry %s: %v", e.Op, e.Err)
	case e.Ring < 0:
		return fmt.Sprintf("geometry %s: footprint %d (%s): %v", e.Op, e.Footprint, e.FeatureID, e.Err)
	default:
		return fmt.Sprintf("geometry %s: footprint %d (%s) ring %d: %v", e.Op, e.Footprint, e.FeatureID, e.Ring, e.Err)
	}
}

func (e *GeometryError) Unwrap() error {
	return e.Err
}
