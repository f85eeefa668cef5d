// Package extrude drives the geometry engine to build one extruded solid per
// footprint ring and keeps the stack of run histories used for undo.
package extrude

import (
	"context"
	"errors"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/sourcegraph/conc/pool"

	"github.com/joeblew999/plat-massing/internal/engine"
	"github.com/joeblew999/plat-massing/internal/metrics"
	"github.com/joeblew999/plat-massing/internal/projection"
)

// DefaultMaxConcurrency bounds how many footprints are in flight at once.
const DefaultMaxConcurrency = 8

// Report summarises one Create call.
type Report struct {
	History    engine.HistoryID
	Footprints int
	Rings      int
	Extrusions int
	Skipped    int
	Failures   []*GeometryError
}

// Failed reports whether any engine call failed during the run.
func (r Report) Failed() bool {
	return len(r.Failures) > 0
}

// Manager creates extrusions and undoes them run by run. Create and Undo must
// not be called concurrently with each other; the caller serializes them.
type Manager struct {
	eng            engine.Engine
	stack          *HistoryStack
	maxConcurrency int
	logger         *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxConcurrency bounds the per-footprint fan-out.
func WithMaxConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxConcurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Manager with an empty history stack.
func New(eng engine.Engine, opts ...Option) *Manager {
	m := &Manager{
		eng:            eng,
		stack:          &HistoryStack{},
		maxConcurrency: DefaultMaxConcurrency,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// History returns the recorded run histories, oldest first.
func (m *Manager) History() []engine.HistoryID {
	return m.stack.Entries()
}

type footprintResult struct {
	rings      int
	extrusions int
	skipped    int
	errs       []*GeometryError
}

// Create builds every footprint under a fresh run group. Footprints run
// concurrently; a failure in one does not stop the others. The run history is
// pushed once every footprint has settled, even when some failed, so Undo
// removes whatever was created. The returned error joins every failure.
func (m *Manager) Create(ctx context.Context, fps []projection.ProjectedFootprint) (Report, error) {
	rep := Report{Footprints: len(fps)}

	run, err := m.openRun(ctx)
	if err != nil {
		metrics.GeometryErrors.Inc()
		rep.Failures = []*GeometryError{err}
		return rep, err
	}
	rep.History = run

	results := make([]footprintResult, len(fps))
	p := pool.New().WithMaxGoroutines(m.maxConcurrency)
	for i := range fps {
		p.Go(func() {
			results[i] = m.extrudeFootprint(ctx, run, i, fps[i])
		})
	}
	p.Wait()

	m.stack.Push(run)

	var errs []error
	for _, r := range results {
		rep.Rings += r.rings
		rep.Extrusions += r.extrusions
		rep.Skipped += r.skipped
		for _, e := range r.errs {
			rep.Failures = append(rep.Failures, e)
			errs = append(errs, e)
		}
	}

	metrics.ExtrusionsCreated.Add(float64(rep.Extrusions))
	metrics.GeometryErrors.Add(float64(len(rep.Failures)))

	m.logger.Debug("extrusion run settled",
		"history", run.String(),
		"footprints", rep.Footprints,
		"extrusions", rep.Extrusions,
		"failures", len(rep.Failures),
	)

	return rep, errors.Join(errs...)
}

// openRun creates the run group under the editing history and returns the
// group's own history.
func (m *Manager) openRun(ctx context.Context) (engine.HistoryID, *GeometryError) {
	fail := func(op Op, err error) *GeometryError {
		return &GeometryError{Footprint: -1, Ring: -1, Op: op, Err: err}
	}

	editing, err := m.eng.EditingHistory(ctx)
	if err != nil {
		return 0, fail(OpEditingHistory, err)
	}
	group, err := m.eng.CreateGroup(ctx, editing)
	if err != nil {
		return 0, fail(OpCreateGroup, err)
	}
	run, err := m.eng.GroupHistory(ctx, editing, group)
	if err != nil {
		// Nothing is pushed for this run, so the group must not outlive it.
		if derr := m.eng.DeleteGroup(ctx, editing, group); derr != nil {
			m.logger.Warn("run group left in editing history", "group", group.String(), "error", derr)
		}
		return 0, fail(OpGroupHistory, err)
	}
	return run, nil
}

// extrudeFootprint handles the rings of one footprint in order. A failing
// ring is recorded and the next ring is still attempted.
func (m *Manager) extrudeFootprint(ctx context.Context, run engine.HistoryID, idx int, pf projection.ProjectedFootprint) footprintResult {
	var res footprintResult
	for r, ring := range pf.Rings {
		res.rings++

		verts := boundary(ring)
		if len(verts) < 3 {
			res.skipped++
			continue
		}

		if op, err := m.extrudeRing(ctx, run, verts, pf.Height); err != nil {
			res.errs = append(res.errs, &GeometryError{
				Footprint: idx,
				FeatureID: pf.ID,
				Ring:      r,
				Op:        op,
				Err:       err,
			})
			continue
		}
		res.extrusions++
	}
	return res
}

func (m *Manager) extrudeRing(ctx context.Context, run engine.HistoryID, verts []orb.Point, height float64) (Op, error) {
	group, err := m.eng.CreateGroup(ctx, run)
	if err != nil {
		return OpCreateGroup, err
	}
	hist, err := m.eng.GroupHistory(ctx, run, group)
	if err != nil {
		return OpGroupHistory, err
	}

	pts := make([]engine.Point3d, 0, len(verts))
	for _, v := range verts {
		p, err := m.eng.CreatePoint(ctx, v[0], v[1], 0)
		if err != nil {
			return OpCreatePoint, err
		}
		pts = append(pts, p)
	}

	if _, err := m.eng.CreatePolyline(ctx, hist, pts, true); err != nil {
		return OpCreatePolyline, err
	}
	if _, err := m.eng.CreateExtrusion(ctx, hist, pts, height); err != nil {
		return OpCreateExtrude, err
	}
	return "", nil
}

// Undo deletes the geometry of the most recent run. It is a no-op on an
// empty stack. The entry is popped even if the engine fails to delete it.
func (m *Manager) Undo(ctx context.Context) (engine.HistoryID, bool, error) {
	h, ok := m.stack.Pop()
	if !ok {
		return 0, false, nil
	}
	if err := m.eng.DeleteHistory(ctx, h); err != nil {
		metrics.GeometryErrors.Inc()
		return h, true, &GeometryError{Footprint: -1, Ring: -1, Op: OpDelete, Err: err}
	}
	return h, true, nil
}

// boundary returns the ring's vertices without the repeated closing vertex
// and without consecutive duplicates.
func boundary(ring orb.Ring) []orb.Point {
	out := make([]orb.Point, 0, len(ring))
	for _, p := range ring {
		if len(out) > 0 && out[len(out)-1].Equal(p) {
			continue
		}
		out = append(out, p)
	}
	if len(out) > 1 && out[0].Equal(out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	return out
}
