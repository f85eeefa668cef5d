// Package memory is an in-process geometry engine. It keeps a tree of
// histories and the objects created in them, which is enough to run the
// pipeline headless and export the result.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/joeblew999/plat-massing/internal/engine"
)

var (
	ErrUnknownHistory = errors.New("unknown history")
	ErrUnknownGroup   = errors.New("unknown group")
	ErrNoLocation     = errors.New("site location not set")
)

type kind int

const (
	kindGroup kind = iota + 1
	kindPolyline
	kindExtrusion
)

type object struct {
	id      int64
	kind    kind
	history engine.HistoryID
	child   engine.HistoryID // groups only
	points  []engine.Point3d
	height  float64
	closed  bool
}

type history struct {
	id     engine.HistoryID
	parent engine.HistoryID
	owner  int64 // group object id, 0 for the root
}

// Solid is an extrusion as stored in the scene.
type Solid struct {
	ID      engine.ObjectID
	History engine.HistoryID
	Base    []engine.Point3d
	Height  float64
}

// Scene implements engine.Engine and engine.Locator. It is safe for
// concurrent use.
type Scene struct {
	mu        sync.Mutex
	nextID    int64
	root      engine.HistoryID
	histories map[engine.HistoryID]*history
	objects   map[int64]*object

	siteSet  bool
	lat, lon float64
}

var (
	_ engine.Engine  = (*Scene)(nil)
	_ engine.Locator = (*Scene)(nil)
)

// New creates an empty scene with a single root editing history.
func New() *Scene {
	s := &Scene{
		histories: make(map[engine.HistoryID]*history),
		objects:   make(map[int64]*object),
	}
	s.root = engine.HistoryID(s.id())
	s.histories[s.root] = &history{id: s.root}
	return s
}

// SetLocation sets the site location reported by Location.
func (s *Scene) SetLocation(lat, lon float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lat, s.lon, s.siteSet = lat, lon, true
}

func (s *Scene) id() int64 {
	s.nextID++
	return s.nextID
}

// EditingHistory returns the root history.
func (s *Scene) EditingHistory(ctx context.Context) (engine.HistoryID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.root, nil
}

// CreateGroup creates a group object in h and a child history owned by it.
func (s *Scene) CreateGroup(ctx context.Context, h engine.HistoryID) (engine.GroupID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.histories[h]; !ok {
		return 0, fmt.Errorf("create group in %s: %w", h, ErrUnknownHistory)
	}

	g := &object{id: s.id(), kind: kindGroup, history: h}
	child := engine.HistoryID(s.id())
	g.child = child
	s.objects[g.id] = g
	s.histories[child] = &history{id: child, parent: h, owner: g.id}
	return engine.GroupID(g.id), nil
}

// GroupHistory returns the history owned by group g in h.
func (s *Scene) GroupHistory(ctx context.Context, h engine.HistoryID, g engine.GroupID) (engine.HistoryID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[int64(g)]
	if !ok || o.kind != kindGroup || o.history != h {
		return 0, fmt.Errorf("%s in %s: %w", g, h, ErrUnknownGroup)
	}
	return o.child, nil
}

// CreatePoint returns the point; points are values, not scene objects.
func (s *Scene) CreatePoint(ctx context.Context, x, y, z float64) (engine.Point3d, error) {
	if err := ctx.Err(); err != nil {
		return engine.Point3d{}, err
	}
	return engine.Point3d{X: x, Y: y, Z: z}, nil
}

// CreatePolyline stores a polyline through pts in h.
func (s *Scene) CreatePolyline(ctx context.Context, h engine.HistoryID, pts []engine.Point3d, closed bool) (engine.ObjectID, error) {
	if len(pts) < 2 {
		return 0, fmt.Errorf("polyline needs at least 2 points, got %d", len(pts))
	}
	return s.add(ctx, h, &object{kind: kindPolyline, points: clonePoints(pts), closed: closed})
}

// CreateExtrusion stores a prism over the closed boundary pts in h.
func (s *Scene) CreateExtrusion(ctx context.Context, h engine.HistoryID, pts []engine.Point3d, height float64) (engine.ObjectID, error) {
	if len(pts) < 3 {
		return 0, fmt.Errorf("extrusion needs at least 3 points, got %d", len(pts))
	}
	if height <= 0 {
		return 0, fmt.Errorf("extrusion height must be positive, got %v", height)
	}
	return s.add(ctx, h, &object{kind: kindExtrusion, points: clonePoints(pts), height: height, closed: true})
}

func (s *Scene) add(ctx context.Context, h engine.HistoryID, o *object) (engine.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.histories[h]; !ok {
		return 0, fmt.Errorf("add object to %s: %w", h, ErrUnknownHistory)
	}
	o.id = s.id()
	o.history = h
	s.objects[o.id] = o
	return engine.ObjectID(o.id), nil
}

// DeleteHistory removes every object created under h and its nested
// histories, plus the group that owns h. The root history itself survives.
func (s *Scene) DeleteHistory(ctx context.Context, h engine.HistoryID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.histories[h]
	if !ok {
		return fmt.Errorf("delete %s: %w", h, ErrUnknownHistory)
	}

	doomed := s.descendants(h)
	for id, o := range s.objects {
		if doomed[o.history] {
			delete(s.objects, id)
		}
	}
	if target.owner != 0 {
		delete(s.objects, target.owner)
	}
	for id := range doomed {
		if id != s.root {
			delete(s.histories, id)
		}
	}
	return nil
}

// DeleteGroup removes group g from h, its history and everything nested
// under it.
func (s *Scene) DeleteGroup(ctx context.Context, h engine.HistoryID, g engine.GroupID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[int64(g)]
	if !ok || o.kind != kindGroup || o.history != h {
		return fmt.Errorf("delete %s in %s: %w", g, h, ErrUnknownGroup)
	}

	doomed := s.descendants(o.child)
	for id, obj := range s.objects {
		if doomed[obj.history] {
			delete(s.objects, id)
		}
	}
	for id := range doomed {
		delete(s.histories, id)
	}
	delete(s.objects, o.id)
	return nil
}

// descendants returns h and every history nested under it.
func (s *Scene) descendants(h engine.HistoryID) map[engine.HistoryID]bool {
	out := map[engine.HistoryID]bool{h: true}
	for grew := true; grew; {
		grew = false
		for id, hist := range s.histories {
			if !out[id] && out[hist.parent] && id != s.root {
				out[id] = true
				grew = true
			}
		}
	}
	return out
}

// Location returns the configured site location.
func (s *Scene) Location(ctx context.Context) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.siteSet {
		return 0, 0, ErrNoLocation
	}
	return s.lat, s.lon, nil
}

// Count returns the number of live objects (groups, polylines, extrusions).
func (s *Scene) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Extrusions returns all solids ordered by creation.
func (s *Scene) Extrusions() []Solid {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Solid
	for _, o := range s.objects {
		if o.kind != kindExtrusion {
			continue
		}
		out = append(out, Solid{
			ID:      engine.ObjectID(o.id),
			History: o.history,
			Base:    clonePoints(o.points),
			Height:  o.height,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clonePoints(pts []engine.Point3d) []engine.Point3d {
	out := make([]engine.Point3d, len(pts))
	copy(out, pts)
	return out
}
