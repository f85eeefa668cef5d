package extrude

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-massing/internal/engine"
	"github.com/joeblew999/plat-massing/internal/engine/memory"
	"github.com/joeblew999/plat-massing/internal/projection"
)

// faultyEngine wraps a memory scene and fails extrusions whose height matches
// failHeight.
type faultyEngine struct {
	*memory.Scene
	failHeight float64

	mu       sync.Mutex
	requests []extrusionRequest
}

type extrusionRequest struct {
	pts    []engine.Point3d
	height float64
}

func (f *faultyEngine) CreateExtrusion(ctx context.Context, h engine.HistoryID, pts []engine.Point3d, height float64) (engine.ObjectID, error) {
	f.mu.Lock()
	f.requests = append(f.requests, extrusionRequest{pts: pts, height: height})
	f.mu.Unlock()
	if height == f.failHeight {
		return 0, errors.New("kernel refused")
	}
	return f.Scene.CreateExtrusion(ctx, h, pts, height)
}

func square(id string, cx, cy, d, height float64) projection.ProjectedFootprint {
	return projection.ProjectedFootprint{
		ID: id,
		Rings: orb.Polygon{{
			{cx - d, cy - d}, {cx + d, cy - d}, {cx + d, cy + d}, {cx - d, cy + d}, {cx - d, cy - d},
		}},
		Height: height,
	}
}

func TestCreateThenUndoRestoresCount(t *testing.T) {
	ctx := context.Background()
	scene := memory.New()
	m := New(scene)

	before := scene.Count()
	rep, err := m.Create(ctx, []projection.ProjectedFootprint{
		square("way/1", 0, 0, 5, 8),
		square("way/2", 20, 0, 5, 12),
		square("way/3", 0, 20, 5, 4),
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Extrusions != 3 {
		t.Fatalf("extrusions=%d, want 3", rep.Extrusions)
	}
	if scene.Count() == before {
		t.Fatal("create did not add objects")
	}
	if got := m.History(); len(got) != 1 || got[0] != rep.History {
		t.Fatalf("history=%v, want [%v]", got, rep.History)
	}

	h, ok, err := m.Undo(ctx)
	if err != nil || !ok || h != rep.History {
		t.Fatalf("Undo()=%v,%v,%v", h, ok, err)
	}
	if got := scene.Count(); got != before {
		t.Fatalf("count=%d after undo, want %d", got, before)
	}
	if len(m.History()) != 0 {
		t.Fatalf("history=%v, want empty", m.History())
	}
}

func TestUndoEmptyIsNoop(t *testing.T) {
	m := New(memory.New())
	for i := 0; i < 3; i++ {
		h, ok, err := m.Undo(context.Background())
		if err != nil || ok || h != 0 {
			t.Fatalf("Undo()=%v,%v,%v, want no-op", h, ok, err)
		}
	}
}

func TestUndoIsLIFO(t *testing.T) {
	ctx := context.Background()
	scene := memory.New()
	m := New(scene)

	first, _ := m.Create(ctx, []projection.ProjectedFootprint{square("a", 0, 0, 1, 4)})
	second, _ := m.Create(ctx, []projection.ProjectedFootprint{square("b", 5, 5, 1, 4)})

	h, _, _ := m.Undo(ctx)
	if h != second.History {
		t.Fatalf("undo removed %v, want %v", h, second.History)
	}
	if n := len(scene.Extrusions()); n != 1 {
		t.Fatalf("extrusions=%d after first undo, want 1", n)
	}
	h, _, _ = m.Undo(ctx)
	if h != first.History {
		t.Fatalf("undo removed %v, want %v", h, first.History)
	}
	if len(scene.Extrusions()) != 0 {
		t.Fatalf("extrusions=%d, want 0", len(scene.Extrusions()))
	}
}

func TestCreatePartialFailure(t *testing.T) {
	ctx := context.Background()
	eng := &faultyEngine{Scene: memory.New(), failHeight: 13}
	m := New(eng)

	rep, err := m.Create(ctx, []projection.ProjectedFootprint{
		square("way/1", 0, 0, 5, 8),
		square("way/2", 20, 0, 5, 13),
		square("way/3", 0, 20, 5, 4),
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var ge *GeometryError
	if !errors.As(err, &ge) {
		t.Fatalf("err=%v, want *GeometryError", err)
	}
	if ge.Footprint != 1 || ge.FeatureID != "way/2" || ge.Ring != 0 || ge.Op != OpCreateExtrude {
		t.Fatalf("failure=%+v, want footprint 1 ring 0 create-extrusion", ge)
	}
	if rep.Extrusions != 2 || len(rep.Failures) != 1 || !rep.Failed() {
		t.Fatalf("report=%+v, want 2 extrusions and 1 failure", rep)
	}
	if len(m.History()) != 1 {
		t.Fatal("partial run must still be pushed")
	}

	if _, _, err := m.Undo(ctx); err != nil {
		t.Fatal(err)
	}
	if n := eng.Count(); n != 0 {
		t.Fatalf("count=%d after undo, want 0", n)
	}
}

func TestCreateSquareRequest(t *testing.T) {
	eng := &faultyEngine{Scene: memory.New(), failHeight: -1}
	m := New(eng)

	if _, err := m.Create(context.Background(), []projection.ProjectedFootprint{square("way/1", 0, 0, 5, 8)}); err != nil {
		t.Fatal(err)
	}
	if len(eng.requests) != 1 {
		t.Fatalf("requests=%d, want 1", len(eng.requests))
	}
	req := eng.requests[0]
	if req.height != 8 {
		t.Fatalf("height=%v, want 8", req.height)
	}
	if len(req.pts) != 4 {
		t.Fatalf("vertices=%d, want 4 (closing vertex dropped)", len(req.pts))
	}
}

func TestCreateSkipsDegenerateRings(t *testing.T) {
	m := New(memory.New())
	rep, err := m.Create(context.Background(), []projection.ProjectedFootprint{{
		ID:     "way/9",
		Rings:  orb.Polygon{{{0, 0}, {1, 1}, {0, 0}}},
		Height: 4,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Skipped != 1 || rep.Extrusions != 0 {
		t.Fatalf("report=%+v, want 1 skipped", rep)
	}
}

func TestCreateMultiRingExtrudesEachRing(t *testing.T) {
	scene := memory.New()
	m := New(scene)
	outer := square("", 0, 0, 10, 4).Rings[0]
	hole := square("", 0, 0, 2, 4).Rings[0]

	rep, err := m.Create(context.Background(), []projection.ProjectedFootprint{{
		ID: "relation/1", Rings: orb.Polygon{outer, hole}, Height: 4,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Rings != 2 || rep.Extrusions != 2 {
		t.Fatalf("report=%+v, want both rings extruded", rep)
	}
}

type brokenEngine struct{ *memory.Scene }

func (brokenEngine) EditingHistory(ctx context.Context) (engine.HistoryID, error) {
	return 0, errors.New("no document open")
}

func TestCreateWithoutEditingHistory(t *testing.T) {
	m := New(brokenEngine{memory.New()})
	_, err := m.Create(context.Background(), []projection.ProjectedFootprint{square("a", 0, 0, 1, 4)})

	var ge *GeometryError
	if !errors.As(err, &ge) || ge.Op != OpEditingHistory || ge.Footprint != -1 {
		t.Fatalf("err=%v, want editing-history GeometryError", err)
	}
	if len(m.History()) != 0 {
		t.Fatal("nothing should be pushed when the run never opened")
	}
}

// groupless wraps a scene whose GroupHistory always fails.
type groupless struct{ *memory.Scene }

func (groupless) GroupHistory(ctx context.Context, h engine.HistoryID, g engine.GroupID) (engine.HistoryID, error) {
	return 0, errors.New("boom")
}

func TestCreateRemovesRunGroupWhenHistoryFails(t *testing.T) {
	ctx := context.Background()
	scene := memory.New()
	m := New(groupless{scene})

	before := scene.Count()
	_, err := m.Create(ctx, []projection.ProjectedFootprint{square("a", 0, 0, 1, 4)})

	var ge *GeometryError
	if !errors.As(err, &ge) || ge.Op != OpGroupHistory {
		t.Fatalf("err=%v, want group-history GeometryError", err)
	}
	if len(m.History()) != 0 {
		t.Fatal("nothing should be pushed when the run never opened")
	}
	if got := scene.Count(); got != before {
		t.Fatalf("count=%d, want %d: run group left behind", got, before)
	}

	if _, ok, _ := m.Undo(ctx); ok {
		t.Fatal("undo should be a no-op")
	}
	if got := scene.Count(); got != before {
		t.Fatalf("count=%d after undo, want %d", got, before)
	}
}

func TestBoundary(t *testing.T) {
	got := boundary(orb.Ring{{0, 0}, {1, 0}, {1, 0}, {1, 1}, {0, 0}})
	want := []orb.Point{{0, 0}, {1, 0}, {1, 1}}
	if len(got) != len(want) {
		t.Fatalf("boundary=%v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("boundary=%v, want %v", got, want)
		}
	}
}
