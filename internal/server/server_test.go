package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joeblew999/plat-massing/internal/config"
)

const overpassBody = `{
  "version": 0.6,
  "elements": [
    {"type": "node", "id": 1, "lat": 51.5000, "lon": -0.1200},
    {"type": "node", "id": 2, "lat": 51.5000, "lon": -0.1199},
    {"type": "node", "id": 3, "lat": 51.5001, "lon": -0.1199},
    {"type": "node", "id": 4, "lat": 51.5001, "lon": -0.1200},
    {"type": "way", "id": 10, "nodes": [1, 2, 3, 4, 1], "tags": {"building": "yes", "building:levels": "2"}}
  ]
}`

func testConfig(endpoint string) *config.Config {
	return &config.Config{
		Server:     config.ServerConfig{Host: "localhost", Port: 8086},
		Overpass:   config.OverpassConfig{Endpoint: endpoint, Timeout: 5 * time.Second, Filters: []string{"building"}},
		Projection: config.ProjectionConfig{Scale: 1, Center: "bbox"},
		Height:     config.HeightConfig{Story: 4},
		Extrude:    config.ExtrudeConfig{MaxConcurrency: 4},
		Pipeline:   config.PipelineConfig{ReplacePrevious: false},
		Archive:    config.ArchiveConfig{Enabled: true},
		Engine:     config.EngineConfig{SiteLat: 51.5, SiteLon: -0.12},
	}
}

func newTestServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(overpassBody))
	}))
	t.Cleanup(upstream.Close)

	srv := New(testConfig(upstream.URL), slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCreateUndoFlow(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)

	resp := post(t, ts.URL+"/api/v1/context", `{"latitude":51.50005,"longitude":-0.11995,"radius":100}`)
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status=%d body=%s, want 201", resp.StatusCode, b)
	}
	var run struct {
		History    int64 `json:"history"`
		Extrusions int   `json:"extrusions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatal(err)
	}
	if run.Extrusions != 1 || run.History == 0 {
		t.Fatalf("run=%+v, want one extrusion with a history", run)
	}

	obj, _ := io.ReadAll(get(t, ts.URL+"/scene.obj").Body)
	if got := strings.Count(string(obj), "\nv "); got != 8 {
		t.Fatalf("obj has %d vertex lines, want 8:\n%s", got, obj)
	}

	var hist struct {
		Histories []int64 `json:"histories"`
	}
	json.NewDecoder(get(t, ts.URL+"/api/v1/history").Body).Decode(&hist)
	if len(hist.Histories) != 1 || hist.Histories[0] != run.History {
		t.Fatalf("histories=%v, want [%d]", hist.Histories, run.History)
	}

	resp = post(t, ts.URL+"/api/v1/context/undo", ``)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("undo status=%d", resp.StatusCode)
	}
	var undo struct {
		Undone  bool  `json:"undone"`
		History int64 `json:"history"`
	}
	json.NewDecoder(resp.Body).Decode(&undo)
	if !undo.Undone || undo.History != run.History {
		t.Fatalf("undo=%+v", undo)
	}

	var runs struct {
		Runs []struct {
			History int64 `json:"history"`
			Undone  bool  `json:"undone"`
		} `json:"runs"`
	}
	json.NewDecoder(get(t, ts.URL+"/api/v1/runs").Body).Decode(&runs)
	if len(runs.Runs) != 1 || !runs.Runs[0].Undone {
		t.Fatalf("runs=%+v, want one undone run", runs.Runs)
	}
}

func TestCreateInvalidInput(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)
	resp := post(t, ts.URL+"/api/v1/context", `{"latitude":95,"longitude":0,"radius":100}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", resp.StatusCode)
	}
}

func TestCreateUpstreamFailure(t *testing.T) {
	ts := newTestServer(t, http.StatusTooManyRequests)
	resp := post(t, ts.URL+"/api/v1/context", `{"latitude":51.5,"longitude":-0.12,"radius":100}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status=%d, want 502", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "429") {
		t.Fatalf("body=%s, want upstream status", b)
	}
}

func TestHealthLinks(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)
	resp := get(t, ts.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if links := resp.Header.Values("Link"); len(links) == 0 {
		t.Fatal("missing Link headers")
	}
}

func TestLocationAndUndoEmpty(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)

	var loc struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	json.NewDecoder(get(t, ts.URL+"/api/v1/location").Body).Decode(&loc)
	if loc.Latitude != 51.5 || loc.Longitude != -0.12 {
		t.Fatalf("location=%+v", loc)
	}

	resp := post(t, ts.URL+"/api/v1/context/undo", ``)
	var undo struct {
		Undone bool `json:"undone"`
	}
	json.NewDecoder(resp.Body).Decode(&undo)
	if resp.StatusCode != http.StatusOK || undo.Undone {
		t.Fatalf("status=%d undo=%+v, want no-op", resp.StatusCode, undo)
	}
}

func TestQueryRejectsWrites(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)
	resp := post(t, ts.URL+"/api/v1/query", `{"query":"DROP TABLE runs"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", resp.StatusCode)
	}
	resp = post(t, ts.URL+"/api/v1/query", `{"query":"SELECT 1; DROP TABLE runs; SELECT 2"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("multi-statement status=%d, want 400", resp.StatusCode)
	}
	resp = post(t, ts.URL+"/api/v1/query", `{"query":"SELECT count(*) AS n FROM runs"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d, want 200: runs table should still exist", resp.StatusCode)
	}
}
