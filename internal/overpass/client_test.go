package overpass

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeblew999/plat-massing/internal/geo"
)

const sampleResponse = `{
  "version": 0.6,
  "generator": "Overpass API",
  "elements": [
    {"type": "node", "id": 1, "lat": 51.5000, "lon": -0.1200},
    {"type": "node", "id": 2, "lat": 51.5000, "lon": -0.1199},
    {"type": "node", "id": 3, "lat": 51.5001, "lon": -0.1199},
    {"type": "node", "id": 4, "lat": 51.5001, "lon": -0.1200},
    {"type": "way", "id": 10, "nodes": [1, 2, 3, 4, 1], "tags": {"building": "yes", "building:levels": "2"}}
  ]
}`

var testBBox = geo.BoundingBox{MinLon: -0.13, MinLat: 51.49, MaxLon: -0.11, MaxLat: 51.51}

func TestBuildQuery(t *testing.T) {
	got := BuildQuery(testBBox, []string{"building"}, 25*time.Second)
	want := "[out:json][timeout:25][bbox:51.4900000,-0.1300000,51.5100000,-0.1100000];" +
		"(way[building];relation[building];);(._;>;);out;"
	if got != want {
		t.Fatalf("query=%q\nwant   %q", got, want)
	}
}

func TestBuildQueryNoFilters(t *testing.T) {
	got := BuildQuery(testBBox, nil, 10*time.Second)
	if strings.Contains(got, "way[") {
		t.Fatalf("query=%q, want no filter group", got)
	}
	if !strings.HasSuffix(got, "(._;>;);out;") {
		t.Fatalf("query=%q, want recursive output suffix", got)
	}
}

func TestFetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method=%s, want GET", r.Method)
		}
		gotQuery = r.URL.Query().Get("data")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})
	doc, err := c.Fetch(context.Background(), testBBox)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gotQuery, "way[building];") {
		t.Fatalf("data=%q, want building filter", gotQuery)
	}
	if len(doc.Nodes) != 4 {
		t.Fatalf("nodes=%d, want 4", len(doc.Nodes))
	}
	if len(doc.Ways) != 1 {
		t.Fatalf("ways=%d, want 1", len(doc.Ways))
	}
	if v := doc.Ways[0].Tags.Find("building:levels"); v != "2" {
		t.Fatalf("building:levels=%q, want 2", v)
	}
}

func TestFetchNonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})
	_, err := c.Fetch(context.Background(), testBBox)

	var dse *DataSourceError
	if !errors.As(err, &dse) {
		t.Fatalf("err=%v, want *DataSourceError", err)
	}
	if dse.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", dse.StatusCode)
	}
	if dse.Status != "Too Many Requests" {
		t.Fatalf("reason=%q, want Too Many Requests", dse.Status)
	}
}

func TestFetchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	_, err := NewClient(Config{Endpoint: srv.URL}).Fetch(context.Background(), testBBox)
	var dse *DataSourceError
	if !errors.As(err, &dse) {
		t.Fatalf("err=%v, want *DataSourceError", err)
	}
}

func TestFetchTransportError(t *testing.T) {
	c := NewClient(Config{Endpoint: "http://example.invalid"}, WithHTTPClient(doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})))

	_, err := c.Fetch(context.Background(), testBBox)
	var dse *DataSourceError
	if !errors.As(err, &dse) {
		t.Fatalf("err=%v, want *DataSourceError", err)
	}
	if dse.StatusCode != 0 {
		t.Fatalf("status=%d, want 0 for transport error", dse.StatusCode)
	}
}

func TestFetchUsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	cache := &memCache{data: map[string][]byte{}}
	c := NewClient(Config{Endpoint: srv.URL, CacheTTL: time.Hour}, WithCache(cache))

	for i := 0; i < 3; i++ {
		doc, err := c.Fetch(context.Background(), testBBox)
		if err != nil {
			t.Fatal(err)
		}
		if len(doc.Ways) != 1 {
			t.Fatalf("ways=%d, want 1", len(doc.Ways))
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("server hits=%d, want 1", n)
	}
	if cache.lastTTL != 3600 {
		t.Fatalf("ttl=%d, want 3600", cache.lastTTL)
	}
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

type memCache struct {
	data    map[string][]byte
	lastTTL int
}

func (m *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (m *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.data[key] = value
	m.lastTTL = ttlSeconds
	return nil
}
