// Package metrics declares the Prometheus collectors for the massing pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "massing",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Total creation runs by result",
	}, []string{"result"})

	UndosTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "massing",
		Subsystem: "pipeline",
		Name:      "undos_total",
		Help:      "Total history entries undone",
	})

	// Overpass metrics
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "massing",
		Subsystem: "overpass",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of Overpass API requests",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 30},
	})

	FetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "massing",
		Subsystem: "overpass",
		Name:      "fetch_errors_total",
		Help:      "Total failed Overpass requests",
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "massing",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total Overpass response cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "massing",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total Overpass response cache misses",
	})

	// Geometry metrics
	FootprintsConverted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "massing",
		Subsystem: "geometry",
		Name:      "footprints_total",
		Help:      "Total polygon footprints retained after conversion",
	})

	ExtrusionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "massing",
		Subsystem: "geometry",
		Name:      "extrusions_total",
		Help:      "Total extrusions created in the geometry engine",
	})

	GeometryErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "massing",
		Subsystem: "geometry",
		Name:      "errors_total",
		Help:      "Total geometry engine failures",
	})
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
