// Package server wires the massing pipeline behind an HTTP API.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-massing/internal/api"
	"github.com/joeblew999/plat-massing/internal/cache"
	"github.com/joeblew999/plat-massing/internal/config"
	"github.com/joeblew999/plat-massing/internal/db"
	"github.com/joeblew999/plat-massing/internal/engine/memory"
	"github.com/joeblew999/plat-massing/internal/metrics"
	"github.com/joeblew999/plat-massing/internal/overpass"
	"github.com/joeblew999/plat-massing/internal/projection"
	"github.com/joeblew999/plat-massing/internal/service"
)

// Server is the massing HTTP server.
type Server struct {
	config   *config.Config
	logger   *slog.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	scene    *memory.Scene
	db       *sql.DB
	archive  *db.Archive
	cache    *cache.Cache
	bus      *service.EventBus
	pipeline *service.ContextService
}

// New builds the pipeline from cfg and registers all routes. The archive and
// the cache are optional: when they cannot be opened the server runs without
// them and logs a warning.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-massing API", "1.0.0")
	humaConfig.Info.Description = "Creates extruded context buildings from OpenStreetMap footprints around a site."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	s := &Server{
		config:  cfg,
		logger:  logger,
		mux:     mux,
		humaAPI: humago.New(mux, humaConfig),
		scene:   memory.New(),
		bus:     service.NewEventBus(),
	}
	if cfg.Engine.HasSite() {
		s.scene.SetLocation(cfg.Engine.SiteLat, cfg.Engine.SiteLon)
	}

	var fetchOpts []overpass.Option
	fetchOpts = append(fetchOpts, overpass.WithLogger(logger))
	if cfg.Valkey.Enabled {
		c, err := cache.New(cfg.Valkey.Addr)
		if err != nil {
			logger.Warn("overpass cache disabled", "addr", cfg.Valkey.Addr, "error", err)
		} else {
			s.cache = c
			fetchOpts = append(fetchOpts, overpass.WithCache(c))
		}
	}
	fetcher := overpass.NewClient(overpass.Config{
		Endpoint: cfg.Overpass.Endpoint,
		Filters:  cfg.Overpass.Filters,
		Timeout:  cfg.Overpass.Timeout,
		CacheTTL: time.Duration(cfg.Overpass.CacheTTL) * time.Second,
	}, fetchOpts...)

	svcOpts := []service.Option{
		service.WithEventBus(s.bus),
		service.WithLogger(logger),
	}
	if cfg.Archive.Enabled {
		if err := s.openArchive(); err != nil {
			logger.Warn("run archive disabled", "error", err)
		} else {
			svcOpts = append(svcOpts, service.WithArchive(s.archive))
		}
	}

	s.pipeline = service.NewContextService(service.Config{
		ReplacePrevious: cfg.Pipeline.ReplacePrevious,
		StoryHeight:     cfg.Height.Story,
		Scale:           cfg.Projection.Scale,
		CenterMode:      projection.CenterMode(cfg.Projection.Center),
		MaxConcurrency:  cfg.Extrude.MaxConcurrency,
	}, fetcher, s.scene, svcOpts...)

	s.routes()
	return s
}

func (s *Server) openArchive() error {
	conn, err := db.Open(db.Config{DataDir: s.config.Archive.DataDir})
	if err != nil {
		return err
	}
	archive, err := db.NewArchive(context.Background(), conn)
	if err != nil {
		conn.Close()
		return err
	}
	s.db = conn
	s.archive = archive
	return nil
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Context returns the pipeline service.
func (s *Server) Context() *service.ContextService {
	return s.pipeline
}

// Scene returns the in-memory geometry engine.
func (s *Server) Scene() *memory.Scene {
	return s.scene
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Info("request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"latency", time.Since(start),
	)
}

// Close closes server resources.
func (s *Server) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) routes() {
	svc := &api.Services{Context: s.pipeline, Bus: s.bus}
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(svc))

	api.NewInfoHandler(s.config.Overpass.Endpoint, s.db != nil, s.cache != nil).RegisterRoutes(s.humaAPI)
	api.NewEventHandler(s.bus).RegisterRoutes(s.humaAPI)

	var runs api.RunLister
	if s.archive != nil {
		runs = s.archive
	}
	api.NewDBHandler(s.db, runs).RegisterRoutes(s.humaAPI)

	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("GET /scene.obj", s.handleSceneOBJ)
	s.mux.HandleFunc("GET /scene.geojson", s.handleSceneGeoJSON)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"service":"plat-massing","status":"running"}`)
}

func (s *Server) handleSceneOBJ(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="scene.obj"`)
	if err := s.scene.WriteOBJ(w); err != nil {
		s.logger.Error("obj export failed", "error", err)
	}
}

func (s *Server) handleSceneGeoJSON(w http.ResponseWriter, r *http.Request) {
	data, err := s.scene.FeatureCollection().MarshalJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(data)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
