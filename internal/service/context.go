package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/osm"

	"github.com/joeblew999/plat-massing/internal/db"
	"github.com/joeblew999/plat-massing/internal/engine"
	"github.com/joeblew999/plat-massing/internal/extrude"
	"github.com/joeblew999/plat-massing/internal/footprint"
	"github.com/joeblew999/plat-massing/internal/geo"
	"github.com/joeblew999/plat-massing/internal/height"
	"github.com/joeblew999/plat-massing/internal/metrics"
	"github.com/joeblew999/plat-massing/internal/projection"
)

// ErrNoLocator is returned when the engine cannot report a site location.
var ErrNoLocator = errors.New("geometry engine does not expose a site location")

// Fetcher retrieves raw map data for a bounding box. Implemented by overpass.Client.
type Fetcher interface {
	Fetch(ctx context.Context, bbox geo.BoundingBox) (*osm.OSM, error)
	Timeout() time.Duration
}

// Archive persists runs. Implemented by db.Archive.
type Archive interface {
	RecordRun(ctx context.Context, r db.RunRecord) error
	MarkUndone(ctx context.Context, history int64) error
}

// Config holds pipeline settings.
type Config struct {
	// ReplacePrevious undoes the last run before starting a new one.
	ReplacePrevious bool
	StoryHeight     float64
	Scale           float64
	CenterMode      projection.CenterMode
	MaxConcurrency  int
}

// ContextService runs the fetch → convert → project → extrude pipeline. It
// serializes Create and Undo.
type ContextService struct {
	mu        sync.Mutex
	cfg       Config
	fetcher   Fetcher
	engine    engine.Engine
	projector *projection.Projector
	heights   height.Inferencer
	extruder  *extrude.Manager
	archive   Archive
	bus       *EventBus
	logger    *slog.Logger
}

// Option configures a ContextService.
type Option func(*ContextService)

// WithArchive records every run.
func WithArchive(a Archive) Option {
	return func(s *ContextService) { s.archive = a }
}

// WithEventBus publishes status events.
func WithEventBus(b *EventBus) Option {
	return func(s *ContextService) { s.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *ContextService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewContextService creates the pipeline around a fetcher and a geometry engine.
func NewContextService(cfg Config, fetcher Fetcher, eng engine.Engine, opts ...Option) *ContextService {
	s := &ContextService{
		cfg:       cfg,
		fetcher:   fetcher,
		engine:    eng,
		projector: projection.New(cfg.Scale, cfg.CenterMode),
		heights:   height.New(cfg.StoryHeight),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.extruder = extrude.New(eng,
		extrude.WithMaxConcurrency(cfg.MaxConcurrency),
		extrude.WithLogger(s.logger),
	)
	return s
}

// Create runs the whole pipeline for one point and radius.
func (s *ContextService) Create(ctx context.Context, req CreateRequest) (RunReport, error) {
	center, err := geo.NewPoint(req.Latitude, req.Longitude)
	if err != nil {
		return s.fail(RunReport{}, "invalid_input", err)
	}
	bbox, err := geo.BoundingBoxAround(center, req.Radius)
	if err != nil {
		return s.fail(RunReport{}, "invalid_input", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	report := RunReport{BBox: bbox}

	if s.cfg.ReplacePrevious {
		if _, err := s.undoLocked(ctx); err != nil {
			s.status(EventError, fmt.Sprintf("Undo of previous run failed: %v", err), 0)
		}
	}

	s.status(EventStatus, "Sending API request", 0)
	s.status(EventStatus, fmt.Sprintf("This could take up to %d seconds", int(s.fetcher.Timeout().Seconds())), 0)

	doc, err := s.fetcher.Fetch(ctx, bbox)
	if err != nil {
		return s.fail(report, "data_source_error", err)
	}

	coll, err := footprint.Convert(doc)
	if err != nil {
		return s.fail(report, "data_source_error", err)
	}
	report.Footprints = coll.Len()
	metrics.FootprintsConverted.Add(float64(coll.Len()))

	if coll.Len() == 0 {
		s.status(EventStatus, "No buildings found", 0)
		metrics.RunsTotal.WithLabelValues("empty").Inc()
		return report, nil
	}

	rc, err := s.projector.Center(coll.Features)
	if err != nil {
		return s.fail(report, "projection_error", err)
	}
	report.Center = geo.Point{Lat: rc.Geographic.Lat(), Lon: rc.Geographic.Lon()}

	projected := s.projector.Project(coll.Footprints, rc)
	heights := make([]float64, len(projected))
	for i := range projected {
		heights[i] = s.heights.Infer(projected[i].Tags)
		projected[i].Height = s.projector.Length(heights[i])
	}

	rep, runErr := s.extruder.Create(ctx, projected)
	report.History = int64(rep.History)
	report.Rings = rep.Rings
	report.Extrusions = rep.Extrusions
	report.Skipped = rep.Skipped
	for _, f := range rep.Failures {
		report.Failures = append(report.Failures, RunFailure{
			Footprint: f.Footprint,
			FeatureID: f.FeatureID,
			Ring:      f.Ring,
			Op:        string(f.Op),
			Error:     f.Err.Error(),
		})
	}

	if rep.History != 0 {
		s.status(EventCreated, fmt.Sprintf("Created %d features", report.Extrusions), report.History)
		s.record(ctx, req, report, coll, heights)
	}

	if runErr != nil {
		return s.fail(report, "geometry_error", runErr)
	}
	metrics.RunsTotal.WithLabelValues("ok").Inc()
	return report, nil
}

// Undo removes the geometry of the most recent run. It is a no-op when
// nothing has been created.
func (s *ContextService) Undo(ctx context.Context) (UndoReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undoLocked(ctx)
}

func (s *ContextService) undoLocked(ctx context.Context) (UndoReport, error) {
	h, ok, err := s.extruder.Undo(ctx)
	report := UndoReport{Undone: ok, History: int64(h), Remaining: len(s.extruder.History())}
	if !ok {
		return report, nil
	}

	metrics.UndosTotal.Inc()
	if s.archive != nil {
		if aerr := s.archive.MarkUndone(ctx, int64(h)); aerr != nil {
			s.logger.Warn("archive update failed", "history", int64(h), "error", aerr)
		}
	}
	if err != nil {
		s.status(EventError, err.Error(), int64(h))
		return report, err
	}
	s.status(EventUndone, fmt.Sprintf("Removed %s", h), int64(h))
	return report, nil
}

// History returns the recorded run histories, oldest first.
func (s *ContextService) History() []int64 {
	entries := s.extruder.History()
	out := make([]int64, len(entries))
	for i, h := range entries {
		out[i] = int64(h)
	}
	return out
}

// Location asks the engine for the model's site location.
func (s *ContextService) Location(ctx context.Context) (Location, error) {
	loc, ok := s.engine.(engine.Locator)
	if !ok {
		return Location{}, ErrNoLocator
	}
	lat, lon, err := loc.Location(ctx)
	if err != nil {
		return Location{}, err
	}
	return Location{Latitude: lat, Longitude: lon}, nil
}

func (s *ContextService) record(ctx context.Context, req CreateRequest, report RunReport, coll footprint.Collection, heights []float64) {
	if s.archive == nil {
		return
	}
	rec := db.RunRecord{
		History:    report.History,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Radius:     req.Radius,
		Extrusions: report.Extrusions,
		Failures:   len(report.Failures),
	}
	for i, fp := range coll.Footprints {
		rec.Footprints = append(rec.Footprints, db.ArchivedFootprint{
			FeatureID: fp.ID,
			Polygon:   fp.Polygon,
			Height:    heights[i],
			Tags:      fp.Tags,
		})
	}
	if err := s.archive.RecordRun(ctx, rec); err != nil {
		s.logger.Warn("archive write failed", "history", report.History, "error", err)
	}
}

func (s *ContextService) fail(report RunReport, result string, err error) (RunReport, error) {
	metrics.RunsTotal.WithLabelValues(result).Inc()
	s.status(EventError, "An error has occurred: "+err.Error(), report.History)
	return report, err
}

// status sends a message to the log and the event bus.
func (s *ContextService) status(kind, msg string, history int64) {
	if kind == EventError {
		s.logger.Error(msg, "history", history)
	} else {
		s.logger.Info(msg, "history", history)
	}
	if s.bus != nil {
		s.bus.Publish(Event{Kind: kind, Message: msg, History: history})
	}
}
