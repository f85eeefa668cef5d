package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ArchivedFootprint is one building of a run.
type ArchivedFootprint struct {
	FeatureID string
	Polygon   orb.Polygon
	Height    float64
	Tags      map[string]string
}

// RunRecord is one creation run.
type RunRecord struct {
	History    int64
	Latitude   float64
	Longitude  float64
	Radius     float64
	Extrusions int
	Failures   int
	CreatedAt  time.Time
	Footprints []ArchivedFootprint
}

// RunSummary is a row of the runs table.
type RunSummary struct {
	ID         string    `json:"id"`
	Session    string    `json:"session"`
	History    int64     `json:"history"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Radius     float64   `json:"radius"`
	Footprints int       `json:"footprints"`
	Extrusions int       `json:"extrusions"`
	Failures   int       `json:"failures"`
	Undone     bool      `json:"undone"`
	CreatedAt  time.Time `json:"createdAt"`
}

const schema = `
CREATE SEQUENCE IF NOT EXISTS run_seq;
CREATE TABLE IF NOT EXISTS runs (
	id         VARCHAR PRIMARY KEY,
	seq        BIGINT DEFAULT nextval('run_seq'),
	session    VARCHAR NOT NULL,
	history    BIGINT NOT NULL,
	latitude   DOUBLE,
	longitude  DOUBLE,
	radius     DOUBLE,
	footprints INTEGER,
	extrusions INTEGER,
	failures   INTEGER,
	undone     BOOLEAN DEFAULT false,
	created_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS footprints (
	run_id     VARCHAR,
	history    BIGINT,
	feature_id VARCHAR,
	height     DOUBLE,
	wkt        VARCHAR,
	tags       VARCHAR
);`

// Archive stores runs in DuckDB. Engine history ids restart with every
// process, so each Archive gets its own session id and every run a
// surrogate key; history lookups are scoped to the session.
type Archive struct {
	db      *sql.DB
	session string
}

// NewArchive wraps a connection and migrates it.
func NewArchive(ctx context.Context, conn *sql.DB) (*Archive, error) {
	a := &Archive{db: conn, session: uuid.NewString()}
	if err := a.Migrate(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Migrate creates the archive tables if they do not exist.
func (a *Archive) Migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating archive schema: %w", err)
	}
	return nil
}

// Session returns the id shared by every run recorded through this Archive.
func (a *Archive) Session() string {
	return a.session
}

// DB returns the underlying connection.
func (a *Archive) DB() *sql.DB {
	return a.db
}

// RecordRun stores a run and its footprints in one transaction.
func (a *Archive) RecordRun(ctx context.Context, r RunRecord) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, session, history, latitude, longitude, radius, footprints, extrusions, failures, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, a.session, r.History, r.Latitude, r.Longitude, r.Radius, len(r.Footprints), r.Extrusions, r.Failures, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting run %d: %w", r.History, err)
	}

	for _, fp := range r.Footprints {
		tags, err := json.Marshal(fp.Tags)
		if err != nil {
			return fmt.Errorf("encoding tags of %s: %w", fp.FeatureID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO footprints (run_id, history, feature_id, height, wkt, tags) VALUES (?, ?, ?, ?, ?, ?)`,
			id, r.History, fp.FeatureID, fp.Height, wkt.MarshalString(fp.Polygon), string(tags),
		)
		if err != nil {
			return fmt.Errorf("inserting footprint %s: %w", fp.FeatureID, err)
		}
	}

	return tx.Commit()
}

// MarkUndone flags the newest live run of this session with the given
// history as undone.
func (a *Archive) MarkUndone(ctx context.Context, history int64) error {
	_, err := a.db.ExecContext(ctx,
		`UPDATE runs SET undone = true WHERE id = (
			SELECT id FROM runs
			WHERE session = ? AND history = ? AND NOT undone
			ORDER BY seq DESC LIMIT 1)`,
		a.session, history)
	return err
}

// Runs returns the most recent runs first.
func (a *Archive) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, session, history, latitude, longitude, radius, footprints, extrusions, failures, undone, created_at
		 FROM runs ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.ID, &s.Session, &s.History, &s.Latitude, &s.Longitude, &s.Radius,
			&s.Footprints, &s.Extrusions, &s.Failures, &s.Undone, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Footprint returns the stored polygon and height of a feature in the
// newest run of this session with the given history.
func (a *Archive) Footprint(ctx context.Context, history int64, featureID string) (orb.Polygon, float64, error) {
	var text string
	var height float64
	err := a.db.QueryRowContext(ctx,
		`SELECT f.wkt, f.height FROM footprints f JOIN runs r ON r.id = f.run_id
		 WHERE r.session = ? AND r.history = ? AND f.feature_id = ?
		 ORDER BY r.seq DESC LIMIT 1`, a.session, history, featureID,
	).Scan(&text, &height)
	if err != nil {
		return nil, 0, err
	}
	poly, err := wkt.UnmarshalPolygon(text)
	if err != nil {
		return nil, 0, fmt.Errorf("decoding wkt of %s: %w", featureID, err)
	}
	return poly, height, nil
}
