package api

import (
	"context"
	"database/sql"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-massing/internal/db"
)

// RunLister lists archived runs. Implemented by db.Archive.
type RunLister interface {
	Runs(ctx context.Context, limit int) ([]db.RunSummary, error)
}

// DBHandler serves the run archive.
type DBHandler struct {
	db   *sql.DB
	runs RunLister
}

// NewDBHandler creates a new archive handler. Either argument may be nil.
func NewDBHandler(conn *sql.DB, runs RunLister) *DBHandler {
	return &DBHandler{db: conn, runs: runs}
}

// RegisterRoutes registers archive routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/runs", h.ListRuns, huma.OperationTags("archive"))
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("archive"))
	huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("archive"))
}

type RunsInput struct {
	Limit int `query:"limit" minimum:"1" maximum:"1000" default:"50" doc:"Maximum runs to return, newest first"`
}

type RunsBody struct {
	Runs []db.RunSummary `json:"runs" doc:"Archived runs"`
}

type TablesBody struct {
	Tables []string `json:"tables" doc:"List of table names"`
}

type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" doc:"Read-only SQL query to execute" example:"SELECT * FROM runs"`
	}
}

type QueryBody struct {
	Columns []string         `json:"columns" doc:"Column names"`
	Rows    []map[string]any `json:"rows" doc:"Query results"`
	Count   int              `json:"count" doc:"Number of rows returned"`
}

// ListRuns returns archived runs.
func (h *DBHandler) ListRuns(ctx context.Context, input *RunsInput) (*struct{ Body RunsBody }, error) {
	if h.runs == nil {
		return nil, huma.Error503ServiceUnavailable("Archive not available")
	}
	runs, err := h.runs.Runs(ctx, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list runs", err)
	}
	if runs == nil {
		runs = []db.RunSummary{}
	}
	return &struct{ Body RunsBody }{Body: RunsBody{Runs: runs}}, nil
}

// ListTables returns all DuckDB tables.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*struct{ Body TablesBody }, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	rows, err := h.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			tables = append(tables, name)
		}
	}
	return &struct{ Body TablesBody }{Body: TablesBody{Tables: tables}}, nil
}

// Query executes a read-only SQL query against the archive.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*struct{ Body QueryBody }, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	if !readOnly(input.Body.Query) {
		return nil, huma.Error400BadRequest("only a single SELECT, WITH, SHOW, DESCRIBE or SUMMARIZE statement is allowed")
	}

	rows, err := h.db.QueryContext(ctx, input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get columns", err)
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			continue
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	return &struct{ Body QueryBody }{Body: QueryBody{
		Columns: columns,
		Rows:    results,
		Count:   len(results),
	}}, nil
}

// readOnly accepts a single read statement. DuckDB runs every statement of a
// multi-statement string, so any ';' other than a trailing one is rejected,
// even inside a string literal.
func readOnly(q string) bool {
	q = strings.TrimRight(strings.TrimSpace(q), "; \t\r\n")
	if strings.Contains(q, ";") {
		return false
	}
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "SHOW", "DESCRIBE", "SUMMARIZE":
		return true
	}
	return false
}
