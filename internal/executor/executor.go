// Package executor turns query specs into parameterized SQL, runs them
// against the data source, and reshapes the flat result set into nested
// rows. Every query is capped: report previews and exports are working
// samples, not bulk extraction.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/civiclab/reportd/internal/builder"
	"github.com/civiclab/reportd/internal/catalog"
	"github.com/civiclab/reportd/internal/model"
	"github.com/civiclab/reportd/internal/source"
)

const (
	// DefaultRowCap bounds every result set.
	DefaultRowCap = 100

	// DefaultTimeout bounds query execution time.
	DefaultTimeout = 15 * time.Second
)

// QueryError is returned when a spec cannot be validated or executed.
// Callers treat it as fail-closed: the accompanying result is always
// empty, never partial.
type QueryError struct {
	Message string
	Timeout bool
	Err     error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *QueryError) Unwrap() error { return e.Err }

// Config tunes the executor.
type Config struct {
	RowCap  int
	Timeout time.Duration
}

// Executor runs query specs against one data source.
type Executor struct {
	src     source.Source
	catalog *catalog.Catalog
	cfg     Config
	logger  *slog.Logger
}

// New creates an Executor. Zero config fields fall back to the
// defaults.
func New(src source.Source, cat *catalog.Catalog, cfg Config, logger *slog.Logger) *Executor {
	if cfg.RowCap <= 0 {
		cfg.RowCap = DefaultRowCap
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{src: src, catalog: cat, cfg: cfg, logger: logger}
}

// RowCap returns the configured result-set cap.
func (e *Executor) RowCap() int { return e.cfg.RowCap }

// Execute validates spec against the catalog, runs it, and returns at
// most RowCap rows. Validation failures and execution failures both
// return a *QueryError with an empty result; a spec that selects
// nothing returns an empty result with no error.
func (e *Executor) Execute(ctx context.Context, spec model.QuerySpec) (*model.QueryResult, error) {
	start := time.Now()

	if spec.Table == "" {
		return emptyResult(start), nil
	}

	snapshot, err := e.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := snapshot[spec.Table]; !ok {
		return nil, &QueryError{Message: fmt.Sprintf("unknown table %q", spec.Table)}
	}

	view := builder.Derive(snapshot, spec)
	if err := validateReferences(spec, view); err != nil {
		return nil, &QueryError{Message: "invalid query spec", Err: err}
	}
	if len(view.SelectableColumns) == 0 {
		return emptyResult(start), nil
	}

	p, err := compile(e.src, snapshot, spec, view, e.cfg.RowCap)
	if err != nil {
		return nil, &QueryError{Message: "build query", Err: err}
	}

	qctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	rows, err := e.src.DB().QueryxContext(qctx, p.SQL, p.Args...)
	if err != nil {
		return nil, e.wrapExecError(qctx, err)
	}
	defer rows.Close()

	result := &model.QueryResult{Resource: []model.Row{}}
	for rows.Next() {
		raw := map[string]any{}
		if err := rows.MapScan(raw); err != nil {
			return nil, e.wrapExecError(qctx, err)
		}
		if len(result.Resource) == e.cfg.RowCap {
			// The extra row past the cap only signals truncation.
			result.Meta = &model.ResultMeta{Capped: true}
			break
		}
		result.Resource = append(result.Resource, assembleRow(raw, p))
	}
	if err := rows.Err(); err != nil {
		return nil, e.wrapExecError(qctx, err)
	}

	result.Columns = view.SelectableColumns
	capped := result.Meta != nil && result.Meta.Capped
	result.Meta = &model.ResultMeta{
		Count:  len(result.Resource),
		Capped: capped,
		TookMs: float64(time.Since(start).Microseconds()) / 1000,
	}

	e.logger.Debug("query executed",
		"table", spec.Table,
		"rows", result.Meta.Count,
		"capped", capped,
		"took_ms", result.Meta.TookMs,
	)
	return result, nil
}

// validateReferences checks that every filter and sort references a
// selectable column. Executing a spec with dangling references fails
// closed rather than silently pruning, since execution input comes from
// clients as well as from builder sessions.
func validateReferences(spec model.QuerySpec, view builder.View) error {
	for _, f := range spec.Filters {
		if !view.Selectable(f.Column) {
			return fmt.Errorf("filter references unselectable column %q", f.Column)
		}
	}
	for _, s := range spec.Sorts {
		if !view.Selectable(s.Column) {
			return fmt.Errorf("sort references unselectable column %q", s.Column)
		}
	}
	return nil
}

func (e *Executor) wrapExecError(ctx context.Context, err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	if timeout {
		return &QueryError{Message: "query timed out", Timeout: true, Err: err}
	}
	return &QueryError{Message: "query failed", Err: err}
}

func emptyResult(start time.Time) *model.QueryResult {
	return &model.QueryResult{
		Resource: []model.Row{},
		Meta: &model.ResultMeta{
			TookMs: float64(time.Since(start).Microseconds()) / 1000,
		},
	}
}

// assembleRow reshapes one flat scanned row into a nested model.Row
// using the plan's column list and join sentinels.
func assembleRow(raw map[string]any, p *plan) model.Row {
	row := model.Row{Fields: make(map[string]any)}

	resolved := make(map[string]bool, len(p.Joins))
	for relTable := range p.Joins {
		resolved[relTable] = normalize(raw[relTable+keySuffix]) != nil
	}

	for _, entry := range p.Columns {
		relTable, col, isPath := model.SplitColumnPath(entry)
		if !isPath {
			row.Fields[col] = normalize(raw[entry])
			continue
		}
		if row.Relations == nil {
			row.Relations = make(map[string]map[string]any, len(p.Joins))
		}
		if !resolved[relTable] {
			row.Relations[relTable] = nil
			continue
		}
		if row.Relations[relTable] == nil {
			row.Relations[relTable] = make(map[string]any)
		}
		row.Relations[relTable][col] = normalize(raw[entry])
	}
	return row
}

// normalize converts driver byte slices to strings so values are
// JSON-friendly. MySQL in particular scans text columns as []byte.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
