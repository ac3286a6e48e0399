// Package catalog fetches and caches the description of every reportable
// table: columns and one-hop foreign-key relationships. It is the leaf
// component the builder and executor depend on.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/civiclab/reportd/internal/model"
	"github.com/civiclab/reportd/internal/source"
)

// ErrUnavailable is returned when the backing store cannot be
// introspected. Dependent UI presents an empty state and blocks table
// selection; there is no partial-failure mode.
var ErrUnavailable = errors.New("schema catalog unavailable")

// ErrTableNotFound is returned when a table is absent from the catalog,
// either because it does not exist or because it is not reportable.
var ErrTableNotFound = errors.New("table not reportable")

// Catalog introspects the data source once and serves the cached result
// for the rest of the process session. There is no TTL and no
// invalidation; restarting the process is the only refresh path.
type Catalog struct {
	src    source.Source
	allow  map[string]bool // nil = all tables reportable
	logger *slog.Logger

	mu     sync.Mutex
	loaded bool
	tables []model.TableSchema
	byName map[string]model.TableSchema
}

// New creates a Catalog over the given source. When allow is non-empty,
// only the named tables are reportable.
func New(src source.Source, allow []string, logger *slog.Logger) *Catalog {
	c := &Catalog{src: src, logger: logger}
	if len(allow) > 0 {
		c.allow = make(map[string]bool, len(allow))
		for _, name := range allow {
			c.allow[name] = true
		}
	}
	return c
}

// Tables returns all reportable table schemas, introspecting on first
// call. A failed fetch is not cached, so the next call retries.
func (c *Catalog) Tables(ctx context.Context) ([]model.TableSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return nil, err
	}
	return c.tables, nil
}

// Table returns the schema for a single reportable table.
func (c *Catalog) Table(ctx context.Context, name string) (model.TableSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return model.TableSchema{}, err
	}
	ts, ok := c.byName[name]
	if !ok {
		return model.TableSchema{}, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	return ts, nil
}

// Snapshot returns the cached tables keyed by name, loading on first
// call. Builders hold this snapshot for their whole session.
func (c *Catalog) Snapshot(ctx context.Context) (map[string]model.TableSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return nil, err
	}
	return c.byName, nil
}

func (c *Catalog) loadLocked(ctx context.Context) error {
	if c.loaded {
		return nil
	}

	tables, err := c.src.Introspect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if c.allow != nil {
		filtered := tables[:0]
		for _, t := range tables {
			if c.allow[t.Name] {
				filtered = append(filtered, t)
			}
		}
		tables = filtered
	}

	byName := make(map[string]model.TableSchema, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	c.tables = tables
	c.byName = byName
	c.loaded = true
	if c.logger != nil {
		c.logger.Info("schema catalog loaded", "tables", len(tables), "driver", c.src.DriverName())
	}
	return nil
}
