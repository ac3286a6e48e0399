// Package source abstracts the backing data store that reports run
// against. Each dialect knows how to open a connection pool, introspect
// the reportable tables, and render identifiers and placeholders in its
// own SQL flavor.
package source

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/civiclab/reportd/internal/model"
)

// Config holds data source connection parameters.
type Config struct {
	Driver          string
	DSN             string
	SchemaName      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Source is the read-only seam between the report engine and a concrete
// database dialect.
type Source interface {
	Connect(cfg Config) error
	Close() error
	Ping(ctx context.Context) error
	DB() *sqlx.DB

	// Introspect returns the schema of every table in the configured
	// database schema, columns in ordinal order.
	Introspect(ctx context.Context) ([]model.TableSchema, error)

	DriverName() string
	QuoteIdentifier(name string) string
	Placeholder(index int) string
}

// Factory creates a new, unconnected Source.
type Factory func() Source

var factories = map[string]Factory{
	"postgres": func() Source { return &Postgres{schemaName: "public"} },
	"mysql":    func() Source { return &MySQL{} },
	"sqlite":   func() Source { return &SQLite{} },
}

// Open creates and connects a Source for the configured driver.
func Open(cfg Config) (Source, error) {
	factory, ok := factories[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q (available: %v)", cfg.Driver, Drivers())
	}
	src := factory()
	if err := src.Connect(cfg); err != nil {
		return nil, fmt.Errorf("connect %s source: %w", cfg.Driver, err)
	}
	return src, nil
}

// Drivers returns the supported driver names, sorted.
func Drivers() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// applyPool copies pool limits from the config onto a fresh connection.
func applyPool(db *sqlx.DB, cfg Config) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}
