// Package store persists saved report queries in a local SQLite
// database, separate from the reporting data source.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/civiclab/reportd/internal/model"
)

// ErrNotFound is returned when a saved query does not exist.
var ErrNotFound = errors.New("saved query not found")

// ErrDuplicateName is returned when a save would reuse an existing
// query name. Names are unique; the caller must pick another one.
var ErrDuplicateName = errors.New("saved query name already in use")

// Repository is the saved-query persistence seam.
type Repository interface {
	List(ctx context.Context) ([]model.SavedQuery, error)
	Get(ctx context.Context, id string) (model.SavedQuery, error)
	Save(ctx context.Context, name string, spec model.QuerySpec) (model.SavedQuery, error)
	Update(ctx context.Context, id string, name string, spec model.QuerySpec) (model.SavedQuery, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// Store is the SQLite-backed Repository. Pass empty string for
// in-memory.
type Store struct {
	db *sqlx.DB
}

var _ Repository = (*Store)(nil)

// NewStore opens (or creates) the saved-query database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "reportd.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open query database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate query database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS queries (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		spec_json TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create queries table: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// queryRow maps 1:1 to the queries table columns.
type queryRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	SpecJSON  string    `db:"spec_json"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r queryRow) toModel() (model.SavedQuery, error) {
	q := model.SavedQuery{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.SpecJSON), &q.Spec); err != nil {
		return model.SavedQuery{}, fmt.Errorf("decode spec for query %s: %w", r.ID, err)
	}
	return q, nil
}

// List returns all saved queries, most recently updated first.
func (s *Store) List(ctx context.Context) ([]model.SavedQuery, error) {
	var rows []queryRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, name, spec_json, created_at, updated_at FROM queries ORDER BY updated_at DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	out := make([]model.SavedQuery, 0, len(rows))
	for _, r := range rows {
		q, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// Get returns the saved query with the given id.
func (s *Store) Get(ctx context.Context, id string) (model.SavedQuery, error) {
	var r queryRow
	err := s.db.GetContext(ctx, &r,
		`SELECT id, name, spec_json, created_at, updated_at FROM queries WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SavedQuery{}, ErrNotFound
	}
	if err != nil {
		return model.SavedQuery{}, fmt.Errorf("get query: %w", err)
	}
	return r.toModel()
}

// Save stores a new named query. The name must be unique across all
// saved queries.
func (s *Store) Save(ctx context.Context, name string, spec model.QuerySpec) (model.SavedQuery, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.SavedQuery{}, fmt.Errorf("query name is required")
	}

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return model.SavedQuery{}, fmt.Errorf("encode spec: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return model.SavedQuery{}, fmt.Errorf("generate id: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO queries (id, name, spec_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), name, string(specJSON), now, now)
	if err != nil {
		return model.SavedQuery{}, classifyWriteError(err)
	}
	return s.Get(ctx, id.String())
}

// Update replaces the name and spec of an existing saved query.
func (s *Store) Update(ctx context.Context, id string, name string, spec model.QuerySpec) (model.SavedQuery, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.SavedQuery{}, fmt.Errorf("query name is required")
	}

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return model.SavedQuery{}, fmt.Errorf("encode spec: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE queries SET name = ?, spec_json = ?, updated_at = ? WHERE id = ?`,
		name, string(specJSON), time.Now().UTC(), id)
	if err != nil {
		return model.SavedQuery{}, classifyWriteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.SavedQuery{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes a saved query.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete query: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// classifyWriteError maps SQLite unique-constraint failures onto
// ErrDuplicateName.
func classifyWriteError(err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint") {
		return ErrDuplicateName
	}
	return fmt.Errorf("write query: %w", err)
}
