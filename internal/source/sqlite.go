package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/civiclab/reportd/internal/model"
)

// SQLite is the embedded SQLite data source. It doubles as the test
// harness dialect since modernc.org/sqlite needs no cgo and no server.
type SQLite struct {
	db *sqlx.DB
}

// Connect opens the SQLite database file named by the DSN, or an
// in-memory database for ":memory:".
func (s *SQLite) Connect(cfg Config) error {
	db, err := sqlx.Connect("sqlite", cfg.DSN)
	if err != nil {
		return fmt.Errorf("sqlite connect: %w", err)
	}
	applyPool(db, cfg)
	s.db = db
	return nil
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) DB() *sqlx.DB { return s.db }

func (s *SQLite) DriverName() string { return "sqlite" }

// QuoteIdentifier wraps an identifier in double quotes, escaping embedded
// quotes by doubling them.
func (s *SQLite) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Placeholder returns ? regardless of index.
func (s *SQLite) Placeholder(_ int) string { return "?" }

// tableInfoRow holds a row from PRAGMA table_info().
type tableInfoRow struct {
	CID     int     `db:"cid"`
	Name    string  `db:"name"`
	Type    string  `db:"type"`
	NotNull int     `db:"notnull"`
	Default *string `db:"dflt_value"`
	PK      int     `db:"pk"`
}

// foreignKeyRow holds a row from PRAGMA foreign_key_list().
type foreignKeyRow struct {
	ID       int     `db:"id"`
	Seq      int     `db:"seq"`
	Table    string  `db:"table"`
	From     string  `db:"from"`
	To       *string `db:"to"`
	OnUpdate string  `db:"on_update"`
	OnDelete string  `db:"on_delete"`
	Match    string  `db:"match"`
}

// Introspect returns the schema of every user table in the SQLite
// database. A foreign key declared without an explicit target column
// references the target table's rowid alias; "id" is assumed.
func (s *SQLite) Introspect(ctx context.Context) ([]model.TableSchema, error) {
	const query = `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	var tableNames []string
	if err := s.db.SelectContext(ctx, &tableNames, query); err != nil {
		return nil, fmt.Errorf("introspect schema: %w", err)
	}

	tables := make([]model.TableSchema, 0, len(tableNames))
	for _, name := range tableNames {
		ts, err := s.introspectTable(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("introspect table %q: %w", name, err)
		}
		tables = append(tables, ts)
	}
	return tables, nil
}

func (s *SQLite) introspectTable(ctx context.Context, tableName string) (model.TableSchema, error) {
	pragma := fmt.Sprintf("PRAGMA table_info(%s)", s.QuoteIdentifier(tableName))
	var cols []tableInfoRow
	if err := s.db.SelectContext(ctx, &cols, pragma); err != nil {
		return model.TableSchema{}, fmt.Errorf("table_info: %w", err)
	}
	if len(cols) == 0 {
		return model.TableSchema{}, fmt.Errorf("table %q not found", tableName)
	}

	fkPragma := fmt.Sprintf("PRAGMA foreign_key_list(%s)", s.QuoteIdentifier(tableName))
	var fks []foreignKeyRow
	if err := s.db.SelectContext(ctx, &fks, fkPragma); err != nil {
		return model.TableSchema{}, fmt.Errorf("foreign_key_list: %w", err)
	}

	ts := model.TableSchema{
		Name:        tableName,
		Columns:     make([]model.Column, 0, len(cols)),
		ForeignKeys: []model.ForeignKey{},
	}
	for _, col := range cols {
		ts.Columns = append(ts.Columns, model.Column{
			Name: col.Name,
			Type: strings.ToLower(col.Type),
		})
	}
	for _, fk := range fks {
		refCol := "id"
		if fk.To != nil && *fk.To != "" {
			refCol = *fk.To
		}
		ts.ForeignKeys = append(ts.ForeignKeys, model.ForeignKey{
			ColumnName:       fk.From,
			ReferencedTable:  fk.Table,
			ReferencedColumn: refCol,
		})
	}
	return ts, nil
}
