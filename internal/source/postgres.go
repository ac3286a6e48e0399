package source

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/civiclab/reportd/internal/model"
)

// Postgres is the PostgreSQL data source, connected through the pgx
// stdlib driver.
type Postgres struct {
	db         *sqlx.DB
	schemaName string
}

// Connect opens a connection pool to the PostgreSQL database.
func (s *Postgres) Connect(cfg Config) error {
	db, err := sqlx.Connect("pgx", cfg.DSN)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	applyPool(db, cfg)
	if cfg.SchemaName != "" {
		s.schemaName = cfg.SchemaName
	}
	s.db = db
	return nil
}

func (s *Postgres) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Postgres) DB() *sqlx.DB { return s.db }

func (s *Postgres) DriverName() string { return "postgres" }

// QuoteIdentifier wraps an identifier in double quotes, escaping embedded
// quotes by doubling them.
func (s *Postgres) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Placeholder returns $1, $2, etc.
func (s *Postgres) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// pgColumnRow holds a row from information_schema.columns.
type pgColumnRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
	UDTName    string `db:"udt_name"`
	Position   int    `db:"ordinal_position"`
}

// pgFKRow holds a foreign key relationship.
type pgFKRow struct {
	TableName        string `db:"table_name"`
	ColumnName       string `db:"column_name"`
	ReferencedTable  string `db:"referenced_table"`
	ReferencedColumn string `db:"referenced_column"`
}

// Introspect returns the schema of every base table in the configured
// PostgreSQL schema.
func (s *Postgres) Introspect(ctx context.Context) ([]model.TableSchema, error) {
	const tableQuery = `SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	var tableNames []string
	if err := s.db.SelectContext(ctx, &tableNames, tableQuery, s.schemaName); err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	const columnQuery = `SELECT table_name, column_name, udt_name, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1
		ORDER BY table_name, ordinal_position`

	var columns []pgColumnRow
	if err := s.db.SelectContext(ctx, &columns, columnQuery, s.schemaName); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}

	const fkQuery = `SELECT
			tc.table_name,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
		ORDER BY tc.table_name, kcu.ordinal_position`

	var fks []pgFKRow
	if err := s.db.SelectContext(ctx, &fks, fkQuery, s.schemaName); err != nil {
		return nil, fmt.Errorf("introspect foreign keys: %w", err)
	}

	colMap := make(map[string][]model.Column)
	for _, col := range columns {
		colMap[col.TableName] = append(colMap[col.TableName], model.Column{
			Name: col.ColumnName,
			Type: col.UDTName,
		})
	}

	fkMap := make(map[string][]model.ForeignKey)
	for _, fk := range fks {
		fkMap[fk.TableName] = append(fkMap[fk.TableName], model.ForeignKey{
			ColumnName:       fk.ColumnName,
			ReferencedTable:  fk.ReferencedTable,
			ReferencedColumn: fk.ReferencedColumn,
		})
	}

	tables := make([]model.TableSchema, 0, len(tableNames))
	for _, name := range tableNames {
		ts := model.TableSchema{
			Name:        name,
			Columns:     colMap[name],
			ForeignKeys: fkMap[name],
		}
		if ts.Columns == nil {
			ts.Columns = []model.Column{}
		}
		if ts.ForeignKeys == nil {
			ts.ForeignKeys = []model.ForeignKey{}
		}
		tables = append(tables, ts)
	}
	return tables, nil
}
