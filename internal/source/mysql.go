package source

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/civiclab/reportd/internal/model"
)

// MySQL is the MySQL/MariaDB data source.
type MySQL struct {
	db         *sqlx.DB
	schemaName string
}

// Connect opens a connection pool to the MySQL database. When no schema
// name is configured, the database selected by the DSN is used.
func (s *MySQL) Connect(cfg Config) error {
	db, err := sqlx.Connect("mysql", cfg.DSN)
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	applyPool(db, cfg)

	s.schemaName = cfg.SchemaName
	if s.schemaName == "" {
		if err := db.Get(&s.schemaName, "SELECT DATABASE()"); err != nil {
			db.Close()
			return fmt.Errorf("mysql resolve database: %w", err)
		}
	}

	s.db = db
	return nil
}

func (s *MySQL) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *MySQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *MySQL) DB() *sqlx.DB { return s.db }

func (s *MySQL) DriverName() string { return "mysql" }

// QuoteIdentifier wraps an identifier in backticks, escaping embedded
// backticks by doubling them.
func (s *MySQL) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Placeholder returns ? regardless of index.
func (s *MySQL) Placeholder(_ int) string { return "?" }

// myColumnRow holds a row from INFORMATION_SCHEMA.COLUMNS.
type myColumnRow struct {
	TableName  string `db:"TABLE_NAME"`
	ColumnName string `db:"COLUMN_NAME"`
	DataType   string `db:"DATA_TYPE"`
}

// myFKRow holds a foreign key relationship from KEY_COLUMN_USAGE.
type myFKRow struct {
	TableName        string `db:"TABLE_NAME"`
	ColumnName       string `db:"COLUMN_NAME"`
	ReferencedTable  string `db:"REFERENCED_TABLE_NAME"`
	ReferencedColumn string `db:"REFERENCED_COLUMN_NAME"`
}

// Introspect returns the schema of every base table in the configured
// MySQL database.
func (s *MySQL) Introspect(ctx context.Context) ([]model.TableSchema, error) {
	const tableQuery = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`

	var tableNames []string
	if err := s.db.SelectContext(ctx, &tableNames, tableQuery, s.schemaName); err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	const columnQuery = `SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME, ORDINAL_POSITION`

	var columns []myColumnRow
	if err := s.db.SelectContext(ctx, &columns, columnQuery, s.schemaName); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}

	const fkQuery = `SELECT TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY TABLE_NAME, ORDINAL_POSITION`

	var fks []myFKRow
	if err := s.db.SelectContext(ctx, &fks, fkQuery, s.schemaName); err != nil {
		return nil, fmt.Errorf("introspect foreign keys: %w", err)
	}

	colMap := make(map[string][]model.Column)
	for _, col := range columns {
		colMap[col.TableName] = append(colMap[col.TableName], model.Column{
			Name: col.ColumnName,
			Type: col.DataType,
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
