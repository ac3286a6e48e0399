package source

import (
	"context"
	"testing"
)

func newTestSQLite(t *testing.T) Source {
	t.Helper()
	src, err := Open(Config{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

func TestSQLiteIntrospect(t *testing.T) {
	src := newTestSQLite(t)
	db := src.DB()

	db.MustExec(`CREATE TABLE cities (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		state TEXT
	)`)
	db.MustExec(`CREATE TABLE volunteers (
		id INTEGER PRIMARY KEY,
		first_name TEXT,
		last_name TEXT,
		city_id INTEGER REFERENCES cities(id)
	)`)

	tables, err := src.Introspect(context.Background())
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("got %d tables, want 2", len(tables))
	}

	// Tables come back name-sorted.
	if tables[0].Name != "cities" || tables[1].Name != "volunteers" {
		t.Fatalf("got tables %q, %q", tables[0].Name, tables[1].Name)
	}

	cities := tables[0]
	wantCols := []string{"id", "name", "state"}
	if len(cities.Columns) != len(wantCols) {
		t.Fatalf("cities: got %d columns, want %d", len(cities.Columns), len(wantCols))
	}
	for i, want := range wantCols {
		if cities.Columns[i].Name != want {
			t.Errorf("cities column[%d] = %q, want %q", i, cities.Columns[i].Name, want)
		}
	}

	volunteers := tables[1]
	if len(volunteers.ForeignKeys) != 1 {
		t.Fatalf("volunteers: got %d foreign keys, want 1", len(volunteers.ForeignKeys))
	}
	fk := volunteers.ForeignKeys[0]
	if fk.ColumnName != "city_id" || fk.ReferencedTable != "cities" || fk.ReferencedColumn != "id" {
		t.Errorf("unexpected foreign key: %+v", fk)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "mongodb", DSN: "x"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestQuoting(t *testing.T) {
	var s SQLite
	if got := s.QuoteIdentifier(`na"me`); got != `"na""me"` {
		t.Errorf("sqlite quote: got %s", got)
	}
	var m MySQL
	if got := m.QuoteIdentifier("na`me"); got != "`na``me`" {
		t.Errorf("mysql quote: got %s", got)
	}
	var p Postgres
	if got := p.Placeholder(3); got != "$3" {
		t.Errorf("postgres placeholder: got %s", got)
	}
}
