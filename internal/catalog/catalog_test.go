package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/civiclab/reportd/internal/source"
)

func newSeededSource(t *testing.T) source.Source {
	t.Helper()
	src, err := source.Open(source.Config{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { src.Close() })

	db := src.DB()
	db.MustExec(`CREATE TABLE cities (id INTEGER PRIMARY KEY, name TEXT)`)
	db.MustExec(`CREATE TABLE volunteers (
		id INTEGER PRIMARY KEY,
		first_name TEXT,
		city_id INTEGER REFERENCES cities(id)
	)`)
	db.MustExec(`CREATE TABLE audit_log (id INTEGER PRIMARY KEY, entry TEXT)`)
	return src
}

func TestTablesCachesFirstLoad(t *testing.T) {
	src := newSeededSource(t)
	c := New(src, nil, nil)
	ctx := context.Background()

	tables, err := c.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(tables) != 3 {
		t.Fatalf("got %d tables, want 3", len(tables))
	}

	// Schema changes after the first load are invisible for the rest of
	// the session.
	src.DB().MustExec(`CREATE TABLE late_arrival (id INTEGER PRIMARY KEY)`)
	tables, err = c.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(tables) != 3 {
		t.Errorf("cache miss: got %d tables after second call, want 3", len(tables))
	}
}

func TestAllowlistFiltersTables(t *testing.T) {
	src := newSeededSource(t)
	c := New(src, []string{"volunteers", "cities"}, nil)

	tables, err := c.Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("got %d tables, want 2", len(tables))
	}
	for _, ts := range tables {
		if ts.Name == "audit_log" {
			t.Error("audit_log should be filtered out")
		}
	}

	if _, err := c.Table(context.Background(), "audit_log"); err == nil {
		t.Error("expected error for non-reportable table")
	}
}

func TestUnavailableSource(t *testing.T) {
	src := newSeededSource(t)
	c := New(src, nil, nil)
	src.Close() // break the source before first load

	_, err := c.Tables(context.Background())
	if err == nil {
		t.Fatal("expected error from closed source")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error %v should wrap ErrUnavailable", err)
	}
}
