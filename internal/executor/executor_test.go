package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/civiclab/reportd/internal/catalog"
	"github.com/civiclab/reportd/internal/model"
	"github.com/civiclab/reportd/internal/source"
)

func newTestExecutor(t *testing.T) (*Executor, source.Source) {
	t.Helper()
	src, err := source.Open(source.Config{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { src.Close() })

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
		zip TEXT,
		hours INTEGER,
		city_id INTEGER REFERENCES cities(id)
	)`)
	db.MustExec(`INSERT INTO cities (id, name, state) VALUES
		(1, 'Riverton', 'OR'),
		(2, 'Lakewood', 'OR')`)
	db.MustExec(`INSERT INTO volunteers (id, first_name, last_name, zip, hours, city_id) VALUES
		(1, 'Ann', 'Smith', '01234', 12, 1),
		(2, 'Bea', 'Jones', '97035', 30, 2),
		(3, 'Cal', 'Smithers', '97210', 4, NULL),
		(4, 'Dee', 'Adams', '01234', 25, 1)`)

	cat := catalog.New(src, nil, slog.Default())
	return New(src, cat, Config{}, slog.Default()), src
}

func TestExecuteLocalColumnsWithFilterAndSort(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res, err := exec.Execute(context.Background(), model.QuerySpec{
		Table:   "volunteers",
		Columns: []string{"first_name", "last_name"},
		Filters: []model.AdvancedFilter{
			{Column: "last_name", Operator: model.OpContains, Value: "Smith"},
		},
		Sorts: []model.SortSpec{
			{Column: "first_name", Direction: model.SortAsc},
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Meta.Count != 2 {
		t.Fatalf("count = %d, want 2", res.Meta.Count)
	}
	if got := res.Resource[0].Fields["first_name"]; got != "Ann" {
		t.Errorf("row[0].first_name = %v, want Ann", got)
	}
	if got := res.Resource[1].Fields["last_name"]; got != "Smithers" {
		t.Errorf("row[1].last_name = %v, want Smithers", got)
	}
	if res.Meta.Capped {
		t.Error("small result reported as capped")
	}
}

func TestExecuteNestedRelations(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res, err := exec.Execute(context.Background(), model.QuerySpec{
		Table:            "volunteers",
		Columns:          []string{"first_name", "cities.name"},
		IncludeRelations: true,
		RelatedSelections: map[string][]string{
			"cities": {"name"},
		},
		Sorts: []model.SortSpec{{Column: "first_name", Direction: model.SortAsc}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Meta.Count != 4 {
		t.Fatalf("count = %d, want 4", res.Meta.Count)
	}

	ann := res.Resource[0]
	city := ann.Relations["cities"]
	if city == nil || city["name"] != "Riverton" {
		t.Errorf("Ann's city = %v, want Riverton", city)
	}

	// Cal has a NULL city_id: the relation must be present and nil, not
	// an empty object.
	cal := res.Resource[2]
	if cal.Fields["first_name"] != "Cal" {
		t.Fatalf("row[2] = %v, want Cal", cal.Fields["first_name"])
	}
	rel, present := cal.Relations["cities"]
	if !present {
		t.Fatal("unresolved relation missing from row")
	}
	if rel != nil {
		t.Errorf("unresolved relation = %v, want nil", rel)
	}
}

func TestExecuteFilterOnRelatedColumn(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res, err := exec.Execute(context.Background(), model.QuerySpec{
		Table:            "volunteers",
		Columns:          []string{"first_name", "cities.name"},
		IncludeRelations: true,
		RelatedSelections: map[string][]string{
			"cities": {"name"},
		},
		Filters: []model.AdvancedFilter{
			{Column: "cities.name", Operator: model.OpEq, Value: "Riverton"},
		},
		Sorts: []model.SortSpec{{Column: "cities.name", Direction: model.SortAsc}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Meta.Count != 2 {
		t.Fatalf("count = %d, want 2", res.Meta.Count)
	}
	for _, row := range res.Resource {
		if row.Relations["cities"]["name"] != "Riverton" {
			t.Errorf("unexpected city in filtered result: %v", row.Relations["cities"])
		}
	}
}

// A TEXT column holding numeric-looking data must match as text: the
// leading zero is significant, and binding an integer would find
// nothing.
func TestExecuteExactMatchOnTextColumn(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res, err := exec.Execute(context.Background(), model.QuerySpec{
		Table:   "volunteers",
		Columns: []string{"first_name", "zip"},
		Filters: []model.AdvancedFilter{
			{Column: "zip", Operator: model.OpEq, Value: "01234"},
		},
		Sorts: []model.SortSpec{{Column: "first_name", Direction: model.SortAsc}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Meta.Count != 2 {
		t.Fatalf("count = %d, want 2", res.Meta.Count)
	}
	if got := res.Resource[0].Fields["zip"]; got != "01234" {
		t.Errorf("zip = %v, want 01234", got)
	}
}

func TestExecuteRowCap(t *testing.T) {
	exec, src := newTestExecutor(t)

	db := src.DB()
	for i := 100; i < 250; i++ {
		db.MustExec(fmt.Sprintf(
			`INSERT INTO volunteers (id, first_name, last_name, hours) VALUES (%d, 'V%d', 'Bulk', 1)`, i, i))
	}

	res, err := exec.Execute(context.Background(), model.QuerySpec{
		Table:   "volunteers",
		Columns: []string{"id", "last_name"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Meta.Count != DefaultRowCap {
		t.Errorf("count = %d, want %d", res.Meta.Count, DefaultRowCap)
	}
	if len(res.Resource) != DefaultRowCap {
		t.Errorf("rows = %d, want %d", len(res.Resource), DefaultRowCap)
	}
	if !res.Meta.Capped {
		t.Error("capped result not flagged")
	}
}

func TestExecuteFailsClosed(t *testing.T) {
	exec, _ := newTestExecutor(t)

	cases := []struct {
		name string
		spec model.QuerySpec
	}{
		{
			"unknown operator",
			model.QuerySpec{
				Table:   "volunteers",
				Columns: []string{"hours"},
				Filters: []model.AdvancedFilter{{Column: "hours", Operator: "regex", Value: "x"}},
			},
		},
		{
			"filter on unselected column",
			model.QuerySpec{
				Table:   "volunteers",
				Columns: []string{"first_name"},
				Filters: []model.AdvancedFilter{{Column: "hours", Operator: model.OpGt, Value: "1"}},
			},
		},
		{
			"filter on relation path without inclusion",
			model.QuerySpec{
				Table:   "volunteers",
				Columns: []string{"first_name", "cities.name"},
				Filters: []model.AdvancedFilter{{Column: "cities.name", Operator: model.OpEq, Value: "x"}},
			},
		},
		{
			"between missing upper bound",
			model.QuerySpec{
				Table:   "volunteers",
				Columns: []string{"hours"},
				Filters: []model.AdvancedFilter{{Column: "hours", Operator: model.OpBetween, Value: "1"}},
			},
		},
		{
			"dangling filter with empty selection",
			model.QuerySpec{
				Table:   "volunteers",
				Filters: []model.AdvancedFilter{{Column: "last_name", Operator: model.OpContains, Value: "Smith"}},
			},
		},
		{
			"dangling sort with empty selection",
			model.QuerySpec{
				Table: "volunteers",
				Sorts: []model.SortSpec{{Column: "last_name", Direction: model.SortAsc}},
			},
		},
		{
			"unknown table",
			model.QuerySpec{Table: "payroll", Columns: []string{"id"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := exec.Execute(context.Background(), tc.spec)
			if err == nil {
				t.Fatal("expected error")
			}
			var qe *QueryError
			if !errors.As(err, &qe) {
				t.Fatalf("error type = %T, want *QueryError", err)
			}
			if res != nil {
				t.Error("fail-closed execution returned rows")
			}
		})
	}
}

func TestExecuteEmptySelection(t *testing.T) {
	exec, _ := newTestExecutor(t)

	for _, spec := range []model.QuerySpec{
		{},
		{Table: "volunteers"},
	} {
		res, err := exec.Execute(context.Background(), spec)
		if err != nil {
			t.Fatalf("Execute(%+v): %v", spec, err)
		}
		if len(res.Resource) != 0 {
			t.Errorf("empty selection returned %d rows", len(res.Resource))
		}
	}
}

func TestExecuteOperators(t *testing.T) {
	exec, _ := newTestExecutor(t)

	cases := []struct {
		name   string
		filter model.AdvancedFilter
		want   int
	}{
		{"eq", model.AdvancedFilter{Column: "last_name", Operator: model.OpEq, Value: "Smith"}, 1},
		{"startsWith", model.AdvancedFilter{Column: "last_name", Operator: model.OpStartsWith, Value: "Smi"}, 2},
		{"endsWith", model.AdvancedFilter{Column: "last_name", Operator: model.OpEndsWith, Value: "s"}, 3},
		{"gt", model.AdvancedFilter{Column: "hours", Operator: model.OpGt, Value: "12"}, 2},
		{"gte", model.AdvancedFilter{Column: "hours", Operator: model.OpGte, Value: "12"}, 3},
		{"between", model.AdvancedFilter{Column: "hours", Operator: model.OpBetween, Value: "4", ValueTo: "25"}, 3},
		{"in", model.AdvancedFilter{Column: "first_name", Operator: model.OpIn, Value: "Ann,Dee"}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := exec.Execute(context.Background(), model.QuerySpec{
				Table:   "volunteers",
				Columns: []string{"first_name", "last_name", "hours"},
				Filters: []model.AdvancedFilter{tc.filter},
			})
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if res.Meta.Count != tc.want {
				t.Errorf("count = %d, want %d", res.Meta.Count, tc.want)
			}
		})
	}
}
