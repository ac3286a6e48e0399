package builder

import (
	"reflect"
	"testing"

	"github.com/civiclab/reportd/internal/model"
)

func testSchema() map[string]model.TableSchema {
	return map[string]model.TableSchema{
		"volunteers": {
			Name: "volunteers",
			Columns: []model.Column{
				{Name: "id", Type: "integer"},
				{Name: "first_name", Type: "text"},
				{Name: "last_name", Type: "text"},
				{Name: "hours", Type: "integer"},
				{Name: "city_id", Type: "integer"},
			},
			ForeignKeys: []model.ForeignKey{
				{ColumnName: "city_id", ReferencedTable: "cities", ReferencedColumn: "id"},
			},
		},
		"cities": {
			Name: "cities",
			Columns: []model.Column{
				{Name: "id", Type: "integer"},
				{Name: "name", Type: "text"},
				{Name: "region", Type: "text"},
			},
		},
	}
}

func TestSelectTableSeedsAllLocalColumns(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("volunteers"); err != nil {
		t.Fatalf("SelectTable: %v", err)
	}

	spec := b.Spec()
	want := []string{"id", "first_name", "last_name", "hours", "city_id"}
	if !reflect.DeepEqual(spec.Columns, want) {
		t.Errorf("columns = %v, want %v", spec.Columns, want)
	}
}

func TestSelectTableUnknown(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("nope"); err == nil {
		t.Fatal("expected error for unknown table")
	}
	if got := b.Spec().Table; got != "" {
		t.Errorf("table = %q after failed select, want empty", got)
	}
}

func TestSelectTableResetsDependentState(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("volunteers"); err != nil {
		t.Fatal(err)
	}
	b.SetIncludeRelations(true)
	if err := b.ToggleRelatedColumn("cities", "name"); err != nil {
		t.Fatal(err)
	}
	if err := b.AddFilter(model.AdvancedFilter{Column: "hours", Operator: model.OpGt, Value: "10"}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddSort("last_name", model.SortAsc); err != nil {
		t.Fatal(err)
	}

	if err := b.SelectTable("cities"); err != nil {
		t.Fatal(err)
	}
	spec := b.Spec()
	if len(spec.Filters) != 0 || len(spec.Sorts) != 0 || len(spec.RelatedSelections) != 0 {
		t.Errorf("dependent state survived table switch: %+v", spec)
	}
	want := []string{"id", "name", "region"}
	if !reflect.DeepEqual(spec.Columns, want) {
		t.Errorf("columns = %v, want %v", spec.Columns, want)
	}
}

func TestToggleColumnAppendsAndRemoves(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("volunteers"); err != nil {
		t.Fatal(err)
	}

	if err := b.ToggleColumn("first_name"); err != nil {
		t.Fatal(err)
	}
	spec := b.Spec()
	want := []string{"id", "last_name", "hours", "city_id"}
	if !reflect.DeepEqual(spec.Columns, want) {
		t.Fatalf("after remove: columns = %v, want %v", spec.Columns, want)
	}

	// Re-adding appends at the end of the selection.
	if err := b.ToggleColumn("first_name"); err != nil {
		t.Fatal(err)
	}
	spec = b.Spec()
	want = []string{"id", "last_name", "hours", "city_id", "first_name"}
	if !reflect.DeepEqual(spec.Columns, want) {
		t.Fatalf("after re-add: columns = %v, want %v", spec.Columns, want)
	}
}

func TestToggleColumnUnknown(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("volunteers"); err != nil {
		t.Fatal(err)
	}
	before := b.Spec()
	if err := b.ToggleColumn("salary"); err == nil {
		t.Fatal("expected error for unknown column")
	}
	if !reflect.DeepEqual(b.Spec(), before) {
		t.Error("spec changed after failed toggle")
	}
}

func TestToggleRelatedColumnMirrorsSelection(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("volunteers"); err != nil {
		t.Fatal(err)
	}

	if err := b.ToggleRelatedColumn("cities", "name"); err == nil {
		t.Fatal("expected error when relations disabled")
	}

	b.SetIncludeRelations(true)
	if err := b.ToggleRelatedColumn("cities", "name"); err != nil {
		t.Fatal(err)
	}

	spec := b.Spec()
	if spec.Columns[len(spec.Columns)-1] != "cities.name" {
		t.Errorf("last column = %q, want cities.name", spec.Columns[len(spec.Columns)-1])
	}
	if !reflect.DeepEqual(spec.RelatedSelections["cities"], []string{"name"}) {
		t.Errorf("related selections = %v", spec.RelatedSelections["cities"])
	}

	if err := b.ToggleRelatedColumn("cities", "name"); err != nil {
		t.Fatal(err)
	}
	spec = b.Spec()
	if spec.HasColumn("cities.name") {
		t.Error("cities.name still selected after toggle off")
	}
	if len(spec.RelatedSelections["cities"]) != 0 {
		t.Errorf("related selections not cleared: %v", spec.RelatedSelections["cities"])
	}
}

func TestToggleRelatedColumnUnrelatedTable(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("cities"); err != nil {
		t.Fatal(err)
	}
	b.SetIncludeRelations(true)
	if err := b.ToggleRelatedColumn("volunteers", "first_name"); err == nil {
		t.Fatal("expected error: cities has no foreign key to volunteers")
	}
}

func TestReorderColumns(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("cities"); err != nil {
		t.Fatal(err)
	}

	if err := b.ReorderColumns(2, 0); err != nil {
		t.Fatal(err)
	}
	want := []string{"region", "id", "name"}
	if got := b.Spec().Columns; !reflect.DeepEqual(got, want) {
		t.Errorf("columns = %v, want %v", got, want)
	}

	if err := b.ReorderColumns(0, 5); err == nil {
		t.Fatal("expected range error")
	}
}

func TestDisablingRelationsPrunesPathsFiltersAndSorts(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("volunteers"); err != nil {
		t.Fatal(err)
	}
	b.SetIncludeRelations(true)
	if err := b.ToggleRelatedColumn("cities", "name"); err != nil {
		t.Fatal(err)
	}
	if err := b.AddFilter(model.AdvancedFilter{Column: "cities.name", Operator: model.OpContains, Value: "ville"}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddSort("cities.name", model.SortDesc); err != nil {
		t.Fatal(err)
	}
	if err := b.AddSort("last_name", model.SortAsc); err != nil {
		t.Fatal(err)
	}

	b.SetIncludeRelations(false)

	spec := b.Spec()
	if spec.HasColumn("cities.name") {
		t.Error("related path survived relation disable")
	}
	if len(spec.Filters) != 0 {
		t.Errorf("stale filter survived: %v", spec.Filters)
	}
	if len(spec.Sorts) != 1 || spec.Sorts[0].Column != "last_name" {
		t.Errorf("sorts = %v, want only last_name", spec.Sorts)
	}
}

func TestEnablingRelationsSeedsEmptySelections(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("volunteers"); err != nil {
		t.Fatal(err)
	}
	b.SetIncludeRelations(true)

	spec := b.Spec()
	sel, ok := spec.RelatedSelections["cities"]
	if !ok {
		t.Fatal("cities not seeded in related selections")
	}
	if len(sel) != 0 {
		t.Errorf("seeded selection not empty: %v", sel)
	}
}

func TestAddFilterReplacesByColumn(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("volunteers"); err != nil {
		t.Fatal(err)
	}

	if err := b.AddFilter(model.AdvancedFilter{Column: "hours", Operator: model.OpGt, Value: "5"}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddFilter(model.AdvancedFilter{Column: "last_name", Operator: model.OpStartsWith, Value: "S"}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddFilter(model.AdvancedFilter{Column: "hours", Operator: model.OpLte, Value: "40"}); err != nil {
		t.Fatal(err)
	}

	spec := b.Spec()
	if len(spec.Filters) != 2 {
		t.Fatalf("filters = %v, want 2 entries", spec.Filters)
	}
	// Replacement keeps the original position.
	if spec.Filters[0].Column != "hours" || spec.Filters[0].Operator != model.OpLte {
		t.Errorf("filter[0] = %+v, want replaced hours filter", spec.Filters[0])
	}
}

func TestAddFilterValidation(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("volunteers"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		filter model.AdvancedFilter
	}{
		{"unknown operator", model.AdvancedFilter{Column: "hours", Operator: "regex", Value: "x"}},
		{"between missing value_to", model.AdvancedFilter{Column: "hours", Operator: model.OpBetween, Value: "1"}},
		{"unselectable column", model.AdvancedFilter{Column: "cities.name", Operator: model.OpEq, Value: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := b.AddFilter(tc.filter); err == nil {
				t.Error("expected error")
			}
			if len(b.Spec().Filters) != 0 {
				t.Error("rejected filter was stored")
			}
		})
	}
}

func TestAddFilterDropsStrayValueTo(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("volunteers"); err != nil {
		t.Fatal(err)
	}
	if err := b.AddFilter(model.AdvancedFilter{Column: "hours", Operator: model.OpGt, Value: "5", ValueTo: "10"}); err != nil {
		t.Fatal(err)
	}
	if got := b.Spec().Filters[0].ValueTo; got != "" {
		t.Errorf("value_to = %q, want empty for non-between operator", got)
	}
}

func TestAddSortReplacesAndMovesToEnd(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("volunteers"); err != nil {
		t.Fatal(err)
	}

	if err := b.AddSort("last_name", model.SortAsc); err != nil {
		t.Fatal(err)
	}
	if err := b.AddSort("hours", model.SortDesc); err != nil {
		t.Fatal(err)
	}
	if err := b.AddSort("last_name", model.SortDesc); err != nil {
		t.Fatal(err)
	}

	spec := b.Spec()
	want := []model.SortSpec{
		{Column: "hours", Direction: model.SortDesc},
		{Column: "last_name", Direction: model.SortDesc},
	}
	if !reflect.DeepEqual(spec.Sorts, want) {
		t.Errorf("sorts = %v, want %v", spec.Sorts, want)
	}
}

func TestToggleColumnOffPrunesItsFilterAndSort(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("volunteers"); err != nil {
		t.Fatal(err)
	}
	if err := b.AddFilter(model.AdvancedFilter{Column: "hours", Operator: model.OpGte, Value: "1"}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddSort("hours", model.SortAsc); err != nil {
		t.Fatal(err)
	}

	if err := b.ToggleColumn("hours"); err != nil {
		t.Fatal(err)
	}

	spec := b.Spec()
	if len(spec.Filters) != 0 {
		t.Errorf("filter on deselected column survived: %v", spec.Filters)
	}
	if len(spec.Sorts) != 0 {
		t.Errorf("sort on deselected column survived: %v", spec.Sorts)
	}
}

func TestRemoveAndClear(t *testing.T) {
	b := New(testSchema())
	if err := b.SelectTable("volunteers"); err != nil {
		t.Fatal(err)
	}
	if err := b.AddFilter(model.AdvancedFilter{Column: "hours", Operator: model.OpGt, Value: "0"}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddSort("hours", model.SortAsc); err != nil {
		t.Fatal(err)
	}

	b.RemoveFilter("hours")
	b.RemoveSort("hours")
	spec := b.Spec()
	if len(spec.Filters) != 0 || len(spec.Sorts) != 0 {
		t.Errorf("remove left state behind: %+v", spec)
	}

	if err := b.AddFilter(model.AdvancedFilter{Column: "hours", Operator: model.OpGt, Value: "0"}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddSort("hours", model.SortAsc); err != nil {
		t.Fatal(err)
	}
	b.ClearFilters()
	b.ClearSorts()
	spec = b.Spec()
	if len(spec.Filters) != 0 || len(spec.Sorts) != 0 {
		t.Errorf("clear left state behind: %+v", spec)
	}
}
