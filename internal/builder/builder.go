// Package builder owns the mutable report definition for one editing
// session: the selected table, the ordered column selection, filters,
// sorts, and relation toggles, plus the derived selectable-column view.
package builder

import (
	"fmt"
	"strings"
	"sync"

	"github.com/civiclab/reportd/internal/model"
)

// Builder is the query spec state container. All mutations validate
// first and apply second, so a failed mutation leaves the spec
// untouched. After every successful mutation the derived view is
// recomputed and stale filters/sorts are pruned.
type Builder struct {
	mu     sync.Mutex
	schema map[string]model.TableSchema
	spec   model.QuerySpec
	view   View
}

// New creates a Builder over a catalog snapshot. The snapshot is
// immutable for the builder's lifetime.
func New(schema map[string]model.TableSchema) *Builder {
	return &Builder{schema: schema}
}

// Spec returns a deep copy of the current spec.
func (b *Builder) Spec() model.QuerySpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spec.Clone()
}

// View returns the current derived view.
func (b *Builder) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view
}

// SelectTable sets the selected table and resets all dependent state:
// columns become all of the new table's local columns, filters, sorts,
// and related selections are cleared. Selecting the empty table clears
// everything.
func (b *Builder) SelectTable(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if name == "" {
		b.spec = model.QuerySpec{}
		b.refreshLocked()
		return nil
	}

	table, ok := b.schema[name]
	if !ok {
		return fmt.Errorf("unknown table %q", name)
	}

	b.spec = model.QuerySpec{
		Table:   name,
		Columns: table.ColumnNames(),
	}
	b.refreshLocked()
	return nil
}

// ToggleColumn adds or removes a local column from the ordered
// selection. A newly added column is appended at the end; removing one
// preserves the order of the untouched entries.
func (b *Builder) ToggleColumn(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	table, ok := b.schema[b.spec.Table]
	if !ok {
		return fmt.Errorf("no table selected")
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("%q is a relation path; use the related-column toggle", name)
	}
	if !table.HasColumn(name) {
		return fmt.Errorf("table %q has no column %q", b.spec.Table, name)
	}

	b.spec.Columns = toggleEntry(b.spec.Columns, name)
	b.refreshLocked()
	return nil
}

// ToggleRelatedColumn adds or removes the path "relTable.column" from
// the ordered selection and mirrors the membership in RelatedSelections.
// The two are updated together under the builder lock, so they can never
// drift apart.
func (b *Builder) ToggleRelatedColumn(relTable, column string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	table, ok := b.schema[b.spec.Table]
	if !ok {
		return fmt.Errorf("no table selected")
	}
	if !b.spec.IncludeRelations {
		return fmt.Errorf("relations are not included")
	}
	if _, ok := table.ForeignKeyTo(relTable); !ok {
		return fmt.Errorf("table %q is not related to %q", relTable, b.spec.Table)
	}
	rt, ok := b.schema[relTable]
	if !ok || !rt.HasColumn(column) {
		return fmt.Errorf("table %q has no column %q", relTable, column)
	}

	path := model.ColumnPath(relTable, column)
	b.spec.Columns = toggleEntry(b.spec.Columns, path)
	if b.spec.RelatedSelections == nil {
		b.spec.RelatedSelections = make(map[string][]string)
	}
	b.spec.RelatedSelections[relTable] = toggleEntry(b.spec.RelatedSelections[relTable], column)

	b.refreshLocked()
	return nil
}

// ReorderColumns moves the entry at from to position to. Local and
// related entries share the one ordered list.
func (b *Builder) ReorderColumns(from, to int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.spec.Columns)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("reorder out of range: from=%d to=%d len=%d", from, to, n)
	}
	if from == to {
		return nil
	}

	cols := b.spec.Columns
	entry := cols[from]
	cols = append(cols[:from], cols[from+1:]...)
	cols = append(cols[:to], append([]string{entry}, cols[to:]...)...)
	b.spec.Columns = cols

	b.refreshLocked()
	return nil
}

// SetIncludeRelations toggles relation inclusion. Turning it off clears
// RelatedSelections entirely and drops related paths from the column
// selection; re-enabling starts from empty selections, seeded with one
// entry per reachable related table.
func (b *Builder) SetIncludeRelations(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.spec.IncludeRelations = on

	if !on {
		b.spec.RelatedSelections = nil
		b.spec.Columns = localOnly(b.spec.Columns)
		b.refreshLocked()
		return
	}

	b.spec.RelatedSelections = make(map[string][]string)
	if table, ok := b.schema[b.spec.Table]; ok {
		for _, rel := range table.RelatedTables() {
			b.spec.RelatedSelections[rel] = []string{}
		}
	}
	b.refreshLocked()
}

// AddFilter validates and adds a filter, replacing any prior filter on
// the same column.
func (b *Builder) AddFilter(f model.AdvancedFilter) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !f.Operator.Valid() {
		return fmt.Errorf("unknown operator %q", f.Operator)
	}
	if f.Operator == model.OpBetween && strings.TrimSpace(f.ValueTo) == "" {
		return fmt.Errorf("between filter requires value_to")
	}
	if !b.view.Selectable(f.Column) {
		return fmt.Errorf("column %q is not selectable", f.Column)
	}
	if f.Operator != model.OpBetween {
		f.ValueTo = ""
	}

	replaced := false
	for i := range b.spec.Filters {
		if b.spec.Filters[i].Column == f.Column {
			b.spec.Filters[i] = f
			replaced = true
			break
		}
	}
	if !replaced {
		b.spec.Filters = append(b.spec.Filters, f)
	}
	b.refreshLocked()
	return nil
}

// RemoveFilter drops the filter on the given column, if any.
func (b *Builder) RemoveFilter(column string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.spec.Filters {
		if b.spec.Filters[i].Column == column {
			b.spec.Filters = append(b.spec.Filters[:i], b.spec.Filters[i+1:]...)
			break
		}
	}
	b.refreshLocked()
}

// ClearFilters drops all filters.
func (b *Builder) ClearFilters() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spec.Filters = nil
	b.refreshLocked()
}

// AddSort validates and adds a sort key. A prior sort on the same
// column is replaced and the entry moves to the end of the sequence, so
// re-adding a sort demotes it to the lowest precedence.
func (b *Builder) AddSort(column string, direction model.SortDirection) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !direction.Valid() {
		return fmt.Errorf("invalid sort direction %q", direction)
	}
	if !b.view.Selectable(column) {
		return fmt.Errorf("column %q is not selectable", column)
	}

	for i := range b.spec.Sorts {
		if b.spec.Sorts[i].Column == column {
			b.spec.Sorts = append(b.spec.Sorts[:i], b.spec.Sorts[i+1:]...)
			break
		}
	}
	b.spec.Sorts = append(b.spec.Sorts, model.SortSpec{Column: column, Direction: direction})
	b.refreshLocked()
	return nil
}

// RemoveSort drops the sort on the given column, if any.
func (b *Builder) RemoveSort(column string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.spec.Sorts {
		if b.spec.Sorts[i].Column == column {
			b.spec.Sorts = append(b.spec.Sorts[:i], b.spec.Sorts[i+1:]...)
			break
		}
	}
	b.refreshLocked()
}

// ClearSorts drops all sort keys.
func (b *Builder) ClearSorts() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spec.Sorts = nil
	b.refreshLocked()
}

// refreshLocked recomputes the derived view and prunes filters/sorts
// whose columns fell out of the selectable set. Called after every
// mutation with the lock held.
func (b *Builder) refreshLocked() {
	b.view = Derive(b.schema, b.spec)
	b.spec = Prune(b.spec, b.view)
}

// toggleEntry removes v from list if present, otherwise appends it.
func toggleEntry(list []string, v string) []string {
	for i, item := range list {
		if item == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return append(list, v)
}

// localOnly filters a column list down to its bare (non-path) entries.
func localOnly(list []string) []string {
	var out []string
	for _, entry := range list {
		if !strings.Contains(entry, ".") {
			out = append(out, entry)
		}
	}
	return out
}
