package builder

import "github.com/civiclab/reportd/internal/model"

// View is the derived, read-only projection of a QuerySpec against the
// schema snapshot. It is recomputed in full after every mutation rather
// than patched incrementally, which removes the whole class of
// forgot-to-prune bugs.
type View struct {
	// SelectableColumns is the union of the spec's local column entries
	// with, when relations are included, its selected related column
	// paths, in spec order. Filters and sorts may only reference members
	// of this set.
	SelectableColumns []string `json:"selectable_columns"`

	// LocalColumns lists every column of the selected table, in schema
	// order, whether selected or not.
	LocalColumns []string `json:"local_columns"`

	// RelatedTables lists the tables reachable from the selected table
	// via one foreign-key hop, deduplicated.
	RelatedTables []string `json:"related_tables"`

	// RelatedColumns lists every column of each reachable related table.
	RelatedColumns map[string][]string `json:"related_columns,omitempty"`
}

// Selectable reports whether a column entry is in the selectable set.
func (v View) Selectable(entry string) bool {
	for _, c := range v.SelectableColumns {
		if c == entry {
			return true
		}
	}
	return false
}

// Derive computes the View for a spec. It is a pure function of
// (schema, spec).
func Derive(schema map[string]model.TableSchema, spec model.QuerySpec) View {
	view := View{}
	table, ok := schema[spec.Table]
	if !ok {
		return view
	}

	view.LocalColumns = table.ColumnNames()
	view.RelatedTables = table.RelatedTables()
	if len(view.RelatedTables) > 0 {
		view.RelatedColumns = make(map[string][]string, len(view.RelatedTables))
		for _, rel := range view.RelatedTables {
			if rt, ok := schema[rel]; ok {
				view.RelatedColumns[rel] = rt.ColumnNames()
			}
		}
	}

	for _, entry := range spec.Columns {
		relTable, col, isPath := model.SplitColumnPath(entry)
		if !isPath {
			if table.HasColumn(col) {
				view.SelectableColumns = append(view.SelectableColumns, entry)
			}
			continue
		}
		if !spec.IncludeRelations {
			continue
		}
		if !containsString(spec.RelatedSelections[relTable], col) {
			continue
		}
		if rt, ok := schema[relTable]; ok && rt.HasColumn(col) {
			view.SelectableColumns = append(view.SelectableColumns, entry)
		}
	}
	return view
}

// Prune drops every filter and sort whose column is no longer in the
// selectable set. This is routine cleanup after the set shrinks, not a
// failure; it happens silently.
func Prune(spec model.QuerySpec, view View) model.QuerySpec {
	out := spec
	out.Filters = nil
	for _, f := range spec.Filters {
		if view.Selectable(f.Column) {
			out.Filters = append(out.Filters, f)
		}
	}
	out.Sorts = nil
	for _, s := range spec.Sorts {
		if view.Selectable(s.Column) {
			out.Sorts = append(out.Sorts, s)
		}
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
