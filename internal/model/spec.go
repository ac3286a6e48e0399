package model

import "strings"

// Operator enumerates the filter operators supported by the report builder.
type Operator string

const (
	OpEq         Operator = "eq"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpBetween    Operator = "between"
	OpIn         Operator = "in"
)

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	switch o {
	case OpEq, OpContains, OpStartsWith, OpEndsWith,
		OpGt, OpGte, OpLt, OpLte, OpBetween, OpIn:
		return true
	}
	return false
}

// SortDirection is "asc" or "desc".
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Valid reports whether d is a known sort direction.
func (d SortDirection) Valid() bool {
	return d == SortAsc || d == SortDesc
}

// AdvancedFilter is a single column predicate. ValueTo is required and
// meaningful only when Operator is "between"; otherwise it must be empty.
type AdvancedFilter struct {
	Column   string   `json:"column" yaml:"column"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    string   `json:"value" yaml:"value"`
	ValueTo  string   `json:"value_to,omitempty" yaml:"value_to,omitempty"`
}

// SortSpec is a single sort key. The position of a SortSpec within
// QuerySpec.Sorts determines its precedence: the first entry is the
// primary key, later entries break ties.
type SortSpec struct {
	Column    string        `json:"column" yaml:"column"`
	Direction SortDirection `json:"direction" yaml:"direction"`
}

// QuerySpec is the operator's complete report definition: the selected
// table, the ordered column selection (bare names for local columns,
// "table.column" paths for related columns), the relation-inclusion flag,
// per-related-table column selections, filters, and sort keys.
//
// Invariant: every column referenced by Filters or Sorts is a member of the
// derived selectable-column set. The builder prunes stale references
// whenever that set shrinks.
type QuerySpec struct {
	Table             string              `json:"table" yaml:"table"`
	Columns           []string            `json:"columns" yaml:"columns"`
	IncludeRelations  bool                `json:"include_relations" yaml:"include_relations"`
	RelatedSelections map[string][]string `json:"related_selections,omitempty" yaml:"related_selections,omitempty"`
	Filters           []AdvancedFilter    `json:"filters,omitempty" yaml:"filters,omitempty"`
	Sorts             []SortSpec          `json:"sorts,omitempty" yaml:"sorts,omitempty"`
}

// Clone returns a deep copy of the spec. The builder hands out clones so
// callers can never mutate its internal state.
func (s QuerySpec) Clone() QuerySpec {
	out := s
	out.Columns = append([]string(nil), s.Columns...)
	out.Filters = append([]AdvancedFilter(nil), s.Filters...)
	out.Sorts = append([]SortSpec(nil), s.Sorts...)
	if s.RelatedSelections != nil {
		out.RelatedSelections = make(map[string][]string, len(s.RelatedSelections))
		for k, v := range s.RelatedSelections {
			out.RelatedSelections[k] = append([]string(nil), v...)
		}
	}
	return out
}

// LocalColumns returns the entries of Columns that name local table columns.
func (s QuerySpec) LocalColumns() []string {
	var out []string
	for _, c := range s.Columns {
		if !strings.Contains(c, ".") {
			out = append(out, c)
		}
	}
	return out
}

// RelatedColumnPaths returns the entries of Columns that are
// "table.column" relation paths.
func (s QuerySpec) RelatedColumnPaths() []string {
	var out []string
	for _, c := range s.Columns {
		if strings.Contains(c, ".") {
			out = append(out, c)
		}
	}
	return out
}

// HasColumn reports whether the given column entry (bare or path) is part
// of the ordered column selection.
func (s QuerySpec) HasColumn(entry string) bool {
	for _, c := range s.Columns {
		if c == entry {
			return true
		}
	}
	return false
}

// SplitColumnPath splits a "table.column" relation path. ok is false for a
// bare local column name.
func SplitColumnPath(entry string) (table, column string, ok bool) {
	i := strings.IndexByte(entry, '.')
	if i < 0 {
		return "", entry, false
	}
	return entry[:i], entry[i+1:], true
}

// ColumnPath joins a related table and column into the "table.column" form
// used throughout the builder.
func ColumnPath(table, column string) string {
	return table + "." + column
}
