package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/civiclab/reportd/internal/model"
)

// PlaceholderFunc returns the SQL placeholder for a given 1-based parameter index.
type PlaceholderFunc func(index int) string

// DollarPlaceholder returns $1, $2, etc. (PostgreSQL).
func DollarPlaceholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// QuestionPlaceholder returns ? for all params (MySQL, SQLite).
func QuestionPlaceholder(_ int) string {
	return "?"
}

// QualifyFunc maps a column entry (bare name or "table.column" path) to its
// quoted, alias-qualified SQL name, e.g. `t."last_name"` or `r1."name"`.
type QualifyFunc func(entry string) string

// TypeFunc reports the declared SQL type of a column entry, or "" when
// unknown. Unknown types bind values as strings.
type TypeFunc func(entry string) string

// Predicate holds a parameterized SQL WHERE fragment and its bind values.
type Predicate struct {
	SQL  string
	Args []any
}

// BuildPredicate renders one advanced filter as a parameterized SQL
// fragment. startIndex is the 1-based index of the first placeholder, so
// fragments can be appended to an existing parameterized query.
//
// Operator semantics: eq is exact match; contains/startsWith/endsWith use
// LIKE with the backing store's text collation; gt/gte/lt/lte compare
// numerically on numeric columns, lexically on text; between is an
// inclusive range over value..value_to; in treats value as a
// comma-delimited list and matches membership. Values bind as numbers
// only when the column's declared type is numeric, so text columns
// holding numeric-looking data (zip codes, leading-zero ids) keep exact
// string matching.
func BuildPredicate(f model.AdvancedFilter, qualify QualifyFunc, typeOf TypeFunc, ph PlaceholderFunc, startIndex int) (*Predicate, error) {
	if !f.Operator.Valid() {
		return nil, fmt.Errorf("unknown filter operator %q", f.Operator)
	}
	if err := ValidateColumnEntry(f.Column); err != nil {
		return nil, fmt.Errorf("invalid filter column: %w", err)
	}
	if f.Operator != model.OpBetween && f.ValueTo != "" {
		return nil, fmt.Errorf("value_to is only valid with the between operator")
	}

	col := qualify(f.Column)
	numeric := typeOf != nil && NumericType(typeOf(f.Column))
	next := startIndex

	bind := func() string {
		p := ph(next)
		next++
		return p
	}
	bindValue := func(s string) any {
		if numeric {
			return CoerceValue(s)
		}
		return s
	}

	switch f.Operator {
	case model.OpEq:
		return &Predicate{SQL: col + " = " + bind(), Args: []any{bindValue(f.Value)}}, nil

	case model.OpContains:
		v := "%" + escapeLike(f.Value) + "%"
		return &Predicate{SQL: col + " LIKE " + bind() + " ESCAPE '\\'", Args: []any{v}}, nil

	case model.OpStartsWith:
		v := escapeLike(f.Value) + "%"
		return &Predicate{SQL: col + " LIKE " + bind() + " ESCAPE '\\'", Args: []any{v}}, nil

	case model.OpEndsWith:
		v := "%" + escapeLike(f.Value)
		return &Predicate{SQL: col + " LIKE " + bind() + " ESCAPE '\\'", Args: []any{v}}, nil

	case model.OpGt, model.OpGte, model.OpLt, model.OpLte:
		op := map[model.Operator]string{
			model.OpGt: ">", model.OpGte: ">=", model.OpLt: "<", model.OpLte: "<=",
		}[f.Operator]
		return &Predicate{SQL: col + " " + op + " " + bind(), Args: []any{bindValue(f.Value)}}, nil

	case model.OpBetween:
		if strings.TrimSpace(f.ValueTo) == "" {
			return nil, fmt.Errorf("between filter on %q requires value_to", f.Column)
		}
		lo := bindValue(f.Value)
		hi := bindValue(f.ValueTo)
		pLo := bind()
		pHi := bind()
		return &Predicate{SQL: col + " BETWEEN " + pLo + " AND " + pHi, Args: []any{lo, hi}}, nil

	case model.OpIn:
		items := splitInList(f.Value)
		if len(items) == 0 {
			return nil, fmt.Errorf("in filter on %q requires at least one value", f.Column)
		}
		placeholders := make([]string, len(items))
		args := make([]any, len(items))
		for i, item := range items {
			placeholders[i] = bind()
			args[i] = bindValue(item)
		}
		return &Predicate{SQL: col + " IN (" + strings.Join(placeholders, ", ") + ")", Args: args}, nil
	}

	return nil, fmt.Errorf("unknown filter operator %q", f.Operator)
}

// BuildWhere renders a set of filters as a single AND-combined WHERE
// fragment (without the WHERE keyword). Returns an empty fragment for an
// empty filter set. Any single malformed filter fails the whole build.
func BuildWhere(filters []model.AdvancedFilter, qualify QualifyFunc, typeOf TypeFunc, ph PlaceholderFunc, startIndex int) (*Predicate, error) {
	if len(filters) == 0 {
		return &Predicate{}, nil
	}
	var parts []string
	var args []any
	next := startIndex
	for _, f := range filters {
		p, err := BuildPredicate(f, qualify, typeOf, ph, next)
		if err != nil {
			return nil, err
		}
		parts = append(parts, "("+p.SQL+")")
		args = append(args, p.Args...)
		next += len(p.Args)
	}
	return &Predicate{SQL: strings.Join(parts, " AND "), Args: args}, nil
}

// BuildOrderBy renders sort keys as an ORDER BY fragment (without the
// keyword), preserving sequence order: the first entry is the primary key,
// later entries break ties.
func BuildOrderBy(sorts []model.SortSpec, qualify QualifyFunc) (string, error) {
	if len(sorts) == 0 {
		return "", nil
	}
	parts := make([]string, len(sorts))
	for i, s := range sorts {
		if !s.Direction.Valid() {
			return "", fmt.Errorf("invalid sort direction %q: must be asc or desc", s.Direction)
		}
		if err := ValidateColumnEntry(s.Column); err != nil {
			return "", fmt.Errorf("invalid sort column: %w", err)
		}
		dir := "ASC"
		if s.Direction == model.SortDesc {
			dir = "DESC"
		}
		parts[i] = qualify(s.Column) + " " + dir
	}
	return strings.Join(parts, ", "), nil
}

// NumericType reports whether a declared SQL column type compares
// numerically. Matching is substring-based over the lowercased type so
// dialect variants like "INT UNSIGNED" or "double precision" qualify.
func NumericType(sqlType string) bool {
	t := strings.ToLower(sqlType)
	for _, kw := range []string{
		"int", "serial", "decimal", "numeric", "real", "double",
		"float", "money", "number", "year",
	} {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// CoerceValue converts a filter value string to int64 or float64 when it
// parses cleanly as a number, so numeric columns compare numerically.
// Everything else binds as a string.
func CoerceValue(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	if !strings.Contains(trimmed, ".") {
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n
		}
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return s
}

// splitInList splits a comma-delimited membership list, trimming
// whitespace and dropping empty items.
func splitInList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// escapeLike escapes LIKE wildcards in a literal match value so user input
// matches verbatim.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
