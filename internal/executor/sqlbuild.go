package executor

import (
	"fmt"
	"strings"

	"github.com/civiclab/reportd/internal/builder"
	"github.com/civiclab/reportd/internal/model"
	"github.com/civiclab/reportd/internal/query"
	"github.com/civiclab/reportd/internal/source"
)

// baseAlias is the alias of the report's main table in generated SQL.
const baseAlias = "t"

// keySuffix marks the hidden per-relation sentinel column. The sentinel
// selects the referenced column of the joined row, so a NULL sentinel
// means the LEFT JOIN found no row and the relation is unresolved, as
// opposed to a resolved row whose fields happen to be NULL.
const keySuffix = ".__key"

// joinSpec describes one LEFT JOIN from the base table to a related
// table.
type joinSpec struct {
	Table      string
	Alias      string
	LocalCol   string
	ForeignCol string

	rendered bool
}

// plan is the compiled form of a query spec: the SQL text, its bound
// arguments, and enough shape information to turn flat result rows back
// into nested ones.
type plan struct {
	SQL  string
	Args []any

	// Columns is the ordered selected entry list, local names and
	// "table.column" paths mixed.
	Columns []string

	// Joins maps related table name to its join, for relations that
	// appear in the selection.
	Joins map[string]joinSpec
}

// compile translates a validated spec into a plan. The row limit is
// bound as a placeholder and set to one past the cap so the executor
// can tell a full page from a capped one.
func compile(src source.Source, schema map[string]model.TableSchema, spec model.QuerySpec, view builder.View, rowCap int) (*plan, error) {
	table, ok := schema[spec.Table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", spec.Table)
	}

	p := &plan{
		Columns: view.SelectableColumns,
		Joins:   make(map[string]joinSpec),
	}

	// One join per related table referenced by the selection, aliased in
	// first-reference order.
	for _, entry := range p.Columns {
		relTable, _, isPath := model.SplitColumnPath(entry)
		if !isPath {
			continue
		}
		if _, done := p.Joins[relTable]; done {
			continue
		}
		fk, ok := table.ForeignKeyTo(relTable)
		if !ok {
			return nil, fmt.Errorf("table %q is not related to %q", spec.Table, relTable)
		}
		p.Joins[relTable] = joinSpec{
			Table:      relTable,
			Alias:      fmt.Sprintf("r%d", len(p.Joins)+1),
			LocalCol:   fk.ColumnName,
			ForeignCol: fk.ReferencedColumn,
		}
	}

	qualify := func(entry string) string {
		relTable, col, isPath := model.SplitColumnPath(entry)
		if !isPath {
			return baseAlias + "." + src.QuoteIdentifier(col)
		}
		return p.Joins[relTable].Alias + "." + src.QuoteIdentifier(col)
	}

	typeOf := func(entry string) string {
		relTable, col, isPath := model.SplitColumnPath(entry)
		owner := table
		if isPath {
			rel, ok := schema[relTable]
			if !ok {
				return ""
			}
			owner = rel
		}
		typ, _ := owner.ColumnType(col)
		return typ
	}

	var selects []string
	for _, entry := range p.Columns {
		selects = append(selects, qualify(entry)+" AS "+src.QuoteIdentifier(entry))
	}
	for _, entry := range p.Columns {
		relTable, _, isPath := model.SplitColumnPath(entry)
		if !isPath {
			continue
		}
		j := p.Joins[relTable]
		sentinel := j.Alias + "." + src.QuoteIdentifier(j.ForeignCol) + " AS " + src.QuoteIdentifier(relTable+keySuffix)
		if !containsSelect(selects, sentinel) {
			selects = append(selects, sentinel)
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(src.QuoteIdentifier(spec.Table))
	sb.WriteString(" ")
	sb.WriteString(baseAlias)

	for _, entry := range p.Columns {
		relTable, _, isPath := model.SplitColumnPath(entry)
		if !isPath {
			continue
		}
		j := p.Joins[relTable]
		if j.rendered {
			continue
		}
		sb.WriteString(" LEFT JOIN ")
		sb.WriteString(src.QuoteIdentifier(j.Table))
		sb.WriteString(" ")
		sb.WriteString(j.Alias)
		sb.WriteString(" ON ")
		sb.WriteString(baseAlias + "." + src.QuoteIdentifier(j.LocalCol))
		sb.WriteString(" = ")
		sb.WriteString(j.Alias + "." + src.QuoteIdentifier(j.ForeignCol))
		j.rendered = true
		p.Joins[relTable] = j
	}

	argIndex := 1
	if len(spec.Filters) > 0 {
		where, err := query.BuildWhere(spec.Filters, qualify, typeOf, src.Placeholder, argIndex)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where.SQL)
		p.Args = append(p.Args, where.Args...)
		argIndex += len(where.Args)
	}

	if len(spec.Sorts) > 0 {
		orderBy, err := query.BuildOrderBy(spec.Sorts, qualify)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(orderBy)
	}

	sb.WriteString(" LIMIT ")
	sb.WriteString(src.Placeholder(argIndex))
	p.Args = append(p.Args, rowCap+1)

	p.SQL = sb.String()
	return p, nil
}

func containsSelect(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
