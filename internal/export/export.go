// Package export turns query results into downloadable artifacts. Both
// adapters work from the same flattened tabular form: one column per
// selected entry, relation paths resolved through the nested row.
package export

import (
	"errors"
	"fmt"
	"time"

	"github.com/civiclab/reportd/internal/model"
)

// ErrEmpty is returned when there is nothing to export. Empty exports
// are rejected rather than producing a header-only file.
var ErrEmpty = errors.New("no rows to export")

// nullCell is the rendered form of an absent value: a NULL field or an
// unresolved relation.
const nullCell = "null"

// Table is the flattened form of a result set. Header entries keep the
// spec's column order, related paths included verbatim ("cities.name").
type Table struct {
	Header []string
	Rows   [][]string
}

// Flatten projects a result onto the given column entries. Returns
// ErrEmpty when the result has no rows or no columns are selected.
func Flatten(result *model.QueryResult, columns []string) (*Table, error) {
	if result == nil || len(result.Resource) == 0 || len(columns) == 0 {
		return nil, ErrEmpty
	}

	t := &Table{
		Header: append([]string(nil), columns...),
		Rows:   make([][]string, 0, len(result.Resource)),
	}
	for _, row := range result.Resource {
		cells := make([]string, len(columns))
		for i, entry := range columns {
			cells[i] = formatCell(row.Value(entry))
		}
		t.Rows = append(t.Rows, cells)
	}
	return t, nil
}

// formatCell renders one value for tabular output.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return nullCell
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}

// Filename builds the download name for an export: the table name plus
// the generation date and format extension.
func Filename(table, ext string, now time.Time) string {
	if table == "" {
		table = "report"
	}
	return fmt.Sprintf("%s_%s.%s", table, now.Format("2006-01-02"), ext)
}
