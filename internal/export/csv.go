package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/civiclab/reportd/internal/model"
)

// WriteCSV flattens the result onto columns and writes it as CSV, header
// row first.
func WriteCSV(w io.Writer, result *model.QueryResult, columns []string) error {
	table, err := Flatten(result, columns)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(table.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range table.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
