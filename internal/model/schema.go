package model

// TableSchema describes one reportable table: its columns in display order
// and its one-hop foreign key relationships to other tables. Schemas are
// produced once per session by the catalog and treated as immutable.
type TableSchema struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// Column describes a single column within a reportable table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ForeignKey describes a one-hop relationship from a column of this table
// to a column (usually the primary key) of another table.
type ForeignKey struct {
	ColumnName       string `json:"column_name"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// HasColumn reports whether the table has a column with the given name.
func (t TableSchema) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ColumnType returns the declared type of the named column.
func (t TableSchema) ColumnType(name string) (string, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c.Type, true
		}
	}
	return "", false
}

// ColumnNames returns the table's column names in display order.
func (t TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// RelatedTables returns the names of all tables reachable via this table's
// foreign keys, deduplicated, in foreign-key declaration order. A table
// referenced by multiple foreign keys appears once.
func (t TableSchema) RelatedTables() []string {
	seen := make(map[string]bool, len(t.ForeignKeys))
	var out []string
	for _, fk := range t.ForeignKeys {
		if seen[fk.ReferencedTable] {
			continue
		}
		seen[fk.ReferencedTable] = true
		out = append(out, fk.ReferencedTable)
	}
	return out
}

// ForeignKeyTo returns the first foreign key referencing the given table.
func (t TableSchema) ForeignKeyTo(table string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.ReferencedTable == table {
			return fk, true
		}
	}
	return ForeignKey{}, false
}
