package model

import "encoding/json"

// Row is one result row from the query executor. Local column values live
// in Fields; related-table values are nested one level under the relation
// name in Relations. A nil relation map means the foreign key did not
// resolve (the nested object serializes as JSON null).
type Row struct {
	Fields    map[string]any
	Relations map[string]map[string]any
}

// Value resolves a column entry against the row: a bare name is a
// top-level field, a "table.column" path is a nested relation lookup.
// Returns nil when the relation is unresolved or the field is absent.
func (r Row) Value(entry string) any {
	table, column, ok := SplitColumnPath(entry)
	if !ok {
		return r.Fields[column]
	}
	rel, exists := r.Relations[table]
	if !exists || rel == nil {
		return nil
	}
	return rel[column]
}

// MarshalJSON serializes the row with local columns as top-level keys and
// each relation as a nested object (or null) under the relation name.
func (r Row) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Fields)+len(r.Relations))
	for k, v := range r.Fields {
		flat[k] = v
	}
	for name, rel := range r.Relations {
		if rel == nil {
			flat[name] = nil
		} else {
			flat[name] = rel
		}
	}
	return json.Marshal(flat)
}

// UnmarshalJSON is the inverse of MarshalJSON: object values become
// relations, scalars become fields. A JSON null lands in Fields since the
// wire shape cannot distinguish a null field from an unresolved relation.
func (r *Row) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	r.Fields = make(map[string]any, len(flat))
	r.Relations = nil
	for k, raw := range flat {
		var rel map[string]any
		if len(raw) > 0 && raw[0] == '{' && json.Unmarshal(raw, &rel) == nil {
			if r.Relations == nil {
				r.Relations = make(map[string]map[string]any)
			}
			r.Relations[k] = rel
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		r.Fields[k] = v
	}
	return nil
}
