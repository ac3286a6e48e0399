// Package openapi generates the OpenAPI 3.1 description of the report
// API, including a row schema per reportable table.
package openapi

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/civiclab/reportd/internal/model"
)

// Generate builds the OpenAPI document for the report API over the given
// reportable tables.
func Generate(baseURL string, tables []model.TableSchema) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Report Query API",
			Description: "Build, preview, save, and export tabular reports over the community-services database.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	doc.Components = &components
	doc.Paths = openapi3.NewPaths()

	registerSharedSchemas(doc)
	for _, table := range tables {
		doc.Components.Schemas[rowSchemaName(table.Name)] = columnsToSchema(table.Columns)
	}

	addSchemaPaths(doc)
	addSessionPaths(doc)
	addQueryPaths(doc)
	addSavedQueryPaths(doc)
	addPresetPaths(doc)
	addExportPaths(doc)

	return doc
}

// registerSharedSchemas adds the component schemas referenced across
// endpoints.
func registerSharedSchemas(doc *openapi3.T) {
	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"kind":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}

	doc.Components.Schemas["Filter"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"column", "operator", "value"},
			Properties: openapi3.Schemas{
				"column":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"operator": &openapi3.SchemaRef{Value: operatorSchema()},
				"value":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"value_to": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:        &openapi3.Types{"string"},
					Description: "Upper bound; required for the between operator, forbidden otherwise.",
				}},
			},
		},
	}

	doc.Components.Schemas["Sort"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"column", "direction"},
			Properties: openapi3.Schemas{
				"column": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"direction": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type: &openapi3.Types{"string"},
					Enum: []interface{}{"asc", "desc"},
				}},
			},
		},
	}

	doc.Components.Schemas["QuerySpec"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"table", "columns"},
			Properties: openapi3.Schemas{
				"table": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"columns": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:        &openapi3.Types{"array"},
					Description: `Ordered selection; bare names for local columns, "table.column" paths for related ones.`,
					Items:       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				}},
				"include_relations": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"related_selections": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type: &openapi3.Types{"object"},
					AdditionalProperties: openapi3.AdditionalProperties{
						Schema: &openapi3.SchemaRef{Value: &openapi3.Schema{
							Type:  &openapi3.Types{"array"},
							Items: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
						}},
					},
				}},
				"filters": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:  &openapi3.Types{"array"},
					Items: openapi3.NewSchemaRef("#/components/schemas/Filter", nil),
				}},
				"sorts": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:  &openapi3.Types{"array"},
					Items: openapi3.NewSchemaRef("#/components/schemas/Sort", nil),
				}},
			},
		},
	}

	doc.Components.Schemas["QueryResult"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"columns": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:  &openapi3.Types{"array"},
					Items: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				}},
				"resource": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:  &openapi3.Types{"array"},
					Items: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
				}},
				"meta": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type: &openapi3.Types{"object"},
					Properties: openapi3.Schemas{
						"count":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
						"capped":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
						"sequence": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}},
						"took_ms":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}}},
					},
				}},
			},
		},
	}

	doc.Components.Schemas["SessionState"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "uuid"}},
				"spec": openapi3.NewSchemaRef("#/components/schemas/QuerySpec", nil),
				"view": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
			},
		},
	}

	doc.Components.Schemas["SavedQuery"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id":         &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "uuid"}},
				"name":       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"spec":       openapi3.NewSchemaRef("#/components/schemas/QuerySpec", nil),
				"created_at": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
				"updated_at": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
			},
		},
	}
}

func operatorSchema() *openapi3.Schema {
	return &openapi3.Schema{
		Type: &openapi3.Types{"string"},
		Enum: []interface{}{
			"eq", "contains", "startsWith", "endsWith",
			"gt", "gte", "lt", "lte", "between", "in",
		},
	}
}

func addSchemaPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/v1/schema", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"schema"},
			Summary:     "List reportable tables",
			Description: "Every reportable table with its columns and one-hop relationships.",
			OperationID: "list_schema",
			Responses: newResponses("200", "Reportable tables",
				&openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"tables": &openapi3.SchemaRef{
								Value: &openapi3.Schema{
									Type:  &openapi3.Types{"array"},
									Items: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
								},
							},
						},
					},
				}),
		},
	})
	doc.Paths.Set("/api/v1/schema/{tableName}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"schema"},
			Summary:     "Get one table schema",
			OperationID: "get_schema",
			Parameters:  pathParams("tableName"),
			Responses: newResponses("200", "Table schema",
				&openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}),
		},
	})
}

func addSessionPaths(doc *openapi3.T) {
	stateRef := openapi3.NewSchemaRef("#/components/schemas/SessionState", nil)
	resultRef := openapi3.NewSchemaRef("#/components/schemas/QueryResult", nil)

	doc.Paths.Set("/api/v1/sessions", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"sessions"},
			Summary:     "Open a builder session",
			OperationID: "create_session",
			Responses:   newResponses("201", "Session created", stateRef),
		},
	})
	doc.Paths.Set("/api/v1/sessions/{sessionID}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"sessions"},
			Summary:     "Get session state",
			OperationID: "get_session",
			Parameters:  pathParams("sessionID"),
			Responses:   newResponses("200", "Session state", stateRef),
		},
		Delete: &openapi3.Operation{
			Tags:        []string{"sessions"},
			Summary:     "Close a session",
			OperationID: "delete_session",
			Parameters:  pathParams("sessionID"),
			Responses:   newResponses("204", "Session closed", nil),
		},
	})

	mutations := []struct {
		path, opID, summary string
		body                *openapi3.SchemaRef
	}{
		{"/table", "select_table", "Select the report table",
			objectSchema(map[string]*openapi3.Schema{"table": {Type: &openapi3.Types{"string"}}})},
		{"/columns/toggle", "toggle_column", "Toggle a column in the selection",
			objectSchema(map[string]*openapi3.Schema{
				"table":  {Type: &openapi3.Types{"string"}},
				"column": {Type: &openapi3.Types{"string"}},
			})},
		{"/columns/reorder", "reorder_columns", "Reorder the column selection",
			objectSchema(map[string]*openapi3.Schema{
				"from": {Type: &openapi3.Types{"integer"}},
				"to":   {Type: &openapi3.Types{"integer"}},
			})},
		{"/relations", "set_relations", "Toggle relation inclusion",
			objectSchema(map[string]*openapi3.Schema{"include": {Type: &openapi3.Types{"boolean"}}})},
		{"/filters", "add_filter", "Add or replace a filter",
			openapi3.NewSchemaRef("#/components/schemas/Filter", nil)},
		{"/sorts", "add_sort", "Add or replace a sort key",
			openapi3.NewSchemaRef("#/components/schemas/Sort", nil)},
	}
	for _, m := range mutations {
		doc.Paths.Set("/api/v1/sessions/{sessionID}"+m.path, &openapi3.PathItem{
			Post: &openapi3.Operation{
				Tags:        []string{"sessions"},
				Summary:     m.summary,
				OperationID: m.opID,
				Parameters:  pathParams("sessionID"),
				RequestBody: jsonBody(m.body),
				Responses:   newResponses("200", "Updated session state", stateRef),
			},
		})
	}

	doc.Paths.Set("/api/v1/sessions/{sessionID}/filters/{column}", &openapi3.PathItem{
		Delete: &openapi3.Operation{
			Tags:        []string{"sessions"},
			Summary:     "Remove a filter",
			OperationID: "remove_filter",
			Parameters:  pathParams("sessionID", "column"),
			Responses:   newResponses("200", "Updated session state", stateRef),
		},
	})
	doc.Paths.Set("/api/v1/sessions/{sessionID}/sorts/{column}", &openapi3.PathItem{
		Delete: &openapi3.Operation{
			Tags:        []string{"sessions"},
			Summary:     "Remove a sort key",
			OperationID: "remove_sort",
			Parameters:  pathParams("sessionID", "column"),
			Responses:   newResponses("200", "Updated session state", stateRef),
		},
	})
	doc.Paths.Set("/api/v1/sessions/{sessionID}/spec", &openapi3.PathItem{
		Put: &openapi3.Operation{
			Tags:        []string{"sessions"},
			Summary:     "Replace the session spec",
			Description: "Loads a saved query or preset spec into the session, revalidating it.",
			OperationID: "load_spec",
			Parameters:  pathParams("sessionID"),
			RequestBody: jsonBody(openapi3.NewSchemaRef("#/components/schemas/QuerySpec", nil)),
			Responses:   newResponses("200", "Updated session state", stateRef),
		},
	})
	doc.Paths.Set("/api/v1/sessions/{sessionID}/preview", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"sessions"},
			Summary:     "Preview the current report",
			Description: "Executes the session's spec. Results carry a per-session sequence number; a result superseded by a newer preview is discarded.",
			OperationID: "preview",
			Parameters:  pathParams("sessionID"),
			Responses:   newResponses("200", "Preview rows", resultRef),
		},
	})
}

func addQueryPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/v1/query", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"query"},
			Summary:     "Run an ad-hoc query spec",
			OperationID: "run_query",
			RequestBody: jsonBody(openapi3.NewSchemaRef("#/components/schemas/QuerySpec", nil)),
			Responses: newResponses("200", "Query rows",
				openapi3.NewSchemaRef("#/components/schemas/QueryResult", nil)),
		},
	})
}

func addSavedQueryPaths(doc *openapi3.T) {
	savedRef := openapi3.NewSchemaRef("#/components/schemas/SavedQuery", nil)

	doc.Paths.Set("/api/v1/queries", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"saved-queries"},
			Summary:     "List saved queries",
			OperationID: "list_saved",
			Responses:   newResponses("200", "Saved queries", resourceArraySchema(savedRef)),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"saved-queries"},
			Summary:     "Save a named query",
			OperationID: "create_saved",
			RequestBody: jsonBody(objectSchema(map[string]*openapi3.Schema{
				"name": {Type: &openapi3.Types{"string"}},
			})),
			Responses: newResponses("201", "Saved query", savedRef),
		},
	})
	doc.Paths.Set("/api/v1/queries/{queryID}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"saved-queries"},
			Summary:     "Get a saved query",
			OperationID: "get_saved",
			Parameters:  pathParams("queryID"),
			Responses:   newResponses("200", "Saved query", savedRef),
		},
		Put: &openapi3.Operation{
			Tags:        []string{"saved-queries"},
			Summary:     "Update a saved query",
			OperationID: "update_saved",
			Parameters:  pathParams("queryID"),
			RequestBody: jsonBody(objectSchema(map[string]*openapi3.Schema{
				"name": {Type: &openapi3.Types{"string"}},
			})),
			Responses: newResponses("200", "Saved query", savedRef),
		},
		Delete: &openapi3.Operation{
			Tags:        []string{"saved-queries"},
			Summary:     "Delete a saved query",
			OperationID: "delete_saved",
			Parameters:  pathParams("queryID"),
			Responses:   newResponses("204", "Deleted", nil),
		},
	})
	doc.Paths.Set("/api/v1/queries/{queryID}/run", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"saved-queries"},
			Summary:     "Run a saved query",
			OperationID: "run_saved",
			Parameters:  pathParams("queryID"),
			Responses: newResponses("200", "Query rows",
				openapi3.NewSchemaRef("#/components/schemas/QueryResult", nil)),
		},
	})
}

func addPresetPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/v1/presets", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"presets"},
			Summary:     "List built-in report templates",
			OperationID: "list_presets",
			Responses: newResponses("200", "Presets",
				resourceArraySchema(&openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}})),
		},
	})
	doc.Paths.Set("/api/v1/presets/{presetName}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"presets"},
			Summary:     "Get one preset",
			OperationID: "get_preset",
			Parameters:  pathParams("presetName"),
			Responses: newResponses("200", "Preset",
				&openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}),
		},
	})
}

func addExportPaths(doc *openapi3.T) {
	for _, fmtName := range []string{"csv", "pdf"} {
		doc.Paths.Set("/api/v1/export/"+fmtName, &openapi3.PathItem{
			Post: &openapi3.Operation{
				Tags:        []string{"export"},
				Summary:     fmt.Sprintf("Export query results as %s", strings.ToUpper(fmtName)),
				OperationID: "export_" + fmtName,
				RequestBody: jsonBody(openapi3.NewSchemaRef("#/components/schemas/QuerySpec", nil)),
				Responses:   newResponses("200", "File attachment", nil),
			},
		})
	}
}

// ─── Schema Helpers ─────────────────────────────────────────────────────────

// columnsToSchema converts table columns to an object schema.
func columnsToSchema(columns []model.Column) *openapi3.SchemaRef {
	props := openapi3.Schemas{}
	for _, col := range columns {
		props[col.Name] = &openapi3.SchemaRef{
			Value: &openapi3.Schema{Type: &openapi3.Types{sqlTypeToJSON(col.Type)}},
		}
	}
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
		},
	}
}

// sqlTypeToJSON maps a SQL column type onto a JSON schema type.
func sqlTypeToJSON(sqlType string) string {
	t := strings.ToLower(sqlType)
	switch {
	case strings.Contains(t, "int"), strings.Contains(t, "serial"):
		return "integer"
	case strings.Contains(t, "float"), strings.Contains(t, "double"),
		strings.Contains(t, "real"), strings.Contains(t, "numeric"),
		strings.Contains(t, "decimal"):
		return "number"
	case strings.Contains(t, "bool"):
		return "boolean"
	default:
		return "string"
	}
}

func resourceArraySchema(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"resource": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:  &openapi3.Types{"array"},
						Items: items,
					},
				},
			},
		},
	}
}

func objectSchema(props map[string]*openapi3.Schema) *openapi3.SchemaRef {
	schemas := openapi3.Schemas{}
	for name, s := range props {
		schemas[name] = &openapi3.SchemaRef{Value: s}
	}
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: schemas,
		},
	}
}

func jsonBody(schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Required: true,
			Content:  openapi3.NewContentWithJSONSchemaRef(schema),
		},
	}
}

func pathParams(names ...string) openapi3.Parameters {
	params := openapi3.Parameters{}
	for _, name := range names {
		params = append(params, &openapi3.ParameterRef{
			Value: openapi3.NewPathParameter(name).WithSchema(openapi3.NewStringSchema()),
		})
	}
	return params
}

// newResponses builds a Responses map with a success response and the
// standard error responses. A nil schema yields a bodyless success.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	success := &openapi3.Response{Description: &successDesc}
	if schema != nil {
		success.Content = openapi3.NewContentWithJSONSchemaRef(schema)
	}
	responses.Set(statusCode, &openapi3.ResponseRef{Value: success})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	for code, desc := range map[string]string{
		"400": "Bad request",
		"404": "Not found",
		"500": "Internal server error",
		"503": "Schema catalog unavailable",
	} {
		d := desc
		responses.Set(code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &d,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}

// rowSchemaName builds the component schema name for a table's rows.
func rowSchemaName(table string) string {
	parts := strings.Split(table, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "") + "Row"
}
