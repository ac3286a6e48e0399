package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civiclab/reportd/internal/catalog"
	"github.com/civiclab/reportd/internal/model"
)

// SchemaHandler serves the reportable-table catalog.
type SchemaHandler struct {
	catalog *catalog.Catalog
}

// NewSchemaHandler creates a new SchemaHandler.
func NewSchemaHandler(cat *catalog.Catalog) *SchemaHandler {
	return &SchemaHandler{catalog: cat}
}

// ListTables returns every reportable table with its columns and one-hop
// relationships, under a "tables" key.
// GET /api/v1/schema
func (h *SchemaHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.catalog.Tables(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.TableSchema{"tables": tables})
}

// GetTable returns the schema for a single reportable table.
// GET /api/v1/schema/{tableName}
func (h *SchemaHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "tableName")
	table, err := h.catalog.Table(r.Context(), name)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}
