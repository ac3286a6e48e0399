package handler

import (
	"bytes"
	"net/http"
	"time"

	"github.com/civiclab/reportd/internal/executor"
	"github.com/civiclab/reportd/internal/export"
	"github.com/civiclab/reportd/internal/model"
)

// ExportHandler renders query results as downloadable files.
type ExportHandler struct {
	executor *executor.Executor
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(exec *executor.Executor) *ExportHandler {
	return &ExportHandler{executor: exec}
}

// CSV executes the spec in the request body and streams the result as a
// CSV attachment.
// POST /api/v1/export/csv
func (h *ExportHandler) CSV(w http.ResponseWriter, r *http.Request) {
	spec, result, ok := h.run(w, r)
	if !ok {
		return
	}

	// Render to a buffer first so a failed export never sends a partial
	// file with a 200 status.
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, result, result.Columns); err != nil {
		writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		`attachment; filename="`+export.Filename(spec.Table, "csv", time.Now())+`"`)
	w.Write(buf.Bytes())
}

// PDF executes the spec in the request body and streams the result as a
// PDF attachment.
// POST /api/v1/export/pdf
func (h *ExportHandler) PDF(w http.ResponseWriter, r *http.Request) {
	spec, result, ok := h.run(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := export.WritePDF(&buf, result, result.Columns, spec.Table, time.Now()); err != nil {
		writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		`attachment; filename="`+export.Filename(spec.Table, "pdf", time.Now())+`"`)
	w.Write(buf.Bytes())
}

// run decodes and executes the export spec, handling failures in place.
func (h *ExportHandler) run(w http.ResponseWriter, r *http.Request) (model.QuerySpec, *model.QueryResult, bool) {
	var spec model.QuerySpec
	if err := readJSON(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body: "+err.Error())
		return spec, nil, false
	}
	result, err := h.executor.Execute(r.Context(), spec)
	if err != nil {
		writeFailure(w, err)
		return spec, nil, false
	}
	return spec, result, true
}
