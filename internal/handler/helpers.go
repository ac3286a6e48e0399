package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/civiclab/reportd/internal/catalog"
	"github.com/civiclab/reportd/internal/executor"
	"github.com/civiclab/reportd/internal/export"
	"github.com/civiclab/reportd/internal/model"
	"github.com/civiclab/reportd/internal/session"
	"github.com/civiclab/reportd/internal/store"
)

// Error kinds exposed in the error envelope.
const (
	kindSchemaUnavailable = "schema_unavailable"
	kindQueryError        = "query_error"
	kindDuplicateName     = "duplicate_name"
	kindExportEmpty       = "export_empty"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope.
func writeError(w http.ResponseWriter, code int, kind, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Kind:    kind,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeFailure maps a domain error onto the error taxonomy and writes it.
func writeFailure(w http.ResponseWriter, err error) {
	var qe *executor.QueryError
	switch {
	case errors.Is(err, catalog.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, kindSchemaUnavailable, err.Error())
	case errors.As(err, &qe):
		status := http.StatusBadRequest
		if qe.Timeout {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, kindQueryError, qe.Error())
	case errors.Is(err, store.ErrDuplicateName):
		writeError(w, http.StatusConflict, kindDuplicateName, err.Error())
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, catalog.ErrTableNotFound):
		writeError(w, http.StatusNotFound, "", err.Error())
	case errors.Is(err, export.ErrEmpty):
		writeError(w, http.StatusUnprocessableEntity, kindExportEmpty, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "", err.Error())
	}
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// errorsIsAny reports whether err matches any of the given targets.
func errorsIsAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
