package handler

import (
	"net/http"

	"github.com/civiclab/reportd/internal/executor"
	"github.com/civiclab/reportd/internal/model"
)

// QueryHandler runs ad-hoc query specs outside any builder session.
type QueryHandler struct {
	executor *executor.Executor
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(exec *executor.Executor) *QueryHandler {
	return &QueryHandler{executor: exec}
}

// Run executes the spec in the request body.
// POST /api/v1/query
func (h *QueryHandler) Run(w http.ResponseWriter, r *http.Request) {
	var spec model.QuerySpec
	if err := readJSON(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body: "+err.Error())
		return
	}

	result, err := h.executor.Execute(r.Context(), spec)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
