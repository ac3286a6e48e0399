package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civiclab/reportd/internal/executor"
	"github.com/civiclab/reportd/internal/model"
	"github.com/civiclab/reportd/internal/store"
)

// SavedHandler manages the saved-query library.
type SavedHandler struct {
	repo     store.Repository
	executor *executor.Executor
}

// NewSavedHandler creates a new SavedHandler.
func NewSavedHandler(repo store.Repository, exec *executor.Executor) *SavedHandler {
	return &SavedHandler{repo: repo, executor: exec}
}

// savedQueryRequest is the body for save and update operations.
type savedQueryRequest struct {
	Name string          `json:"name"`
	Spec model.QuerySpec `json:"spec"`
}

// List returns all saved queries, most recently updated first.
// GET /api/v1/queries
func (h *SavedHandler) List(w http.ResponseWriter, r *http.Request) {
	queries, err := h.repo.List(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.SavedQuery{"resource": queries})
}

// Create stores a new named query.
// POST /api/v1/queries
func (h *SavedHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body savedQueryRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body: "+err.Error())
		return
	}
	saved, err := h.repo.Save(r.Context(), body.Name, body.Spec)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// Get returns one saved query.
// GET /api/v1/queries/{queryID}
func (h *SavedHandler) Get(w http.ResponseWriter, r *http.Request) {
	saved, err := h.repo.Get(r.Context(), chi.URLParam(r, "queryID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// Update replaces the name and spec of a saved query.
// PUT /api/v1/queries/{queryID}
func (h *SavedHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body savedQueryRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body: "+err.Error())
		return
	}
	saved, err := h.repo.Update(r.Context(), chi.URLParam(r, "queryID"), body.Name, body.Spec)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// Delete removes a saved query.
// DELETE /api/v1/queries/{queryID}
func (h *SavedHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "queryID")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Run executes a saved query's spec.
// POST /api/v1/queries/{queryID}/run
func (h *SavedHandler) Run(w http.ResponseWriter, r *http.Request) {
	saved, err := h.repo.Get(r.Context(), chi.URLParam(r, "queryID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	result, err := h.executor.Execute(r.Context(), saved.Spec)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
