package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civiclab/reportd/internal/model"
	"github.com/civiclab/reportd/internal/preset"
)

// PresetHandler serves the built-in report templates.
type PresetHandler struct {
	library *preset.Library
}

// NewPresetHandler creates a new PresetHandler.
func NewPresetHandler(lib *preset.Library) *PresetHandler {
	return &PresetHandler{library: lib}
}

// List returns every built-in preset.
// GET /api/v1/presets
func (h *PresetHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]model.TemplatePreset{"resource": h.library.All()})
}

// Get returns one preset by name.
// GET /api/v1/presets/{presetName}
func (h *PresetHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "presetName")
	p, ok := h.library.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "", "preset not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
