package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civiclab/reportd/internal/builder"
	"github.com/civiclab/reportd/internal/catalog"
	"github.com/civiclab/reportd/internal/executor"
	"github.com/civiclab/reportd/internal/model"
	"github.com/civiclab/reportd/internal/session"
)

// SessionHandler owns the report designer lifecycle: opening a builder
// session, mutating its spec, and running previews against it.
type SessionHandler struct {
	catalog  *catalog.Catalog
	sessions *session.Manager
	executor *executor.Executor
	logger   *slog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(cat *catalog.Catalog, mgr *session.Manager, exec *executor.Executor, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{catalog: cat, sessions: mgr, executor: exec, logger: logger}
}

// sessionState is the response body for every designer mutation: the
// session id, the full spec, and the derived view the UI renders from.
type sessionState struct {
	ID   string          `json:"id"`
	Spec model.QuerySpec `json:"spec"`
	View builder.View    `json:"view"`
}

func stateOf(s *session.Session) sessionState {
	return sessionState{ID: s.ID, Spec: s.Builder.Spec(), View: s.Builder.View()}
}

// Create opens a new builder session over the current catalog snapshot.
// POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.catalog.Snapshot(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	s := h.sessions.Create(builder.New(snapshot))
	writeJSON(w, http.StatusCreated, stateOf(s))
}

// Get returns the current state of a session.
// GET /api/v1/sessions/{sessionID}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(s))
}

// Delete closes a session.
// DELETE /api/v1/sessions/{sessionID}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.sessions.Delete(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

// SelectTable switches the session's selected table, resetting columns,
// filters, sorts, and relation selections.
// POST /api/v1/sessions/{sessionID}/table
func (h *SessionHandler) SelectTable(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(s *session.Session) error {
		var body struct {
			Table string `json:"table"`
		}
		if err := readJSON(r, &body); err != nil {
			return errBadBody(err)
		}
		if body.Table != "" {
			// Unknown tables report not-found, not a builder error.
			if _, err := h.catalog.Table(r.Context(), body.Table); err != nil {
				return err
			}
		}
		return s.Builder.SelectTable(body.Table)
	})
}

// ToggleColumn adds or removes a column from the ordered selection. A
// bare name toggles a local column; a body with both table and column
// toggles a related one.
// POST /api/v1/sessions/{sessionID}/columns/toggle
func (h *SessionHandler) ToggleColumn(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(s *session.Session) error {
		var body struct {
			Table  string `json:"table,omitempty"`
			Column string `json:"column"`
		}
		if err := readJSON(r, &body); err != nil {
			return errBadBody(err)
		}
		if body.Table != "" {
			return s.Builder.ToggleRelatedColumn(body.Table, body.Column)
		}
		return s.Builder.ToggleColumn(body.Column)
	})
}

// ReorderColumns moves a column entry within the ordered selection.
// POST /api/v1/sessions/{sessionID}/columns/reorder
func (h *SessionHandler) ReorderColumns(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(s *session.Session) error {
		var body struct {
			From int `json:"from"`
			To   int `json:"to"`
		}
		if err := readJSON(r, &body); err != nil {
			return errBadBody(err)
		}
		return s.Builder.ReorderColumns(body.From, body.To)
	})
}

// SetRelations toggles relation inclusion for the session.
// POST /api/v1/sessions/{sessionID}/relations
func (h *SessionHandler) SetRelations(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(s *session.Session) error {
		var body struct {
			Include bool `json:"include"`
		}
		if err := readJSON(r, &body); err != nil {
			return errBadBody(err)
		}
		s.Builder.SetIncludeRelations(body.Include)
		return nil
	})
}

// AddFilter adds or replaces the filter on a column.
// POST /api/v1/sessions/{sessionID}/filters
func (h *SessionHandler) AddFilter(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(s *session.Session) error {
		var f model.AdvancedFilter
		if err := readJSON(r, &f); err != nil {
			return errBadBody(err)
		}
		return s.Builder.AddFilter(f)
	})
}

// RemoveFilter drops the filter on a column.
// DELETE /api/v1/sessions/{sessionID}/filters/{column}
func (h *SessionHandler) RemoveFilter(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(s *session.Session) error {
		s.Builder.RemoveFilter(chi.URLParam(r, "column"))
		return nil
	})
}

// ClearFilters drops every filter.
// DELETE /api/v1/sessions/{sessionID}/filters
func (h *SessionHandler) ClearFilters(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(s *session.Session) error {
		s.Builder.ClearFilters()
		return nil
	})
}

// AddSort adds or replaces the sort on a column, moving it to the lowest
// precedence.
// POST /api/v1/sessions/{sessionID}/sorts
func (h *SessionHandler) AddSort(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(s *session.Session) error {
		var body model.SortSpec
		if err := readJSON(r, &body); err != nil {
			return errBadBody(err)
		}
		return s.Builder.AddSort(body.Column, body.Direction)
	})
}

// RemoveSort drops the sort on a column.
// DELETE /api/v1/sessions/{sessionID}/sorts/{column}
func (h *SessionHandler) RemoveSort(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(s *session.Session) error {
		s.Builder.RemoveSort(chi.URLParam(r, "column"))
		return nil
	})
}

// ClearSorts drops every sort key.
// DELETE /api/v1/sessions/{sessionID}/sorts
func (h *SessionHandler) ClearSorts(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(s *session.Session) error {
		s.Builder.ClearSorts()
		return nil
	})
}

// LoadSpec replaces the session's whole spec, validating it by replaying
// it through the builder. Used to resume editing a saved query or a
// preset.
// PUT /api/v1/sessions/{sessionID}/spec
func (h *SessionHandler) LoadSpec(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(s *session.Session) error {
		var spec model.QuerySpec
		if err := readJSON(r, &spec); err != nil {
			return errBadBody(err)
		}
		return replaySpec(s.Builder, spec)
	})
}

// Preview executes the session's current spec. Previews are ordered per
// session: each request takes a sequence number before executing, and a
// result that finishes after a newer preview started is discarded, so
// the newest definition always wins.
// POST /api/v1/sessions/{sessionID}/preview
func (h *SessionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	seq := s.NextSequence()
	result, err := h.executor.Execute(r.Context(), s.Builder.Spec())
	if err != nil {
		writeFailure(w, err)
		return
	}

	if !s.IsLatest(seq) {
		h.logger.Debug("stale preview discarded", "session_id", s.ID, "sequence", seq)
		writeJSON(w, http.StatusOK, model.QueryResult{
			Resource: []model.Row{},
			Meta:     &model.ResultMeta{Sequence: seq},
		})
		return
	}

	result.Meta.Sequence = seq
	writeJSON(w, http.StatusOK, result)
}

// mutate wraps the common session-mutation flow: resolve the session,
// apply the change, and echo the updated state.
func (h *SessionHandler) mutate(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := fn(s); err != nil {
		if be, ok := err.(*badBodyError); ok {
			writeError(w, http.StatusBadRequest, "", "invalid request body: "+be.err.Error())
			return
		}
		if isDomainError(err) {
			writeFailure(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stateOf(s))
}

// replaySpec rebuilds a spec mutation by mutation so every builder
// validation rule applies to externally supplied specs too.
func replaySpec(b *builder.Builder, spec model.QuerySpec) error {
	if err := b.SelectTable(spec.Table); err != nil {
		return err
	}
	if spec.Table == "" {
		return nil
	}

	// Deselect everything, then re-select in the spec's order.
	for _, col := range b.Spec().Columns {
		if err := b.ToggleColumn(col); err != nil {
			return err
		}
	}
	b.SetIncludeRelations(spec.IncludeRelations)
	for _, entry := range spec.Columns {
		relTable, col, isPath := model.SplitColumnPath(entry)
		if isPath {
			// With relations off, path entries are excluded no matter
			// what the spec carries. Drop them instead of failing.
			if !spec.IncludeRelations {
				continue
			}
			if err := b.ToggleRelatedColumn(relTable, col); err != nil {
				return err
			}
			continue
		}
		if err := b.ToggleColumn(col); err != nil {
			return err
		}
	}
	for _, f := range spec.Filters {
		if err := b.AddFilter(f); err != nil {
			return err
		}
	}
	for _, srt := range spec.Sorts {
		if err := b.AddSort(srt.Column, srt.Direction); err != nil {
			return err
		}
	}
	return nil
}

type badBodyError struct{ err error }

func (e *badBodyError) Error() string { return e.err.Error() }

func errBadBody(err error) error { return &badBodyError{err: err} }

// isDomainError reports whether err belongs to the shared error
// taxonomy rather than being a plain builder validation failure.
func isDomainError(err error) bool {
	return errorsIsAny(err,
		catalog.ErrUnavailable,
		catalog.ErrTableNotFound,
		session.ErrNotFound,
	)
}
