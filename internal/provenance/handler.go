package provenance

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/auditstack/attest/pkg/handlers"
	"github.com/auditstack/attest/pkg/routes"
)

// Handler provides HTTP endpoints for inspecting the provenance trail.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a Handler with the given store and logger.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger.With("handler", "provenance"),
	}
}

// Routes returns the route group definition for provenance endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/evidence/{id}/runs", Handler: h.Runs},
			{Method: "GET", Pattern: "/evidence/{id}/events", Handler: h.Events},
			{Method: "GET", Pattern: "/runs/{id}", Handler: h.FindRun},
			{Method: "GET", Pattern: "/runs/{id}/steps", Handler: h.Steps},
		},
	}
}

// Runs returns the pipeline runs recorded for an evidence row, newest first.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	runs, err := h.store.RunsForEvidence(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, runs)
}

// FindRun returns a single pipeline run by id.
func (h *Handler) FindRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	run, err := h.store.FindRun(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, run)
}

// Steps returns the step logs for a pipeline run in execution order.
func (h *Handler) Steps(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	steps, err := h.store.StepsForRun(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, steps)
}

// Events returns the domain events recorded for an evidence row in
// chronological order.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	events, err := h.store.EventsForEvidence(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, events)
}
