package controls

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/auditstack/attest/pkg/handlers"
	"github.com/auditstack/attest/pkg/routes"
)

// Handler provides HTTP endpoints for the control catalog.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "controls"),
	}
}

// Routes returns the route group definition for control endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/controls",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/search", Handler: h.Search},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
		},
	}
}

// List returns the full control catalog ordered by reference.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctrls, err := h.sys.List(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, ctrls)
}

// Find returns a single control by its UUID path parameter.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	c, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, c)
}

// Search ranks controls against query text from the q parameter.
// An optional limit parameter bounds the candidate count.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrEmptyQuery)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	candidates, err := h.sys.TopCandidates(r.Context(), query, limit)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, candidates)
}
