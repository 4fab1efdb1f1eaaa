package classifier

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/auditstack/attest/internal/evidence"
	"github.com/auditstack/attest/internal/queue"
	"github.com/auditstack/attest/pkg/handlers"
	"github.com/auditstack/attest/pkg/routes"
)

// Handler provides HTTP endpoints for evidence classification.
type Handler struct {
	agent    *Agent
	evidence evidence.System
	queue    queue.System
	logger   *slog.Logger
}

// NewHandler creates a Handler with the given agent, evidence system, and
// queue.
func NewHandler(agent *Agent, ev evidence.System, q queue.System, logger *slog.Logger) *Handler {
	return &Handler{
		agent:    agent,
		evidence: ev,
		queue:    q,
		logger:   logger.With("handler", "classifier"),
	}
}

// Routes returns the classification route group. It shares the /evidence
// prefix with the evidence handler's read and upload routes.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/evidence",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Create},
			{Method: "POST", Pattern: "/{id}/classify", Handler: h.Classify},
			{Method: "POST", Pattern: "/{id}/classify-async", Handler: h.ClassifyAsync},
		},
	}
}

// CreateResponse pairs the created evidence with its inline classification.
// A classification failure is reported here without failing the creation.
type CreateResponse struct {
	Evidence       *evidence.Evidence `json:"evidence"`
	Classification any                `json:"classification"`
}

// Create stores evidence from a JSON payload and classifies it inline.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var cmd evidence.CreateCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, evidence.ErrInvalidPayload)
		return
	}

	ev, err := h.evidence.Create(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, evidence.MapHTTPStatus(err), err)
		return
	}

	var classification any
	if result, err := h.agent.Classify(r.Context(), ev.ID); err != nil {
		h.logger.Warn("inline classification failed", "evidence", ev.ID, "error", err)
		classification = map[string]any{"error": err.Error()}
	} else {
		classification = result
	}

	// refresh to include the classification written by the agent
	if refreshed, err := h.evidence.Find(r.Context(), ev.ID); err == nil {
		ev = refreshed
	}

	handlers.RespondJSON(w, http.StatusCreated, CreateResponse{
		Evidence:       ev,
		Classification: classification,
	})
}

// Classify runs the pipeline synchronously for existing evidence.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	result, err := h.agent.Classify(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// ClassifyAsync enqueues a classification job and returns it immediately.
func (h *Handler) ClassifyAsync(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	if _, err := h.evidence.Find(r.Context(), id); err != nil {
		handlers.RespondError(w, h.logger, evidence.MapHTTPStatus(err), err)
		return
	}

	job, err := h.queue.Enqueue(r.Context(), JobClassifyEvidence, JobArgs{EvidenceID: id.String()})
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, job)
}
