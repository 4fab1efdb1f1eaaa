package evidence

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/auditstack/attest/pkg/handlers"
	"github.com/auditstack/attest/pkg/pagination"
	"github.com/auditstack/attest/pkg/routes"
)

// Handler provides HTTP endpoints for evidence operations.
type Handler struct {
	sys           System
	logger        *slog.Logger
	pagination    pagination.Config
	maxUploadSize int64
}

// NewHandler creates a Handler with the given system, logger, pagination
// config, and upload size limit.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
	maxUploadSize int64,
) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "evidence"),
		pagination:    pagination,
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for evidence read and upload
// endpoints. Classification endpoints mount under the same prefix from the
// classifier handler.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/evidence",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "POST", Pattern: "/upload", Handler: h.Upload},
		},
	}
}

// List returns a paginated list of evidence, optionally filtered by the
// organization_id query parameter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)

	var organizationID *uuid.UUID
	if raw := r.URL.Query().Get("organization_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrOrganizationNotFound)
			return
		}
		organizationID = &id
	}

	result, err := h.sys.List(r.Context(), page, organizationID)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns a single evidence row by its UUID path parameter.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	ev, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, ev)
}

// Upload processes a multipart form upload containing a file and evidence
// metadata, with best-effort text extraction.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
		return
	}

	organizationID, err := uuid.Parse(r.FormValue("organization_id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidPayload)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidPayload)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidPayload)
		return
	}

	cmd := UploadCommand{
		OrganizationID: organizationID,
		Title:          r.FormValue("title"),
		Description:    optionalForm(r.FormValue("description")),
		EvidenceType:   optionalForm(r.FormValue("evidence_type")),
		SourceType:     optionalForm(r.FormValue("source_type")),
		Filename:       header.Filename,
		ContentType:    detectContentType(header.Header.Get("Content-Type"), data),
		Data:           data,
	}

	ev, err := h.sys.CreateFromFile(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, ev)
}

func optionalForm(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func detectContentType(header string, data []byte) string {
	if header != "" && header != "application/octet-stream" {
		return header
	}
	return http.DetectContentType(data)
}
