package evidence

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound indicates the requested evidence does not exist.
	ErrNotFound = errors.New("evidence not found")
	// ErrDuplicate indicates a conflicting evidence row already exists.
	ErrDuplicate = errors.New("evidence already exists")
	// ErrOrganizationNotFound indicates the referenced organization does not exist.
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrInvalidPayload indicates a malformed or incomplete create request.
	ErrInvalidPayload = errors.New("invalid evidence payload")
	// ErrFileTooLarge indicates an upload exceeding the configured size limit.
	ErrFileTooLarge = errors.New("uploaded file exceeds size limit")
)

// MapHTTPStatus maps evidence errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrOrganizationNotFound), errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
