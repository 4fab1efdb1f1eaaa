package organizations

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound indicates the requested organization does not exist.
	ErrNotFound = errors.New("organization not found")
	// ErrDuplicate indicates an organization with the same name already exists.
	ErrDuplicate = errors.New("organization already exists")
	// ErrInvalidName indicates a missing or blank organization name.
	ErrInvalidName = errors.New("organization name required")
)

// MapHTTPStatus maps organization errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidName):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
