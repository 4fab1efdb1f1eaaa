package controls

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound indicates the requested control does not exist.
	ErrNotFound = errors.New("control not found")
	// ErrDuplicate indicates a control with the same reference already exists.
	ErrDuplicate = errors.New("control already exists")
	// ErrEmptyQuery indicates a search request without query text.
	ErrEmptyQuery = errors.New("search query required")
)

// MapHTTPStatus maps control errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrEmptyQuery):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
