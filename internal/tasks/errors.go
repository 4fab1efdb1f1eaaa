package tasks

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound indicates the requested task does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrDuplicate indicates a conflicting task already exists.
	ErrDuplicate = errors.New("task already exists")
)

// MapHTTPStatus maps task errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
