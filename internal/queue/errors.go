package queue

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound indicates the requested job does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrNoHandler indicates a claimed job has no registered handler.
	ErrNoHandler = errors.New("no handler registered for job")
)

// MapHTTPStatus maps queue errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
