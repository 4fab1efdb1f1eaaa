package provenance

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound indicates the requested run does not exist.
	ErrNotFound = errors.New("pipeline run not found")
	// ErrNotStarted indicates step or event recording before Start.
	ErrNotStarted = errors.New("recorder not started")
)

// MapHTTPStatus maps provenance errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
