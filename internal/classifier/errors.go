package classifier

import (
	"errors"
	"net/http"

	"github.com/auditstack/attest/internal/evidence"
)

var (
	// ErrNoOutput indicates no classifier output exists for the evidence.
	ErrNoOutput = errors.New("no classifier output")
	// ErrInvalidRequest indicates a malformed classification request.
	ErrInvalidRequest = errors.New("invalid classification request")
)

// MapHTTPStatus maps classification errors to HTTP status codes.
// Evidence lookup errors keep their domain mapping.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrInvalidRequest) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrNoOutput) {
		return http.StatusNotFound
	}
	if status := evidence.MapHTTPStatus(err); status != http.StatusInternalServerError {
		return status
	}
	return http.StatusInternalServerError
}
