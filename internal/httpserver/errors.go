package httpserver

import (
	"errors"
	"net/http"

	"github.com/labondemand/control-plane/internal/labonderr"
)

// RespondErrKind maps a domain error to its HTTP status and writes the
// standard error envelope. Unrecognized errors map to 500 and are logged by
// the caller before this is reached; this function never logs.
func RespondErrKind(w http.ResponseWriter, err error) {
	var notFound *labonderr.NotFound
	var quota *labonderr.QuotaExceeded
	var conflict *labonderr.Conflict
	var unavailable *labonderr.ClusterUnavailable
	var invalid *labonderr.InvalidInput
	var partial *labonderr.PartialFailure

	switch {
	case errors.As(err, &notFound):
		RespondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &quota):
		RespondError(w, http.StatusConflict, "quota_exceeded", err.Error())
	case errors.As(err, &conflict):
		RespondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &unavailable):
		RespondError(w, http.StatusBadGateway, "cluster_unavailable", err.Error())
	case errors.As(err, &invalid):
		RespondError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.As(err, &partial):
		Respond(w, http.StatusMultiStatus, partial)
	default:
		RespondError(w, http.StatusInternalServerError, "internal", "an unexpected error occurred")
	}
}
