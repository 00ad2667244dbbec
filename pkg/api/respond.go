package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"msgcore/pkg/errdef"
	"msgcore/pkg/logger"
)

// JSONError writes a JSON error response with the given status code and
// message.
func JSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// JSONWrite writes the provided value as JSON with the given status code.
func JSONWrite(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response_encode_failed", "error", err)
	}
}

// writeErr maps domain errors to HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errdef.ErrNotFound):
		JSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errdef.ErrForbidden):
		JSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, errdef.ErrInvalidParticipants),
		errors.Is(err, errdef.ErrInvalidBody),
		errors.Is(err, errdef.ErrInvalidParent),
		errors.Is(err, errdef.ErrThreadTooDeep):
		JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errdef.ErrAlreadyParticipant):
		JSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errdef.ErrRateLimited):
		JSONError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, errdef.ErrStorageUnavailable):
		JSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		JSONError(w, http.StatusGatewayTimeout, "request deadline exceeded")
	case errors.Is(err, context.Canceled):
		JSONError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		logger.Error("request_failed", "error", err)
		JSONError(w, http.StatusInternalServerError, "internal error")
	}
}
