package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sightlinehq/sightline/internal/models"
)

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", "err", err)
	}
}

// writeError maps the domain error taxonomy onto HTTP statuses: validation
// is the caller's fault, storage unavailability is retryable, everything
// else is opaque.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case models.IsValidation(err):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
		msg = "not found"
	case errors.Is(err, models.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
		msg = "storage unavailable, retry the submission"
	default:
		logger.Error("request failed", "err", err)
	}

	writeJSON(w, map[string]string{"error": msg}, status)
}
