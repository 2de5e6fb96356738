package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pavel-fokin/media-drop/internal/files"
)

// errorResponse is the body of every failed request. Success is always false.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps a tagged error to its status code. Internal failures are
// logged with their cause and answered with a generic message.
func writeError(w http.ResponseWriter, err error) {
	var status int
	message := err.Error()

	switch files.KindOf(err) {
	case files.KindValidation:
		status = http.StatusBadRequest
	case files.KindUnauthorized:
		status = http.StatusUnauthorized
	case files.KindNotFound:
		status = http.StatusNotFound
	case files.KindTooLarge:
		status = http.StatusRequestEntityTooLarge
	case files.KindRangeNotSatisfiable:
		status = http.StatusRequestedRangeNotSatisfiable
	case files.KindInternal:
		slog.Error("Request failed", "error", err)
		status = http.StatusInternalServerError
		message = "Internal server error"
	default:
		slog.Error("Request failed with unknown error kind", "error", err)
		status = http.StatusInternalServerError
		message = "Internal server error"
	}

	writeJSON(w, status, errorResponse{Message: message})
}
