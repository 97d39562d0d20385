package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pablobfonseca/go-photo-organizer/apperrors"
)

// ProblemDetails represents an RFC 7807 Problem Details error response
type ProblemDetails struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// RespondError writes an RFC 7807 Problem Details error response
func RespondError(w http.ResponseWriter, statusCode int, title string, detail string) {
	problem := ProblemDetails{
		Type:   "about:blank",
		Title:  title,
		Status: statusCode,
		Detail: detail,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(problem); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// RespondBadRequest writes a 400 Bad Request error response
func RespondBadRequest(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusBadRequest, "Bad Request", detail)
}

// RespondNotFound writes a 404 Not Found error response
func RespondNotFound(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusNotFound, "Not Found", detail)
}

// RespondInternalServerError writes a 500 Internal Server Error response
func RespondInternalServerError(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusInternalServerError, "Internal Server Error", detail)
}

// RespondJSON writes a JSON response directly without wrapping
func RespondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// RespondPartial writes data with 207 when partialErr is set and with
// statusCode otherwise.
func RespondPartial(w http.ResponseWriter, statusCode int, data any, partialErr error) {
	if partialErr != nil {
		statusCode = http.StatusMultiStatus
	}
	RespondJSON(w, statusCode, data)
}

// respondErr maps a flow error onto a status code.
func respondErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		RespondNotFound(w, err.Error())
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrInvalidEmbedding):
		RespondBadRequest(w, err.Error())
	case errors.Is(err, apperrors.ErrPartialFanout):
		RespondError(w, http.StatusMultiStatus, "Partial Failure", err.Error())
	default:
		logger.Error("Request failed", "error", err)
		RespondInternalServerError(w, "An unexpected error occurred")
	}
}
