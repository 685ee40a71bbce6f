package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"medprep/internal/service"
	"medprep/internal/validation"
)

type errorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func respondWithError(w http.ResponseWriter, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		slog.Error(logMsg, "status", status, "error", err)
	}

	respondJSON(w, status, errorResponse{Message: userMsg})
}

// respondWithServiceError maps service errors onto status codes: not found is 404,
// validation is 400 with the offending field, anything else is a logged 500
func respondWithServiceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Message: ErrNotFound})
	case errors.Is(err, service.ErrValidation):
		resp := errorResponse{Message: err.Error()}
		var verr validation.Error
		if errors.As(err, &verr) {
			resp.Message = verr.Message
			resp.Field = verr.Field
		}
		respondJSON(w, http.StatusBadRequest, resp)
	default:
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, logMsg, err)
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// decodeJSON reads a JSON body into v; an empty body leaves v untouched
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
