package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vrcneta/topic-gateway/internal/apperr"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string      `json:"error"`
	Code  apperr.Code `json:"code"`
}

// RespondJSON writes payload as JSON with status
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// RespondError writes err with the status its code maps to
func RespondError(w http.ResponseWriter, err error) {
	appErr := apperr.From(err, apperr.Unknown)
	RespondJSON(w, StatusFor(appErr.Code), ErrorResponse{
		Error: appErr.Message,
		Code:  appErr.Code,
	})
}

// StatusFor maps an error code onto an HTTP status
func StatusFor(code apperr.Code) int {
	switch code {
	case apperr.InvalidArgument:
		return http.StatusBadRequest
	case apperr.PermissionDenied:
		return http.StatusForbidden
	case apperr.MissingCredential:
		return http.StatusPreconditionFailed
	case apperr.StorageUnavailable:
		return http.StatusServiceUnavailable
	case apperr.SuggestionRequestFailed, apperr.TranscriptionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
