package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"vidgen-backend/internal/middleware"
	"vidgen-backend/internal/models"
	"vidgen-backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: middleware.GetRequestID(r.Context()),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	resp := errorResp(code, message, r)
	resp.Error.Fields = fields
	return resp
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation   *services.ValidationError
		notFound     *services.NotFoundError
		notLinked    *services.NotLinkedError
		unauthorized *services.UnauthorizedError
		forbidden    *services.ForbiddenError
		upstream     *services.UpstreamError
		transient    *services.TransientIOError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validation.Fields, r))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFound.Message, r))
	case errors.As(err, &notLinked):
		writeJSON(w, http.StatusBadRequest, errorResp("NOT_LINKED", notLinked.Error(), r))
	case errors.As(err, &unauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", unauthorized.Message, r))
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", forbidden.Message, r))
	case errors.As(err, &upstream):
		log.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("upstream failure")
		writeJSON(w, http.StatusBadGateway, errorResp("UPSTREAM_ERROR", "Upstream service failed", r))
	case errors.As(err, &transient):
		log.Warn().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("transient failure")
		writeJSON(w, http.StatusServiceUnavailable, errorResp("UNAVAILABLE", "Service temporarily unavailable, please retry", r))
	default:
		log.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("unhandled error")
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
