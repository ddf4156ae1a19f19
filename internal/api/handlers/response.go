package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zatekoja/handoff/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

const unavailableMessage = "a dependency is unavailable, please try again"

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// appErrorStatus maps the error taxonomy onto HTTP. Only messages written by
// this service are echoed; adapter and driver text stays in the logs.
func appErrorStatus(err error) (int, string) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, "internal server error"
	}
	switch appErr.Type {
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound, appErr.Message
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest, appErr.Message
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict, appErr.Message
	case apperrors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized, appErr.Message
	case apperrors.ErrorTypeUnrecoverableInput:
		return http.StatusConflict, appErr.Message
	case apperrors.ErrorTypeTransientAdapter, apperrors.ErrorTypeMalformedResponse, apperrors.ErrorTypeExternal:
		return http.StatusServiceUnavailable, unavailableMessage
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := appErrorStatus(err)
	logAppError(r, err, status)
	respondWithError(w, status, message)
}

func logAppError(r *http.Request, err error, status int) {
	logger := observability.LoggerFromContext(r.Context())
	switch {
	case apperrors.IsType(err, apperrors.ErrorTypeScopeViolation):
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("scope violation")
	case status >= http.StatusInternalServerError:
		logger.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	default:
		logger.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
	}
}
