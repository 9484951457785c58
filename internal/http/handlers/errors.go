package handlers

import (
	"errors"
	"net/http"
	"time"

	"genesis/internal/domain"
)

const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeConflict   = "CONFLICT"
	CodeTimeout    = "TIMEOUT_ERROR"
	CodeDatabase   = "DATABASE_ERROR"
	CodeAICore     = "AI_CORE_ERROR"
	CodeInternal   = "INTERNAL_ERROR"
)

type apiError struct {
	Success   bool      `json:"success"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   *string   `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string, details ...string) {
	body := apiError{Code: code, Message: message, Timestamp: a.now()}
	if len(details) > 0 && details[0] != "" {
		body.Details = &details[0]
	}
	a.json(w, status, body)
}

// fail maps err onto the API error taxonomy. Internal details are logged, not
// returned.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, CodeNotFound, "Project not found")
	case errors.Is(err, domain.ErrConflict):
		a.error(w, http.StatusConflict, CodeConflict, err.Error())
	case errors.Is(err, domain.ErrTimeout):
		a.Logger.Warn().Err(err).Str("path", r.URL.Path).Msg("request timed out")
		a.error(w, http.StatusRequestTimeout, CodeTimeout, "Request timed out")
	case errors.Is(err, domain.ErrQueueFull):
		a.Logger.Warn().Err(err).Str("path", r.URL.Path).Msg("generation unavailable")
		a.error(w, http.StatusServiceUnavailable, CodeAICore, "Generation service is busy, try again later")
	case errors.Is(err, domain.ErrUnavailable):
		a.Logger.Warn().Err(err).Str("path", r.URL.Path).Msg("service unavailable")
		a.error(w, http.StatusServiceUnavailable, CodeAICore, "Service is shutting down, try again later")
	case errors.Is(err, domain.ErrDatabase):
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("database error")
		a.error(w, http.StatusInternalServerError, CodeDatabase, "Database error")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("internal error")
		a.error(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}
