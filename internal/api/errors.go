package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/proverd/internal/domain"
	"github.com/phrazzld/proverd/internal/store"
	"github.com/phrazzld/proverd/internal/task"
)

// Error codes returned in the "error" field. Existing clients match on
// these strings.
const (
	ErrCodeQueueFull         = "queue_full"
	ErrCodeNotFound          = "not_found"
	ErrCodeProgramNotFound   = "program_not_found"
	ErrCodeInvalidEnv        = "invalid_env_format, expect json string"
	ErrCodeUnsupportedProver = "unsupported_prover"
	ErrCodeConflict          = "already_exists"
	ErrCodeInvalidRequest    = "invalid_request"
	ErrCodeUnavailable       = "shutting_down"
	ErrCodeInternal          = "internal_error"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case err == nil:
		return http.StatusInternalServerError

	case errors.Is(err, task.ErrQueueFull):
		return http.StatusTooManyRequests

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity),
		errors.As(err, &verrs):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	// Persistence failures and anything unexpected
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, client-facing error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return ErrCodeInternal
	}

	var (
		verr  *domain.ValidationError
		verrs validator.ValidationErrors
	)
	switch {
	case errors.Is(err, task.ErrQueueFull):
		return ErrCodeQueueFull

	case errors.Is(err, store.ErrProgramNotFound):
		return ErrCodeProgramNotFound

	case errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound

	case errors.Is(err, store.ErrDuplicate):
		return ErrCodeConflict

	case errors.Is(err, domain.ErrInvalidEnv):
		return ErrCodeInvalidEnv

	case errors.Is(err, domain.ErrUnsupportedProver):
		return ErrCodeUnsupportedProver

	case errors.As(err, &verrs):
		return SanitizeValidationError(verrs)

	// Validation messages describe the caller's own input
	case errors.As(err, &verr):
		return "invalid " + verr.Field + ": " + verr.Message

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return ErrCodeInvalidRequest

	case errors.Is(err, task.ErrQueueClosed):
		return ErrCodeUnavailable

	default:
		return ErrCodeInternal
	}
}

// SanitizeValidationError turns struct validation failures into a message
// naming the first offending field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ErrCodeInvalidRequest
	}
	fe := verrs[0]
	return fmt.Sprintf("invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
}

// getValidationTagMessage maps validation tags to client-facing messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "url", "http_url":
		return "must be an absolute http(s) URL"
	case "uuid", "uuid4":
		return "must be a UUID"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
