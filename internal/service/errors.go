package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/proverd/internal/domain"
	"github.com/phrazzld/proverd/internal/store"
	"github.com/phrazzld/proverd/internal/task"
)

// Error handling principles:
// 1. Expected conditions (not found, validation, queue full) are returned as
//    their sentinel errors, possibly wrapped, so callers can use errors.Is
// 2. Unexpected errors are wrapped in ServiceError with the failed operation
// 3. The API layer maps these errors to HTTP status codes

// ServiceError wraps unexpected errors with the operation that failed.
type ServiceError struct {
	// Service is the name of the service ("task", "program")
	Service string
	// Operation is the operation that failed (e.g., "submit", "upload")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s service %s failed: %s: %v", e.Service, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s service %s failed: %s", e.Service, e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// wrapError returns expected errors unchanged and wraps everything else.
func wrapError(service, operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if isExpected(err) {
		return err
	}
	return &ServiceError{
		Service:   service,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

func isExpected(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, task.ErrQueueFull)
}
