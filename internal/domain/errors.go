// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = fmt.Errorf("%w: invalid ID", ErrValidation)

	// ErrInvalidTaskStatus is returned when a task status is not one of the known values.
	ErrInvalidTaskStatus = fmt.Errorf("%w: invalid task status", ErrValidation)

	// ErrUnsupportedProver is returned when a prover kind has no configured executable.
	ErrUnsupportedProver = fmt.Errorf("%w: unsupported prover", ErrValidation)

	// ErrInvalidEnv is returned when environment overrides are malformed.
	ErrInvalidEnv = fmt.Errorf("%w: invalid environment overrides", ErrValidation)

	// ErrInvalidCallback is returned when a callback URL is not an absolute http(s) URL.
	ErrInvalidCallback = fmt.Errorf("%w: invalid callback URL", ErrValidation)

	// ErrEmptyProgram is returned when a program upload carries no bytes.
	ErrEmptyProgram = fmt.Errorf("%w: program binary is empty", ErrValidation)

	// ErrInvalidTransition is returned when a status change is not allowed
	// by the task state machine.
	ErrInvalidTransition = errors.New("invalid task status transition")
)
