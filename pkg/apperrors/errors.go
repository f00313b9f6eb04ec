package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrAccess marks a source table or schema that could not be read.
	ErrAccess = errors.New("source not readable")
	// ErrAPI marks a failed compliance API call (auth, payload, transport).
	ErrAPI = errors.New("compliance api call failed")
	// ErrPersistence marks a failed write to the metadata store or a warehouse.
	ErrPersistence = errors.New("persistence failed")

	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnsupported     = errors.New("operation not supported")
	ErrCredentialsKey  = errors.New("settings were encrypted with a different key")
	ErrRunStateInvalid = errors.New("invalid run state transition")
)

// Access builds a formatted error that matches ErrAccess under errors.Is.
func Access(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrAccess}, args...)...)
}

// API builds a formatted error that matches ErrAPI under errors.Is.
func API(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrAPI}, args...)...)
}

// Persistence builds a formatted error that matches ErrPersistence under errors.Is.
func Persistence(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrPersistence}, args...)...)
}
