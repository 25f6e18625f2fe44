package models

import (
	"errors"
	"fmt"
)

// Error variables for better error handling and testability
var (
	// ErrNotFound indicates a referenced user or record is absent.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a duplicate unique key on creation. Callers
	// resolving a find-or-create race should re-fetch instead of failing.
	ErrConflict = errors.New("duplicate unique key")
)

// ValidationError marks a malformed or incomplete webhook payload. It is the
// only error class that surfaces to the HTTP boundary as a 400.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// NewValidationError creates a ValidationError with the given reason.
func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ProviderError wraps a failure from an external collaborator (messaging,
// voice, email, LLM). These are logged and absorbed into best-effort fallback
// behavior; they never break conversation-state consistency.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err as a failure of the named provider.
func NewProviderError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Err: err}
}

// IsProvider reports whether err is a ProviderError.
func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
