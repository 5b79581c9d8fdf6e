package errors

import (
	"errors"
	"fmt"
)

// VaultError is the structured error type for VaultScope. It carries the
// classification the error-handling policy needs: category, severity,
// and whether the failing operation may be retried.
type VaultError struct {
	// Code is the unique error code (e.g., "ERR_201_SOURCE_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Source, Content, Index, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *VaultError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *VaultError) Unwrap() error {
	return e.Cause
}

// Is matches VaultErrors by code, enabling errors.Is.
func (e *VaultError) Is(target error) bool {
	if t, ok := target.(*VaultError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail. Returns the error for chaining.
func (e *VaultError) WithDetail(key, value string) *VaultError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a VaultError with the given code and message. Category,
// severity, and the retryable flag are derived from the code.
func New(code, message string, cause error) *VaultError {
	return &VaultError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a VaultError from an existing error, keeping its message.
func Wrap(code string, err error) *VaultError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// SourceError creates a transient source connector error.
func SourceError(message string, cause error) *VaultError {
	return New(ErrCodeSourceUnavailable, message, cause)
}

// IntegrityError creates a fatal embedding pipeline integrity error.
func IntegrityError(message string, cause error) *VaultError {
	return New(ErrCodeEmbeddingIntegrity, message, cause)
}

// QueryError creates a query-time error surfaced to the caller.
func QueryError(message string, cause error) *VaultError {
	return New(ErrCodeQueryFailed, message, cause)
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *VaultError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IsRetryable reports whether err (or any error in its chain) is a
// retryable VaultError.
func IsRetryable(err error) bool {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Retryable
	}
	return false
}

// IsFatal reports whether err carries fatal severity. Fatal errors halt
// ingestion rather than skipping the failing path.
func IsFatal(err error) bool {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Severity == SeverityFatal
	}
	return false
}

// CodeOf returns the VaultError code of err, or ErrCodeInternal when the
// chain carries no VaultError.
func CodeOf(err error) string {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ErrCodeInternal
}
