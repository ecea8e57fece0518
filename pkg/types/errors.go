package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeLedger     ErrorType = "ledger"
)

// AuditError represents a structured error in the consent-trail system
type AuditError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *AuditError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *AuditError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeInvalidArgument   = "INVALID_ARGUMENT"
	ErrCodeInvalidRole       = "INVALID_ROLE"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAlreadyExists     = "ALREADY_EXISTS"
	ErrCodeAlreadyRevoked    = "ALREADY_REVOKED"
	ErrCodeStorageError      = "STORAGE_ERROR"
	ErrCodeLedgerUnavailable = "LEDGER_UNAVAILABLE"
	ErrCodeLedgerTimeout     = "LEDGER_TIMEOUT"
	ErrCodeLedgerRejected    = "LEDGER_REJECTED"
)

// NewInvalidArgumentError creates a new validation error
func NewInvalidArgumentError(message string, details map[string]interface{}) *AuditError {
	return &AuditError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeInvalidArgument,
		Message: message,
		Details: details,
	}
}

// NewInvalidRoleError creates a validation error for an unknown uploader role
func NewInvalidRoleError(role string) *AuditError {
	return &AuditError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeInvalidRole,
		Message: fmt.Sprintf("invalid uploader role: %s", role),
		Details: map[string]interface{}{"role": role},
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AuditError {
	return &AuditError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// NewAlreadyExistsError creates a conflict error for a duplicate key
func NewAlreadyExistsError(message string) *AuditError {
	return &AuditError{
		Type:    ErrorTypeConflict,
		Code:    ErrCodeAlreadyExists,
		Message: message,
	}
}

// NewAlreadyRevokedError creates a conflict error for a terminal consent
func NewAlreadyRevokedError(consentID string) *AuditError {
	return &AuditError{
		Type:    ErrorTypeConflict,
		Code:    ErrCodeAlreadyRevoked,
		Message: fmt.Sprintf("consent already revoked: %s", consentID),
		Details: map[string]interface{}{"consent_id": consentID},
	}
}

// NewStorageError creates a new internal datastore error
func NewStorageError(message string, cause error) *AuditError {
	return &AuditError{
		Type:    ErrorTypeStorage,
		Code:    ErrCodeStorageError,
		Message: message,
		Cause:   cause,
	}
}

// NewLedgerUnavailableError creates a ledger availability error
func NewLedgerUnavailableError(message string, cause error) *AuditError {
	return &AuditError{
		Type:    ErrorTypeLedger,
		Code:    ErrCodeLedgerUnavailable,
		Message: message,
		Cause:   cause,
	}
}

// NewLedgerTimeoutError creates a ledger timeout error
func NewLedgerTimeoutError(message string, cause error) *AuditError {
	return &AuditError{
		Type:    ErrorTypeLedger,
		Code:    ErrCodeLedgerTimeout,
		Message: message,
		Cause:   cause,
	}
}

// NewLedgerRejectedError creates an error for a submission the ledger refused
func NewLedgerRejectedError(message string, cause error) *AuditError {
	return &AuditError{
		Type:    ErrorTypeLedger,
		Code:    ErrCodeLedgerRejected,
		Message: message,
		Cause:   cause,
	}
}

// HasCode reports whether err is an AuditError carrying the given code
func HasCode(err error, code string) bool {
	var ae *AuditError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// IsNotFound reports whether err is a NOT_FOUND error
func IsNotFound(err error) bool { return HasCode(err, ErrCodeNotFound) }

// IsAlreadyExists reports whether err is an ALREADY_EXISTS error
func IsAlreadyExists(err error) bool { return HasCode(err, ErrCodeAlreadyExists) }

// IsAlreadyRevoked reports whether err is an ALREADY_REVOKED error
func IsAlreadyRevoked(err error) bool { return HasCode(err, ErrCodeAlreadyRevoked) }

// IsLedgerError reports whether err belongs to the notarization-only
// failure class that must never fail a primary operation
func IsLedgerError(err error) bool {
	var ae *AuditError
	if errors.As(err, &ae) {
		return ae.Type == ErrorTypeLedger
	}
	return false
}
