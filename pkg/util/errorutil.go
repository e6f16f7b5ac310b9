package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes rendered in the "error" field of failure responses.
const (
	CodeValidation           = "VALIDATION_FAILED"
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthenticated      = "UNAUTHENTICATED"
	CodeForbidden            = "FORBIDDEN"
	CodeConflict             = "CONFLICT"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeSecondFactorRequired = "SECOND_FACTOR_REQUIRED"
	CodeInvalidSecondFactor  = "INVALID_SECOND_FACTOR"
	CodeAccountSuspended     = "ACCOUNT_SUSPENDED"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodeTokenAlreadyUsed     = "TOKEN_ALREADY_USED"
	CodeTooManyRequests      = "TOO_MANY_REQUESTS"
	CodeInfrastructure       = "INFRASTRUCTURE_FAILURE"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthenticated, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewInvalidCredentials is returned for both unknown accounts and wrong
// passwords so callers cannot tell them apart.
func NewInvalidCredentials() error {
	return NewDomainError(CodeInvalidCredentials, "Invalid credentials", http.StatusUnauthorized, nil)
}

func NewSecondFactorRequired(userID string) error {
	return NewDomainError(CodeSecondFactorRequired, "2FA token required", http.StatusUnauthorized, map[string]any{
		"requires2FA": true,
		"userId":      userID,
	})
}

func NewInvalidSecondFactor() error {
	return NewDomainError(CodeInvalidSecondFactor, "Invalid verification code", http.StatusUnauthorized, nil)
}

func NewAccountSuspended(details map[string]any) error {
	return NewDomainError(CodeAccountSuspended, "Account suspended", http.StatusForbidden, map[string]any{
		"suspensionDetails": details,
	})
}

func NewTokenExpired(message string) error {
	return NewDomainError(CodeTokenExpired, message, http.StatusBadRequest, nil)
}

func NewTokenAlreadyUsed(message string) error {
	return NewDomainError(CodeTokenAlreadyUsed, message, http.StatusBadRequest, nil)
}

func NewTooManyRequests(message string) error {
	return NewDomainError(CodeTooManyRequests, message, http.StatusTooManyRequests, nil)
}

// NewInfrastructure wraps store and dependency failures. Timeouts are
// flagged retryable; the cause is kept for logs only.
func NewInfrastructure(err error) error {
	de := &DomainError{
		Code:       CodeInfrastructure,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
	if errors.Is(err, context.DeadlineExceeded) {
		de.Message = "service temporarily unavailable, please retry"
		de.Details = map[string]any{"retryable": true}
	}
	return de
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if de, ok := NewInfrastructure(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInfrastructure,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// IsCode reports whether err is a DomainError carrying code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
