package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Sentinel kinds. Every DomainError built below wraps exactly one of them so
// callers can branch with errors.Is regardless of message or details.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrStaleState        = errors.New("stale state")
	ErrDocumentLocked    = errors.New("document locked")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
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

func newKind(kind error, code, message string, status int, details map[string]any) error {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details, Err: kind}
}

func NewValidationError(message string, details map[string]any) error {
	return newKind(ErrValidation, "VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return newKind(ErrNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource), http.StatusNotFound, details)
}

// NewUnauthorized reports a missing or unusable identity.
func NewUnauthorized(message string) error {
	return newKind(ErrUnauthorized, "UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

// NewForbidden reports an identified actor whose role lacks the permission.
func NewForbidden(message string, details map[string]any) error {
	return newKind(ErrUnauthorized, "FORBIDDEN", message, http.StatusForbidden, details)
}

func NewInvalidTransition(message string, details map[string]any) error {
	return newKind(ErrInvalidTransition, "INVALID_TRANSITION", message, http.StatusUnprocessableEntity, details)
}

func NewStaleState(message string, details map[string]any) error {
	return newKind(ErrStaleState, "STALE_STATE", message, http.StatusConflict, details)
}

func NewDocumentLocked(message string, details map[string]any) error {
	return newKind(ErrDocumentLocked, "DOCUMENT_LOCKED", message, http.StatusLocked, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
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
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	return ToDomainError(err)
}
