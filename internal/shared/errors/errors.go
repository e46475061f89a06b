package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error kinds
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthenticated")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
	ErrValidation   = errors.New("validation error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Error codes exposed at the transport boundary
const (
	CodeInvalidInput              = "INVALID_INPUT"
	CodeUnauthenticated           = "UNAUTHENTICATED"
	CodeForbidden                 = "FORBIDDEN"
	CodeNotFound                  = "NOT_FOUND"
	CodeInternal                  = "INTERNAL_ERROR"
	CodeStoreUnavailable          = "STORE_UNAVAILABLE"
	CodeInvalidCaseStatus         = "INVALID_CASE_STATUS"
	CodeSignedCaseCanOnlyBeClosed = "SIGNED_CASE_CAN_ONLY_BE_CLOSED"
	CodeOnlySignedCaseCanBeClosed = "ONLY_SIGNED_CASE_CAN_BE_CLOSED"
	CodeMissingRequiredDocuments  = "MISSING_REQUIRED_DOCUMENTS"
	CodeDirValidationRequired     = "DIR_VILLAGE_VALIDATION_REQUIRED"
	CodeDirSignatureRequired      = "DIR_VILLAGE_SIGNATURE_REQUIRED"
	CodeAlreadyValidated          = "ALREADY_VALIDATED"
	CodeSignatureRequired         = "SIGNATURE_REQUIRED"
	CodeSignatureUnsupported      = "SIGNATURE_FILE_UNSUPPORTED"
	CodeFileTooLarge              = "FILE_TOO_LARGE"
	CodeUnknownDocType            = "UNKNOWN_DOC_TYPE"
	CodeNoPsychologistAvailable   = "NO_PSYCHOLOGIST_AVAILABLE"
	CodeNotEnoughPsyInVillage     = "NOT_ENOUGH_PSY_IN_VILLAGE"
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail returns the error with an extra detail entry
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// HasCode reports whether err is an AppError carrying code
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of an AppError, or CodeInternal for anything else
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is forwards to the standard library
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As forwards to the standard library
func As(err error, target any) bool {
	return errors.As(err, target)
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       CodeNotFound,
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Unauthenticated creates an error for a missing or invalid caller identity
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       CodeUnauthenticated,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a forbidden error
func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       CodeForbidden,
		HTTPStatus: http.StatusForbidden,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return Input(CodeInvalidInput, message)
}

// Input creates a 400-class error with a specific code
func Input(code, message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       code,
		HTTPStatus: http.StatusBadRequest,
	}
}

// Validation creates a validation error with field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       CodeInvalidInput,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// StateConflict creates a 409-class error raised by the case state machine
func StateConflict(code, message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Message:    message,
		Code:       code,
		HTTPStatus: http.StatusConflict,
	}
}

// Conflict creates a generic conflict error
func Conflict(message string) *AppError {
	return StateConflict("CONFLICT", message)
}

// Unavailable creates a retryable 503-class error
func Unavailable(code, message string) *AppError {
	return &AppError{
		Err:        ErrUnavailable,
		Message:    message,
		Code:       code,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       CodeInternal,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context. AppErrors keep their code and status.
func Wrap(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		wrapped := *appErr
		wrapped.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return &wrapped
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       CodeStoreUnavailable,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}
