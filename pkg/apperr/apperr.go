package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Pipeline errors
	CodeFetchFailed       = "FETCH_FAILED"
	CodeExtractionFailed  = "EXTRACTION_FAILED"
	CodePersistenceFailed = "PERSISTENCE_FAILED"
	CodeDuplicateKey      = "DUPLICATE_KEY"
	CodeRunInProgress     = "RUN_IN_PROGRESS"

	// Validation errors
	CodeBadRequest   = "BAD_REQUEST"
	CodeInvalidInput = "INVALID_INPUT"

	// Resource errors
	CodeNotFound = "NOT_FOUND"

	// External errors
	CodeExternalError = "EXTERNAL_ERROR"
	CodeSyncFailed    = "SYNC_FAILED"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeTimeout       = "TIMEOUT"
	CodeUnauthorized  = "UNAUTHORIZED"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Pipeline errors

// FetchFailed signals that the mail collaborator could not be reached.
// It aborts the run before any message is processed.
func FetchFailed(err error) *AppError {
	return &AppError{
		Code:    CodeFetchFailed,
		Message: "failed to fetch messages from mail provider",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// ExtractionFailed signals that the LLM backend failed or returned
// unparseable output for a single message.
func ExtractionFailed(messageID string, err error) *AppError {
	return &AppError{
		Code:    CodeExtractionFailed,
		Message: "action item extraction failed",
		Status:  http.StatusBadGateway,
		Details: map[string]any{"message_id": messageID},
		Err:     err,
	}
}

// PersistenceFailed signals a store write failure for a single message.
func PersistenceFailed(operation string, err error) *AppError {
	return &AppError{
		Code:    CodePersistenceFailed,
		Message: fmt.Sprintf("store write failed: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// DuplicateKey signals that a record with the same key already exists.
func DuplicateKey(resource string) *AppError {
	return &AppError{
		Code:    CodeDuplicateKey,
		Message: fmt.Sprintf("%s already exists", resource),
		Status:  http.StatusConflict,
	}
}

// RunInProgress signals that another run holds the configuration's
// exclusive claim.
func RunInProgress(configurationID int64) *AppError {
	return &AppError{
		Code:    CodeRunInProgress,
		Message: "a run is already in progress for this configuration",
		Status:  http.StatusConflict,
		Details: map[string]any{"configuration_id": configurationID},
	}
}

// Validation errors
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

// Resource errors
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

// External errors
func ExternalError(service string, err error) *AppError {
	return &AppError{
		Code:    CodeExternalError,
		Message: fmt.Sprintf("external service error: %s", service),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

// SyncFailed signals a board sync push failure. It never affects the
// pipeline's own success/failure accounting.
func SyncFailed(board string, err error) *AppError {
	return &AppError{
		Code:    CodeSyncFailed,
		Message: fmt.Sprintf("board sync failed: %s", board),
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// Internal errors
func Internal(message string) *AppError {
	if message == "" {
		message = "internal error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func InternalWithError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "internal error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsDuplicateKey(err error) bool  { return HasCode(err, CodeDuplicateKey) }
func IsNotFound(err error) bool      { return HasCode(err, CodeNotFound) }
func IsRunInProgress(err error) bool { return HasCode(err, CodeRunInProgress) }

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
