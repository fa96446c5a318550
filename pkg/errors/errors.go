package errors

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the failing pipeline stage. Codes are stable and
// drive both error classification in tests and process exit codes.
type ErrorCode string

const (
	// General errors
	ErrUnknown   ErrorCode = "UNKNOWN"
	ErrInternal  ErrorCode = "INTERNAL"
	ErrPreflight ErrorCode = "PREFLIGHT"

	// Configuration errors
	ErrConfigRead    ErrorCode = "CONFIG_READ"
	ErrConfigParse   ErrorCode = "CONFIG_PARSE"
	ErrConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Template environment errors
	ErrEngineInit     ErrorCode = "ENGINE_INIT"
	ErrCapabilityLoad ErrorCode = "CAPABILITY_LOAD"

	// Mapping errors
	ErrMappingResolution    ErrorCode = "MAPPING_RESOLUTION"
	ErrMultipleSubstitution ErrorCode = "MULTIPLE_SUBSTITUTION"
	ErrExpansionMismatch    ErrorCode = "EXPANSION_MISMATCH"

	// Rendering errors
	ErrRender      ErrorCode = "RENDER"
	ErrStdinRender ErrorCode = "STDIN_RENDER"

	// Output reconciliation errors
	ErrSyncTransfer    ErrorCode = "SYNC_TRANSFER"
	ErrPermissionApply ErrorCode = "PERMISSION_APPLY"
)

// TmplError is a structured error carrying a stage code and free-form
// details (offending paths, specifiers, subprocess output).
type TmplError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface.
func (e *TmplError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface.
func (e *TmplError) Unwrap() error {
	return e.Wrapped
}

// Is matches two TmplErrors by code.
func (e *TmplError) Is(target error) bool {
	var targetErr *TmplError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new TmplError with the given code and message.
func New(code ErrorCode, message string) *TmplError {
	return &TmplError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new TmplError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *TmplError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a TmplError. Returns nil for nil err.
func Wrap(err error, code ErrorCode, message string) *TmplError {
	if err == nil {
		return nil
	}
	return &TmplError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *TmplError {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WithDetail attaches a detail to the error and returns it.
func (e *TmplError) WithDetail(key string, value interface{}) *TmplError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDetail attaches a detail to err when it is a TmplError and
// returns err unchanged otherwise.
func WithDetail(err error, key string, value interface{}) error {
	var terr *TmplError
	if errors.As(err, &terr) {
		return terr.WithDetail(key, value)
	}
	return err
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var terr *TmplError
	if errors.As(err, &terr) {
		return terr.Code == code
	}
	return false
}

// GetErrorCode returns the code of err, or ErrUnknown for foreign errors.
func GetErrorCode(err error) ErrorCode {
	var terr *TmplError
	if errors.As(err, &terr) {
		return terr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details of err, or nil for foreign errors.
func GetErrorDetails(err error) map[string]interface{} {
	var terr *TmplError
	if errors.As(err, &terr) {
		return terr.Details
	}
	return nil
}
