package logger

import (
	"errors"
	"fmt"
)

// UsageErrorCode classifies misuse of the manual logging API.
type UsageErrorCode string

const (
	// ErrCodeUnknownField is a field name the manual API does not accept.
	ErrCodeUnknownField UsageErrorCode = "UNKNOWN_FIELD"
	// ErrCodeDuplicateField is a field given more than once in one call.
	ErrCodeDuplicateField UsageErrorCode = "DUPLICATE_FIELD"
	// ErrCodeWrongType is a value of an unsupported or unexpected type.
	ErrCodeWrongType UsageErrorCode = "WRONG_TYPE"
)

// UsageError reports a malformed manual log call. It is returned unless
// silent_internal_exceptions is set.
type UsageError struct {
	Code    UsageErrorCode
	Field   string
	Message string
}

func (e *UsageError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] field %q: %s", e.Code, e.Field, e.Message)
}

func usageErrorf(code UsageErrorCode, field, format string, args ...any) *UsageError {
	return &UsageError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsUsageError reports whether err is a *UsageError.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}

func hasUsageCode(err error, code UsageErrorCode) bool {
	var ue *UsageError
	return errors.As(err, &ue) && ue.Code == code
}

// IsUnknownField checks if err is an UNKNOWN_FIELD usage error.
func IsUnknownField(err error) bool { return hasUsageCode(err, ErrCodeUnknownField) }

// IsDuplicateField checks if err is a DUPLICATE_FIELD usage error.
func IsDuplicateField(err error) bool { return hasUsageCode(err, ErrCodeDuplicateField) }

// IsWrongType checks if err is a WRONG_TYPE usage error.
func IsWrongType(err error) bool { return hasUsageCode(err, ErrCodeWrongType) }

// CallError wraps the failure of an auto-logged function when
// original_exceptions is off. Err is the returned error; Panic holds the
// recovered value when the function panicked.
type CallError struct {
	Function string
	Err      error
	Panic    any
}

func (e *CallError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s panicked: %v", e.Function, e.Panic)
	}
	return fmt.Sprintf("%s: %v", e.Function, e.Err)
}

func (e *CallError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if err, ok := e.Panic.(error); ok {
		return err
	}
	return nil
}

// IsCallError reports whether err is a *CallError.
func IsCallError(err error) bool {
	var ce *CallError
	return errors.As(err, &ce)
}
