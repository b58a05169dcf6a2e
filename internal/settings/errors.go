package settings

import (
	"errors"
	"fmt"
)

// ConfigError reports a rejected configuration read or write.
//
// Configuration errors are always surfaced to the caller; the store never
// swallows them.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Option is the option name involved.
	Option string

	// Message is a human-readable description.
	Message string

	// Peer names the conflicting option for ErrCodeConflict.
	Peer string
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeUnknownOption indicates the option is not registered.
	ErrCodeUnknownOption ConfigErrorCode = "UNKNOWN_OPTION"

	// ErrCodeInvalidValue indicates a predicate or converter rejected the value.
	ErrCodeInvalidValue ConfigErrorCode = "INVALID_VALUE"

	// ErrCodeConflict indicates the value conflicts with a peer option.
	ErrCodeConflict ConfigErrorCode = "CONFLICT"

	// ErrCodeChangeOnce indicates a second assignment to a change-once option.
	ErrCodeChangeOnce ConfigErrorCode = "CHANGE_ONCE"

	// ErrCodeBeforeStart indicates a before-start option was set after start.
	ErrCodeBeforeStart ConfigErrorCode = "BEFORE_START"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s: option %q: %s (peer %q)", e.Code, e.Option, e.Message, e.Peer)
	}
	return fmt.Sprintf("%s: option %q: %s", e.Code, e.Option, e.Message)
}

func newConfigError(code ConfigErrorCode, option, message string) *ConfigError {
	return &ConfigError{Code: code, Option: option, Message: message}
}

func hasCode(err error, code ConfigErrorCode) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsUnknownOption reports whether err rejects an unregistered option.
func IsUnknownOption(err error) bool { return hasCode(err, ErrCodeUnknownOption) }

// IsInvalidValue reports whether err rejects a value by predicate or converter.
func IsInvalidValue(err error) bool { return hasCode(err, ErrCodeInvalidValue) }

// IsConflict reports whether err rejects a value conflicting with a peer.
func IsConflict(err error) bool { return hasCode(err, ErrCodeConflict) }

// IsChangeOnce reports whether err rejects a second change-once assignment.
func IsChangeOnce(err error) bool { return hasCode(err, ErrCodeChangeOnce) }

// IsBeforeStart reports whether err rejects a before-start write after start.
func IsBeforeStart(err error) bool { return hasCode(err, ErrCodeBeforeStart) }
