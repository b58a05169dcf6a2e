package record

import (
	"errors"
	"fmt"
)

// ErrIncomparable is returned when ordering records that do not both carry
// a time field.
var ErrIncomparable = errors.New("records without time are not comparable")

// RewriteError reports an attempt to modify a built record.
type RewriteError struct {
	// Field is the field the caller tried to change.
	Field string

	// Op is "set" or "delete".
	Op string
}

// Error implements the error interface.
func (e *RewriteError) Error() string {
	return fmt.Sprintf("record is read-only: cannot %s field %q", e.Op, e.Field)
}

// IsRewriteError reports whether err is (or wraps) a RewriteError.
func IsRewriteError(err error) bool {
	var re *RewriteError
	return errors.As(err, &re)
}

// ValueError reports a field value of a kind records cannot carry.
type ValueError struct {
	Field string
	Value any
}

// Error implements the error interface.
func (e *ValueError) Error() string {
	return fmt.Sprintf("field %q: unsupported value type %T", e.Field, e.Value)
}

// IsValueError reports whether err is (or wraps) a ValueError.
func IsValueError(err error) bool {
	var ve *ValueError
	return errors.As(err, &ve)
}
