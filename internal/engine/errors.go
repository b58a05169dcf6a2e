package engine

import (
	"errors"
	"fmt"
)

// ErrShutdownTimeout is logged when the bounded drain exceeds its budget.
// It is never returned to producers.
var ErrShutdownTimeout = errors.New("engine shutdown exceeded max_delay_before_exit")

// InternalError wraps a failure recovered inside the engine.
//
// Internal errors are logged, never returned from Write or Reload.
type InternalError struct {
	// Op is the engine operation that failed ("start", "reload", "write", "stop").
	Op string

	// Err is the underlying error or recovered panic value.
	Err error
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *InternalError) Unwrap() error {
	return e.Err
}

// IsInternalError reports whether err is (or wraps) an InternalError.
func IsInternalError(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}

func recovered(op string, p any) *InternalError {
	if err, ok := p.(error); ok {
		return &InternalError{Op: op, Err: err}
	}
	return &InternalError{Op: op, Err: fmt.Errorf("panic: %v", p)}
}
