package rotation

import (
	"errors"
	"fmt"
)

// ParseError reports a policy or rule string that could not be parsed.
type ParseError struct {
	Source  string // the policy or rule text
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("rotation rule %q: %s", e.Source, e.Message)
}

// IsParseError reports whether err is a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func parseErrorf(source, format string, args ...any) *ParseError {
	return &ParseError{Source: source, Message: fmt.Sprintf(format, args...)}
}
