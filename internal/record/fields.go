package record

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Field names with a defined meaning.
const (
	FieldTime             = "time"
	FieldLevel            = "level"
	FieldAuto             = "auto"
	FieldSuccess          = "success"
	FieldServiceName      = "service_name"
	FieldMessage          = "message"
	FieldFunction         = "function"
	FieldModule           = "module"
	FieldClass            = "class"
	FieldExceptionType    = "exception_type"
	FieldExceptionMessage = "exception_message"
	FieldTraceback        = "traceback"
	FieldInputVariables   = "input_variables"
	FieldLocalVariables   = "local_variables"
	FieldResult           = "result"
	FieldTimeOfWork       = "time_of_work"
)

// JSON is a pre-serialized JSON fragment stored as a field value.
type JSON string

// Input is the function input attached by auto-loggers.
type Input struct {
	Args   []any
	Kwargs map[string]any
}

var (
	knownOnce sync.Once
	known     map[string]struct{}
)

// initKnown builds the known-field set. It runs on the first Build.
func initKnown() {
	knownOnce.Do(func() {
		names := []string{
			FieldTime, FieldLevel, FieldAuto, FieldSuccess, FieldServiceName,
			FieldMessage, FieldFunction, FieldModule, FieldClass,
			FieldExceptionType, FieldExceptionMessage, FieldTraceback,
			FieldInputVariables, FieldLocalVariables, FieldResult, FieldTimeOfWork,
		}
		known = make(map[string]struct{}, len(names))
		for _, n := range names {
			known[n] = struct{}{}
		}
	})
}

// IsKnown reports whether name is one of the fields with a defined meaning.
// Known fields are never rendered as extras.
func IsKnown(name string) bool {
	initKnown()
	_, ok := known[name]
	return ok
}

// IsInternal reports whether name is reserved for internal use.
func IsInternal(name string) bool {
	return strings.HasPrefix(name, "_")
}

// normalize converts v to one of the kinds a record carries: string, int64,
// float64, bool, time.Time or JSON.
func normalize(field string, v any) (any, error) {
	switch val := v.(type) {
	case string, bool, time.Time, JSON:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return int64(val), nil
	case float32:
		return float64(val), nil
	case float64:
		return val, nil
	case time.Duration:
		return val.Seconds(), nil
	case json.RawMessage:
		return JSON(val), nil
	default:
		return nil, &ValueError{Field: field, Value: v}
	}
}
