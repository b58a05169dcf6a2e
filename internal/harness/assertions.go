package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/plog/internal/levels"
	"github.com/roach88/plog/internal/record"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Handler  string       // Handler path under test
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s on %s\n", e.Type, e.Handler)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Step)
		if ev.Target != "" {
			fmt.Fprintf(&buf, " %s", ev.Target)
		}
		if ev.Error != "" {
			fmt.Fprintf(&buf, " error=%s", ev.Error)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

func failure(result *Result, a Assertion, expected, actual string) *AssertionError {
	return &AssertionError{
		Type:     a.Type,
		Handler:  a.Handler,
		Expected: expected,
		Actual:   actual,
		Trace:    result.Trace,
	}
}

// assertCount checks a record, line or archive count.
func assertCount(result *Result, a Assertion) error {
	out, ok := result.Outputs[a.Handler]
	if !ok {
		return fmt.Errorf("no output for handler %q", a.Handler)
	}

	var got int
	switch a.Type {
	case AssertRecordCount:
		if out.Type == HandlerStore {
			got = out.Stored
		} else {
			got = len(out.Records)
		}
	case AssertLineCount:
		got = len(out.Lines)
	case AssertArchiveCount:
		got = out.Archives
	}

	if got != a.Count {
		return failure(result, a, fmt.Sprintf("%d", a.Count), fmt.Sprintf("%d", got))
	}
	return nil
}

// assertRecordFields checks one record against the expected fields (subset
// match).
func assertRecordFields(result *Result, a Assertion) error {
	records := result.Outputs[a.Handler].Records
	idx := a.Index
	if idx < 0 {
		idx += len(records)
	}
	if idx < 0 || idx >= len(records) {
		return failure(result, a,
			fmt.Sprintf("record at index %d", a.Index),
			fmt.Sprintf("handler holds %d records", len(records)))
	}

	actual := records[idx]
	for _, key := range sortedKeys(a.Expect) {
		want := a.Expect[key]
		got, exists := actual[key]
		if !exists {
			return failure(result, a,
				fmt.Sprintf("field %q to exist", key),
				fmt.Sprintf("fields present: %v", sortedKeys(actual)))
		}
		if !valuesEqual(want, got) {
			return failure(result, a,
				fmt.Sprintf("field %q = %v (type %T)", key, want, want),
				fmt.Sprintf("field %q = %v (type %T)", key, got, got))
		}
	}
	return nil
}

// assertRecordOrder checks that the handler received exactly these
// messages, in order.
func assertRecordOrder(result *Result, a Assertion) error {
	records := result.Outputs[a.Handler].Records
	got := make([]string, len(records))
	for i, r := range records {
		got[i], _ = r[record.FieldMessage].(string)
	}
	if !reflect.DeepEqual(got, a.Messages) {
		return failure(result, a, fmt.Sprintf("%q", a.Messages), fmt.Sprintf("%q", got))
	}
	return nil
}

// valuesEqual compares a YAML-parsed expected value with a record value.
// Records hold int64 and float64; YAML yields int and float64.
func valuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == actual
	}

	switch act := actual.(type) {
	case int64:
		if n, ok := levels.AsInt(expected); ok {
			return int64(n) == act
		}
		return false
	case float64:
		switch exp := expected.(type) {
		case float64:
			return exp == act
		case int:
			return float64(exp) == act
		}
		return false
	case record.JSON:
		if s, ok := expected.(string); ok {
			return s == string(act)
		}
		return false
	}
	return reflect.DeepEqual(expected, actual)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error
		if _, ok := result.Outputs[a.Handler]; !ok {
			err = fmt.Errorf("assertion[%d]: no output for handler %q", i, a.Handler)
		} else {
			switch a.Type {
			case AssertRecordCount, AssertLineCount, AssertArchiveCount:
				err = assertCount(result, a)
			case AssertRecordFields:
				err = assertRecordFields(result, a)
			case AssertRecordOrder:
				err = assertRecordOrder(result, a)
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
			}
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
