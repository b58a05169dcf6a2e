package record

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/plog/internal/levels"
)

// Record is one log event: ordered fields, the handlers it must reach and the
// extractors evaluated when it is executed.
//
// Records are produced by Builder.Build and must not be copied. The zero
// value is an empty record with no handlers.
//
// Extracted fields are added once, on the first Execute; mu guards fields
// and keys against readers on other goroutines while that happens.
type Record struct {
	mu         sync.RWMutex
	extracted  sync.Once
	keys       []string
	fields     map[string]any
	input      *Input
	handlers   []Handler
	extractors []Extractor
}

// Get returns the value of name and whether it is present.
func (r *Record) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.fields[name]
	return v, ok
}

// Value returns the value of name, or nil when absent.
func (r *Record) Value(name string) any {
	v, _ := r.Get(name)
	return v
}

// Has reports whether name is present.
func (r *Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Keys returns field names in insertion order.
func (r *Record) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.keys)
}

// Len returns the number of fields.
func (r *Record) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// All iterates fields in insertion order over a snapshot taken when the
// iteration starts.
func (r *Record) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		r.mu.RLock()
		keys := slices.Clone(r.keys)
		values := make([]any, len(keys))
		for i, k := range keys {
			values[i] = r.fields[k]
		}
		r.mu.RUnlock()

		for i, k := range keys {
			if !yield(k, values[i]) {
				return
			}
		}
	}
}

// Fields returns a copy of the field map.
func (r *Record) Fields() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// Set always fails: records are read-only once built.
func (r *Record) Set(name string, _ any) error {
	return &RewriteError{Field: name, Op: "set"}
}

// Delete always fails: records are read-only once built.
func (r *Record) Delete(name string) error {
	return &RewriteError{Field: name, Op: "delete"}
}

// Input returns the function input attached by an auto-logger, or nil.
func (r *Record) Input() *Input {
	return r.input
}

// Handlers returns the handler set the record is delivered to.
func (r *Record) Handlers() []Handler {
	return slices.Clone(r.handlers)
}

// HasHandlers reports whether the handler set is non-empty.
func (r *Record) HasHandlers() bool {
	return len(r.handlers) > 0
}

// Level returns the numeric level (0 when absent).
func (r *Record) Level() int {
	n, _ := levels.AsInt(r.Value(FieldLevel))
	return n
}

// Auto reports whether the record was produced by an auto-logger.
func (r *Record) Auto() bool {
	b, _ := r.Value(FieldAuto).(bool)
	return b
}

// Success returns the success flag. Records without one count as successful.
func (r *Record) Success() bool {
	b, ok := r.Value(FieldSuccess).(bool)
	return !ok || b
}

// Time returns the record time and whether it is present.
func (r *Record) Time() (time.Time, bool) {
	t, ok := r.Value(FieldTime).(time.Time)
	return t, ok
}

// Message returns the message field, or "" when absent.
func (r *Record) Message() string {
	s, _ := r.Value(FieldMessage).(string)
	return s
}

// ServiceName returns the service_name field, or "" when absent.
func (r *Record) ServiceName() string {
	s, _ := r.Value(FieldServiceName).(string)
	return s
}

// String renders the fields for debugging.
func (r *Record) String() string {
	var b strings.Builder
	b.WriteString("Record{")
	i := 0
	for k, v := range r.All() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", k, v)
		i++
	}
	b.WriteByte('}')
	return b.String()
}

// Compare orders r and other by time. It returns ErrIncomparable when either
// record lacks a time field.
func (r *Record) Compare(other *Record) (int, error) {
	if other == nil {
		return 0, ErrIncomparable
	}
	a, ok := r.Time()
	if !ok {
		return 0, ErrIncomparable
	}
	b, ok := other.Time()
	if !ok {
		return 0, ErrIncomparable
	}
	return a.Compare(b), nil
}

// Less reports whether r happened before other.
func (r *Record) Less(other *Record) (bool, error) {
	c, err := r.Compare(other)
	return c < 0, err
}

// Greater reports whether r happened after other.
func (r *Record) Greater(other *Record) (bool, error) {
	c, err := r.Compare(other)
	return c > 0, err
}

// Equal reports whether other is a record with the same time. Records
// without time are equal only to themselves; non-records are never equal.
func (r *Record) Equal(other any) bool {
	o, ok := other.(*Record)
	if !ok || o == nil {
		return false
	}
	if r == o {
		return true
	}
	c, err := r.Compare(o)
	return err == nil && c == 0
}

// Sort orders records by time, keeping the relative order of equal times.
// It fails without reordering when any record lacks time.
func Sort(records []*Record) error {
	for _, r := range records {
		if _, ok := r.Time(); !ok {
			return ErrIncomparable
		}
	}
	slices.SortStableFunc(records, func(a, b *Record) int {
		ta, _ := a.Time()
		tb, _ := b.Time()
		return ta.Compare(tb)
	})
	return nil
}
