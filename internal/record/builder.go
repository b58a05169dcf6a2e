package record

import (
	"maps"
	"slices"
	"time"
)

// Builder accumulates fields for a Record.
//
// A Builder is not safe for concurrent use. Auto-loggers hand one to the
// wrapped function so it can add or override fields before the record is
// built.
type Builder struct {
	keys       []string
	fields     map[string]any
	input      *Input
	handlers   []Handler
	extractors []Extractor
	now        func() time.Time
}

// NewBuilder returns an empty builder stamping records with time.Now.
func NewBuilder() *Builder {
	return &Builder{
		fields: make(map[string]any),
		now:    time.Now,
	}
}

// WithClock replaces the time source used by Build.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Set stores value under name. Re-setting a field keeps its original
// position. Values of unsupported kinds are rejected with a ValueError.
func (b *Builder) Set(name string, value any) error {
	v, err := normalize(name, value)
	if err != nil {
		return err
	}
	if _, ok := b.fields[name]; !ok {
		b.keys = append(b.keys, name)
	}
	b.fields[name] = v
	return nil
}

// SetDefault stores value under name unless the field is already set.
func (b *Builder) SetDefault(name string, value any) error {
	if _, ok := b.fields[name]; ok {
		return nil
	}
	return b.Set(name, value)
}

// Get returns the value of name and whether it is set.
func (b *Builder) Get(name string) (any, bool) {
	v, ok := b.fields[name]
	return v, ok
}

// Has reports whether name is set.
func (b *Builder) Has(name string) bool {
	_, ok := b.fields[name]
	return ok
}

// Unset removes name.
func (b *Builder) Unset(name string) {
	if _, ok := b.fields[name]; !ok {
		return
	}
	delete(b.fields, name)
	b.keys = slices.DeleteFunc(b.keys, func(k string) bool { return k == name })
}

// Input attaches function input.
func (b *Builder) Input(args []any, kwargs map[string]any) *Builder {
	b.input = &Input{Args: slices.Clone(args), Kwargs: maps.Clone(kwargs)}
	return b
}

// Handlers appends to the handler set.
func (b *Builder) Handlers(hs ...Handler) *Builder {
	b.handlers = append(b.handlers, hs...)
	return b
}

// Extract appends an extractor filling field at execution time.
func (b *Builder) Extract(field string, fn func(*Record) (any, error)) *Builder {
	b.extractors = append(b.extractors, Extractor{Field: field, Fn: fn})
	return b
}

// Build returns the record, filling the required fields that are missing:
// time (from the builder clock), level (0) and auto (false).
func (b *Builder) Build() *Record {
	initKnown()
	if !b.Has(FieldTime) {
		_ = b.Set(FieldTime, b.now())
	}
	if !b.Has(FieldLevel) {
		_ = b.Set(FieldLevel, 0)
	}
	if !b.Has(FieldAuto) {
		_ = b.Set(FieldAuto, false)
	}
	return b.BuildRaw()
}

// BuildRaw returns the record exactly as accumulated, without defaults.
func (b *Builder) BuildRaw() *Record {
	initKnown()
	return &Record{
		keys:       slices.Clone(b.keys),
		fields:     maps.Clone(b.fields),
		input:      b.input,
		handlers:   slices.Clone(b.handlers),
		extractors: slices.Clone(b.extractors),
	}
}
