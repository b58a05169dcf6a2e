package record

import (
	"fmt"
	"log/slog"
)

// Handler consumes a record. Errors and panics are absorbed by Execute.
type Handler interface {
	Handle(r *Record) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(r *Record) error

// Handle calls f(r).
func (f HandlerFunc) Handle(r *Record) error {
	return f(r)
}

// Extractor computes an extra field at execution time.
type Extractor struct {
	Field string
	Fn    func(*Record) (any, error)
}

// Execute evaluates the extractors, then hands the record to every handler
// in order. A failing extractor is skipped; a failing handler does not stop
// the fan-out.
//
// Extractors run on the first Execute only. A record written more than once
// is safe to execute concurrently: later calls wait for the extraction and
// then see the same fields.
func (r *Record) Execute() {
	r.extracted.Do(func() {
		for _, ex := range r.extractors {
			r.extract(ex)
		}
	})
	for i, h := range r.handlers {
		if err := dispatch(h, r); err != nil {
			slog.Debug("handler failed", "handler", i, "error", err)
		}
	}
}

// extract runs ex without holding mu, so the extractor may read r.
func (r *Record) extract(ex Extractor) {
	if ex.Fn == nil || r.Has(ex.Field) {
		return
	}
	v, err := safeExtract(ex, r)
	if err != nil {
		slog.Debug("extractor failed", "field", ex.Field, "error", err)
		return
	}
	nv, err := normalize(ex.Field, v)
	if err != nil {
		slog.Debug("extractor returned unsupported value", "field", ex.Field, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fields == nil {
		r.fields = make(map[string]any)
	}
	if _, ok := r.fields[ex.Field]; ok {
		return
	}
	r.keys = append(r.keys, ex.Field)
	r.fields[ex.Field] = nv
}

func safeExtract(ex Extractor, r *Record) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("extractor panicked: %v", p)
		}
	}()
	return ex.Fn(r)
}

func dispatch(h Handler, r *Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	if h == nil {
		return nil
	}
	return h.Handle(r)
}
