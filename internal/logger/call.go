package logger

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/roach88/plog/internal/levels"
	"github.com/roach88/plog/internal/record"
	"github.com/roach88/plog/internal/settings"
)

// maxFrames bounds the traceback captured for a failed call.
const maxFrames = 32

// Func is a function that can be auto-logged. It receives the builder of
// the record that will describe the call, so it can add its own fields.
type Func[A, R any] func(b *record.Builder, args A) (R, error)

// Wrapped is an auto-logging adapter around a Func. Every Call produces
// exactly one record.
type Wrapped[A, R any] struct {
	logger     *Logger
	fn         Func[A, R]
	function   string
	module     string
	class      string
	level      any
	errorLevel any
	paths      []string
}

// WrapOption configures a Wrapped.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	module     string
	class      string
	level      any
	errorLevel any
	paths      []string
}

// InModule sets the module field of produced records.
func InModule(name string) WrapOption {
	return func(c *wrapConfig) { c.module = name }
}

// InClass sets the class field of produced records.
func InClass(name string) WrapOption {
	return func(c *wrapConfig) { c.class = name }
}

// AtLevel sets the level of records for successful calls.
func AtLevel(level any) WrapOption {
	return func(c *wrapConfig) { c.level = level }
}

// OnErrorLevel sets the level of records for failed calls.
func OnErrorLevel(level any) WrapOption {
	return func(c *wrapConfig) { c.errorLevel = level }
}

// RouteTo limits delivery to the handlers under the given tree paths.
func RouteTo(paths ...string) WrapOption {
	return func(c *wrapConfig) { c.paths = append(c.paths, paths...) }
}

// Wrap returns an auto-logging adapter for fn named function.
func Wrap[A, R any](l *Logger, function string, fn Func[A, R], opts ...WrapOption) *Wrapped[A, R] {
	cfg := wrapConfig{level: levels.Info, errorLevel: levels.Error}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Wrapped[A, R]{
		logger:     l,
		fn:         fn,
		function:   function,
		module:     cfg.module,
		class:      cfg.class,
		level:      cfg.level,
		errorLevel: cfg.errorLevel,
		paths:      cfg.paths,
	}
}

// Original returns the unwrapped function.
func (w *Wrapped[A, R]) Original() Func[A, R] { return w.fn }

// Name returns the function name recorded by w.
func (w *Wrapped[A, R]) Name() string { return w.function }

// Call runs the wrapped function and logs the outcome. Errors come back
// unchanged when original_exceptions is set and as a *CallError otherwise;
// panics are re-raised the same way after the record is written.
func (w *Wrapped[A, R]) Call(args A) (result R, err error) {
	l := w.logger
	b := l.newBuilder()
	b.Input([]any{args}, nil)
	_ = b.Set(record.FieldFunction, w.function)
	if w.module != "" {
		_ = b.Set(record.FieldModule, w.module)
	}
	if w.class != "" {
		_ = b.Set(record.FieldClass, w.class)
	}
	_ = b.Set(record.FieldAuto, true)
	if in, encErr := record.EncodeJSON(args); encErr == nil {
		_ = b.Set(record.FieldInputVariables, in)
	} else {
		slog.Debug("input not serializable", "function", w.function, "error", encErr)
	}

	start := time.Now()
	var (
		recovered any
		frames    []string
	)
	func() {
		defer func() {
			if p := recover(); p != nil {
				recovered = p
				frames = traceback(3)
			}
		}()
		result, err = w.fn(b, args)
	}()
	elapsed := time.Since(start)
	if err != nil && recovered == nil {
		frames = traceback(2)
	}

	w.finish(b, result, err, recovered, frames, elapsed)

	original := l.settings.Bool(settings.OriginalExceptions)
	if recovered != nil {
		if original {
			panic(recovered)
		}
		panic(&CallError{Function: w.function, Panic: recovered})
	}
	if err != nil && !original {
		err = &CallError{Function: w.function, Err: err}
	}
	return result, err
}

func (w *Wrapped[A, R]) finish(b *record.Builder, result R, err error, recovered any, frames []string, elapsed time.Duration) {
	l := w.logger
	failed := err != nil || recovered != nil

	_ = b.Set(record.FieldSuccess, !failed)
	_ = b.Set(record.FieldTimeOfWork, elapsed)

	level := w.level
	if failed {
		level = w.errorLevel
		excType, excMsg := describeFailure(err, recovered)
		_ = b.Set(record.FieldExceptionType, excType)
		_ = b.Set(record.FieldExceptionMessage, excMsg)
		if tb, tbErr := record.EncodeJSON(frames); tbErr == nil {
			_ = b.Set(record.FieldTraceback, tb)
		}
	} else if env, encErr := record.Envelope(result); encErr == nil {
		_ = b.Set(record.FieldResult, env)
	} else {
		slog.Debug("result not serializable", "function", w.function, "error", encErr)
	}

	// The wrapped function may have overwritten required fields; a level it
	// set still wins when it resolves.
	_ = b.Set(record.FieldAuto, true)
	if v, ok := b.Get(record.FieldLevel); ok {
		if err := l.setLevel(b, v); err != nil {
			slog.Debug("level set by wrapped function rejected", "function", w.function, "error", err)
			b.Unset(record.FieldLevel)
		}
	}
	if !b.Has(record.FieldLevel) {
		if err := l.setLevel(b, level); err != nil {
			slog.Debug("auto-logger level rejected", "function", w.function, "error", err)
		}
	}
	if v, ok := b.Get(record.FieldTime); ok {
		if _, isTime := v.(time.Time); !isTime {
			slog.Debug("time set by wrapped function rejected", "function", w.function, "value", v)
			b.Unset(record.FieldTime)
		}
	}
	if svc := l.settings.String(settings.ServiceName); svc != "" {
		_ = b.SetDefault(record.FieldServiceName, svc)
	}

	handlers, rerr := l.route(w.paths)
	if rerr != nil {
		slog.Debug("auto-logger routing failed", "function", w.function, "error", rerr)
		return
	}
	b.Handlers(handlers...)
	l.engine.Write(b.Build())
}

// describeFailure returns the exception type and message of a failed call.
func describeFailure(err error, recovered any) (string, string) {
	if recovered != nil {
		if perr, ok := recovered.(error); ok {
			return typeName(perr), perr.Error()
		}
		return typeName(recovered), fmt.Sprint(recovered)
	}
	return typeName(err), err.Error()
}

func typeName(v any) string {
	return reflect.TypeOf(v).String()
}

// traceback returns the caller frames, innermost first, as
// "function (file:line)" strings.
func traceback(skip int) []string {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var out []string
	for {
		f, more := frames.Next()
		if strings.HasPrefix(f.Function, "runtime.") {
			if !more {
				break
			}
			continue
		}
		out = append(out, fmt.Sprintf("%s (%s:%d)", f.Function, filepath.Base(f.File), f.Line))
		if !more {
			break
		}
	}
	return out
}
