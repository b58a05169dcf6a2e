package logger

import (
	"fmt"
	"log/slog"

	"github.com/roach88/plog/internal/levels"
	"github.com/roach88/plog/internal/record"
	"github.com/roach88/plog/internal/settings"
)

// DefaultLevel is used by Log when the call names no level.
const DefaultLevel = levels.Info

// Entry accumulates a manual record. Entries are cheap; build one per call
// site with At or With and finish it with Log.
type Entry struct {
	logger *Logger
	level  any
	args   []any
	paths  []string
}

// At starts an entry at level (an integer or a registered alias).
func (l *Logger) At(level any) *Entry {
	return &Entry{logger: l, level: level}
}

// With starts an entry carrying fields given as name/value pairs.
func (l *Logger) With(args ...any) *Entry {
	return &Entry{logger: l, args: args}
}

// Log emits a manual record. Fields are name/value pairs as in log/slog:
//
//	l.Log("user created", "level", "INFO", "user_id", 42)
func (l *Logger) Log(message string, args ...any) error {
	return (&Entry{logger: l}).Log(message, args...)
}

// With returns a copy of e with more fields.
func (e *Entry) With(args ...any) *Entry {
	c := *e
	c.args = append(append([]any(nil), e.args...), args...)
	return &c
}

// To limits delivery to the handlers under the given tree paths.
func (e *Entry) To(paths ...string) *Entry {
	c := *e
	c.paths = append(append([]string(nil), e.paths...), paths...)
	return &c
}

// Log builds the record and hands it to the engine. Misuse is reported as
// a *UsageError unless silent_internal_exceptions is set, in which case the
// offending fields are dropped and the rest is logged.
func (e *Entry) Log(message string, args ...any) error {
	l := e.logger
	silent := l.settings.Bool(settings.SilentInternalExceptions)

	args = append(append([]any(nil), e.args...), args...)
	b, err := l.manualBuilder(e.level, message, args, silent)
	if err != nil {
		return err
	}

	handlers, err := l.route(e.paths)
	if err != nil {
		if !silent {
			return err
		}
		slog.Debug("manual log routing failed", "error", err)
		return nil
	}
	b.Handlers(handlers...)

	l.engine.Write(b.Build())
	return nil
}

// manualBuilder validates the call and returns the builder. With silent set
// it never fails.
func (l *Logger) manualBuilder(level any, message string, args []any, silent bool) (*record.Builder, error) {
	b := l.newBuilder()
	fail := func(err *UsageError) error {
		if silent {
			slog.Debug("manual log misuse ignored", "error", err)
			return nil
		}
		return err
	}

	if err := b.Set(record.FieldMessage, message); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(args)/2+2)
	seen[record.FieldMessage] = true
	if level != nil {
		seen[record.FieldLevel] = true
		if err := l.setLevel(b, level); err != nil {
			if ferr := fail(err); ferr != nil {
				return nil, ferr
			}
		}
	}

	for i := 0; i < len(args); i += 2 {
		name, ok := args[i].(string)
		if !ok {
			if err := fail(usageErrorf(ErrCodeWrongType, "", "field name at position %d is %T, not string", i, args[i])); err != nil {
				return nil, err
			}
			continue
		}
		if i+1 >= len(args) {
			if err := fail(usageErrorf(ErrCodeWrongType, name, "missing value")); err != nil {
				return nil, err
			}
			continue
		}
		if err := l.setField(b, seen, name, args[i+1]); err != nil {
			if ferr := fail(err); ferr != nil {
				return nil, ferr
			}
		}
	}

	if !b.Has(record.FieldLevel) {
		_ = b.Set(record.FieldLevel, DefaultLevel)
	}
	_ = b.Set(record.FieldAuto, false)
	if svc := l.settings.String(settings.ServiceName); svc != "" {
		_ = b.SetDefault(record.FieldServiceName, svc)
	}
	return b, nil
}

// manualFields are the known fields a manual call may set; the rest belong
// to auto-loggers.
var manualFields = map[string]bool{
	record.FieldTime:             true,
	record.FieldLevel:            true,
	record.FieldAuto:             true,
	record.FieldSuccess:          true,
	record.FieldServiceName:      true,
	record.FieldMessage:          true,
	record.FieldExceptionType:    true,
	record.FieldExceptionMessage: true,
}

func (l *Logger) setField(b *record.Builder, seen map[string]bool, name string, value any) *UsageError {
	switch {
	case !settings.IsIdentifier(name) || record.IsInternal(name):
		return usageErrorf(ErrCodeUnknownField, name, "field names must be identifiers not starting with an underscore")
	case record.IsKnown(name) && !manualFields[name]:
		return usageErrorf(ErrCodeUnknownField, name, "field is reserved for automatic records")
	case seen[name]:
		return usageErrorf(ErrCodeDuplicateField, name, "field given more than once")
	}
	seen[name] = true

	switch name {
	case record.FieldLevel:
		return l.setLevel(b, value)
	case record.FieldMessage:
		if _, ok := value.(string); !ok {
			return usageErrorf(ErrCodeWrongType, name, "expected string, got %T", value)
		}
	case record.FieldAuto:
		if v, ok := value.(bool); !ok || v {
			return usageErrorf(ErrCodeWrongType, name, "manual records can only carry auto=false")
		}
	case record.FieldSuccess:
		if _, ok := value.(bool); !ok {
			return usageErrorf(ErrCodeWrongType, name, "expected bool, got %T", value)
		}
	}

	if err := b.Set(name, value); err != nil {
		return usageErrorf(ErrCodeWrongType, name, "%v", err)
	}
	return nil
}

func (l *Logger) setLevel(b *record.Builder, value any) *UsageError {
	lvl, err := l.levels.Resolve(value)
	if err != nil {
		return usageErrorf(ErrCodeWrongType, record.FieldLevel, "%v", err)
	}
	if err := b.Set(record.FieldLevel, lvl); err != nil {
		return usageErrorf(ErrCodeWrongType, record.FieldLevel, "%v", err)
	}
	return nil
}

// newBuilder returns a builder stamped by the logger clock and carrying the
// registered extractors.
func (l *Logger) newBuilder() *record.Builder {
	b := record.NewBuilder().WithClock(l.now)
	for _, ex := range l.extractors {
		b.Extract(ex.Field, ex.Fn)
	}
	return b
}

// route returns the handlers for a record: every registered handler, or
// those under paths.
func (l *Logger) route(paths []string) ([]record.Handler, error) {
	if len(paths) == 0 {
		return l.handlers.Values(), nil
	}
	sub, err := l.handlers.Project(paths)
	if err != nil {
		return nil, fmt.Errorf("route record: %w", err)
	}
	return sub.Values(), nil
}
