package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/plog/internal/engine"
	"github.com/roach88/plog/internal/levels"
	"github.com/roach88/plog/internal/record"
	"github.com/roach88/plog/internal/registry"
	"github.com/roach88/plog/internal/settings"
)

// Logger is the application context threaded through call sites.
//
// Thread-safety: all methods are safe for concurrent use.
type Logger struct {
	levels   *levels.Registry
	settings *settings.Store
	engine   *engine.Engine
	handlers   *registry.Tree
	now        func() time.Time
	extractors []record.Extractor
}

// Option configures a Logger.
type Option func(*Logger)

// WithLevels uses lv instead of the default DEBUG..CRITICAL registry.
func WithLevels(lv *levels.Registry) Option {
	return func(l *Logger) { l.levels = lv }
}

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithExtractor adds field to every record, computed by fn when the record
// is executed on a pool worker. Fields set at the call site take precedence.
// Names that are not identifiers, start with an underscore or are reserved
// are ignored.
func WithExtractor(field string, fn func(*record.Record) (any, error)) Option {
	return func(l *Logger) {
		if !settings.IsIdentifier(field) || record.IsInternal(field) || record.IsKnown(field) {
			slog.Warn("extractor ignored", "field", field)
			return
		}
		l.extractors = append(l.extractors, record.Extractor{Field: field, Fn: fn})
	}
}

// New builds the settings store, handler tree and engine, and wires the
// pool options to engine reloads. No worker runs until the first record.
func New(opts ...Option) *Logger {
	l := &Logger{
		handlers: registry.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.levels == nil {
		l.levels = levels.NewDefault()
	}

	l.settings = settings.NewDefault(l.levels)
	l.engine = engine.New(l.settings)

	reload := func(_, _ any, st *settings.Store) { l.engine.ReloadFrom(st) }
	for _, opt := range []string{settings.PoolSize, settings.MaxQueueSize} {
		if err := l.settings.SetAction(opt, reload); err != nil {
			// Both options are part of the default table.
			panic(err)
		}
	}
	return l
}

// Settings returns the option store.
func (l *Logger) Settings() *settings.Store { return l.settings }

// Levels returns the level alias registry.
func (l *Logger) Levels() *levels.Registry { return l.levels }

// Engine returns the dispatch engine.
func (l *Logger) Engine() *engine.Engine { return l.engine }

// Handlers returns the handler tree.
func (l *Logger) Handlers() *registry.Tree { return l.handlers }

// Configure applies several options at once. Configuration errors are
// always returned.
func (l *Logger) Configure(values map[string]any) error {
	return l.settings.Apply(values)
}

// LoadConfig applies a YAML, TOML or CUE settings file.
func (l *Logger) LoadConfig(path string) error {
	return settings.LoadFile(l.settings, path)
}

// WatchConfig re-applies path whenever it changes until ctx is done.
func (l *Logger) WatchConfig(ctx context.Context, path string, onErr func(error)) error {
	return settings.Watch(ctx, l.settings, path, onErr)
}

// AddHandler registers h under a dotted path.
func (l *Logger) AddHandler(path string, h record.Handler) error {
	return l.handlers.Insert(path, h)
}

// RemoveHandler unregisters the handler at path and reports whether one
// was present.
func (l *Logger) RemoveHandler(path string) bool {
	return l.handlers.Delete(path)
}

// Close drains the engine within max_delay_before_exit, then closes every
// registered handler that implements io.Closer. It reports whether all
// queued records were handled in time.
func (l *Logger) Close() (bool, error) {
	drained := l.engine.Shutdown()

	var errs []error
	for _, h := range l.handlers.Values() {
		if c, ok := h.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if !drained {
		slog.Warn("logger closed before the queue drained")
	}
	return drained, errors.Join(errs...)
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// Default returns the process-wide logger, creating it on first use.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New()
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger and returns the previous one.
func SetDefault(l *Logger) *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultLogger
	defaultLogger = l
	return prev
}
