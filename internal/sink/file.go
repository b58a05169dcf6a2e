package sink

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/roach88/plog/internal/levels"
	"github.com/roach88/plog/internal/record"
	"github.com/roach88/plog/internal/rotation"
)

// ErrClosed is returned by writes to a closed sink.
var ErrClosed = errors.New("sink closed")

// ErrStreamRotation rejects rotation on a sink without a path.
var ErrStreamRotation = errors.New("rotation requires a file path")

// AltFunc receives records the sink failed to write. When set, write and
// rotation failures are reported to it instead of being returned.
type AltFunc func(r *record.Record, err error)

type fileConfig struct {
	locks       string
	separator   string
	format      FormatFunc
	levels      *levels.Registry
	alt         AltFunc
	policy      string
	classes     *rotation.Classes
	rotatorOpts []rotation.Option
}

// FileOption configures a file or stream sink.
type FileOption func(*fileConfig)

// WithLocks sets the lock grammar ("thread", "file", "thread+file").
func WithLocks(spec string) FileOption {
	return func(c *fileConfig) { c.locks = spec }
}

// WithSeparator sets the record terminator (default "\n").
func WithSeparator(sep string) FileOption {
	return func(c *fileConfig) { c.separator = sep }
}

// WithFormatter replaces the default line format.
func WithFormatter(fn FormatFunc) FileOption {
	return func(c *fileConfig) { c.format = fn }
}

// WithLevels sets the registry used by the default formatter.
func WithLevels(lv *levels.Registry) FileOption {
	return func(c *fileConfig) { c.levels = lv }
}

// WithAlt installs a fallback for failed writes.
func WithAlt(fn AltFunc) FileOption {
	return func(c *fileConfig) { c.alt = fn }
}

// WithRotation sets the rotation policy string, for example
// "3 kilobytes >> archive/".
func WithRotation(policy string) FileOption {
	return func(c *fileConfig) { c.policy = policy }
}

// WithRuleClasses parses the rotation policy with classes instead of the
// default set.
func WithRuleClasses(classes *rotation.Classes) FileOption {
	return func(c *fileConfig) { c.classes = classes }
}

// WithRotatorOptions passes options to the rotator (compression, clock).
func WithRotatorOptions(opts ...rotation.Option) FileOption {
	return func(c *fileConfig) { c.rotatorOpts = append(c.rotatorOpts, opts...) }
}

// File writes formatted records to a path or a stream.
//
// Thread-safety: Handle, Flush, Rotate and Close run inside the sink's
// DoubleLock. With the file lock engaged, processes sharing the path also
// serialize their writes and rotations.
type File struct {
	path    string
	file    *os.File
	info    os.FileInfo
	opened  time.Time
	stream  io.Writer
	lock    *DoubleLock
	format  FormatFunc
	sep     string
	alt     AltFunc
	rotator *rotation.Rotator
	rotOpts []rotation.Option
	closed  bool

	written   atomic.Int64
	rotations atomic.Int64
}

func newConfig(opts []FileOption) fileConfig {
	cfg := fileConfig{locks: DefaultLocks, separator: DefaultSeparator}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c fileConfig) formatter() FormatFunc {
	if c.format != nil {
		return c.format
	}
	return NewFormatter(c.levels).Format
}

// NewFile opens path for append, creating it and its directory.
func NewFile(path string, opts ...FileOption) (*File, error) {
	cfg := newConfig(opts)
	locks, err := ParseLocks(cfg.locks)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	f := &File{
		path:    abs,
		lock:    NewDoubleLock(locks, abs),
		format:  cfg.formatter(),
		sep:     cfg.separator,
		alt:     cfg.alt,
		rotOpts: cfg.rotatorOpts,
	}

	if cfg.policy != "" {
		classes := cfg.classes
		if classes == nil {
			classes = rotation.DefaultClasses()
		}
		policy, err := classes.Parse(cfg.policy)
		if err != nil {
			return nil, err
		}
		f.rotator = rotation.NewRotator(policy, abs, cfg.rotatorOpts...)
	}

	if err := f.lock.Do(f.openLocked); err != nil {
		f.lock.Close()
		return nil, err
	}
	return f, nil
}

// NewStream writes to w. The file lock is disabled silently; rotation is
// rejected.
func NewStream(w io.Writer, opts ...FileOption) (*File, error) {
	cfg := newConfig(opts)
	locks, err := ParseLocks(cfg.locks)
	if err != nil {
		return nil, err
	}
	if cfg.policy != "" {
		return nil, ErrStreamRotation
	}
	locks.File = false

	return &File{
		stream: w,
		lock:   NewDoubleLock(locks, ""),
		format: cfg.formatter(),
		sep:    cfg.separator,
		alt:    cfg.alt,
	}, nil
}

// Path returns the absolute target path, or "" for streams.
func (f *File) Path() string {
	return f.path
}

// Locks reports the engaged lock parts.
func (f *File) Locks() Locks {
	return f.lock.Locks()
}

// Rotator returns the rotator, or nil when rotation is off.
func (f *File) Rotator() *rotation.Rotator {
	return f.rotator
}

// Written returns the number of records written.
func (f *File) Written() int64 {
	return f.written.Load()
}

// Rotations returns how many times this sink rotated the file.
func (f *File) Rotations() int64 {
	return f.rotations.Load()
}

// Handle formats and writes r, then rotates if a rule fires.
func (f *File) Handle(r *record.Record) error {
	line := f.format(r) + f.sep
	err := f.lock.Do(func() error {
		return f.writeLocked(line)
	})
	if err == nil {
		f.written.Add(1)
		return nil
	}
	if f.alt != nil {
		f.alt(r, err)
		return nil
	}
	return err
}

func (f *File) writeLocked(line string) error {
	if f.closed {
		return ErrClosed
	}
	if f.stream != nil {
		_, err := io.WriteString(f.stream, line)
		return err
	}

	if err := f.reopenIfMovedLocked(); err != nil {
		return err
	}
	if _, err := f.file.WriteString(line); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	if f.rotator == nil {
		return nil
	}

	st, err := f.file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", f.path, err)
	}
	if f.rotator.Check(rotation.FileState{Path: f.path, Size: st.Size(), Opened: f.opened}) {
		return f.rotateLocked()
	}
	return nil
}

// Rotate moves the current file aside regardless of the rules.
func (f *File) Rotate() error {
	if f.stream != nil {
		return ErrStreamRotation
	}
	return f.lock.Do(func() error {
		if f.closed {
			return ErrClosed
		}
		if f.rotator == nil {
			policy, err := rotation.Parse("1 b")
			if err != nil {
				return err
			}
			f.rotator = rotation.NewRotator(policy, f.path, f.rotOpts...)
			defer func() { f.rotator = nil }()
		}
		return f.rotateLocked()
	})
}

func (f *File) rotateLocked() error {
	if err := f.file.Close(); err != nil {
		slog.Warn("closing log file before rotation", "path", f.path, "error", err)
	}
	archive, err := f.rotator.Archive(f.path)
	if oerr := f.openLocked(); oerr != nil {
		return errors.Join(err, oerr)
	}
	if err != nil {
		return fmt.Errorf("rotate %s: %w", f.path, err)
	}
	f.rotations.Add(1)
	slog.Debug("rotated log file", "path", f.path, "archive", archive)
	return nil
}

// reopenIfMovedLocked reopens the path when another process rotated it.
func (f *File) reopenIfMovedLocked() error {
	st, err := os.Stat(f.path)
	if err == nil && os.SameFile(st, f.info) {
		return nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", f.path, err)
	}
	if cerr := f.file.Close(); cerr != nil {
		slog.Debug("closing moved log file", "path", f.path, "error", cerr)
	}
	return f.openLocked()
}

func (f *File) openLocked() error {
	file, err := os.OpenFile(f.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat %s: %w", f.path, err)
	}
	f.file, f.info, f.opened = file, info, time.Now()
	return nil
}

// Flush commits buffered data: Sync for files, Flush for buffered streams.
func (f *File) Flush() error {
	return f.lock.Do(func() error {
		if f.closed {
			return ErrClosed
		}
		if f.stream != nil {
			if fl, ok := f.stream.(interface{ Flush() error }); ok {
				return fl.Flush()
			}
			return nil
		}
		return f.file.Sync()
	})
}

// Close flushes and closes the file. Streams are not closed.
func (f *File) Close() error {
	err := f.lock.Do(func() error {
		if f.closed {
			return nil
		}
		f.closed = true
		if f.stream != nil {
			if fl, ok := f.stream.(interface{ Flush() error }); ok {
				return fl.Flush()
			}
			return nil
		}
		return f.file.Close()
	})
	return errors.Join(err, f.lock.Close())
}
