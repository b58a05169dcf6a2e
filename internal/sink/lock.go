package sink

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/gofrs/flock"
)

// DefaultLocks engages both locks.
const DefaultLocks = "thread+file"

// LockSuffix names the advisory lock side file.
const LockSuffix = ".lock"

// Locks selects the parts of a DoubleLock.
type Locks struct {
	Thread bool
	File   bool
}

func (l Locks) String() string {
	var parts []string
	if l.Thread {
		parts = append(parts, "thread")
	}
	if l.File {
		parts = append(parts, "file")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// ParseLocks parses "thread", "file" or "thread+file". Whitespace and '+'
// both separate lock types; unknown and repeated types are rejected.
func ParseLocks(spec string) (Locks, error) {
	var l Locks
	words := strings.FieldsFunc(spec, func(r rune) bool { return r == '+' || unicode.IsSpace(r) })
	if len(words) == 0 {
		return l, fmt.Errorf("lock types %q: empty", spec)
	}

	for _, w := range words {
		var flag *bool
		switch strings.ToLower(w) {
		case "thread":
			flag = &l.Thread
		case "file":
			flag = &l.File
		default:
			return Locks{}, fmt.Errorf("lock types %q: unknown type %q", spec, w)
		}
		if *flag {
			return Locks{}, fmt.Errorf("lock types %q: %q given twice", spec, w)
		}
		*flag = true
	}
	return l, nil
}

// DoubleLock serializes file operations within the process (mutex) and
// across processes (advisory lock on a side file). Either part may be
// disabled.
//
// The file part alone does not serialize goroutines of one process.
type DoubleLock struct {
	mu   *sync.Mutex
	file *flock.Flock
}

// NewDoubleLock creates the lock for target. target is ignored when the file
// lock is not engaged.
func NewDoubleLock(l Locks, target string) *DoubleLock {
	d := &DoubleLock{}
	if l.Thread {
		d.mu = &sync.Mutex{}
	}
	if l.File && target != "" {
		d.file = flock.New(target + LockSuffix)
	}
	return d
}

// Locks reports which parts are engaged.
func (d *DoubleLock) Locks() Locks {
	return Locks{Thread: d.mu != nil, File: d.file != nil}
}

// Lock acquires the mutex, then the file lock.
func (d *DoubleLock) Lock() error {
	if d.mu != nil {
		d.mu.Lock()
	}
	if d.file != nil {
		if err := d.file.Lock(); err != nil {
			if d.mu != nil {
				d.mu.Unlock()
			}
			return fmt.Errorf("acquire file lock %s: %w", d.file.Path(), err)
		}
	}
	return nil
}

// Unlock releases the file lock, then the mutex.
func (d *DoubleLock) Unlock() error {
	var err error
	if d.file != nil {
		if uerr := d.file.Unlock(); uerr != nil {
			err = fmt.Errorf("release file lock %s: %w", d.file.Path(), uerr)
		}
	}
	if d.mu != nil {
		d.mu.Unlock()
	}
	return err
}

// Do runs fn holding both locks.
func (d *DoubleLock) Do(fn func() error) (err error) {
	if err := d.Lock(); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, d.Unlock())
	}()
	return fn()
}

// Close releases the side file handle.
func (d *DoubleLock) Close() error {
	if d.file == nil {
		return nil
	}
	return d.file.Close()
}
