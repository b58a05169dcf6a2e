// Package levels maps human-readable level aliases to numeric levels.
//
// A numeric level may be registered under several aliases. Resolving a number
// back to a name returns the alias registered most recently for it; numbers
// without any alias render as their decimal form.
package levels

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Default aliases registered by NewDefault.
const (
	Debug    = 10
	Info     = 20
	Warning  = 30
	Error    = 40
	Critical = 50
)

// Registry is a thread-safe alias table.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]int
	byLevel map[int]string
	widest  int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byName:  make(map[string]int),
		byLevel: make(map[int]string),
	}
}

// NewDefault creates a registry with the DEBUG..CRITICAL aliases.
func NewDefault() *Registry {
	r := New()
	for _, alias := range []struct {
		name  string
		level int
	}{
		{"DEBUG", Debug},
		{"INFO", Info},
		{"WARNING", Warning},
		{"ERROR", Error},
		{"CRITICAL", Critical},
	} {
		// Names are static and valid.
		_ = r.Register(alias.name, alias.level)
	}
	return r
}

// Register adds an alias for level. Re-registering a number under another
// alias makes the new alias the one returned by Name.
func (r *Registry) Register(name string, level int) error {
	if level < 0 {
		return fmt.Errorf("level %d: must be non-negative", level)
	}
	if !isAlias(name) {
		return fmt.Errorf("level alias %q: must be a non-empty identifier", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName[name] = level
	r.byLevel[level] = name
	if len(name) > r.widest {
		r.widest = len(name)
	}
	return nil
}

// Level resolves an alias. Lookup is case-sensitive first, then upper-cased.
func (r *Registry) Level(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if lvl, ok := r.byName[name]; ok {
		return lvl, true
	}
	lvl, ok := r.byName[strings.ToUpper(name)]
	return lvl, ok
}

// Name returns the most recently registered alias for level, or its decimal
// form when none exists.
func (r *Registry) Name(level int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, ok := r.byLevel[level]; ok {
		return name
	}
	return strconv.Itoa(level)
}

// Width returns the length of the longest alias ever registered.
func (r *Registry) Width() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.widest
}

// Resolve converts an int-like value or a registered alias to a level.
func (r *Registry) Resolve(v any) (int, error) {
	switch val := v.(type) {
	case string:
		if lvl, ok := r.Level(val); ok {
			return lvl, nil
		}
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			return n, nil
		}
		return 0, fmt.Errorf("unknown level alias %q", val)
	default:
		n, ok := AsInt(v)
		if !ok {
			return 0, fmt.Errorf("level must be an integer or alias, got %T", v)
		}
		if n < 0 {
			return 0, fmt.Errorf("level %d: must be non-negative", n)
		}
		return n, nil
	}
}

// AsInt converts the integer kinds produced by config decoders to int.
// Floats are accepted only when they carry no fraction.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	case float32:
		if n == float32(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func isAlias(name string) bool {
	if name == "" {
		return false
	}
	for i, c := range name {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
