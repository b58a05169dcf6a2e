package settings

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/plog/internal/levels"
)

// Predicate validates a raw value before conversion.
type Predicate struct {
	Check   func(v any) bool
	Message string
}

// Conflict reports whether newValue (replacing oldValue) conflicts with the
// current value of a peer option.
type Conflict func(newValue, oldValue, peerValue any) bool

// Converter normalizes a validated value before it is installed.
type Converter func(v any) (any, error)

// Action runs when an option's value actually changes. It is invoked while
// the option's lock is held; read peers of the same lock group with ForceGet.
type Action func(oldValue, newValue any, s *Store)

// Option describes one configuration entry.
type Option struct {
	Name       string
	Default    any
	Predicates []Predicate
	Conflicts  map[string]Conflict
	Convert    Converter

	// ReadLock makes Get acquire the option lock.
	ReadLock bool

	// ChangeOnce rejects every assignment after the first one.
	ChangeOnce bool

	// BeforeStart rejects assignments once Started is true.
	BeforeStart bool

	// SkipDefaultCheck installs Default without running predicates.
	SkipDefaultCheck bool

	// LockGroup shares one mutex between all options naming the same group.
	LockGroup string

	Action Action
}

// valueHolder keeps atomic.Value on one concrete type regardless of the
// option's value type.
type valueHolder struct {
	v any
}

type slot struct {
	opt     Option
	mu      *sync.Mutex
	value   atomic.Value // valueHolder
	changed atomic.Bool
}

func (s *slot) load() any {
	return s.value.Load().(valueHolder).v
}

func (s *slot) store(v any) {
	s.value.Store(valueHolder{v: v})
}

// Store is a fixed set of validated options.
//
// Reads go through atomic values, so they never observe a half-applied
// write. Writes to options of one lock group are serialized together.
type Store struct {
	slots map[string]*slot
	order []string
}

// New builds a store from options. Defaults are validated unless the option
// sets SkipDefaultCheck.
func New(options ...Option) (*Store, error) {
	st := &Store{slots: make(map[string]*slot, len(options))}
	groups := make(map[string]*sync.Mutex)

	for _, opt := range options {
		if opt.Name == "" {
			return nil, fmt.Errorf("option without a name")
		}
		if _, dup := st.slots[opt.Name]; dup {
			return nil, fmt.Errorf("duplicate option %q", opt.Name)
		}

		mu := &sync.Mutex{}
		if opt.LockGroup != "" {
			if shared, ok := groups[opt.LockGroup]; ok {
				mu = shared
			} else {
				groups[opt.LockGroup] = mu
			}
		}

		def := opt.Default
		if !opt.SkipDefaultCheck {
			v, err := validate(opt, def)
			if err != nil {
				return nil, fmt.Errorf("default for %q: %w", opt.Name, err)
			}
			def = v
		}

		sl := &slot{opt: opt, mu: mu}
		sl.store(def)
		st.slots[opt.Name] = sl
		st.order = append(st.order, opt.Name)
	}

	for _, sl := range st.slots {
		for peer := range sl.opt.Conflicts {
			if _, ok := st.slots[peer]; !ok {
				return nil, fmt.Errorf("option %q: conflict peer %q is not registered", sl.opt.Name, peer)
			}
		}
	}

	return st, nil
}

func validate(opt Option, v any) (any, error) {
	for _, p := range opt.Predicates {
		if !p.Check(v) {
			return nil, newConfigError(ErrCodeInvalidValue, opt.Name, p.Message)
		}
	}
	if opt.Convert != nil {
		converted, err := opt.Convert(v)
		if err != nil {
			return nil, newConfigError(ErrCodeInvalidValue, opt.Name, err.Error())
		}
		return converted, nil
	}
	return v, nil
}

func (st *Store) slot(key string) (*slot, error) {
	sl, ok := st.slots[key]
	if !ok {
		return nil, newConfigError(ErrCodeUnknownOption, key, "option is not registered")
	}
	return sl, nil
}

// Contains reports whether key is a registered option.
func (st *Store) Contains(key string) bool {
	_, ok := st.slots[key]
	return ok
}

// Keys returns option names in registration order.
func (st *Store) Keys() []string {
	out := make([]string, len(st.order))
	copy(out, st.order)
	return out
}

// Get returns the current value of key. Options with ReadLock wait for any
// in-flight write of their lock group.
func (st *Store) Get(key string) (any, error) {
	sl, err := st.slot(key)
	if err != nil {
		return nil, err
	}
	if sl.opt.ReadLock {
		sl.mu.Lock()
		defer sl.mu.Unlock()
	}
	return sl.load(), nil
}

// ForceGet returns the current value of key without taking the read lock.
// Only option actions should need it.
func (st *Store) ForceGet(key string) (any, error) {
	sl, err := st.slot(key)
	if err != nil {
		return nil, err
	}
	return sl.load(), nil
}

// Changed reports whether key has been assigned at least once.
func (st *Store) Changed(key string) bool {
	sl, ok := st.slots[key]
	return ok && sl.changed.Load()
}

// Started reports the value of the Started option (false if unregistered).
func (st *Store) Started() bool {
	sl, ok := st.slots[Started]
	if !ok {
		return false
	}
	b, _ := sl.load().(bool)
	return b
}

// Set validates and installs value. The option action runs only when the
// installed value differs from the previous one.
func (st *Store) Set(key string, value any) error {
	sl, err := st.slot(key)
	if err != nil {
		return err
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.opt.ChangeOnce && sl.changed.Load() {
		return newConfigError(ErrCodeChangeOnce, key, "option can be changed only once")
	}
	if sl.opt.BeforeStart && st.Started() {
		return newConfigError(ErrCodeBeforeStart, key, "option can be changed only before the first record is processed")
	}

	v, err := validate(sl.opt, value)
	if err != nil {
		return err
	}

	old := sl.load()
	for _, peer := range sortedPeers(sl.opt.Conflicts) {
		peerValue := st.slots[peer].load()
		if sl.opt.Conflicts[peer](v, old, peerValue) {
			return &ConfigError{
				Code:    ErrCodeConflict,
				Option:  key,
				Peer:    peer,
				Message: fmt.Sprintf("value %v conflicts with %s = %v", v, peer, peerValue),
			}
		}
	}

	sl.store(v)
	sl.changed.Store(true)

	if sl.opt.Action != nil && !sameValue(old, v) {
		sl.opt.Action(old, v, st)
	}
	return nil
}

// SetAction installs (or clears, with nil) the action of key.
func (st *Store) SetAction(key string, action Action) error {
	sl, err := st.slot(key)
	if err != nil {
		return err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.opt.Action = action
	return nil
}

// Snapshot returns every option's current value.
func (st *Store) Snapshot() map[string]any {
	out := make(map[string]any, len(st.slots))
	for _, key := range st.order {
		v, _ := st.Get(key)
		out[key] = v
	}
	return out
}

// Apply sets every value in values whose normalized form differs from the
// current one. Keys are tried in registration order; values rejected only
// because of a conflict are retried once the others have been applied, so
// {pool_size: 0, max_queue_size: 0} works whatever the current state is.
func (st *Store) Apply(values map[string]any) error {
	pending := make([]string, 0, len(values))
	for key := range values {
		if !st.Contains(key) {
			return newConfigError(ErrCodeUnknownOption, key, "option is not registered")
		}
	}
	for _, key := range st.order {
		if _, ok := values[key]; ok {
			pending = append(pending, key)
		}
	}

	for len(pending) > 0 {
		var retry []string
		var lastErr error
		for _, key := range pending {
			if !st.differs(key, values[key]) {
				continue
			}
			if err := st.Set(key, values[key]); err != nil {
				if IsConflict(err) {
					retry = append(retry, key)
					lastErr = err
					continue
				}
				return err
			}
		}
		if len(retry) == len(pending) {
			return lastErr
		}
		pending = retry
	}
	return nil
}

// differs reports whether value would change key once converted. Values that
// fail conversion count as different so Set reports the error.
func (st *Store) differs(key string, value any) bool {
	sl := st.slots[key]
	if sl.opt.Convert != nil {
		converted, err := sl.opt.Convert(value)
		if err != nil {
			return true
		}
		value = converted
	}
	return !sameValue(sl.load(), value)
}

// Int returns an integer option. It panics for unregistered keys.
func (st *Store) Int(key string) int {
	n, _ := levels.AsInt(st.mustGet(key))
	return n
}

// Float returns a numeric option as float64. It panics for unregistered keys.
func (st *Store) Float(key string) float64 {
	return asFloat(st.mustGet(key))
}

// Bool returns a boolean option. It panics for unregistered keys.
func (st *Store) Bool(key string) bool {
	b, _ := st.mustGet(key).(bool)
	return b
}

// String returns a string option. It panics for unregistered keys.
func (st *Store) String(key string) string {
	s, _ := st.mustGet(key).(string)
	return s
}

// Duration reads a seconds option as a time.Duration.
func (st *Store) Duration(key string) time.Duration {
	return Seconds(st.Float(key))
}

func (st *Store) mustGet(key string) any {
	v, err := st.Get(key)
	if err != nil {
		panic(err)
	}
	return v
}

// Seconds converts fractional seconds to a time.Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	}
	if i, ok := levels.AsInt(v); ok {
		return float64(i)
	}
	return 0
}

func sortedPeers(conflicts map[string]Conflict) []string {
	peers := make([]string, 0, len(conflicts))
	for p := range conflicts {
		peers = append(peers, p)
	}
	sort.Strings(peers)
	return peers
}

// sameValue compares option values. Functions compare by code pointer.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Func || vb.Kind() == reflect.Func {
		return va.Kind() == vb.Kind() && va.Pointer() == vb.Pointer()
	}
	return reflect.DeepEqual(a, b)
}
