package settings

import (
	"fmt"
	"reflect"

	"github.com/roach88/plog/internal/levels"
)

// Option names.
const (
	PoolSize                  = "pool_size"
	MaxQueueSize              = "max_queue_size"
	Started                   = "started"
	Level                     = "level"
	ErrorsLevel               = "errors_level"
	ServiceName               = "service_name"
	MaxDelayBeforeExit        = "max_delay_before_exit"
	DelayOnExitLoopIterations = "delay_on_exit_loop_iteration_in_quants"
	TimeQuant                 = "time_quant"
	Engine                    = "engine"
	OriginalExceptions        = "original_exceptions"
	SilentInternalExceptions  = "silent_internal_exceptions"
)

const poolLockGroup = "pool"

// Predicates shared by the default options.
var (
	NonNegativeInt = Predicate{
		Check: func(v any) bool {
			n, ok := levels.AsInt(v)
			return ok && n >= 0
		},
		Message: "must be an integer >= 0",
	}

	PositiveInt = Predicate{
		Check: func(v any) bool {
			n, ok := levels.AsInt(v)
			return ok && n > 0
		},
		Message: "must be an integer > 0",
	}

	PositiveNumber = Predicate{
		Check: func(v any) bool {
			if !isNumber(v) {
				return false
			}
			return asFloat(v) > 0
		},
		Message: "must be a number > 0",
	}

	IsBool = Predicate{
		Check: func(v any) bool {
			_, ok := v.(bool)
			return ok
		},
		Message: "must be a boolean",
	}

	OnlyTrue = Predicate{
		Check: func(v any) bool {
			b, ok := v.(bool)
			return ok && b
		},
		Message: "can only be set to true",
	}

	Identifier = Predicate{
		Check: func(v any) bool {
			s, ok := v.(string)
			return ok && IsIdentifier(s)
		},
		Message: "must be an identifier-compatible string",
	}

	IsFunc = Predicate{
		Check: func(v any) bool {
			return v != nil && reflect.ValueOf(v).Kind() == reflect.Func && !reflect.ValueOf(v).IsNil()
		},
		Message: "must be a non-nil function",
	}
)

// LevelLike accepts a non-negative integer or an alias registered in lv.
func LevelLike(lv *levels.Registry) Predicate {
	return Predicate{
		Check: func(v any) bool {
			_, err := lv.Resolve(v)
			return err == nil
		},
		Message: "must be an integer >= 0 or a registered level alias",
	}
}

// ToInt normalizes any integer kind to int.
func ToInt(v any) (any, error) {
	n, ok := levels.AsInt(v)
	if !ok {
		return nil, fmt.Errorf("expected an integer, got %T", v)
	}
	return n, nil
}

// ToFloat normalizes any numeric kind to float64.
func ToFloat(v any) (any, error) {
	if !isNumber(v) {
		return nil, fmt.Errorf("expected a number, got %T", v)
	}
	return asFloat(v), nil
}

// ToLevel resolves aliases through lv.
func ToLevel(lv *levels.Registry) Converter {
	return func(v any) (any, error) {
		return lv.Resolve(v)
	}
}

// Defaults returns the standard option table. Level options resolve aliases
// through lv. Actions are attached later with SetAction.
func Defaults(lv *levels.Registry) []Option {
	return []Option{
		{
			Name:       PoolSize,
			Default:    2,
			Predicates: []Predicate{NonNegativeInt},
			Convert:    ToInt,
			ReadLock:   true,
			LockGroup:  poolLockGroup,
			Conflicts: map[string]Conflict{
				MaxQueueSize: func(newValue, _, peer any) bool {
					n, _ := levels.AsInt(newValue)
					q, _ := levels.AsInt(peer)
					return n == 0 && q != 0
				},
			},
		},
		{
			Name:        MaxQueueSize,
			Default:     0,
			Predicates:  []Predicate{NonNegativeInt},
			Convert:     ToInt,
			ReadLock:    true,
			BeforeStart: true,
			LockGroup:   poolLockGroup,
			Conflicts: map[string]Conflict{
				PoolSize: func(newValue, _, peer any) bool {
					q, _ := levels.AsInt(newValue)
					n, _ := levels.AsInt(peer)
					return q != 0 && n == 0
				},
			},
		},
		{
			Name:             Started,
			Default:          false,
			Predicates:       []Predicate{OnlyTrue},
			ChangeOnce:       true,
			SkipDefaultCheck: true,
		},
		{
			Name:       Level,
			Default:    1,
			Predicates: []Predicate{LevelLike(lv)},
			Convert:    ToLevel(lv),
		},
		{
			Name:       ErrorsLevel,
			Default:    1,
			Predicates: []Predicate{LevelLike(lv)},
			Convert:    ToLevel(lv),
		},
		{
			Name:       ServiceName,
			Default:    "base",
			Predicates: []Predicate{Identifier},
		},
		{
			Name:       MaxDelayBeforeExit,
			Default:    1.0,
			Predicates: []Predicate{PositiveNumber},
			Convert:    ToFloat,
		},
		{
			Name:       DelayOnExitLoopIterations,
			Default:    10,
			Predicates: []Predicate{PositiveInt},
			Convert:    ToInt,
		},
		{
			Name:       TimeQuant,
			Default:    0.01,
			Predicates: []Predicate{PositiveNumber},
			Convert:    ToFloat,
		},
		{
			Name:             Engine,
			Default:          nil,
			Predicates:       []Predicate{IsFunc},
			BeforeStart:      true,
			SkipDefaultCheck: true,
		},
		{
			Name:       OriginalExceptions,
			Default:    false,
			Predicates: []Predicate{IsBool},
		},
		{
			Name:       SilentInternalExceptions,
			Default:    false,
			Predicates: []Predicate{IsBool},
		},
	}
}

// NewDefault builds a store from Defaults.
func NewDefault(lv *levels.Registry) *Store {
	st, err := New(Defaults(lv)...)
	if err != nil {
		// The default table is static; a failure here is a programming error.
		panic(err)
	}
	return st
}

// IsIdentifier reports whether s is a valid identifier: a letter or
// underscore followed by letters, digits or underscores.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func isNumber(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	_, ok := levels.AsInt(v)
	return ok
}
