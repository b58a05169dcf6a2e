package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/plog/internal/rotation"
	"github.com/roach88/plog/internal/sink"
)

// Scenario defines an end-to-end logging scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Settings is applied to the logger before any handler is added.
	Settings map[string]any `yaml:"settings,omitempty"`

	// Handlers are registered in order.
	Handlers []HandlerSpec `yaml:"handlers"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the engine has drained.
	Assertions []Assertion `yaml:"assertions"`
}

// Handler types.
const (
	HandlerMemory = "memory"
	HandlerFile   = "file"
	HandlerStore  = "store"
)

// HandlerSpec describes one handler of the tree.
type HandlerSpec struct {
	// Path is the dotted tree path.
	Path string `yaml:"path"`

	// Type is memory, file or store.
	Type string `yaml:"type"`

	// File is relative to the scenario's temporary directory. Used by file
	// and store handlers.
	File string `yaml:"file,omitempty"`

	// Rotation is a rotation policy, for file handlers.
	Rotation string `yaml:"rotation,omitempty"`

	// Locks is a lock spec such as "thread+file", for file handlers.
	Locks string `yaml:"locks,omitempty"`

	// Compress archives with zstd, for file handlers.
	Compress bool `yaml:"compress,omitempty"`
}

// Step is one action against the logger. Exactly one of Log, Call, Set,
// Reload or Rotate is set.
type Step struct {
	Log    *LogStep       `yaml:"log,omitempty"`
	Call   *CallStep      `yaml:"call,omitempty"`
	Set    map[string]any `yaml:"set,omitempty"`
	Reload bool           `yaml:"reload,omitempty"`

	// Rotate names a file handler to rotate.
	Rotate string `yaml:"rotate,omitempty"`

	// ExpectError is the error code the step must fail with, such as
	// CHANGE_ONCE or UNKNOWN_FIELD. Empty means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// LogStep emits manual records.
type LogStep struct {
	Message string         `yaml:"message"`
	Level   any            `yaml:"level,omitempty"`
	Fields  map[string]any `yaml:"fields,omitempty"`
	To      []string       `yaml:"to,omitempty"`

	// Repeat emits the record this many times; zero means once.
	Repeat int `yaml:"repeat,omitempty"`
}

// CallStep runs one of the built-in functions through the auto-logger.
type CallStep struct {
	Function string `yaml:"function"`
	Args     []any  `yaml:"args"`
}

// Assertion validates what the handlers received.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Handler is the tree path of the handler under test.
	Handler string `yaml:"handler"`

	// Count is the expected number (record_count, line_count, archive_count).
	Count int `yaml:"count,omitempty"`

	// Index selects the record for record_fields. Negative counts from
	// the end.
	Index int `yaml:"index,omitempty"`

	// Expect holds the expected fields for record_fields (subset match).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Messages is the expected message order for record_order.
	Messages []string `yaml:"messages,omitempty"`
}

// Assertion type constants.
const (
	AssertRecordCount  = "record_count"
	AssertRecordFields = "record_fields"
	AssertRecordOrder  = "record_order"
	AssertLineCount    = "line_count"
	AssertArchiveCount = "archive_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	handlers := make(map[string]HandlerSpec, len(s.Handlers))
	for i, h := range s.Handlers {
		if err := validateHandler(i, h); err != nil {
			return err
		}
		if _, dup := handlers[h.Path]; dup {
			return fmt.Errorf("handlers[%d]: duplicate path %q", i, h.Path)
		}
		handlers[h.Path] = h
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, handlers); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, handlers); err != nil {
			return err
		}
	}
	return nil
}

func validateHandler(i int, h HandlerSpec) error {
	if h.Path == "" {
		return fmt.Errorf("handlers[%d]: path is required", i)
	}
	switch h.Type {
	case HandlerMemory:
	case HandlerFile:
		if h.File == "" {
			return fmt.Errorf("handlers[%d]: file is required for file handlers", i)
		}
		if h.Rotation != "" {
			if _, err := rotation.Parse(h.Rotation); err != nil {
				return fmt.Errorf("handlers[%d]: %w", i, err)
			}
		}
		if h.Locks != "" {
			if _, err := sink.ParseLocks(h.Locks); err != nil {
				return fmt.Errorf("handlers[%d]: %w", i, err)
			}
		}
	case HandlerStore:
		if h.File == "" {
			return fmt.Errorf("handlers[%d]: file is required for store handlers", i)
		}
	default:
		return fmt.Errorf("handlers[%d]: unknown handler type %q", i, h.Type)
	}
	return nil
}

func validateStep(i int, step Step, handlers map[string]HandlerSpec) error {
	n := 0
	if step.Log != nil {
		n++
	}
	if step.Call != nil {
		n++
		if _, ok := builtins[step.Call.Function]; !ok {
			return fmt.Errorf("steps[%d]: unknown function %q", i, step.Call.Function)
		}
	}
	if step.Set != nil {
		n++
	}
	if step.Reload {
		n++
	}
	if step.Rotate != "" {
		n++
		if h, ok := handlers[step.Rotate]; !ok || h.Type != HandlerFile {
			return fmt.Errorf("steps[%d]: rotate needs a file handler, got %q", i, step.Rotate)
		}
	}
	if n != 1 {
		return fmt.Errorf("steps[%d]: exactly one of log, call, set, reload, rotate is required", i)
	}
	if step.Log != nil && step.Log.Repeat < 0 {
		return fmt.Errorf("steps[%d]: repeat must be non-negative", i)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(i int, a Assertion, handlers map[string]HandlerSpec) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", i)
	}
	h, ok := handlers[a.Handler]
	if !ok {
		return fmt.Errorf("assertions[%d]: unknown handler %q", i, a.Handler)
	}

	want := func(types ...string) error {
		for _, t := range types {
			if h.Type == t {
				return nil
			}
		}
		return fmt.Errorf("assertions[%d]: %s does not apply to %s handler %q", i, a.Type, h.Type, a.Handler)
	}

	switch a.Type {
	case AssertRecordCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", i)
		}
		return want(HandlerMemory, HandlerStore)
	case AssertRecordFields:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for record_fields", i)
		}
		return want(HandlerMemory)
	case AssertRecordOrder:
		if len(a.Messages) == 0 {
			return fmt.Errorf("assertions[%d]: messages list is required for record_order", i)
		}
		return want(HandlerMemory)
	case AssertLineCount, AssertArchiveCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", i)
		}
		return want(HandlerFile)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
}
