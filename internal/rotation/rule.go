package rotation

import (
	"fmt"
	"sync"
	"time"
)

// FileState is what a rule sees of the file it guards.
type FileState struct {
	Path   string
	Size   int64
	Opened time.Time
}

// Rule decides whether a file must be rotated.
type Rule interface {
	Check(FileState) bool
	String() string
}

// RuleClass recognizes and builds one kind of rule.
//
// Match is a static test on the token stream and must not fail; Build may
// still reject values Match accepted (a zero size, for example).
type RuleClass struct {
	Name  string
	Match func(tokens []Token) bool
	Build func(source string, tokens []Token) (Rule, error)
}

// Classes is an ordered, thread-safe set of rule classes.
type Classes struct {
	mu      sync.RWMutex
	classes []RuleClass
}

// NewClasses creates an empty set.
func NewClasses() *Classes {
	return &Classes{}
}

// DefaultClasses returns a set holding the shipped rule classes.
func DefaultClasses() *Classes {
	c := NewClasses()
	// Static definitions; registration cannot fail.
	_ = c.Register(MaxSizeClass)
	return c
}

// Register appends cls. Classes are tried in registration order.
func (c *Classes) Register(cls RuleClass) error {
	if cls.Name == "" || cls.Match == nil || cls.Build == nil {
		return fmt.Errorf("rule class %q: name, match and build are required", cls.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.classes {
		if existing.Name == cls.Name {
			return fmt.Errorf("rule class %q already registered", cls.Name)
		}
	}
	c.classes = append(c.classes, cls)
	return nil
}

// Names returns the registered class names in order.
func (c *Classes) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.classes))
	for i, cls := range c.classes {
		names[i] = cls.Name
	}
	return names
}

// ParseRule builds the rule for a single rule string.
func (c *Classes) ParseRule(source string) (Rule, error) {
	tokens := Tokenize(source)
	if len(tokens) == 0 {
		return nil, parseErrorf(source, "empty rule")
	}

	c.mu.RLock()
	classes := append([]RuleClass(nil), c.classes...)
	c.mu.RUnlock()

	for _, cls := range classes {
		if cls.Match(tokens) {
			return cls.Build(source, tokens)
		}
	}
	return nil, parseErrorf(source, "no rule class matches")
}
