package rotation

import (
	"strings"
)

// DefaultDestination is used when a policy names no destination.
const DefaultDestination = "logs/"

const destinationMarker = ">>"

// Policy is a parsed rotation rule string.
type Policy struct {
	Source      string
	Rules       []Rule
	Destination string
}

// Parse parses source with the default rule classes.
func Parse(source string) (*Policy, error) {
	return DefaultClasses().Parse(source)
}

// Parse parses a policy string. Every rule must be recognized by one of the
// classes; an empty rule list is rejected.
func (c *Classes) Parse(source string) (*Policy, error) {
	rulesPart, dest := source, DefaultDestination
	if i := strings.Index(source, destinationMarker); i >= 0 {
		rulesPart = source[:i]
		dest = strings.TrimSpace(source[i+len(destinationMarker):])
		if strings.Contains(dest, destinationMarker) {
			return nil, parseErrorf(source, "more than one %q", destinationMarker)
		}
		if dest == "" {
			return nil, parseErrorf(source, "empty destination after %q", destinationMarker)
		}
	}

	p := &Policy{Source: source, Destination: dest}
	for _, part := range strings.FieldsFunc(rulesPart, func(r rune) bool { return r == ',' || r == ';' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		rule, err := c.ParseRule(part)
		if err != nil {
			return nil, err
		}
		p.Rules = append(p.Rules, rule)
	}
	if len(p.Rules) == 0 {
		return nil, parseErrorf(source, "no rules")
	}
	return p, nil
}

// Fires reports whether any rule fires for st.
func (p *Policy) Fires(st FileState) bool {
	for _, r := range p.Rules {
		if r.Check(st) {
			return true
		}
	}
	return false
}

func (p *Policy) String() string {
	names := make([]string, len(p.Rules))
	for i, r := range p.Rules {
		names[i] = r.String()
	}
	return strings.Join(names, ", ") + " " + destinationMarker + " " + p.Destination
}
