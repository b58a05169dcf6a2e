// Package registry holds handlers in a tree addressed by dotted paths.
//
// Each non-root node has an identifier name; a path joins names with ".".
// A node carries at most one handler. Deleting the last handler along a path
// prunes every ancestor left without a handler or children, so the tree never
// accumulates empty branches.
//
// Every public operation takes the tree lock once. Values and Project build
// their results under the lock, so callers iterate a snapshot.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/plog/internal/record"
	"github.com/roach88/plog/internal/settings"
)

// Separator joins node names into paths.
const Separator = "."

// MaxDumpDepth is the deepest tree String renders in full.
const MaxDumpDepth = 256

// Placeholder is returned by String for trees deeper than MaxDumpDepth.
const Placeholder = "<very big tree object>"

var (
	// ErrNilHandler is returned when inserting a nil handler.
	ErrNilHandler = errors.New("handler must not be nil")

	// ErrRootProjection is returned when projecting the root without AllowRoot.
	ErrRootProjection = errors.New("projecting the root would alias the whole tree")
)

// PathError reports an invalid or missing path.
type PathError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("path %q: %s", e.Path, e.Message)
}

// IsPathError reports whether err is (or wraps) a PathError.
func IsPathError(err error) bool {
	var pe *PathError
	return errors.As(err, &pe)
}

type node struct {
	name     string
	parent   *node
	children map[string]*node
	order    []string
	value    record.Handler
}

func (n *node) child(name string) *node {
	return n.children[name]
}

func (n *node) addChild(name string) *node {
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	c := &node{name: name, parent: n}
	n.children[name] = c
	n.order = append(n.order, name)
	return c
}

func (n *node) removeChild(name string) {
	delete(n.children, name)
	for i, o := range n.order {
		if o == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

func (n *node) empty() bool {
	return n.value == nil && len(n.children) == 0
}

// Tree is a dotted-path handler registry. The zero value is not usable; call
// New.
type Tree struct {
	mu    sync.Mutex
	root  *node
	count int
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{root: &node{}}
}

// split validates path and returns its segments. "" and "." name the root.
func split(path string) ([]string, error) {
	if path == "" || path == Separator {
		return nil, nil
	}
	segments := strings.Split(path, Separator)
	for _, s := range segments {
		if !settings.IsIdentifier(s) {
			return nil, &PathError{Path: path, Message: fmt.Sprintf("segment %q is not an identifier", s)}
		}
	}
	return segments, nil
}

func (t *Tree) find(segments []string) *node {
	n := t.root
	for _, s := range segments {
		n = n.child(s)
		if n == nil {
			return nil
		}
	}
	return n
}

// Insert stores h at path, creating intermediate nodes. An existing handler
// at path is replaced.
func (t *Tree) Insert(path string, h record.Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	segments, err := split(path)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.root
	for _, s := range segments {
		next := n.child(s)
		if next == nil {
			next = n.addChild(s)
		}
		n = next
	}
	if n.value == nil {
		t.count++
	}
	n.value = h
	return nil
}

// Lookup returns the handler at path, or nil.
func (t *Tree) Lookup(path string) record.Handler {
	segments, err := split(path)
	if err != nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.find(segments)
	if n == nil {
		return nil
	}
	return n.value
}

// Delete clears the handler at path and prunes the ancestors it leaves
// empty. It reports whether a handler was removed.
func (t *Tree) Delete(path string) bool {
	segments, err := split(path)
	if err != nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.find(segments)
	if n == nil || n.value == nil {
		return false
	}
	n.value = nil
	t.count--

	for n.parent != nil && n.empty() {
		n.parent.removeChild(n.name)
		n = n.parent
	}
	return true
}

// Len returns the number of nodes carrying a handler.
func (t *Tree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// walk visits nodes breadth-first in insertion order. Callers hold t.mu.
func (t *Tree) walk(visit func(path string, n *node)) {
	type item struct {
		path string
		n    *node
	}
	queue := []item{{path: Separator, n: t.root}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		visit(it.path, it.n)
		for _, name := range it.n.order {
			p := name
			if it.path != Separator {
				p = it.path + Separator + name
			}
			queue = append(queue, item{path: p, n: it.n.children[name]})
		}
	}
}

// Values returns the handlers breadth-first, skipping empty nodes.
func (t *Tree) Values() []record.Handler {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]record.Handler, 0, t.count)
	t.walk(func(_ string, n *node) {
		if n.value != nil {
			out = append(out, n.value)
		}
	})
	return out
}

// Paths returns the paths of occupied nodes in the order Values uses.
func (t *Tree) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, t.count)
	t.walk(func(path string, n *node) {
		if n.value != nil {
			out = append(out, path)
		}
	})
	return out
}

// ProjectOption configures Project.
type ProjectOption func(*projectConfig)

type projectConfig struct {
	allowRoot bool
}

// AllowRoot lets Project copy the whole tree.
func AllowRoot() ProjectOption {
	return func(c *projectConfig) {
		c.allowRoot = true
	}
}

// Project returns a new tree holding copies of the subtrees rooted at paths,
// each at the same path as in t. Handlers are shared, nodes are not.
func (t *Tree) Project(paths []string, opts ...ProjectOption) (*Tree, error) {
	var cfg projectConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	parsed := make([][]string, len(paths))
	for i, p := range paths {
		segments, err := split(p)
		if err != nil {
			return nil, err
		}
		if len(segments) == 0 && !cfg.allowRoot {
			return nil, ErrRootProjection
		}
		parsed[i] = segments
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := New()
	for i, segments := range parsed {
		src := t.find(segments)
		if src == nil {
			return nil, &PathError{Path: paths[i], Message: "no such node"}
		}
		dst := out.root
		for _, s := range segments {
			next := dst.child(s)
			if next == nil {
				next = dst.addChild(s)
			}
			dst = next
		}
		out.copyInto(dst, src)
	}
	return out, nil
}

// copyInto merges src's subtree into dst. Callers hold the source lock; out
// is not shared yet.
func (t *Tree) copyInto(dst, src *node) {
	if src.value != nil && dst.value == nil {
		dst.value = src.value
		t.count++
	}
	for _, name := range src.order {
		c := dst.child(name)
		if c == nil {
			c = dst.addChild(name)
		}
		t.copyInto(c, src.children[name])
	}
}

// depth returns the height of the tree. Callers hold t.mu.
func (t *Tree) depth() int {
	height := 0
	type item struct {
		n *node
		d int
	}
	stack := []item{{t.root, 0}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.d > height {
			height = it.d
		}
		for _, c := range it.n.children {
			stack = append(stack, item{c, it.d + 1})
		}
	}
	return height
}

// String renders an indented dump of the tree.
func (t *Tree) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.depth() > MaxDumpDepth {
		return Placeholder
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tree(%d)\n", t.count)
	dump(&b, t.root, 0)
	return b.String()
}

func dump(b *strings.Builder, n *node, depth int) {
	label := n.name
	if n.parent == nil {
		label = Separator
	}
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(label)
	if n.value != nil {
		fmt.Fprintf(b, " = %T", n.value)
	}
	b.WriteByte('\n')
	for _, name := range n.order {
		dump(b, n.children[name], depth+1)
	}
}
