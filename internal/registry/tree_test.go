package registry

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plog/internal/record"
)

type named string

func (n named) Handle(*record.Record) error { return nil }

func TestInsertLookup(t *testing.T) {
	tree := New()
	h := named("h")

	require.NoError(t, tree.Insert("a.b.c", h))
	assert.Equal(t, h, tree.Lookup("a.b.c"))
	assert.Nil(t, tree.Lookup("a.b"), "intermediate nodes are empty")
	assert.Nil(t, tree.Lookup("x"))
	assert.Equal(t, 1, tree.Len())
}

func TestInsert_Replaces(t *testing.T) {
	tree := New()
	require.NoError(t, tree.Insert("a", named("one")))
	require.NoError(t, tree.Insert("a", named("two")))

	assert.Equal(t, named("two"), tree.Lookup("a"))
	assert.Equal(t, 1, tree.Len())
}

func TestInsert_Root(t *testing.T) {
	tree := New()
	require.NoError(t, tree.Insert(".", named("root")))

	assert.Equal(t, named("root"), tree.Lookup("."))
	assert.Equal(t, named("root"), tree.Lookup(""))
	assert.Equal(t, []string{"."}, tree.Paths())

	assert.True(t, tree.Delete("."))
	assert.Equal(t, 0, tree.Len())
}

func TestInsert_Rejects(t *testing.T) {
	tree := New()

	assert.ErrorIs(t, tree.Insert("a", nil), ErrNilHandler)

	for _, bad := range []string{"a..b", "1a", "a.b-c", ".a", "a."} {
		err := tree.Insert(bad, named("h"))
		assert.True(t, IsPathError(err), "path %q", bad)
	}
	assert.Equal(t, 0, tree.Len())
}

func TestDelete_PrunesEmptyBranch(t *testing.T) {
	tree := New()
	before := tree.String()

	require.NoError(t, tree.Insert("a.b.c", named("h")))
	assert.True(t, tree.Delete("a.b.c"))

	assert.Nil(t, tree.Lookup("a.b.c"))
	assert.Equal(t, 0, tree.Len())
	assert.Empty(t, tree.root.children, "no \"a\" node remains")
	assert.Empty(t, tree.root.order)
	assert.Equal(t, before, tree.String())
}

func TestDelete_StopsAtOccupiedAncestor(t *testing.T) {
	tree := New()
	require.NoError(t, tree.Insert("a", named("a")))
	require.NoError(t, tree.Insert("a.b.c", named("c")))
	require.NoError(t, tree.Insert("a.x", named("x")))

	assert.True(t, tree.Delete("a.b.c"))

	a := tree.root.children["a"]
	require.NotNil(t, a)
	assert.Nil(t, a.children["b"], "empty b is pruned")
	assert.NotNil(t, a.children["x"])
	assert.Equal(t, 2, tree.Len())
}

func TestDelete_KeepsNodeWithChildren(t *testing.T) {
	tree := New()
	require.NoError(t, tree.Insert("a", named("a")))
	require.NoError(t, tree.Insert("a.b", named("b")))

	assert.True(t, tree.Delete("a"))
	assert.Nil(t, tree.Lookup("a"))
	assert.Equal(t, named("b"), tree.Lookup("a.b"))
	assert.Equal(t, 1, tree.Len())
}

func TestDelete_Missing(t *testing.T) {
	tree := New()
	require.NoError(t, tree.Insert("a.b", named("b")))

	assert.False(t, tree.Delete("a"), "empty intermediate node")
	assert.False(t, tree.Delete("zzz"))
	assert.False(t, tree.Delete("bad-path"))
	assert.Equal(t, 1, tree.Len())
}

func TestValues_Order(t *testing.T) {
	tree := New()
	require.NoError(t, tree.Insert("a.b.c", named("abc")))
	require.NoError(t, tree.Insert("z", named("z")))
	require.NoError(t, tree.Insert("a", named("a")))

	assert.Equal(t, []record.Handler{named("a"), named("z"), named("abc")}, tree.Values())
	assert.Equal(t, []string{"a", "z", "a.b.c"}, tree.Paths())
}

func TestLenCountsOccupiedNodes(t *testing.T) {
	tree := New()
	paths := []string{"a", "a.b", "a.b.c", "d.e", "f"}
	for _, p := range paths {
		require.NoError(t, tree.Insert(p, named(p)))
	}
	assert.Equal(t, len(paths), tree.Len())
	assert.Len(t, tree.Values(), len(paths))

	tree.Delete("a.b")
	assert.Equal(t, len(paths)-1, tree.Len())
}

func TestProject(t *testing.T) {
	tree := New()
	require.NoError(t, tree.Insert("sinks.file", named("file")))
	require.NoError(t, tree.Insert("sinks.file.backup", named("backup")))
	require.NoError(t, tree.Insert("sinks.mem", named("mem")))
	require.NoError(t, tree.Insert("alerts", named("alerts")))

	sub, err := tree.Project([]string{"sinks.file", "alerts"})
	require.NoError(t, err)

	assert.Equal(t, 3, sub.Len())
	assert.Equal(t, named("file"), sub.Lookup("sinks.file"))
	assert.Equal(t, named("backup"), sub.Lookup("sinks.file.backup"))
	assert.Nil(t, sub.Lookup("sinks.mem"))

	// Projections do not share structure with the source.
	tree.Delete("sinks.file.backup")
	assert.Equal(t, named("backup"), sub.Lookup("sinks.file.backup"))
}

func TestProject_Root(t *testing.T) {
	tree := New()
	require.NoError(t, tree.Insert("a", named("a")))

	_, err := tree.Project([]string{"."})
	assert.ErrorIs(t, err, ErrRootProjection)

	all, err := tree.Project([]string{"."}, AllowRoot())
	require.NoError(t, err)
	assert.Equal(t, 1, all.Len())
}

func TestProject_Missing(t *testing.T) {
	tree := New()
	_, err := tree.Project([]string{"nope"})
	assert.True(t, IsPathError(err))
}

func TestString(t *testing.T) {
	tree := New()
	require.NoError(t, tree.Insert("a.b", named("h")))

	assert.Equal(t, "Tree(1)\n.\n  a\n    b = registry.named\n", tree.String())
}

func TestString_DeepTreePlaceholder(t *testing.T) {
	tree := New()
	segments := make([]string, MaxDumpDepth+1)
	for i := range segments {
		segments[i] = "n"
	}
	require.NoError(t, tree.Insert(strings.Join(segments, "."), named("deep")))

	assert.Equal(t, Placeholder, tree.String())
}

func TestConcurrentAccess(t *testing.T) {
	tree := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := "w" + string(rune('a'+i)) + ".leaf"
			for j := 0; j < 100; j++ {
				_ = tree.Insert(path, named(path))
				_ = tree.Values()
				tree.Delete(path)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, tree.Len())
	assert.Empty(t, tree.root.children)
}
