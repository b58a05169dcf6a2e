package sink

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocks(t *testing.T) {
	tests := []struct {
		spec string
		want Locks
	}{
		{"thread", Locks{Thread: true}},
		{"file", Locks{File: true}},
		{"thread+file", Locks{Thread: true, File: true}},
		{" file + thread ", Locks{Thread: true, File: true}},
		{"thread file", Locks{Thread: true, File: true}},
		{"THREAD", Locks{Thread: true}},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseLocks(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLocks_Errors(t *testing.T) {
	for _, spec := range []string{"", "  + ", "thread+thread", "file+process", "mutex"} {
		_, err := ParseLocks(spec)
		assert.Error(t, err, spec)
	}
}

func TestLocks_String(t *testing.T) {
	assert.Equal(t, "thread+file", Locks{Thread: true, File: true}.String())
	assert.Equal(t, "file", Locks{File: true}.String())
	assert.Equal(t, "none", Locks{}.String())
}

func TestDoubleLock_SerializesGoroutines(t *testing.T) {
	target := filepath.Join(t.TempDir(), "app.log")
	d := NewDoubleLock(Locks{Thread: true, File: true}, target)
	t.Cleanup(func() { d.Close() })

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		counter int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, d.Do(func() error {
					inside++
					maxSeen = max(maxSeen, inside)
					counter++
					inside--
					return nil
				}))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 400, counter)
	assert.FileExists(t, target+LockSuffix)
}

func TestDoubleLock_FileOnlyWithoutTarget(t *testing.T) {
	d := NewDoubleLock(Locks{File: true}, "")
	assert.Equal(t, Locks{}, d.Locks(), "no target disables the file lock")
	assert.NoError(t, d.Do(func() error { return nil }))
	assert.NoError(t, d.Close())
}

func TestDoubleLock_PropagatesError(t *testing.T) {
	d := NewDoubleLock(Locks{Thread: true}, "")
	err := d.Do(func() error { return ErrClosed })
	assert.ErrorIs(t, err, ErrClosed)

	// The mutex was released.
	assert.NoError(t, d.Do(func() error { return nil }))
}
