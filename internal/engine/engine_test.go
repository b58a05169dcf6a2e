package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plog/internal/levels"
	"github.com/roach88/plog/internal/pool"
	"github.com/roach88/plog/internal/record"
	"github.com/roach88/plog/internal/settings"
	"github.com/roach88/plog/internal/testutil"
)

func newSettings(t *testing.T, values map[string]any) *settings.Store {
	t.Helper()
	st := settings.NewDefault(levels.NewDefault())
	require.NoError(t, st.Set(settings.TimeQuant, 0.001))
	require.NoError(t, st.Set(settings.DelayOnExitLoopIterations, 2))
	require.NoError(t, st.Apply(values))
	return st
}

// newEngine builds an engine whose pool options reload it, the way the
// application context wires them.
func newEngine(t *testing.T, values map[string]any) *Engine {
	t.Helper()
	st := newSettings(t, values)
	e := New(st)
	reload := func(_, _ any, s *settings.Store) { e.ReloadFrom(s) }
	require.NoError(t, st.SetAction(settings.PoolSize, reload))
	require.NoError(t, st.SetAction(settings.MaxQueueSize, reload))
	t.Cleanup(func() { e.Shutdown() })
	return e
}

func rec(t *testing.T, fields map[string]any, hs ...record.Handler) *record.Record {
	t.Helper()
	b := record.NewBuilder().Handlers(hs...)
	for k, v := range fields {
		require.NoError(t, b.Set(k, v))
	}
	return b.Build()
}

func TestEngine_TwoPhaseInit(t *testing.T) {
	e := newEngine(t, nil)

	assert.Equal(t, ModeInit, e.Mode())
	assert.False(t, e.Active())
	assert.Equal(t, int64(0), e.SerialNumber())
	assert.False(t, e.Settings().Started())
	assert.Empty(t, e.PoolID())

	c := testutil.NewCapture()
	e.Write(rec(t, map[string]any{"message": "first", "level": 20}, c))

	assert.Equal(t, ModeHot, e.Mode())
	assert.True(t, e.Active())
	assert.Equal(t, int64(1), e.SerialNumber())
	assert.True(t, e.Settings().Started())
	assert.NotEmpty(t, e.PoolID())
	assert.Equal(t, 2, e.Workers())
	require.True(t, c.WaitFor(1, 2*time.Second))
}

func TestEngine_FirstWriteFreezesBeforeStartOptions(t *testing.T) {
	e := newEngine(t, nil)
	st := e.Settings()

	require.NoError(t, st.Set(settings.MaxQueueSize, 10))
	e.Write(rec(t, map[string]any{"level": 20}, testutil.NewCapture()))

	err := st.Set(settings.MaxQueueSize, 20)
	assert.True(t, settings.IsBeforeStart(err))
}

func TestEngine_SynchronousWhenPoolSizeZero(t *testing.T) {
	e := newEngine(t, map[string]any{settings.PoolSize: 0})
	c := testutil.NewCapture()

	e.Write(rec(t, map[string]any{"message": "kek", "level": 1}, c))

	assert.Equal(t, 1, c.Len(), "synchronous write completes before returning")
	assert.Equal(t, 0, e.Workers())
}

func TestEngine_LevelFilter(t *testing.T) {
	e := newEngine(t, map[string]any{
		settings.PoolSize:    0,
		settings.Level:       "INFO",
		settings.ErrorsLevel: "ERROR",
	})
	c := testutil.NewCapture()

	e.Write(rec(t, map[string]any{"message": "debug", "level": levels.Debug}, c))
	e.Write(rec(t, map[string]any{"message": "info", "level": levels.Info}, c))
	e.Write(rec(t, map[string]any{"message": "warn-fail", "level": levels.Warning, "success": false}, c))
	e.Write(rec(t, map[string]any{"message": "err-fail", "level": levels.Error, "success": false}, c))

	assert.Equal(t, []string{"info", "err-fail"}, c.Messages())
}

func TestEngine_FilteredRecordsDoNotStart(t *testing.T) {
	e := newEngine(t, map[string]any{settings.Level: 50})

	e.Write(rec(t, map[string]any{"level": 10}, testutil.NewCapture()))
	e.Write(rec(t, map[string]any{"level": 60}))
	e.Write(nil)

	assert.Equal(t, ModeInit, e.Mode())
	assert.False(t, e.Settings().Started())
}

func TestEngine_HandlerFailuresDoNotEscape(t *testing.T) {
	e := newEngine(t, map[string]any{settings.PoolSize: 0})
	bad := &testutil.Failing{}
	worse := &testutil.Failing{Panic: true}
	c := testutil.NewCapture()

	for i := 0; i < 5; i++ {
		assert.NotPanics(t, func() {
			e.Write(rec(t, map[string]any{"level": 1}, bad, worse, c))
		})
	}

	assert.Equal(t, int64(5), bad.Calls())
	assert.Equal(t, int64(5), worse.Calls())
	assert.Equal(t, 5, c.Len())
}

func TestEngine_ReloadBeforeStartIsNoop(t *testing.T) {
	e := newEngine(t, nil)
	e.Reload()
	require.NoError(t, e.Settings().Set(settings.PoolSize, 3))

	assert.Equal(t, int64(0), e.SerialNumber())
	assert.Equal(t, ModeInit, e.Mode())
}

func TestEngine_ReloadOnSettingChange(t *testing.T) {
	e := newEngine(t, nil)
	c := testutil.NewCapture()
	e.Write(rec(t, map[string]any{"level": 1}, c))
	before := e.SerialNumber()
	oldID := e.PoolID()

	require.NoError(t, e.Settings().Set(settings.PoolSize, 4))

	assert.Equal(t, before+1, e.SerialNumber())
	assert.True(t, e.Active())
	assert.Equal(t, ModeHot, e.Mode())
	assert.Equal(t, 4, e.Workers())
	assert.NotEqual(t, oldID, e.PoolID())

	// Same value: the action does not fire.
	require.NoError(t, e.Settings().Set(settings.PoolSize, 4))
	assert.Equal(t, before+1, e.SerialNumber())
}

func TestEngine_ReloadToSynchronous(t *testing.T) {
	e := newEngine(t, nil)
	c := testutil.NewCapture()
	e.Write(rec(t, map[string]any{"level": 1}, c))

	require.NoError(t, e.Settings().Set(settings.PoolSize, 0))
	assert.Equal(t, 0, e.Workers())

	e.Write(rec(t, map[string]any{"level": 1}, c))
	assert.Equal(t, 2, c.Len())
}

func TestEngine_ReloadDuringTraffic(t *testing.T) {
	e := newEngine(t, map[string]any{settings.PoolSize: 2})
	c := testutil.NewCapture()

	// Start the engine so the reload below is a real pool swap.
	e.Write(rec(t, map[string]any{"id": -1, "level": 1}, c))
	require.True(t, c.WaitFor(1, 2*time.Second))
	before := e.SerialNumber()

	const n = 3000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			e.Write(rec(t, map[string]any{"id": i, "level": 1}, c))
		}
	}()

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, e.Settings().Set(settings.PoolSize, 4))
	wg.Wait()

	require.True(t, e.Shutdown())
	assert.Equal(t, n+1, c.Len())
	assert.Equal(t, before+1, e.SerialNumber())

	seen := make(map[int64]bool, n)
	for _, r := range c.Records() {
		id := r.Value("id").(int64)
		assert.False(t, seen[id], "record %d delivered twice", id)
		seen[id] = true
	}
}

func TestEngine_ReloadPreservesOrderAcrossBoundary(t *testing.T) {
	e := newEngine(t, map[string]any{settings.PoolSize: 1})
	c := testutil.NewCapture()

	for i := 0; i < 100; i++ {
		e.Write(rec(t, map[string]any{"id": i, "level": 1}, c))
	}
	e.Reload()
	for i := 100; i < 200; i++ {
		e.Write(rec(t, map[string]any{"id": i, "level": 1}, c))
	}
	require.True(t, e.Shutdown())

	records := c.Records()
	require.Len(t, records, 200)
	for i, r := range records {
		assert.Equal(t, int64(i), r.Value("id"))
	}
	assert.Equal(t, int64(2), e.SerialNumber())
}

func TestEngine_ShutdownDrainsAndStops(t *testing.T) {
	e := newEngine(t, nil)
	c := testutil.NewCapture()
	for i := 0; i < 50; i++ {
		e.Write(rec(t, map[string]any{"level": 1}, c))
	}

	assert.True(t, e.Shutdown())
	assert.Equal(t, 50, c.Len())
	assert.Equal(t, ModeStopped, e.Mode())
	assert.False(t, e.Active())

	e.Write(rec(t, map[string]any{"level": 1}, c))
	e.Reload()
	assert.Equal(t, 50, c.Len(), "writes after shutdown are dropped")
	assert.True(t, e.Shutdown(), "second shutdown is a no-op")
}

func TestEngine_ShutdownNeverStarted(t *testing.T) {
	e := New(newSettings(t, nil))
	assert.True(t, e.Shutdown())
}

// stuckPool never drains.
type stuckPool struct {
	release chan struct{}
}

func (p *stuckPool) Write(*record.Record) {}
func (p *stuckPool) Stop() { <-p.release }
func (p *stuckPool) WaitIdle(d time.Duration) bool { time.Sleep(d); return false }
func (p *stuckPool) Workers() int { return 1 }
func (p *stuckPool) QueueLen() int { return 1 }
func (p *stuckPool) ID() string { return "stuck" }

func TestEngine_ShutdownTimeout(t *testing.T) {
	stuck := &stuckPool{release: make(chan struct{})}
	t.Cleanup(func() { close(stuck.release) })

	st := newSettings(t, map[string]any{settings.MaxDelayBeforeExit: 0.02})
	require.NoError(t, st.Set(settings.Engine, func(pool.Config) pool.Pool { return stuck }))
	e := New(st)

	e.Write(rec(t, map[string]any{"level": 1}, testutil.NewCapture()))
	require.Equal(t, "stuck", e.PoolID())

	start := time.Now()
	assert.False(t, e.Shutdown())
	assert.Less(t, time.Since(start), time.Second)
}

func TestEngine_ShutdownSingleDeadline(t *testing.T) {
	stuck := &stuckPool{release: make(chan struct{})}
	t.Cleanup(func() { close(stuck.release) })

	st := newSettings(t, map[string]any{settings.MaxDelayBeforeExit: 0.3})
	require.NoError(t, st.Set(settings.Engine, func(pool.Config) pool.Pool { return stuck }))
	e := New(st)

	e.Write(rec(t, map[string]any{"level": 1}, testutil.NewCapture()))

	start := time.Now()
	assert.False(t, e.Shutdown())
	assert.Less(t, time.Since(start), 500*time.Millisecond, "idle wait and stop watchdog share the budget")
}

func TestEngine_FactoryShapes(t *testing.T) {
	var got pool.Config
	byConfig := pool.Factory(func(cfg pool.Config) pool.Pool {
		got = cfg
		return pool.NewSynchronous()
	})

	st := newSettings(t, map[string]any{settings.PoolSize: 3, settings.MaxQueueSize: 7})
	require.NoError(t, st.Set(settings.Engine, byConfig))
	e := New(st)
	e.Write(rec(t, map[string]any{"level": 1}, testutil.NewCapture()))
	t.Cleanup(func() { e.Shutdown() })

	assert.Equal(t, 3, got.Size)
	assert.Equal(t, 7, got.MaxQueueSize)
	assert.InDelta(t, float64(time.Millisecond), float64(got.TimeQuant), 1)
	assert.Equal(t, 2, got.DrainPollQuants)
	assert.Equal(t, time.Second, got.MaxDelayBeforeExit)

	var sawStore *settings.Store
	st2 := newSettings(t, nil)
	require.NoError(t, st2.Set(settings.Engine, func(s *settings.Store) pool.Pool {
		sawStore = s
		return pool.NewSynchronous()
	}))
	e2 := New(st2)
	e2.Write(rec(t, map[string]any{"level": 1}, testutil.NewCapture()))
	assert.Same(t, st2, sawStore)
}

func TestEngine_BadFactoryFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		factory any
	}{
		{"panics", func(pool.Config) pool.Pool { panic("factory down") }},
		{"returns nil", func(pool.Config) pool.Pool { return nil }},
		{"wrong shape", func(int) string { return "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newSettings(t, map[string]any{settings.PoolSize: 0})
			require.NoError(t, st.Set(settings.Engine, tt.factory))
			e := New(st)
			c := testutil.NewCapture()

			assert.NotPanics(t, func() {
				e.Write(rec(t, map[string]any{"level": 1}, c))
			})
			assert.Equal(t, 1, c.Len())
			assert.Equal(t, int64(1), e.SerialNumber())
		})
	}
}

func TestEngine_ConcurrentFirstWrite(t *testing.T) {
	e := newEngine(t, nil)
	c := testutil.NewCapture()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Write(rec(t, map[string]any{"level": 1}, c))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), e.SerialNumber(), "exactly one pool is built on start")
	require.True(t, e.Shutdown())
	assert.Equal(t, 16, c.Len())
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "init", ModeInit.String())
	assert.Equal(t, "hot", ModeHot.String())
	assert.Equal(t, "blocked", ModeBlocked.String())
	assert.Equal(t, "stopped", ModeStopped.String())
	assert.Equal(t, "Mode(9)", Mode(9).String())
}
