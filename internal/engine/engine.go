package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/plog/internal/levels"
	"github.com/roach88/plog/internal/pool"
	"github.com/roach88/plog/internal/record"
	"github.com/roach88/plog/internal/settings"
)

// Mode is the state of the write path.
type Mode int32

const (
	// ModeInit means no record has been written yet; the next Write starts
	// the pool.
	ModeInit Mode = iota
	// ModeHot forwards writes to the pool.
	ModeHot
	// ModeBlocked stalls writes while a reload swaps pools.
	ModeBlocked
	// ModeStopped drops writes after Shutdown.
	ModeStopped
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeInit:
		return "init"
	case ModeHot:
		return "hot"
	case ModeBlocked:
		return "blocked"
	case ModeStopped:
		return "stopped"
	default:
		return fmt.Sprintf("Mode(%d)", int32(m))
	}
}

// Engine forwards records to the current pool.
//
// Thread-safety model:
//   - Write: safe from any goroutine; holds the wrapper lock shared
//   - Reload, ReloadFrom, Shutdown: take the wrapper lock exclusively
//   - introspection methods are lock-free except PoolID and Workers
type Engine struct {
	settings *settings.Store

	mu      sync.RWMutex
	pool    pool.Pool // nil before start and after Shutdown
	stopped bool

	mode   atomic.Int32
	active atomic.Bool
	serial Serial
}

// New performs the first initialization phase: it captures st and builds
// nothing.
func New(st *settings.Store) *Engine {
	e := &Engine{settings: st}
	e.mode.Store(int32(ModeInit))
	return e
}

// Settings returns the store the engine reads.
func (e *Engine) Settings() *settings.Store {
	return e.settings
}

// Write hands r to the pool. It never fails: filtered records are dropped
// silently and internal failures are logged.
func (e *Engine) Write(r *record.Record) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("engine write failed", "error", recovered("write", p))
		}
	}()

	if r == nil || !r.HasHandlers() || !e.accepts(r) {
		return
	}

	e.mu.RLock()
	if e.pool == nil {
		e.mu.RUnlock()
		if !e.start() {
			return
		}
		e.mu.RLock()
	}
	defer e.mu.RUnlock()

	if e.pool == nil {
		return
	}
	e.pool.Write(r)
}

// accepts applies the level filter.
func (e *Engine) accepts(r *record.Record) bool {
	threshold := settings.Level
	if !r.Success() {
		threshold = settings.ErrorsLevel
	}
	v, err := e.settings.Get(threshold)
	if err != nil {
		return true
	}
	floor, _ := levels.AsInt(v)
	return r.Level() >= floor
}

// start performs the second initialization phase. It reports whether a pool
// is available afterwards.
func (e *Engine) start() (ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return false
	}
	if e.pool != nil {
		return true
	}

	defer func() {
		if p := recover(); p != nil {
			slog.Error("engine start failed", "error", recovered("start", p))
			ok = e.pool != nil
		}
	}()

	if err := e.settings.Set(settings.Started, true); err != nil && !settings.IsChangeOnce(err) {
		slog.Warn("engine could not mark settings started", "error", err)
	}

	cfg := configFrom(e.settings.ForceGet)
	e.pool = e.build(cfg)
	serial := e.serial.Next()
	e.active.Store(true)
	e.mode.Store(int32(ModeHot))

	slog.Info("engine started",
		"serial", serial,
		"pool_id", e.pool.ID(),
		"workers", e.pool.Workers(),
		"max_queue_size", cfg.MaxQueueSize,
	)
	return true
}

// Reload drains the current pool and replaces it with one built from the
// current settings. It is a no-op before the first Write and after Shutdown.
//
// Reload reads pool settings with the read lock; option actions, which
// already hold that lock, must use ReloadFrom.
func (e *Engine) Reload() {
	e.reload(configFrom(e.settings.Get))
}

// ReloadFrom is Reload for option actions: it reads st without the option
// read locks.
func (e *Engine) ReloadFrom(st *settings.Store) {
	e.reload(configFrom(st.ForceGet))
}

func (e *Engine) reload(cfg pool.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pool == nil || e.stopped {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			slog.Error("engine reload failed", "error", recovered("reload", p))
		}
		e.mode.Store(int32(ModeHot))
		e.active.Store(e.pool != nil)
	}()

	e.mode.Store(int32(ModeBlocked))
	e.active.Store(false)

	old := e.pool
	stopPool(old)

	e.pool = e.build(cfg)
	serial := e.serial.Next()

	slog.Info("engine reloaded",
		"serial", serial,
		"old_pool_id", old.ID(),
		"pool_id", e.pool.ID(),
		"workers", e.pool.Workers(),
		"max_queue_size", cfg.MaxQueueSize,
	)
}

// Shutdown stops accepting records, waits for the pool to go idle, then
// stops it under a watchdog. Both phases share one max_delay_before_exit
// deadline. It reports whether everything queued was executed in time.
func (e *Engine) Shutdown() bool {
	e.mu.Lock()
	p := e.pool
	e.pool = nil
	e.stopped = true
	e.active.Store(false)
	e.mode.Store(int32(ModeStopped))
	e.mu.Unlock()

	if p == nil {
		return true
	}

	deadline := time.Now().Add(e.exitBudget())
	idle := p.WaitIdle(time.Until(deadline))

	done := make(chan struct{})
	go func() {
		defer close(done)
		stopPool(p)
	}()

	timer := time.NewTimer(max(time.Until(deadline), 0))
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		select {
		case <-done:
		default:
			slog.Warn("engine shutdown timed out",
				"error", ErrShutdownTimeout,
				"pool_id", p.ID(),
				"queued", p.QueueLen(),
			)
			return false
		}
	}

	if !idle {
		slog.Warn("engine shutdown: pool was still busy", "pool_id", p.ID())
	}
	return idle
}

func (e *Engine) exitBudget() time.Duration {
	v, err := e.settings.ForceGet(settings.MaxDelayBeforeExit)
	if err != nil {
		return pool.DefaultMaxDelayBeforeExit
	}
	return settingsSeconds(v, pool.DefaultMaxDelayBeforeExit)
}

// SerialNumber returns the pool generation counter: 0 before start, then
// incremented by every build.
func (e *Engine) SerialNumber() int64 {
	return e.serial.Current()
}

// Active reports whether a pool is serving writes (false before start,
// during reload and after Shutdown).
func (e *Engine) Active() bool {
	return e.active.Load()
}

// Mode returns the state of the write path.
func (e *Engine) Mode() Mode {
	return Mode(e.mode.Load())
}

// PoolID returns the current pool generation id, or "" when there is none.
func (e *Engine) PoolID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pool == nil {
		return ""
	}
	return e.pool.ID()
}

// Workers returns the worker count of the current pool.
func (e *Engine) Workers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pool == nil {
		return 0
	}
	return e.pool.Workers()
}

// build calls the configured factory, falling back to pool.New when the
// factory is missing, of an unknown shape, panics or returns nil.
func (e *Engine) build(cfg pool.Config) (p pool.Pool) {
	if err := cfg.Validate(); err != nil {
		slog.Warn("invalid pool configuration, using synchronous pool", "error", err)
		cfg.Size, cfg.MaxQueueSize = 0, 0
	}

	factory := e.factory()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pool factory failed", "error", recovered("start", r))
			p = pool.New(cfg)
		}
	}()

	p = factory(cfg)
	if p == nil {
		slog.Error("pool factory returned nil, using default pool")
		p = pool.New(cfg)
	}
	return p
}

// factory resolves the engine option. Accepted shapes are pool.Factory,
// func(pool.Config) pool.Pool and func(*settings.Store) pool.Pool.
func (e *Engine) factory() pool.Factory {
	v, err := e.settings.ForceGet(settings.Engine)
	if err != nil || v == nil {
		return pool.New
	}
	switch f := v.(type) {
	case pool.Factory:
		return f
	case func(pool.Config) pool.Pool:
		return f
	case func(*settings.Store) pool.Pool:
		st := e.settings
		return func(pool.Config) pool.Pool { return f(st) }
	default:
		slog.Warn("unsupported engine factory, using default pool", "type", fmt.Sprintf("%T", v))
		return pool.New
	}
}

func stopPool(p pool.Pool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pool stop failed", "pool_id", p.ID(), "error", recovered("stop", r))
		}
	}()
	p.Stop()
}

// configFrom reads the pool options through get.
func configFrom(get func(string) (any, error)) pool.Config {
	intOpt := func(key string) int {
		v, err := get(key)
		if err != nil {
			return 0
		}
		n, _ := levels.AsInt(v)
		return n
	}
	durOpt := func(key string, def time.Duration) time.Duration {
		v, err := get(key)
		if err != nil {
			return def
		}
		return settingsSeconds(v, def)
	}

	return pool.Config{
		Size:               intOpt(settings.PoolSize),
		MaxQueueSize:       intOpt(settings.MaxQueueSize),
		TimeQuant:          durOpt(settings.TimeQuant, pool.DefaultTimeQuant),
		DrainPollQuants:    intOpt(settings.DelayOnExitLoopIterations),
		MaxDelayBeforeExit: durOpt(settings.MaxDelayBeforeExit, pool.DefaultMaxDelayBeforeExit),
	}
}

func settingsSeconds(v any, def time.Duration) time.Duration {
	switch n := v.(type) {
	case float64:
		return settings.Seconds(n)
	case float32:
		return settings.Seconds(float64(n))
	}
	if i, ok := levels.AsInt(v); ok {
		return settings.Seconds(float64(i))
	}
	return def
}
