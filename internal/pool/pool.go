// Package pool executes records, either inline on the caller's goroutine or
// on a fixed set of worker goroutines consuming a FIFO queue.
//
// Worker pools stop in two phases: first the queue is polled until empty,
// then every worker's stop flag is raised and the workers are joined. A
// worker only observes its flag after a receive times out, so everything
// enqueued before Stop is executed before the pool goes away.
package pool

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/plog/internal/record"
)

// Pool executes records.
type Pool interface {
	// Write hands r to the pool. It may block while a bounded queue is full.
	Write(r *record.Record)

	// Stop drains queued records and releases the workers.
	Stop()

	// WaitIdle waits until no record is queued or executing, or until
	// timeout elapses. It reports whether the pool became idle.
	WaitIdle(timeout time.Duration) bool

	// Workers returns the number of worker goroutines.
	Workers() int

	// QueueLen returns the number of queued records.
	QueueLen() int

	// ID identifies this pool generation in logs.
	ID() string
}

// Factory builds a pool from a configuration.
type Factory func(Config) Pool

// Config sizes a pool.
type Config struct {
	// Size is the worker count. 0 selects the synchronous pool.
	Size int

	// MaxQueueSize bounds the queue. 0 means unbounded.
	MaxQueueSize int

	// TimeQuant is the receive timeout of a worker.
	TimeQuant time.Duration

	// DrainPollQuants is the drain poll interval in quanta.
	DrainPollQuants int

	// MaxDelayBeforeExit bounds the exit waiter.
	MaxDelayBeforeExit time.Duration
}

// Default values used for zero Config fields.
const (
	DefaultTimeQuant          = 10 * time.Millisecond
	DefaultDrainPollQuants    = 10
	DefaultMaxDelayBeforeExit = time.Second
)

func (c Config) withDefaults() Config {
	if c.TimeQuant <= 0 {
		c.TimeQuant = DefaultTimeQuant
	}
	if c.DrainPollQuants <= 0 {
		c.DrainPollQuants = DefaultDrainPollQuants
	}
	if c.MaxDelayBeforeExit <= 0 {
		c.MaxDelayBeforeExit = DefaultMaxDelayBeforeExit
	}
	return c
}

// Validate rejects negative sizes and a bounded queue without workers.
func (c Config) Validate() error {
	if c.Size < 0 {
		return fmt.Errorf("pool size %d: must be >= 0", c.Size)
	}
	if c.MaxQueueSize < 0 {
		return fmt.Errorf("max queue size %d: must be >= 0", c.MaxQueueSize)
	}
	if c.Size == 0 && c.MaxQueueSize != 0 {
		return fmt.Errorf("max queue size %d requires at least one worker", c.MaxQueueSize)
	}
	return nil
}

// New returns a synchronous pool for Size 0 and a worker pool otherwise.
// New satisfies Factory.
func New(cfg Config) Pool {
	if cfg.Size <= 0 {
		return NewSynchronous()
	}
	return NewThreaded(cfg)
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// execute runs r, absorbing any panic that escapes it.
func execute(r *record.Record, poolID string) {
	defer func() {
		if p := recover(); p != nil {
			slog.Debug("record execution panicked", "pool_id", poolID, "panic", p)
		}
	}()
	r.Execute()
}

// Synchronous executes each record on the caller's goroutine.
type Synchronous struct {
	id string
}

// NewSynchronous creates a pool without queue or workers.
func NewSynchronous() *Synchronous {
	return &Synchronous{id: newID()}
}

// Write executes r before returning.
func (s *Synchronous) Write(r *record.Record) {
	execute(r, s.id)
}

// Stop is a no-op.
func (s *Synchronous) Stop() {}

// WaitIdle returns true immediately: work never outlives Write.
func (s *Synchronous) WaitIdle(time.Duration) bool { return true }

// Workers returns 0.
func (s *Synchronous) Workers() int { return 0 }

// QueueLen returns 0.
func (s *Synchronous) QueueLen() int { return 0 }

// ID returns the pool generation id.
func (s *Synchronous) ID() string { return s.id }
