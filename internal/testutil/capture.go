package testutil

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/plog/internal/record"
)

// Capture is a thread-safe handler that keeps every record it receives.
type Capture struct {
	mu      sync.Mutex
	records []*record.Record
	changed chan struct{}
}

// NewCapture creates an empty capture.
func NewCapture() *Capture {
	return &Capture{changed: make(chan struct{}, 1)}
}

// Handle stores r.
func (c *Capture) Handle(r *record.Record) error {
	c.mu.Lock()
	c.records = append(c.records, r)
	c.mu.Unlock()

	select {
	case c.changed <- struct{}{}:
	default:
	}
	return nil
}

// Records returns a copy of the captured records in arrival order.
func (c *Capture) Records() []*record.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*record.Record(nil), c.records...)
}

// Len returns the number of captured records.
func (c *Capture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Messages returns the message field of every captured record.
func (c *Capture) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.records))
	for i, r := range c.records {
		out[i] = r.Message()
	}
	return out
}

// WaitFor blocks until at least n records arrived or timeout elapses. It
// reports whether n was reached.
func (c *Capture) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if c.Len() >= n {
			return true
		}
		select {
		case <-c.changed:
		case <-deadline.C:
			return c.Len() >= n
		}
	}
}

// ErrHandlerFailed is returned by Failing.
var ErrHandlerFailed = errors.New("handler failed")

// Failing is a handler that fails every call. With Panic set it panics
// instead of returning ErrHandlerFailed.
type Failing struct {
	Panic bool
	calls atomic.Int64
}

// Handle counts the call and fails.
func (f *Failing) Handle(*record.Record) error {
	f.calls.Add(1)
	if f.Panic {
		panic(ErrHandlerFailed)
	}
	return ErrHandlerFailed
}

// Calls returns how many records reached the handler.
func (f *Failing) Calls() int64 {
	return f.calls.Load()
}
