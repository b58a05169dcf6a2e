package pool

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/plog/internal/record"
)

// worker is one consumer goroutine.
type worker struct {
	// busy starts true so a pool that never received a timeout is not
	// reported idle before its workers have looked at the queue.
	busy atomic.Bool
	stop atomic.Bool
}

// Threaded runs records on Size worker goroutines sharing one queue.
type Threaded struct {
	cfg      Config
	id       string
	queue    *queue
	workers  []*worker
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewThreaded starts cfg.Size workers (at least one).
func NewThreaded(cfg Config) *Threaded {
	cfg = cfg.withDefaults()
	if cfg.Size < 1 {
		cfg.Size = 1
	}
	if cfg.MaxQueueSize < 0 {
		cfg.MaxQueueSize = 0
	}

	p := &Threaded{
		cfg:     cfg,
		id:      newID(),
		queue:   newQueue(cfg.MaxQueueSize),
		workers: make([]*worker, cfg.Size),
	}
	for i := range p.workers {
		w := &worker{}
		w.busy.Store(true)
		p.workers[i] = w
		p.wg.Add(1)
		go p.run(w)
	}

	slog.Debug("pool started",
		"pool_id", p.id,
		"workers", cfg.Size,
		"max_queue_size", cfg.MaxQueueSize,
	)
	return p
}

func (p *Threaded) run(w *worker) {
	defer p.wg.Done()
	for {
		r, ok := p.queue.DequeueTimeout(p.cfg.TimeQuant)
		if !ok {
			w.busy.Store(false)
			if w.stop.Load() {
				return
			}
			continue
		}
		w.busy.Store(true)
		execute(r, p.id)
		p.queue.Done()
		w.busy.Store(false)
	}
}

// Write enqueues r, blocking while a bounded queue is full. Records written
// after Stop are dropped.
func (p *Threaded) Write(r *record.Record) {
	if !p.queue.Enqueue(r) {
		slog.Debug("record dropped: pool stopped", "pool_id", p.id)
	}
}

// Stop waits for the queue to empty, raises the stop flags and joins the
// workers. Calling Stop again is a no-op.
func (p *Threaded) Stop() {
	p.stopOnce.Do(func() {
		interval := p.cfg.TimeQuant * time.Duration(p.cfg.DrainPollQuants)
		for p.queue.Len() > 0 {
			time.Sleep(interval)
		}
		for _, w := range p.workers {
			w.stop.Store(true)
		}
		p.wg.Wait()
		p.queue.Close()
		slog.Debug("pool stopped", "pool_id", p.id)
	})
}

// WaitIdle polls every time quant until no worker is busy and no record is
// queued or executing, or until timeout elapses.
func (p *Threaded) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if p.idle() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(p.cfg.TimeQuant)
	}
}

func (p *Threaded) idle() bool {
	if p.queue.Unfinished() > 0 {
		return false
	}
	for _, w := range p.workers {
		if w.busy.Load() {
			return false
		}
	}
	return true
}

// Busy returns the number of workers currently marked busy.
func (p *Threaded) Busy() int {
	n := 0
	for _, w := range p.workers {
		if w.busy.Load() {
			n++
		}
	}
	return n
}

// Workers returns the worker count.
func (p *Threaded) Workers() int { return len(p.workers) }

// QueueLen returns the number of queued records.
func (p *Threaded) QueueLen() int { return p.queue.Len() }

// ID returns the pool generation id.
func (p *Threaded) ID() string { return p.id }

// Config returns the effective configuration.
func (p *Threaded) Config() Config { return p.cfg }
