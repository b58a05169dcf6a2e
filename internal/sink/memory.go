package sink

import (
	"sync"

	"github.com/roach88/plog/internal/record"
)

// Memory keeps records in arrival order. A positive limit keeps only the
// most recent records.
type Memory struct {
	mu      sync.Mutex
	records []*record.Record
	limit   int
}

// NewMemory creates an unbounded memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryLimit creates a memory sink keeping at most limit records.
func NewMemoryLimit(limit int) *Memory {
	return &Memory{limit: limit}
}

// Handle stores r.
func (m *Memory) Handle(r *record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	if m.limit > 0 && len(m.records) > m.limit {
		m.records = append(m.records[:0], m.records[len(m.records)-m.limit:]...)
	}
	return nil
}

// All returns a copy of the stored records.
func (m *Memory) All() []*record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*record.Record(nil), m.records...)
}

// Last returns the most recent record, or nil.
func (m *Memory) Last() *record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return nil
	}
	return m.records[len(m.records)-1]
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Reset drops every stored record.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
}
