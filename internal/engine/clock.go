package engine

import "sync/atomic"

// Serial counts pool generations.
//
// Every pool build (first start and each reload) takes the next number, so
// the serial number strictly increases across reloads.
//
// Thread-safety: Serial is safe for concurrent use (atomic operations).
type Serial struct {
	n atomic.Int64
}

// Next increments the counter and returns the new value.
func (s *Serial) Next() int64 {
	return s.n.Add(1)
}

// Current returns the current value without incrementing.
func (s *Serial) Current() int64 {
	return s.n.Load()
}
