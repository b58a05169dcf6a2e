// Package record defines the log record handed from call sites to sinks.
//
// A Record is built once through a Builder and is read-only from then on:
// Set and Delete always fail with a RewriteError, so a misbehaving handler
// cannot affect the handlers that run after it. Reads are lock-free.
//
// Records carry their own destination: the handler set and the extra-field
// extractors travel with the record, and Execute performs the fan-out on
// whatever goroutine dispatches it (a pool worker, or the caller in
// synchronous mode).
//
// Ordering is defined by the time field only. Two records that both carry a
// time are totally ordered; a record without one is incomparable.
package record
