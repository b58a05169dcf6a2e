// Package sink provides the record handlers that write somewhere: a file
// sink with rotation and dual locking, an in-memory buffer and a styled
// console stream.
//
// Every sink implements record.Handler. File and stream sinks render a
// record to one line with a Formatter (or a custom FormatFunc) and write it
// inside a DoubleLock: an in-process mutex plus an advisory lock on the side
// file <path>.lock, so cooperating processes can share one log file.
package sink
