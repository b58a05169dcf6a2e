// Package engine is the write façade in front of the worker pool.
//
// LIFECYCLE:
//
// Initialization is two-phase. New only captures the settings; no pool
// exists yet. The first Write flips the started option (which freezes every
// before-start option), builds the pool through the configured factory and
// bumps the serial number. Later writes go straight to the pool.
//
// Reload:
// Changing pool_size or max_queue_size reloads the engine. Reload takes the
// wrapper lock exclusively, so producers stall for the duration. The old pool
// is drained and stopped before the new one is built, which means:
//   - no record is lost or duplicated across the boundary
//   - records reach the new pool only after every record of the old one
//     has been executed
//
// Shutdown:
// Shutdown waits for the pool to go idle for at most max_delay_before_exit,
// then stops it under a watchdog with the same budget. Records still queued
// when the budget runs out are dropped.
//
// FAILURE MODEL:
//
// Nothing in this package propagates to the caller. Factory panics, pool
// panics and settings failures are recovered and logged through log/slog.
//
// LEVEL FILTER:
//
// Write drops records below the configured level before they are queued:
// records with success=false are compared against errors_level, all others
// against level. Records without handlers are dropped too.
package engine
