// Package queue persists migration queue items in SQLite and defines the
// item model shared by the scheduler, recovery, and the outer surfaces.
//
// An Item is an ordered list of remote write operations plus the progress
// needed to resume after a partial failure: SucceededIndices records the
// original positions already confirmed so a retry resends only what remains.
// RemainingOperations and ApplyResult implement that bookkeeping.
//
// The Store is a thin persistence layer. Every update method writes a single
// column group for one item so callers can issue independent writes and log
// failures without aborting. Operator preferences (filter, sort, and the
// concurrency limit) live in a key/value settings table next to the items.
//
// Schema changes bump schemaVersion in schema.go; users clear the database to
// adopt the new schema.
package queue
