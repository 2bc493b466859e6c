// Package scheduler runs queue items against their target environments with
// bounded concurrency.
//
// A Scheduler is an actor: one goroutine owns the item collection, the
// running set, and the view cache, and every public method is a message to
// that goroutine. Executors run in their own goroutines and report back with
// a completion message, so no state is shared and no locks guard it.
//
// Dispatch picks the Pending item with the lowest priority value, breaking
// ties by creation order. Auto-dispatch keeps the running set full until any
// attempt finishes without full success, at which point it switches itself
// off so an operator can inspect the failure before more writes go out.
//
// Store failures are logged and counted but never undo the in-memory
// transition; the next successful write for the item repairs the row.
package scheduler
