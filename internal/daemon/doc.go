// Package daemon coordinates the long-running dynq process.
//
// It wires configuration, queue storage, startup recovery, the scheduler, the
// completion event bus, and the read-only HTTP API into a single lifecycle
// with flock-based locking to prevent multiple instances on one data
// directory. Queue commands arrive through the ipc package, which calls the
// scheduler returned by Scheduler.
//
// Keep orchestration logic here: scheduling rules live in the scheduler
// package while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
