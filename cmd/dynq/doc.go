// Package main hosts the dynq CLI entrypoint and command graph.
//
// The Cobra command tree translates terminal invocations into JSON-RPC calls
// against the daemon's Unix socket. Read-only queue commands fall back to the
// queue database when no daemon is listening, so `dynq queue list` keeps
// working after a crash. `dynq run` starts the daemon in the foreground.
package main
