// Package ipc is the control channel between the dynq CLI and a running
// daemon: JSON-RPC over a unix socket under the data directory.
//
// Every queue mutation the CLI performs goes through Server, which forwards it
// to the daemon's scheduler so that state changes stay serialized. Requests
// and responses reuse the api package's DTOs.
package ipc
