// Package api defines wire-format types and converters shared by the IPC and
// HTTP layers. It translates queue models and scheduler snapshots into
// transport-friendly DTOs so the CLI and dashboards never couple to internal
// types.
//
// # Key Types
//
// QueueItem: transport representation of a queue entry with operation
// progress, the latest attempt result, and per-operation failure details.
//
// SchedulerStatus: auto-dispatch state, settings, per-status counts, running
// IDs, and remaining-time estimates.
//
// DaemonStatus: aggregated runtime information for the daemon process.
//
// # Converters
//
// FromQueueItem: queue.Item -> QueueItem, resolving failed operations back to
// their original positions.
//
// FromSnapshot: scheduler.Snapshot -> SchedulerStatus.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers. Statuses
// are exposed as lowercase strings. Timestamps use RFC3339 with milliseconds.
// Operation payloads pass through as json.RawMessage to avoid double-encoding.
package api
