// Package events carries queue notifications from the scheduler to
// in-process subscribers and optional external sinks.
//
// Publish never blocks the caller. Subscribers receive events on buffered
// channels and lose events when they fall behind. External sinks (Kafka and
// Redis pub/sub) are fed by a single worker goroutine so slow brokers never
// stall the scheduler loop.
package events
