// Package config loads, normalizes, and validates dynq configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the DYNQ_API_TOKEN environment
// fallback for remote environments. The Config type centralizes every knob
// the daemon and CLI need: queue concurrency, event sinks, telemetry, and the
// named remote environments queue items are sent to.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
