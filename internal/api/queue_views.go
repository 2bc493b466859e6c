package api

import "time"

// ParseQueueTime parses a timestamp produced by the queue DTOs. Empty or
// malformed values yield the zero time.
func ParseQueueTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
