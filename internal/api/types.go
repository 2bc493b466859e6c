package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a queue entry in a transport-friendly format.
type QueueItem struct {
	ID             string            `json:"id"`
	Seq            int64             `json:"seq"`
	Status         string            `json:"status"`
	StatusLabel    string            `json:"statusLabel"`
	Priority       uint8             `json:"priority"`
	Description    string            `json:"description"`
	Environment    string            `json:"environment"`
	Source         string            `json:"source"`
	RowNumber      *int              `json:"rowNumber,omitempty"`
	Progress       QueueProgress     `json:"progress"`
	WasInterrupted bool              `json:"wasInterrupted"`
	InterruptedAt  string            `json:"interruptedAt,omitempty"`
	CreatedAt      string            `json:"createdAt,omitempty"`
	StartedAt      string            `json:"startedAt,omitempty"`
	Result         *AttemptResult    `json:"result,omitempty"`
	Failures       []FailedOperation `json:"failures,omitempty"`
	Operations     []Operation       `json:"operations,omitempty"`
}

// QueueProgress counts confirmed operations for a queue entry.
type QueueProgress struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Remaining int `json:"remaining"`
}

// Operation mirrors one remote write action.
type Operation struct {
	Kind    string          `json:"kind"`
	Entity  string          `json:"entity"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AttemptResult summarizes the most recent execution attempt.
type AttemptResult struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"durationMs"`
	Reported   int    `json:"reported"`
	Succeeded  int    `json:"succeeded"`
}

// FailedOperation describes one rejected operation. Position is 1-based
// within the item's full operation list.
type FailedOperation struct {
	Position   int    `json:"position"`
	Kind       string `json:"kind"`
	Entity     string `json:"entity"`
	StatusCode *int   `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Estimate is a remaining-time projection over a completion window.
type Estimate struct {
	Window           int     `json:"window"`
	Samples          int     `json:"samples"`
	RemainingSeconds float64 `json:"remainingSeconds"`
}

// SchedulerStatus summarizes dispatch state.
type SchedulerStatus struct {
	AutoDispatch  bool           `json:"autoDispatch"`
	PriorityTiers bool           `json:"priorityTiers"`
	MaxConcurrent int            `json:"maxConcurrent"`
	Filter        string         `json:"filter"`
	Sort          string         `json:"sort"`
	QueueStats    map[string]int `json:"queueStats"`
	Interrupted   int            `json:"interrupted"`
	Running       []string       `json:"running"`
	Estimates     []Estimate     `json:"estimates"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool            `json:"running"`
	PID          int             `json:"pid"`
	QueueDBPath  string          `json:"queueDbPath"`
	LockFilePath string          `json:"lockFilePath"`
	SocketPath   string          `json:"socketPath"`
	Environments []string        `json:"environments"`
	Scheduler    SchedulerStatus `json:"scheduler"`
}

// QueueListResponse wraps a collection of queue items for API responses.
type QueueListResponse struct {
	Items  []QueueItem `json:"items"`
	Filter string      `json:"filter"`
	Sort   string      `json:"sort"`
}

// QueueItemResponse wraps a single queue item.
type QueueItemResponse struct {
	Item QueueItem `json:"item"`
}
