package ipc

import (
	"dynq/internal/api"
	"dynq/internal/queue"
)

// QueueItem mirrors the HTTP API queue DTO for internal IPC callers.
type QueueItem = api.QueueItem

// SchedulerStatus mirrors the HTTP API scheduler summary.
type SchedulerStatus = api.SchedulerStatus

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/scheduler status information.
type StatusResponse struct {
	Running      bool            `json:"running"`
	PID          int             `json:"pid"`
	QueueDBPath  string          `json:"queue_db_path"`
	LockPath     string          `json:"lock_path"`
	SocketPath   string          `json:"socket_path"`
	Environments []string        `json:"environments"`
	Recovered    int             `json:"recovered"`
	Scheduler    SchedulerStatus `json:"scheduler"`
}

// QueueListRequest selects the listing. Empty Filter and Sort use the saved
// view; InterruptedOnly lists items flagged by startup recovery.
type QueueListRequest struct {
	Filter          string `json:"filter"`
	Sort            string `json:"sort"`
	InterruptedOnly bool   `json:"interrupted_only"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items  []QueueItem `json:"items"`
	Filter string      `json:"filter"`
	Sort   string      `json:"sort"`
}

// QueueDescribeRequest fetches a single queue item by id.
type QueueDescribeRequest struct {
	ID string `json:"id"`
}

// QueueDescribeResponse contains a single queue entry.
type QueueDescribeResponse struct {
	Item QueueItem `json:"item"`
}

// QueueAddRequest enqueues a batch built from per-entity operations.
type QueueAddRequest struct {
	Batch queue.BuildRequest `json:"batch"`
}

// QueueAddResponse lists the created items.
type QueueAddResponse struct {
	Items []QueueItem `json:"items"`
}

// AutoDispatchRequest turns continuous dispatch on or off.
type AutoDispatchRequest struct {
	Enabled bool `json:"enabled"`
}

// AutoDispatchResponse reports the new mode and any items started.
type AutoDispatchResponse struct {
	Enabled bool     `json:"enabled"`
	Started []string `json:"started"`
}

// QueueStepRequest runs one item. An empty ID picks the next eligible item.
type QueueStepRequest struct {
	ID string `json:"id"`
}

// QueueStepResponse reports the started item, empty when none was eligible.
type QueueStepResponse struct {
	Started string `json:"started"`
}

// QueuePriorityRequest adjusts priority. Delta moves one step toward (-1) or
// away from (+1) the front; Set assigns an absolute value.
type QueuePriorityRequest struct {
	ID    string `json:"id"`
	Delta int    `json:"delta"`
	Set   *uint8 `json:"set,omitempty"`
}

// QueuePriorityResponse reports the resulting priority.
type QueuePriorityResponse struct {
	Priority uint8 `json:"priority"`
}

// QueueTogglePauseRequest pauses a pending item or resumes a paused one.
type QueueTogglePauseRequest struct {
	ID string `json:"id"`
}

// QueueTogglePauseResponse reports the resulting status.
type QueueTogglePauseResponse struct {
	Status string `json:"status"`
}

// QueueRetryRequest retries failed or partially failed items.
type QueueRetryRequest struct {
	IDs []string `json:"ids"`
}

// QueueRetryResponse reports per-item retry outcomes.
type QueueRetryResponse = api.RetryItemsResult

// QueueRemoveRequest removes specific items by ID.
type QueueRemoveRequest struct {
	IDs []string `json:"ids"`
}

// QueueRemoveResponse reports per-item removal outcomes.
type QueueRemoveResponse = api.RemoveItemsResult

// QueueClearRequest removes all items.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int `json:"removed"`
}

// QueueAcknowledgeRequest clears interruption flags. Empty IDs acknowledges
// every interrupted item.
type QueueAcknowledgeRequest struct {
	IDs []string `json:"ids"`
}

// QueueAcknowledgeResponse reports how many flags were cleared.
type QueueAcknowledgeResponse struct {
	Cleared int `json:"cleared"`
}

// QueueSettingsRequest updates operator settings. Empty or zero fields are
// left unchanged, so an empty request only reads.
type QueueSettingsRequest struct {
	Filter        string `json:"filter"`
	Sort          string `json:"sort"`
	MaxConcurrent int    `json:"max_concurrent"`
}

// QueueSettingsResponse reports the effective settings.
type QueueSettingsResponse struct {
	Filter        string `json:"filter"`
	Sort          string `json:"sort"`
	MaxConcurrent int    `json:"max_concurrent"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse = queue.HealthSummary

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse = queue.DatabaseHealth
