package api

import (
	"slices"
	"strings"
	"time"

	"dynq/internal/queue"
	"dynq/internal/scheduler"
)

// FromQueueItem converts a queue record to its API representation.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}
	remaining := len(item.Operations) - len(item.SucceededIndices)
	if item.Status == queue.StatusDone {
		remaining = 0
	}
	dto := QueueItem{
		ID:          item.ID,
		Seq:         item.Seq,
		Status:      string(item.Status),
		StatusLabel: item.Status.Label(),
		Priority:    item.Priority,
		Description: item.Metadata.Description,
		Environment: item.Metadata.Environment,
		Source:      item.Metadata.Source,
		RowNumber:   item.Metadata.RowNumber,
		Progress: QueueProgress{
			Total:     len(item.Operations),
			Succeeded: len(item.Operations) - remaining,
			Remaining: remaining,
		},
		WasInterrupted: item.WasInterrupted,
		CreatedAt:      formatTime(item.CreatedAt),
		InterruptedAt:  formatTimePtr(item.InterruptedAt),
		StartedAt:      formatTimePtr(item.StartedAt),
	}
	if res := item.Result; res != nil {
		attempt := &AttemptResult{
			Success:    res.Success,
			Error:      res.Error,
			DurationMS: res.DurationMS,
			Reported:   len(res.OperationResults),
		}
		for _, r := range res.OperationResults {
			if r.Success {
				attempt.Succeeded++
			}
		}
		dto.Result = attempt
		dto.Failures = failedOperations(item)
	}
	return dto
}

// FromQueueItemDetailed includes the operation list.
func FromQueueItemDetailed(item *queue.Item) QueueItem {
	dto := FromQueueItem(item)
	if item == nil {
		return dto
	}
	dto.Operations = make([]Operation, 0, len(item.Operations))
	for _, op := range item.Operations {
		dto.Operations = append(dto.Operations, Operation{Kind: op.Kind, Entity: op.Entity, Payload: op.Payload})
	}
	return dto
}

// FromQueueItems converts a slice of queue records into API DTOs.
func FromQueueItems(items []*queue.Item) []QueueItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromQueueItem(item))
	}
	return out
}

// failedOperations resolves the rejected results of the last attempt to
// operation positions. The rejected operations are exactly the ones still
// unconfirmed, and results arrive in the order operations were sent, so the
// k-th failed result belongs to the k-th remaining operation.
func failedOperations(item *queue.Item) []FailedOperation {
	if item.Result == nil || item.Status == queue.StatusDone {
		return nil
	}
	ops, positions := item.RemainingOperations()
	var out []FailedOperation
	slot := 0
	for _, r := range item.Result.OperationResults {
		if r.Success {
			continue
		}
		if slot >= len(positions) {
			break
		}
		out = append(out, FailedOperation{
			Position:   positions[slot] + 1,
			Kind:       ops[slot].Kind,
			Entity:     ops[slot].Entity,
			StatusCode: r.StatusCode,
			Error:      r.Error,
		})
		slot++
	}
	return out
}

// FromSnapshot converts scheduler state to its API representation.
func FromSnapshot(snap scheduler.Snapshot) SchedulerStatus {
	status := SchedulerStatus{
		AutoDispatch:  snap.AutoDispatch,
		PriorityTiers: snap.PriorityTiers,
		MaxConcurrent: snap.Settings.MaxConcurrent,
		Filter:        string(snap.Settings.Filter),
		Sort:          string(snap.Settings.Sort),
		QueueStats:    MergeQueueStats(snap.Stats),
		Interrupted:   snap.Stats.Interrupted,
		Running:       slices.Clone(snap.RunningIDs),
		Estimates:     make([]Estimate, 0, len(snap.Estimates)),
	}
	if status.Running == nil {
		status.Running = []string{}
	}
	for _, est := range snap.Estimates {
		status.Estimates = append(status.Estimates, Estimate{
			Window:           est.Window,
			Samples:          est.Samples,
			RemainingSeconds: est.Remaining.Seconds(),
		})
	}
	return status
}

// MergeQueueStats flattens a health summary into counts keyed by status,
// including zero entries for every known status.
func MergeQueueStats(summary queue.HealthSummary) map[string]int {
	return map[string]int{
		string(queue.StatusPending):         summary.Pending,
		string(queue.StatusPaused):          summary.Paused,
		string(queue.StatusRunning):         summary.Running,
		string(queue.StatusDone):            summary.Done,
		string(queue.StatusFailed):          summary.Failed,
		string(queue.StatusPartiallyFailed): summary.PartiallyFailed,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// EnvironmentNames returns trimmed, non-empty environment names in order.
func EnvironmentNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
