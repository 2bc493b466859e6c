package api

import (
	"context"
	"errors"

	"dynq/internal/queue"
)

// QueueActionService captures the per-item scheduler commands used by bulk
// workflows.
type QueueActionService interface {
	Retry(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type RetryItemOutcome string

const (
	RetryItemUpdated   RetryItemOutcome = "retried"
	RetryItemNotFound  RetryItemOutcome = "not_found"
	RetryItemNotFailed RetryItemOutcome = "not_failed"
)

type RetryItemResult struct {
	ID      string           `json:"id"`
	Outcome RetryItemOutcome `json:"outcome"`
}

type RetryItemsResult struct {
	UpdatedCount int               `json:"updatedCount"`
	Items        []RetryItemResult `json:"items"`
}

type RemoveItemOutcome string

const (
	RemoveItemRemoved  RemoveItemOutcome = "removed"
	RemoveItemNotFound RemoveItemOutcome = "not_found"
	RemoveItemRunning  RemoveItemOutcome = "running"
)

type RemoveItemResult struct {
	ID      string            `json:"id"`
	Outcome RemoveItemOutcome `json:"outcome"`
}

type RemoveItemsResult struct {
	RemovedCount int                `json:"removedCount"`
	Items        []RemoveItemResult `json:"items"`
}

// RetryItemsByID retries failed or partially failed items one-by-one so each
// ID reports its own outcome.
func RetryItemsByID(ctx context.Context, service QueueActionService, ids []string) (RetryItemsResult, error) {
	result := RetryItemsResult{Items: make([]RetryItemResult, 0, len(ids))}
	for _, id := range ids {
		err := service.Retry(ctx, id)
		switch {
		case err == nil:
			result.UpdatedCount++
			result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryItemUpdated})
		case errors.Is(err, queue.ErrNotFound):
			result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryItemNotFound})
		case errors.Is(err, queue.ErrInvalidTransition):
			result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryItemNotFailed})
		default:
			return RetryItemsResult{}, err
		}
	}
	return result, nil
}

// RemoveItemsByID deletes queue items one-by-one. Running items are refused.
func RemoveItemsByID(ctx context.Context, service QueueActionService, ids []string) (RemoveItemsResult, error) {
	result := RemoveItemsResult{Items: make([]RemoveItemResult, 0, len(ids))}
	for _, id := range ids {
		err := service.Delete(ctx, id)
		switch {
		case err == nil:
			result.RemovedCount++
			result.Items = append(result.Items, RemoveItemResult{ID: id, Outcome: RemoveItemRemoved})
		case errors.Is(err, queue.ErrNotFound):
			result.Items = append(result.Items, RemoveItemResult{ID: id, Outcome: RemoveItemNotFound})
		case errors.Is(err, queue.ErrItemRunning):
			result.Items = append(result.Items, RemoveItemResult{ID: id, Outcome: RemoveItemRunning})
		default:
			return RemoveItemsResult{}, err
		}
	}
	return result, nil
}
