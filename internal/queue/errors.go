package queue

import "errors"

var (
	// ErrNotFound indicates no item exists with the requested identifier.
	ErrNotFound = errors.New("queue item not found")
	// ErrInvalidItem marks an item that violates the persisted-row invariants.
	ErrInvalidItem = errors.New("invalid queue item")
	// ErrInvalidTransition is returned when an operator action does not apply
	// to the item's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrItemRunning is returned when an action requires the item to be idle.
	ErrItemRunning = errors.New("queue item is running")
	// ErrQueueBusy is returned for bulk actions while any item is running.
	ErrQueueBusy = errors.New("queue has running items")
)
