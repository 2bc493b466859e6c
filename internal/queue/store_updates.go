package queue

import (
	"context"
	"fmt"
	"time"
)

func (s *Store) updateColumns(ctx context.Context, id, set string, args ...any) error {
	args = append(args, nowString(), id)
	res, err := s.exec(ctx, `UPDATE queue_items SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// UpdateStatus sets an item's status.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) error {
	if _, ok := statusSet[status]; !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidItem, status)
	}
	if err := s.updateColumns(ctx, id, `status = ?`, status); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// UpdateResult stores the latest attempt result. A nil result clears it.
func (s *Store) UpdateResult(ctx context.Context, id string, res *Result) error {
	encoded, err := encodeResult(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := s.updateColumns(ctx, id, `result_json = ?`, encoded); err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	return nil
}

// UpdatePriority changes an item's priority.
func (s *Store) UpdatePriority(ctx context.Context, id string, priority uint8) error {
	if err := s.updateColumns(ctx, id, `priority = ?`, int(priority)); err != nil {
		return fmt.Errorf("update priority: %w", err)
	}
	return nil
}

// UpdateSucceededIndices replaces the set of confirmed operation positions.
func (s *Store) UpdateSucceededIndices(ctx context.Context, id string, indices []int) error {
	encoded, err := encodeIndices(indices)
	if err != nil {
		return fmt.Errorf("marshal succeeded indices: %w", err)
	}
	if err := s.updateColumns(ctx, id, `succeeded_indices_json = ?`, encoded); err != nil {
		return fmt.Errorf("update succeeded indices: %w", err)
	}
	return nil
}

// UpdateStartedAt records when the item's latest attempt began. nil clears it.
func (s *Store) UpdateStartedAt(ctx context.Context, id string, startedAt *time.Time) error {
	if err := s.updateColumns(ctx, id, `started_at = ?`, nullableTime(startedAt)); err != nil {
		return fmt.Errorf("update started_at: %w", err)
	}
	return nil
}

// MarkInterrupted flags an item whose attempt was cut short by a shutdown.
func (s *Store) MarkInterrupted(ctx context.Context, id string, at time.Time) error {
	if err := s.updateColumns(ctx, id, `was_interrupted = 1, interrupted_at = ?`, nullableTime(&at)); err != nil {
		return fmt.Errorf("mark interrupted: %w", err)
	}
	return nil
}

// ClearInterrupted removes the interruption flag after operator review.
func (s *Store) ClearInterrupted(ctx context.Context, id string) error {
	if err := s.updateColumns(ctx, id, `was_interrupted = 0, interrupted_at = NULL`); err != nil {
		return fmt.Errorf("clear interrupted: %w", err)
	}
	return nil
}
