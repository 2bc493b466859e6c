package scheduler

import (
	"context"
	"fmt"
	"slices"

	"dynq/internal/logging"
	"dynq/internal/queue"
	"dynq/internal/view"
)

// AddItems appends items in order, persists each, and dispatches when
// auto-dispatch is on. Items must carry unique IDs.
func (s *Scheduler) AddItems(ctx context.Context, items []*queue.Item) error {
	var opErr error
	err := s.call(ctx, func() {
		seen := make(map[string]struct{}, len(items))
		for _, item := range items {
			if err := item.Validate(); err != nil {
				opErr = err
				return
			}
			if _, dup := s.index[item.ID]; dup {
				opErr = fmt.Errorf("%w: duplicate id %s", queue.ErrInvalidItem, item.ID)
				return
			}
			if _, dup := seen[item.ID]; dup {
				opErr = fmt.Errorf("%w: duplicate id %s", queue.ErrInvalidItem, item.ID)
				return
			}
			seen[item.ID] = struct{}{}
		}
		for _, item := range items {
			if item.Status == queue.StatusRunning {
				item.Status = queue.StatusPending
			}
			if item.CreatedAt.IsZero() {
				item.CreatedAt = s.opts.Now()
			}
			s.persist("save", item.ID, func(ctx context.Context) error {
				return s.store.Save(ctx, item)
			})
			s.index[item.ID] = len(s.items)
			s.items = append(s.items, item)
		}
		s.view.Invalidate()
		s.logger.Info("queue items added", logging.Int("count", len(items)), logging.Int("total", len(s.items)))
		if s.autoDispatch {
			s.dispatchUpToCapacity()
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// SetAutoDispatch turns continuous dispatch on or off. Turning it on fills
// free capacity immediately and returns the IDs started.
func (s *Scheduler) SetAutoDispatch(ctx context.Context, on bool) ([]string, error) {
	var started []string
	err := s.call(ctx, func() {
		if s.stopping {
			return
		}
		s.autoDispatch = on
		s.logger.Info("auto-dispatch changed", logging.Bool("enabled", on))
		if on {
			started = s.dispatchUpToCapacity()
		}
	})
	return started, err
}

// StepOne runs a single item regardless of capacity and leaves the queue in
// manual mode: auto-dispatch is switched off. A Failed or PartiallyFailed
// selection is retried and run directly; otherwise the next eligible pending
// item runs. It returns the started ID, or "" if none.
func (s *Scheduler) StepOne(ctx context.Context, selectedID string) (string, error) {
	var (
		started string
		opErr   error
	)
	err := s.call(ctx, func() {
		if s.stopping {
			opErr = ErrStopped
			return
		}
		if s.autoDispatch {
			s.autoDispatch = false
			s.logger.Info("auto-dispatch changed", logging.Bool("enabled", false), logging.String("reason", "manual step"))
		}
		if selectedID != "" {
			item, ok := s.lookup(selectedID)
			if !ok {
				opErr = fmt.Errorf("%w: %s", queue.ErrNotFound, selectedID)
				return
			}
			if item.Status.Retryable() {
				s.resetForRetry(item)
				s.dispatch(item)
				started = item.ID
				return
			}
		}
		started = s.dispatchOne()
	})
	if err != nil {
		return "", err
	}
	return started, opErr
}

// IncreasePriority makes an item run sooner by lowering its value by one.
// At 0 it is a no-op.
func (s *Scheduler) IncreasePriority(ctx context.Context, id string) (uint8, error) {
	return s.shiftPriority(ctx, id, -1)
}

// DecreasePriority makes an item run later by raising its value by one.
// At 255 it is a no-op.
func (s *Scheduler) DecreasePriority(ctx context.Context, id string) (uint8, error) {
	return s.shiftPriority(ctx, id, 1)
}

func (s *Scheduler) shiftPriority(ctx context.Context, id string, delta int) (uint8, error) {
	var (
		priority uint8
		opErr    error
	)
	err := s.call(ctx, func() {
		item, ok := s.lookup(id)
		if !ok {
			opErr = fmt.Errorf("%w: %s", queue.ErrNotFound, id)
			return
		}
		next := int(item.Priority) + delta
		if next < 0 || next > 255 {
			priority = item.Priority
			return
		}
		item.Priority = uint8(next)
		priority = item.Priority
		s.view.Invalidate()
		s.persist("update_priority", id, func(ctx context.Context) error {
			return s.store.UpdatePriority(ctx, id, priority)
		})
	})
	if err != nil {
		return 0, err
	}
	return priority, opErr
}

// SetPriority assigns an explicit priority.
func (s *Scheduler) SetPriority(ctx context.Context, id string, priority uint8) error {
	var opErr error
	err := s.call(ctx, func() {
		item, ok := s.lookup(id)
		if !ok {
			opErr = fmt.Errorf("%w: %s", queue.ErrNotFound, id)
			return
		}
		if item.Priority == priority {
			return
		}
		item.Priority = priority
		s.view.Invalidate()
		s.persist("update_priority", id, func(ctx context.Context) error {
			return s.store.UpdatePriority(ctx, id, priority)
		})
		if s.autoDispatch {
			s.dispatchUpToCapacity()
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// TogglePause switches Pending and Paused. Other statuses are left alone.
// It returns the resulting status.
func (s *Scheduler) TogglePause(ctx context.Context, id string) (queue.Status, error) {
	var (
		status queue.Status
		opErr  error
	)
	err := s.call(ctx, func() {
		item, ok := s.lookup(id)
		if !ok {
			opErr = fmt.Errorf("%w: %s", queue.ErrNotFound, id)
			return
		}
		switch item.Status {
		case queue.StatusPending:
			item.Status = queue.StatusPaused
		case queue.StatusPaused:
			item.Status = queue.StatusPending
		default:
			status = item.Status
			return
		}
		status = item.Status
		s.view.Invalidate()
		s.persist("update_status", id, func(ctx context.Context) error {
			return s.store.UpdateStatus(ctx, id, status)
		})
		if s.autoDispatch && status == queue.StatusPending {
			s.dispatchUpToCapacity()
		}
	})
	if err != nil {
		return "", err
	}
	return status, opErr
}

// Delete removes an item. Running items cannot be deleted.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	var opErr error
	err := s.call(ctx, func() {
		idx, ok := s.index[id]
		if !ok {
			opErr = fmt.Errorf("%w: %s", queue.ErrNotFound, id)
			return
		}
		if _, busy := s.running[id]; busy {
			opErr = fmt.Errorf("%w: %s", queue.ErrItemRunning, id)
			return
		}
		s.items = slices.Delete(s.items, idx, idx+1)
		s.reindex()
		s.view.Invalidate()
		s.persist("delete", id, func(ctx context.Context) error {
			_, err := s.store.Delete(ctx, id)
			return err
		})
		s.logger.Info("queue item deleted", logging.ItemID(id))
		if s.autoDispatch && s.opts.PriorityTiers {
			s.dispatchUpToCapacity()
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// Retry returns a Failed or PartiallyFailed item to Pending. Confirmed
// operations are kept so the next attempt sends only the rest.
func (s *Scheduler) Retry(ctx context.Context, id string) error {
	var opErr error
	err := s.call(ctx, func() {
		item, ok := s.lookup(id)
		if !ok {
			opErr = fmt.Errorf("%w: %s", queue.ErrNotFound, id)
			return
		}
		if !item.Status.Retryable() {
			opErr = fmt.Errorf("%w: cannot retry %s item", queue.ErrInvalidTransition, item.Status)
			return
		}
		s.resetForRetry(item)
		if s.autoDispatch {
			s.dispatchUpToCapacity()
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

func (s *Scheduler) resetForRetry(item *queue.Item) {
	item.ResetForRetry()
	s.view.Invalidate()
	s.persist("update_status", item.ID, func(ctx context.Context) error {
		return s.store.UpdateStatus(ctx, item.ID, queue.StatusPending)
	})
	s.persist("update_result", item.ID, func(ctx context.Context) error {
		return s.store.UpdateResult(ctx, item.ID, nil)
	})
	s.persist("update_started_at", item.ID, func(ctx context.Context) error {
		return s.store.UpdateStartedAt(ctx, item.ID, nil)
	})
	s.logger.Info("queue item reset for retry",
		logging.ItemID(item.ID),
		logging.Int("remaining_operations", len(item.Operations)-len(item.SucceededIndices)),
	)
}

// ClearInterruption acknowledges an interrupted item. Status is unchanged.
func (s *Scheduler) ClearInterruption(ctx context.Context, id string) error {
	var opErr error
	err := s.call(ctx, func() {
		item, ok := s.lookup(id)
		if !ok {
			opErr = fmt.Errorf("%w: %s", queue.ErrNotFound, id)
			return
		}
		item.WasInterrupted = false
		item.InterruptedAt = nil
		s.persist("clear_interrupted", id, func(ctx context.Context) error {
			return s.store.ClearInterrupted(ctx, id)
		})
	})
	if err != nil {
		return err
	}
	return opErr
}

// ClearAll removes every item. It is refused while any item is running.
func (s *Scheduler) ClearAll(ctx context.Context) (int, error) {
	var (
		removed int
		opErr   error
	)
	err := s.call(ctx, func() {
		if len(s.running) > 0 {
			opErr = fmt.Errorf("%w: %d running", queue.ErrQueueBusy, len(s.running))
			return
		}
		removed = len(s.items)
		s.items = nil
		clear(s.index)
		s.view.Invalidate()
		s.persist("clear_all", "", func(ctx context.Context) error {
			_, err := s.store.ClearAll(ctx)
			return err
		})
		s.logger.Info("queue cleared", logging.Int("removed", removed))
	})
	if err != nil {
		return 0, err
	}
	return removed, opErr
}

// SetFilter changes the view filter and persists settings.
func (s *Scheduler) SetFilter(ctx context.Context, filter queue.Filter) error {
	return s.updateSettings(ctx, func(settings *queue.Settings) { settings.Filter = filter })
}

// SetSort changes the view sort mode and persists settings.
func (s *Scheduler) SetSort(ctx context.Context, mode queue.SortMode) error {
	return s.updateSettings(ctx, func(settings *queue.Settings) { settings.Sort = mode })
}

// SetMaxConcurrent changes the concurrency limit and persists settings.
// Running items above a lowered limit finish normally.
func (s *Scheduler) SetMaxConcurrent(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("max concurrent must be at least 1, got %d", n)
	}
	return s.updateSettings(ctx, func(settings *queue.Settings) { settings.MaxConcurrent = n })
}

func (s *Scheduler) updateSettings(ctx context.Context, mutate func(*queue.Settings)) error {
	return s.call(ctx, func() {
		mutate(&s.settings)
		s.view.SetModes(s.settings.Filter, s.settings.Sort)
		settings := s.settings
		s.persist("save_settings", "", func(ctx context.Context) error {
			return s.store.SaveSettings(ctx, settings)
		})
		if s.autoDispatch {
			s.dispatchUpToCapacity()
		}
	})
}

// Settings returns the current operator preferences.
func (s *Scheduler) Settings(ctx context.Context) (queue.Settings, error) {
	var settings queue.Settings
	err := s.call(ctx, func() { settings = s.settings })
	return settings, err
}

// Snapshot reports counts, running IDs, and remaining-time estimates.
func (s *Scheduler) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.call(ctx, func() {
		snap.AutoDispatch = s.autoDispatch
		snap.PriorityTiers = s.opts.PriorityTiers
		snap.Settings = s.settings
		for _, item := range s.items {
			snap.Stats.Add(item)
			if _, ok := s.running[item.ID]; ok {
				snap.RunningIDs = append(snap.RunningIDs, item.ID)
			}
		}
		snap.Estimates = s.estimates(snap.Stats.Pending)
	})
	return snap, err
}

// View returns copies of the items in the current view order.
func (s *Scheduler) View(ctx context.Context) ([]*queue.Item, error) {
	var items []*queue.Item
	err := s.call(ctx, func() {
		items = cloneAll(s.view.Items(s.items))
	})
	return items, err
}

// List returns copies of the items under an explicit filter and sort,
// leaving the stored view untouched.
func (s *Scheduler) List(ctx context.Context, filter queue.Filter, mode queue.SortMode) ([]*queue.Item, error) {
	var items []*queue.Item
	err := s.call(ctx, func() {
		for _, idx := range view.Compute(s.items, filter, mode) {
			items = append(items, s.items[idx].Clone())
		}
	})
	return items, err
}

// Get returns a copy of one item.
func (s *Scheduler) Get(ctx context.Context, id string) (*queue.Item, error) {
	var (
		item  *queue.Item
		opErr error
	)
	err := s.call(ctx, func() {
		found, ok := s.lookup(id)
		if !ok {
			opErr = fmt.Errorf("%w: %s", queue.ErrNotFound, id)
			return
		}
		item = found.Clone()
	})
	if err != nil {
		return nil, err
	}
	return item, opErr
}

// Interrupted lists items still flagged as interrupted.
func (s *Scheduler) Interrupted(ctx context.Context) ([]*queue.Item, error) {
	var items []*queue.Item
	err := s.call(ctx, func() {
		for _, item := range s.items {
			if item.WasInterrupted {
				items = append(items, item.Clone())
			}
		}
	})
	return items, err
}

func cloneAll(items []*queue.Item) []*queue.Item {
	out := make([]*queue.Item, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}
