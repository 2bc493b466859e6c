package scheduler

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"dynq/internal/logging"
	"dynq/internal/queue"
	"dynq/internal/telemetry"
)

// dispatchUpToCapacity fills the running set from the eligible pending items.
func (s *Scheduler) dispatchUpToCapacity() []string {
	var started []string
	for len(s.running) < s.settings.MaxConcurrent {
		item := s.nextEligible()
		if item == nil {
			break
		}
		s.dispatch(item)
		started = append(started, item.ID)
	}
	return started
}

// dispatchOne starts exactly one eligible item, ignoring capacity.
func (s *Scheduler) dispatchOne() string {
	item := s.nextEligible()
	if item == nil {
		return ""
	}
	s.dispatch(item)
	return item.ID
}

// nextEligible returns the pending item to run next: lowest priority value,
// then earliest CreatedAt, then collection order.
func (s *Scheduler) nextEligible() *queue.Item {
	if s.stopping {
		return nil
	}
	tier, tiered := s.activeTier()
	var best *queue.Item
	for _, item := range s.items {
		if item.Status != queue.StatusPending {
			continue
		}
		if _, busy := s.running[item.ID]; busy {
			continue
		}
		if tiered && item.Priority != tier {
			continue
		}
		if best == nil || runsBefore(item, best) {
			best = item
		}
	}
	return best
}

func runsBefore(a, b *queue.Item) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// activeTier reports the minimum priority among pending and running items
// when the tier barrier is enabled.
func (s *Scheduler) activeTier() (uint8, bool) {
	if !s.opts.PriorityTiers {
		return 0, false
	}
	found := false
	var tier uint8
	for _, item := range s.items {
		if item.Status != queue.StatusPending && item.Status != queue.StatusRunning {
			continue
		}
		if !found || item.Priority < tier {
			tier = item.Priority
			found = true
		}
	}
	return tier, found
}

func (s *Scheduler) dispatch(item *queue.Item) {
	now := s.opts.Now()
	item.Status = queue.StatusRunning
	item.StartedAt = &now
	s.running[item.ID] = struct{}{}
	s.view.Invalidate()

	s.persist("update_status", item.ID, func(ctx context.Context) error {
		return s.store.UpdateStatus(ctx, item.ID, queue.StatusRunning)
	})
	s.persist("update_started_at", item.ID, func(ctx context.Context) error {
		return s.store.UpdateStartedAt(ctx, item.ID, &now)
	})

	ops, positions := item.RemainingOperations()
	telemetry.ItemsDispatched.Inc()
	telemetry.ItemsRunning.Set(float64(len(s.running)))
	s.logger.Info("dispatching queue item",
		logging.ItemID(item.ID),
		logging.String("description", item.Metadata.Description),
		logging.Environment(item.Metadata.Environment),
		logging.Int("priority", int(item.Priority)),
		logging.Int("operations", len(ops)),
		logging.Int("already_succeeded", len(item.SucceededIndices)),
	)

	job := attempt{
		id:          item.ID,
		environment: item.Metadata.Environment,
		ops:         ops,
		positions:   positions,
	}
	s.execWG.Add(1)
	go s.execute(job)
}

type attempt struct {
	id          string
	environment string
	ops         []queue.Operation
	positions   []int
}

// execute runs one attempt off the loop and posts the outcome back.
func (s *Scheduler) execute(job attempt) {
	defer s.execWG.Done()

	ctx := logging.WithItemID(s.ctx, job.id)
	ctx, span := telemetry.Tracer().Start(ctx, "queue.execute")
	span.SetAttributes(
		attribute.String("dynq.item_id", job.id),
		attribute.String("dynq.environment", job.environment),
		attribute.Int("dynq.operations", len(job.ops)),
	)

	start := time.Now()
	var (
		results []queue.OperationResult
		err     error
	)
	exec, err := s.provider.Client(ctx, job.environment)
	if err == nil {
		results, err = exec.Execute(ctx, job.ops)
	}
	res := queue.NewResult(len(job.ops), results, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
	}
	if !res.Success {
		span.SetStatus(codes.Error, "attempt did not fully succeed")
	}
	span.End()

	s.post(func() { s.complete(ctx, job, res) })
}

// complete folds an attempt result into the item.
func (s *Scheduler) complete(ctx context.Context, job attempt, res queue.Result) {
	delete(s.running, job.id)
	telemetry.ItemsRunning.Set(float64(len(s.running)))

	item, ok := s.lookup(job.id)
	if !ok {
		logging.WarnWithContext(s.logger, "completed item no longer in queue", "queue_item_missing",
			logging.ItemID(job.id),
			logging.String(logging.FieldImpact, "attempt result discarded"),
		)
		return
	}

	status := item.ApplyResult(res, job.positions)
	s.view.Invalidate()
	telemetry.ItemsCompleted.WithLabelValues(string(status)).Inc()
	telemetry.ItemDurationSeconds.Observe(res.Elapsed().Seconds())

	s.persist("update_status", item.ID, func(ctx context.Context) error {
		return s.store.UpdateStatus(ctx, item.ID, status)
	})
	s.persist("update_result", item.ID, func(ctx context.Context) error {
		return s.store.UpdateResult(ctx, item.ID, item.Result)
	})
	if status != queue.StatusFailed {
		indices := item.SucceededIndices
		s.persist("update_succeeded_indices", item.ID, func(ctx context.Context) error {
			return s.store.UpdateSucceededIndices(ctx, item.ID, indices)
		})
	}

	itemLogger := s.logger.With(
		logging.ItemID(item.ID),
		logging.String("description", item.Metadata.Description),
	)
	if status == queue.StatusDone {
		s.recordDuration(res.Elapsed())
		itemLogger.Info("queue item completed",
			logging.Duration("duration", res.Elapsed()),
			logging.Int("operations", len(job.ops)),
		)
	} else {
		s.logFailure(itemLogger, status, job, res)
		if s.autoDispatch {
			s.autoDispatch = false
			telemetry.AutoDispatchPaused.Inc()
			logging.WarnWithContext(itemLogger, "auto-dispatch paused after failed item", "auto_dispatch_paused",
				logging.String("status", string(status)),
				logging.String(logging.FieldErrorHint, "inspect the item, then retry it and resume with dynq queue play"),
				logging.String(logging.FieldImpact, "no further items start until resumed"),
			)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishCompletion(ctx, item.Clone()); err != nil {
			logging.WarnWithContext(itemLogger, "publish completion failed", "event_publish_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "listeners miss this completion"),
			)
		}
	}

	if s.autoDispatch {
		s.dispatchUpToCapacity()
	}
}

func (s *Scheduler) logFailure(logger *slog.Logger, status queue.Status, job attempt, res queue.Result) {
	attrs := []logging.Attr{
		logging.String("status", string(status)),
		logging.Duration("duration", res.Elapsed()),
		logging.Int("sent", len(job.ops)),
		logging.Int("results", len(res.OperationResults)),
		logging.String(logging.FieldEventType, "queue_item_failed"),
		logging.String(logging.FieldErrorHint, "review per-operation errors with dynq queue show"),
	}
	if res.Error != "" {
		attrs = append(attrs, logging.String("error", res.Error))
	}
	logger.Error("queue item failed", logging.Args(attrs...)...)

	for _, failure := range queue.FailedOperations(job.ops, res) {
		opAttrs := []logging.Attr{
			logging.Int("position", failure.Position+1),
			logging.String("kind", failure.Operation.Kind),
			logging.String("entity", failure.Operation.Entity),
			logging.String("detail", failure.Result.Error),
		}
		if failure.Result.StatusCode != nil {
			opAttrs = append(opAttrs, logging.Int("status_code", *failure.Result.StatusCode))
		}
		logger.Error("operation failed", logging.Args(opAttrs...)...)
	}
}

func (s *Scheduler) recordDuration(d time.Duration) {
	s.durations = append(s.durations, d)
	if len(s.durations) > completionSamples {
		s.durations = s.durations[len(s.durations)-completionSamples:]
	}
}

// estimates projects remaining time as the average of the latest n
// successful durations times pending items over the concurrency limit.
func (s *Scheduler) estimates(pending int) []Estimate {
	out := make([]Estimate, 0, len(estimateWindows))
	for _, window := range estimateWindows {
		est := Estimate{Window: window}
		samples := s.durations[max(len(s.durations)-window, 0):]
		est.Samples = len(samples)
		if len(samples) > 0 && pending > 0 {
			var total time.Duration
			for _, d := range samples {
				total += d
			}
			avg := total / time.Duration(len(samples))
			est.Remaining = avg * time.Duration(pending) / time.Duration(s.settings.MaxConcurrent)
		}
		out = append(out, est)
	}
	return out
}

// persist runs a store write and logs failures without rolling back.
func (s *Scheduler) persist(operation, id string, fn func(ctx context.Context) error) {
	if s.store == nil {
		return
	}
	if err := fn(s.ctx); err != nil {
		telemetry.PersistenceErrors.WithLabelValues(operation).Inc()
		logging.WarnWithContext(s.logger, "queue persistence failed", "queue_persist_failed",
			logging.String("operation", operation),
			logging.ItemID(id),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check disk space and queue database permissions"),
			logging.String(logging.FieldImpact, "state may be stale after restart"),
		)
	}
}
