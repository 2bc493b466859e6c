// Package recovery reconciles queue rows left Running by a process that did
// not shut down cleanly.
//
// A Running row at startup can only mean the previous process died mid
// attempt, because nothing is executing yet. Reconcile returns such items to
// Pending, flags them as interrupted, and reports them so an operator can
// check the remote system for partially applied writes before retrying.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dynq/internal/logging"
	"dynq/internal/queue"
)

// Store is the persistence surface recovery needs.
type Store interface {
	ListAll(ctx context.Context) ([]*queue.Item, error)
	UpdateStatus(ctx context.Context, id string, status queue.Status) error
	MarkInterrupted(ctx context.Context, id string, at time.Time) error
	UpdateStartedAt(ctx context.Context, id string, startedAt *time.Time) error
}

// Report is the outcome of a startup reconciliation.
type Report struct {
	// Items is every stored item after reconciliation, in insertion order.
	Items []*queue.Item
	// Interrupted lists the items that were found Running.
	Interrupted []*queue.Item
}

// Reconcile loads the queue and repairs stale Running rows. Each repair is
// three independent writes; a failed write is logged and the in-memory item
// is still repaired so the scheduler never sees a phantom Running item.
func Reconcile(ctx context.Context, store Store, logger *slog.Logger, now time.Time) (Report, error) {
	logger = logging.NewComponentLogger(logger, "recovery")
	items, err := store.ListAll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load queue: %w", err)
	}

	report := Report{Items: items}
	at := now.UTC()
	for _, item := range items {
		if item.Status != queue.StatusRunning {
			continue
		}
		itemLogger := logger.With(logging.ItemID(item.ID))

		if err := store.UpdateStatus(ctx, item.ID, queue.StatusPending); err != nil {
			warnPersist(itemLogger, "reset status", err)
		}
		if err := store.MarkInterrupted(ctx, item.ID, at); err != nil {
			warnPersist(itemLogger, "mark interrupted", err)
		}
		if err := store.UpdateStartedAt(ctx, item.ID, nil); err != nil {
			warnPersist(itemLogger, "clear started_at", err)
		}

		item.Status = queue.StatusPending
		item.WasInterrupted = true
		interruptedAt := at
		item.InterruptedAt = &interruptedAt
		item.StartedAt = nil
		report.Interrupted = append(report.Interrupted, item)

		itemLogger.Warn("item was running when the previous process stopped",
			logging.String("description", item.Metadata.Description),
			logging.Environment(item.Metadata.Environment),
			logging.Int("succeeded_operations", len(item.SucceededIndices)),
			logging.Int("total_operations", len(item.Operations)),
			logging.String(logging.FieldEventType, "queue_item_interrupted"),
			logging.String(logging.FieldErrorHint, "verify the target environment before retrying, then run dynq queue ack"),
			logging.String(logging.FieldImpact, "some operations may already be applied remotely"),
		)
	}

	if len(report.Interrupted) > 0 {
		logger.Info("recovered interrupted items", logging.Int("count", len(report.Interrupted)))
	}
	return report, nil
}

func warnPersist(logger *slog.Logger, action string, err error) {
	logging.WarnWithContext(logger, "recovery write failed", "queue_persist_failed",
		logging.String("action", action),
		logging.Error(err),
		logging.String(logging.FieldImpact, "item state may revert to running after another restart"),
	)
}
