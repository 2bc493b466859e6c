package scheduler

import (
	"context"
	"errors"
	"time"

	"dynq/internal/queue"
)

// ErrStopped is returned by calls made after the scheduler has shut down.
var ErrStopped = errors.New("scheduler stopped")

// Persistence is the store contract the scheduler writes through.
type Persistence interface {
	Save(ctx context.Context, item *queue.Item) error
	UpdateStatus(ctx context.Context, id string, status queue.Status) error
	UpdateResult(ctx context.Context, id string, res *queue.Result) error
	UpdatePriority(ctx context.Context, id string, priority uint8) error
	UpdateSucceededIndices(ctx context.Context, id string, indices []int) error
	UpdateStartedAt(ctx context.Context, id string, startedAt *time.Time) error
	ClearInterrupted(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) (bool, error)
	ClearAll(ctx context.Context) (int64, error)
	SaveSettings(ctx context.Context, settings queue.Settings) error
}

// Publisher receives completed items.
type Publisher interface {
	PublishCompletion(ctx context.Context, item *queue.Item) error
}

// Options tunes scheduling.
type Options struct {
	// MaxConcurrent applies when the loaded settings carry no limit.
	MaxConcurrent int
	// PriorityTiers restricts dispatch to the lowest priority value among
	// pending and running items.
	PriorityTiers bool
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Estimate is a remaining-time projection over the latest Samples
// successful attempts.
type Estimate struct {
	Window    int           `json:"window"`
	Samples   int           `json:"samples"`
	Remaining time.Duration `json:"remaining"`
}

// Snapshot summarizes scheduler state.
type Snapshot struct {
	AutoDispatch  bool                `json:"auto_dispatch"`
	PriorityTiers bool                `json:"priority_tiers"`
	Settings      queue.Settings      `json:"settings"`
	Stats         queue.HealthSummary `json:"stats"`
	RunningIDs    []string            `json:"running_ids"`
	Estimates     []Estimate          `json:"estimates"`
}

const completionSamples = 10

var estimateWindows = []int{3, 5, 10}
