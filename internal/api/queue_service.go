package api

import (
	"context"
	"errors"

	"dynq/internal/queue"
	"dynq/internal/scheduler"
)

// QueueReader abstracts the scheduler queries needed for API responses.
type QueueReader interface {
	List(ctx context.Context, filter queue.Filter, mode queue.SortMode) ([]*queue.Item, error)
	View(ctx context.Context) ([]*queue.Item, error)
	Get(ctx context.Context, id string) (*queue.Item, error)
	Snapshot(ctx context.Context) (scheduler.Snapshot, error)
}

// QueueService exposes read-only queue operations returning API DTOs.
type QueueService struct {
	reader QueueReader
}

// NewQueueService constructs a QueueService around the provided reader.
func NewQueueService(reader QueueReader) *QueueService {
	if reader == nil {
		return nil
	}
	return &QueueService{reader: reader}
}

// List returns queue items for the given filter and sort. Empty values
// fall back to the operator's saved view.
func (s *QueueService) List(ctx context.Context, filter, sort string) (QueueListResponse, error) {
	if s == nil || s.reader == nil {
		return QueueListResponse{}, nil
	}
	if filter == "" && sort == "" {
		snap, err := s.reader.Snapshot(ctx)
		if err != nil {
			return QueueListResponse{}, err
		}
		items, err := s.reader.View(ctx)
		if err != nil {
			return QueueListResponse{}, err
		}
		return QueueListResponse{
			Items:  FromQueueItems(items),
			Filter: string(snap.Settings.Filter),
			Sort:   string(snap.Settings.Sort),
		}, nil
	}
	parsedFilter, err := queue.ParseFilter(filter)
	if err != nil {
		return QueueListResponse{}, err
	}
	mode, err := queue.ParseSortMode(sort)
	if err != nil {
		return QueueListResponse{}, err
	}
	items, err := s.reader.List(ctx, parsedFilter, mode)
	if err != nil {
		return QueueListResponse{}, err
	}
	return QueueListResponse{Items: FromQueueItems(items), Filter: string(parsedFilter), Sort: string(mode)}, nil
}

// Describe fetches a single queue item, returning nil when it does not exist.
func (s *QueueService) Describe(ctx context.Context, id string) (*QueueItem, error) {
	if s == nil || s.reader == nil {
		return nil, nil
	}
	item, err := s.reader.Get(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, nil
	}
	if err != nil || item == nil {
		return nil, err
	}
	dto := FromQueueItemDetailed(item)
	return &dto, nil
}

// Status returns the scheduler summary.
func (s *QueueService) Status(ctx context.Context) (SchedulerStatus, error) {
	if s == nil || s.reader == nil {
		return SchedulerStatus{}, nil
	}
	snap, err := s.reader.Snapshot(ctx)
	if err != nil {
		return SchedulerStatus{}, err
	}
	return FromSnapshot(snap), nil
}
