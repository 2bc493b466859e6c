package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Save inserts the item or replaces every column of an existing row with the
// same ID. The item's Seq is filled in from the database.
func (s *Store) Save(ctx context.Context, item *Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	operationsJSON, err := json.Marshal(item.Operations)
	if err != nil {
		return fmt.Errorf("marshal operations: %w", err)
	}
	indicesJSON, err := encodeIndices(item.SucceededIndices)
	if err != nil {
		return fmt.Errorf("marshal succeeded indices: %w", err)
	}
	resultJSON, err := encodeResult(item.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	metadataJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if _, err := s.exec(
		ctx,
		`INSERT INTO queue_items (
            id, operations_json, status, priority, succeeded_indices_json, result_json,
            metadata_json, was_interrupted, interrupted_at, created_at, started_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            operations_json = excluded.operations_json,
            status = excluded.status,
            priority = excluded.priority,
            succeeded_indices_json = excluded.succeeded_indices_json,
            result_json = excluded.result_json,
            metadata_json = excluded.metadata_json,
            was_interrupted = excluded.was_interrupted,
            interrupted_at = excluded.interrupted_at,
            started_at = excluded.started_at,
            updated_at = excluded.updated_at`,
		item.ID,
		string(operationsJSON),
		item.Status,
		int(item.Priority),
		indicesJSON,
		resultJSON,
		string(metadataJSON),
		boolToInt(item.WasInterrupted),
		nullableTime(item.InterruptedAt),
		item.CreatedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(item.StartedAt),
		nowString(),
	); err != nil {
		return fmt.Errorf("save item: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT seq FROM queue_items WHERE id = ?`, item.ID).Scan(&item.Seq); err != nil {
		return fmt.Errorf("read item seq: %w", err)
	}
	return nil
}

// Get fetches a queue item by identifier. It returns nil when none exists.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListAll returns every item in insertion order.
func (s *Store) ListAll(ctx context.Context) ([]*Item, error) {
	return s.List(ctx)
}

// List returns items filtered by status. When no statuses are given all
// items are returned. Results are in insertion order.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Delete removes an item. It reports whether a row was removed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ClearAll removes every item and returns how many rows were deleted.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM queue_items`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}
