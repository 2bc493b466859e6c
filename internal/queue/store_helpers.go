package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const itemColumns = "seq, id, operations_json, status, priority, succeeded_indices_json, result_json, metadata_json, was_interrupted, interrupted_at, created_at, started_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		seq              int64
		id               string
		operationsRaw    string
		statusStr        string
		priority         int64
		succeededRaw     sql.NullString
		resultRaw        sql.NullString
		metadataRaw      sql.NullString
		wasInterrupted   sql.NullInt64
		interruptedAtRaw sql.NullString
		createdRaw       sql.NullString
		startedRaw       sql.NullString
	)

	if err := scanner.Scan(
		&seq,
		&id,
		&operationsRaw,
		&statusStr,
		&priority,
		&succeededRaw,
		&resultRaw,
		&metadataRaw,
		&wasInterrupted,
		&interruptedAtRaw,
		&createdRaw,
		&startedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		Seq:      seq,
		ID:       id,
		Status:   Status(statusStr),
		Priority: uint8(priority),
	}
	if err := json.Unmarshal([]byte(operationsRaw), &item.Operations); err != nil {
		return nil, fmt.Errorf("decode operations for %s: %w", id, err)
	}
	if succeededRaw.Valid && succeededRaw.String != "" {
		if err := json.Unmarshal([]byte(succeededRaw.String), &item.SucceededIndices); err != nil {
			return nil, fmt.Errorf("decode succeeded indices for %s: %w", id, err)
		}
	}
	if resultRaw.Valid && resultRaw.String != "" {
		var res Result
		if err := json.Unmarshal([]byte(resultRaw.String), &res); err != nil {
			return nil, fmt.Errorf("decode result for %s: %w", id, err)
		}
		item.Result = &res
	}
	if metadataRaw.Valid && metadataRaw.String != "" {
		if err := json.Unmarshal([]byte(metadataRaw.String), &item.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
		}
	}
	if wasInterrupted.Valid {
		item.WasInterrupted = wasInterrupted.Int64 != 0
	}
	if interruptedAtRaw.Valid {
		if at, err := parseTimeString(interruptedAtRaw.String); err == nil {
			item.InterruptedAt = &at
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			item.StartedAt = &started
		}
	}
	return item, nil
}

func encodeIndices(indices []int) (string, error) {
	if indices == nil {
		indices = []int{}
	}
	data, err := json.Marshal(indices)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeResult(res *Result) (any, error) {
	if res == nil {
		return nil, nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
