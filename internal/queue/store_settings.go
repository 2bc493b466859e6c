package queue

import (
	"context"
	"fmt"
	"strconv"
)

const (
	settingFilter        = "filter"
	settingSort          = "sort"
	settingMaxConcurrent = "max_concurrent"
)

// LoadSettings reads stored operator preferences, falling back to the given
// defaults for anything missing or unparseable. The boolean reports whether
// a concurrency limit was stored.
func (s *Store) LoadSettings(ctx context.Context, defaults Settings) (Settings, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM queue_settings`)
	if err != nil {
		return defaults, false, fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()

	settings := defaults
	storedLimit := false
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return defaults, false, err
		}
		switch key {
		case settingFilter:
			if filter, err := ParseFilter(value); err == nil {
				settings.Filter = filter
			}
		case settingSort:
			if mode, err := ParseSortMode(value); err == nil {
				settings.Sort = mode
			}
		case settingMaxConcurrent:
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				settings.MaxConcurrent = n
				storedLimit = true
			}
		}
	}
	return settings, storedLimit, rows.Err()
}

// SaveSettings persists operator preferences.
func (s *Store) SaveSettings(ctx context.Context, settings Settings) error {
	values := map[string]string{
		settingFilter:        string(settings.Filter),
		settingSort:          string(settings.Sort),
		settingMaxConcurrent: strconv.Itoa(settings.MaxConcurrent),
	}
	for key, value := range values {
		if _, err := s.exec(
			ctx,
			`INSERT INTO queue_settings (key, value) VALUES (?, ?)
             ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value,
		); err != nil {
			return fmt.Errorf("save setting %s: %w", key, err)
		}
	}
	return nil
}
