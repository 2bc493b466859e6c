package queue

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status represents a queue item's scheduling state.
type Status string

const (
	StatusPending         Status = "pending"
	StatusPaused          Status = "paused"
	StatusRunning         Status = "running"
	StatusDone            Status = "done"
	StatusFailed          Status = "failed"
	StatusPartiallyFailed Status = "partially_failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusPaused,
	StatusRunning,
	StatusDone,
	StatusFailed,
	StatusPartiallyFailed,
}

var statusSet = func() map[Status]struct{} {
	m := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		m[status] = struct{}{}
	}
	return m
}()

var labelCaser = cases.Title(language.English)

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return slices.Clone(allStatuses)
}

// ParseStatus converts a string into a Status, accepting hyphens and spaces.
func ParseStatus(value string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	status := Status(normalized)
	_, ok := statusSet[status]
	return status, ok
}

// Label returns a display label such as "Partially Failed".
func (s Status) Label() string {
	return labelCaser.String(strings.ReplaceAll(string(s), "_", " "))
}

// IsTerminal reports whether the status ends an execution attempt.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusPartiallyFailed:
		return true
	}
	return false
}

// Retryable reports whether an operator may reset the item to pending.
func (s Status) Retryable() bool {
	return s == StatusFailed || s == StatusPartiallyFailed
}

// Operation is one remote write action. The queue treats Payload as opaque;
// Kind and Entity label the operation in logs and listings.
type Operation struct {
	Kind    string          `json:"kind"`
	Entity  string          `json:"entity"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OperationResult is the outcome of one operation within an attempt.
type OperationResult struct {
	Success    bool            `json:"success"`
	StatusCode *int            `json:"status_code,omitempty"`
	Error      string          `json:"error,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
}

// Result is the aggregate outcome of one execution attempt.
type Result struct {
	Success          bool              `json:"success"`
	OperationResults []OperationResult `json:"operation_results"`
	Error            string            `json:"error,omitempty"`
	DurationMS       int64             `json:"duration_ms"`
}

// Elapsed returns the attempt duration.
func (r *Result) Elapsed() time.Duration {
	if r == nil {
		return 0
	}
	return time.Duration(r.DurationMS) * time.Millisecond
}

// Metadata is carried through for display and completion events.
type Metadata struct {
	Description string `json:"description"`
	Environment string `json:"environment"`
	Source      string `json:"source"`
	RowNumber   *int   `json:"row_number,omitempty"`
}

// Item is the schedulable unit: ordered operations plus progress state.
type Item struct {
	ID               string      `json:"id"`
	Operations       []Operation `json:"operations"`
	SucceededIndices []int       `json:"succeeded_indices"`
	Priority         uint8       `json:"priority"`
	Status           Status      `json:"status"`
	Metadata         Metadata    `json:"metadata"`
	Result           *Result     `json:"result,omitempty"`
	WasInterrupted   bool        `json:"was_interrupted"`
	InterruptedAt    *time.Time  `json:"interrupted_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	Seq              int64       `json:"seq"`
}

// NewItem builds a pending item with a fresh identifier.
func NewItem(ops []Operation, meta Metadata, priority uint8) *Item {
	return &Item{
		ID:         uuid.NewString(),
		Operations: ops,
		Priority:   priority,
		Status:     StatusPending,
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	}
}

// Clone returns a deep copy safe to hand across goroutines.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	cp := *i
	cp.Operations = slices.Clone(i.Operations)
	cp.SucceededIndices = slices.Clone(i.SucceededIndices)
	if i.Metadata.RowNumber != nil {
		row := *i.Metadata.RowNumber
		cp.Metadata.RowNumber = &row
	}
	if i.Result != nil {
		res := *i.Result
		res.OperationResults = slices.Clone(i.Result.OperationResults)
		cp.Result = &res
	}
	if i.InterruptedAt != nil {
		at := *i.InterruptedAt
		cp.InterruptedAt = &at
	}
	if i.StartedAt != nil {
		at := *i.StartedAt
		cp.StartedAt = &at
	}
	return &cp
}

// Validate checks the invariants a persisted item must satisfy.
func (i *Item) Validate() error {
	if i == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidItem)
	}
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidItem)
	}
	if _, ok := statusSet[i.Status]; !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidItem, i.Status)
	}
	for _, idx := range i.SucceededIndices {
		if idx < 0 || idx >= len(i.Operations) {
			return fmt.Errorf("%w: succeeded index %d out of range", ErrInvalidItem, idx)
		}
	}
	return nil
}

// SortMode selects the ordering of queue listings.
type SortMode string

const (
	SortPriority SortMode = "priority"
	SortStatus   SortMode = "status"
	SortSource   SortMode = "source"
)

// ParseSortMode validates a sort mode name.
func ParseSortMode(value string) (SortMode, error) {
	switch mode := SortMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case SortPriority, SortStatus, SortSource:
		return mode, nil
	case "":
		return SortPriority, nil
	default:
		return "", fmt.Errorf("unknown sort mode %q (want priority, status, or source)", value)
	}
}

// Filter restricts queue listings to one status, or everything.
type Filter string

// FilterAll matches every item.
const FilterAll Filter = "all"

// ParseFilter validates a filter name: "all" or a status.
func ParseFilter(value string) (Filter, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.EqualFold(trimmed, string(FilterAll)) {
		return FilterAll, nil
	}
	status, ok := ParseStatus(trimmed)
	if !ok {
		return "", fmt.Errorf("unknown filter %q", value)
	}
	return Filter(status), nil
}

// Matches reports whether the item passes the filter.
func (f Filter) Matches(item *Item) bool {
	if item == nil {
		return false
	}
	if f == "" || f == FilterAll {
		return true
	}
	return item.Status == Status(f)
}

// Settings are the operator preferences persisted alongside items.
type Settings struct {
	Filter        Filter   `json:"filter"`
	Sort          SortMode `json:"sort"`
	MaxConcurrent int      `json:"max_concurrent"`
}

// DefaultSettings returns settings used before anything was stored.
func DefaultSettings(maxConcurrent int) Settings {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return Settings{Filter: FilterAll, Sort: SortPriority, MaxConcurrent: maxConcurrent}
}

// HealthSummary aggregates queue state for diagnostic output.
type HealthSummary struct {
	Total           int `json:"total"`
	Pending         int `json:"pending"`
	Paused          int `json:"paused"`
	Running         int `json:"running"`
	Done            int `json:"done"`
	Failed          int `json:"failed"`
	PartiallyFailed int `json:"partially_failed"`
	Interrupted     int `json:"interrupted"`
}

// Add counts one item.
func (h *HealthSummary) Add(item *Item) {
	h.Total++
	switch item.Status {
	case StatusPending:
		h.Pending++
	case StatusPaused:
		h.Paused++
	case StatusRunning:
		h.Running++
	case StatusDone:
		h.Done++
	case StatusFailed:
		h.Failed++
	case StatusPartiallyFailed:
		h.PartiallyFailed++
	}
	if item.WasInterrupted {
		h.Interrupted++
	}
}

// DatabaseHealth reports diagnostics for the queue database.
type DatabaseHealth struct {
	DBPath            string   `json:"db_path"`
	DatabaseExists    bool     `json:"database_exists"`
	DatabaseReadable  bool     `json:"database_readable"`
	DirectoryWritable bool     `json:"directory_writable"`
	SchemaVersion     int      `json:"schema_version"`
	TableExists       bool     `json:"table_exists"`
	ColumnsPresent    []string `json:"columns_present"`
	MissingColumns    []string `json:"missing_columns"`
	IntegrityCheck    bool     `json:"integrity_check"`
	TotalItems        int      `json:"total_items"`
	Error             string   `json:"error,omitempty"`
}
