package queue

import (
	"fmt"
	"slices"
	"time"
)

// RemainingOperations returns the operations not yet confirmed successful,
// in original order, together with their original positions.
func (i *Item) RemainingOperations() ([]Operation, []int) {
	done := make(map[int]struct{}, len(i.SucceededIndices))
	for _, idx := range i.SucceededIndices {
		done[idx] = struct{}{}
	}
	size := max(len(i.Operations)-len(done), 0)
	ops := make([]Operation, 0, size)
	positions := make([]int, 0, size)
	for idx, op := range i.Operations {
		if _, ok := done[idx]; ok {
			continue
		}
		ops = append(ops, op)
		positions = append(positions, idx)
	}
	return ops, positions
}

// NewResult assembles the outcome of an attempt that sent `sent` operations.
// The attempt is a success only when every sent operation produced a
// successful result and no item-level error occurred.
func NewResult(sent int, results []OperationResult, err error, elapsed time.Duration) Result {
	res := Result{
		OperationResults: results,
		DurationMS:       elapsed.Milliseconds(),
	}
	if res.OperationResults == nil {
		res.OperationResults = []OperationResult{}
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if len(results) != sent {
		res.Error = fmt.Sprintf("transport returned %d results for %d operations", len(results), sent)
		return res
	}
	for _, r := range results {
		if !r.Success {
			return res
		}
	}
	res.Success = true
	return res
}

// ApplyResult folds an attempt result into the item and returns the new status.
// positions maps each result slot to its original operation index and must be
// the slice RemainingOperations returned when the attempt was dispatched.
func (i *Item) ApplyResult(res Result, positions []int) Status {
	var newly []int
	for local, r := range res.OperationResults {
		if !r.Success || local >= len(positions) {
			continue
		}
		newly = append(newly, positions[local])
	}

	switch {
	case res.Success:
		i.Status = StatusDone
		i.SucceededIndices = nil
	case len(newly) > 0:
		i.Status = StatusPartiallyFailed
		i.SucceededIndices = MergeIndices(i.SucceededIndices, newly)
	default:
		i.Status = StatusFailed
	}
	stored := res
	i.Result = &stored
	return i.Status
}

// ResetForRetry returns a failed item to pending, keeping confirmed progress.
func (i *Item) ResetForRetry() {
	i.Status = StatusPending
	i.Result = nil
	i.StartedAt = nil
}

// FailedOperation describes one rejected operation of an attempt.
type FailedOperation struct {
	// Position is the 0-based slot within the attempt.
	Position  int
	Operation Operation
	Result    OperationResult
}

// FailedOperations pairs each unsuccessful result with the operation that
// produced it. ops is the slice sent in the attempt.
func FailedOperations(ops []Operation, res Result) []FailedOperation {
	var failed []FailedOperation
	for local, r := range res.OperationResults {
		if r.Success {
			continue
		}
		entry := FailedOperation{Position: local, Result: r}
		if local < len(ops) {
			entry.Operation = ops[local]
		}
		failed = append(failed, entry)
	}
	return failed
}

// MergeIndices returns the sorted union of two index sets.
func MergeIndices(existing, added []int) []int {
	merged := make([]int, 0, len(existing)+len(added))
	merged = append(merged, existing...)
	merged = append(merged, added...)
	slices.Sort(merged)
	return slices.Compact(merged)
}
