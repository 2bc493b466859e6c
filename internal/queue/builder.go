package queue

import (
	"fmt"
	"strings"
)

const (
	// BuildBasePriority is the priority of the first entity's create phase.
	BuildBasePriority = 1
	// DefaultBatchSize caps the operations per built item.
	DefaultBatchSize = 50

	buildPriorityCap = 127
	defaultSource    = "Transfer"
)

// EntityOperations groups the operations produced for one entity.
// Priority orders entities relative to each other; lower runs first.
type EntityOperations struct {
	Entity     string      `json:"entity"`
	Priority   int         `json:"priority"`
	Operations []Operation `json:"operations"`
}

// BuildRequest describes a transfer to split into queue items.
type BuildRequest struct {
	Label       string             `json:"label"`
	Environment string             `json:"environment"`
	Source      string             `json:"source,omitempty"`
	BatchSize   int                `json:"batch_size,omitempty"`
	Entities    []EntityOperations `json:"entities"`
}

type buildPhase struct {
	name   string
	offset int
	ops    []Operation
}

// BuildItems splits a transfer into pending items. Creates for an entity are
// queued one priority step ahead of its updates so dependent writes land after
// the records they reference exist. A BatchSize of zero puts each phase in a
// single item.
func BuildItems(req BuildRequest) ([]*Item, error) {
	if strings.TrimSpace(req.Environment) == "" {
		return nil, fmt.Errorf("%w: environment is required", ErrInvalidItem)
	}
	if req.BatchSize < 0 {
		return nil, fmt.Errorf("%w: batch size %d is negative", ErrInvalidItem, req.BatchSize)
	}
	source := req.Source
	if strings.TrimSpace(source) == "" {
		source = defaultSource
	}

	var items []*Item
	for _, entity := range req.Entities {
		if entity.Priority < 0 {
			return nil, fmt.Errorf("%w: entity %q has negative priority", ErrInvalidItem, entity.Entity)
		}
		phases := splitPhases(entity.Operations)
		for _, phase := range phases {
			if len(phase.ops) == 0 {
				continue
			}
			priority := min(BuildBasePriority+entity.Priority*2+phase.offset, buildPriorityCap)
			chunks := chunkOperations(phase.ops, req.BatchSize)
			for i, chunk := range chunks {
				meta := Metadata{
					Description: describeChunk(req.Label, entity.Entity, phase.name, i, len(chunks), len(chunk)),
					Environment: req.Environment,
					Source:      source,
				}
				items = append(items, NewItem(chunk, meta, uint8(priority)))
			}
		}
	}
	return items, nil
}

func splitPhases(ops []Operation) []buildPhase {
	create := buildPhase{name: "create", offset: 0}
	update := buildPhase{name: "update", offset: 1}
	for _, op := range ops {
		if strings.EqualFold(op.Kind, "create") {
			create.ops = append(create.ops, op)
			continue
		}
		update.ops = append(update.ops, op)
	}
	return []buildPhase{create, update}
}

func chunkOperations(ops []Operation, size int) [][]Operation {
	if size == 0 || size >= len(ops) {
		return [][]Operation{ops}
	}
	chunks := make([][]Operation, 0, (len(ops)+size-1)/size)
	for start := 0; start < len(ops); start += size {
		end := min(start+size, len(ops))
		chunks = append(chunks, ops[start:end:end])
	}
	return chunks
}

func describeChunk(label, entity, phase string, index, total, count int) string {
	prefix := entity
	if label != "" {
		prefix = label + ": " + entity
	}
	if total == 1 {
		return fmt.Sprintf("%s %s (%d records)", prefix, phase, count)
	}
	return fmt.Sprintf("%s %s %d/%d (%d records)", prefix, phase, index+1, total, count)
}
