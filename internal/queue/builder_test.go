package queue_test

import (
	"errors"
	"testing"

	"dynq/internal/queue"
	"dynq/internal/testsupport"
)

func TestBuildItemsOrdersCreatesBeforeUpdates(t *testing.T) {
	updates := testsupport.Operations("account", 2)
	for i := range updates {
		updates[i].Kind = "update"
	}
	ops := append(testsupport.Operations("account", 3), updates...)

	items, err := queue.BuildItems(queue.BuildRequest{
		Label:       "crm-move",
		Environment: "prod",
		Entities: []queue.EntityOperations{
			{Entity: "account", Priority: 0, Operations: ops},
			{Entity: "contact", Priority: 1, Operations: testsupport.Operations("contact", 1)},
		},
	})
	if err != nil {
		t.Fatalf("BuildItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	wantDesc := []string{
		"crm-move: account create (3 records)",
		"crm-move: account update (2 records)",
		"crm-move: contact create (1 records)",
	}
	wantPriority := []uint8{1, 2, 3}
	for i, item := range items {
		if item.Metadata.Description != wantDesc[i] {
			t.Fatalf("item %d description = %q", i, item.Metadata.Description)
		}
		if item.Priority != wantPriority[i] {
			t.Fatalf("item %d priority = %d", i, item.Priority)
		}
		if item.Metadata.Source != "Transfer" || item.Metadata.Environment != "prod" {
			t.Fatalf("item %d metadata = %#v", i, item.Metadata)
		}
		if item.Status != queue.StatusPending || item.ID == "" {
			t.Fatalf("item %d not pending: %#v", i, item)
		}
	}
}

func TestBuildItemsChunksByBatchSize(t *testing.T) {
	items, err := queue.BuildItems(queue.BuildRequest{
		Label:       "load",
		Environment: "dev",
		BatchSize:   2,
		Entities: []queue.EntityOperations{
			{Entity: "lead", Operations: testsupport.Operations("lead", 5)},
		},
	})
	if err != nil {
		t.Fatalf("BuildItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(items))
	}
	if items[0].Metadata.Description != "load: lead create 1/3 (2 records)" {
		t.Fatalf("description = %q", items[0].Metadata.Description)
	}
	if len(items[2].Operations) != 1 {
		t.Fatalf("last chunk has %d operations", len(items[2].Operations))
	}
}

func TestBuildItemsCapsPriority(t *testing.T) {
	items, err := queue.BuildItems(queue.BuildRequest{
		Environment: "dev",
		Entities: []queue.EntityOperations{
			{Entity: "late", Priority: 500, Operations: testsupport.Operations("late", 1)},
		},
	})
	if err != nil {
		t.Fatalf("BuildItems failed: %v", err)
	}
	if items[0].Priority != 127 {
		t.Fatalf("priority = %d", items[0].Priority)
	}
}

func TestBuildItemsRequiresEnvironment(t *testing.T) {
	_, err := queue.BuildItems(queue.BuildRequest{})
	if !errors.Is(err, queue.ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}
}
