package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"dynq/internal/config"
	"dynq/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Operations returns n numbered create operations for entity.
func Operations(entity string, n int) []queue.Operation {
	ops := make([]queue.Operation, n)
	for i := range ops {
		payload, _ := json.Marshal(map[string]any{"name": fmt.Sprintf("%s-%d", entity, i)})
		ops[i] = queue.Operation{Kind: "create", Entity: entity, Payload: payload}
	}
	return ops
}

// NewItem builds a pending item with n operations against environment "test".
func NewItem(description string, priority uint8, n int) *queue.Item {
	return queue.NewItem(Operations("account", n), queue.Metadata{
		Description: description,
		Environment: "test",
		Source:      "Test",
	}, priority)
}

// SaveItem persists an item and fails the test on error.
func SaveItem(t testing.TB, store *queue.Store, item *queue.Item) *queue.Item {
	t.Helper()

	if err := store.Save(context.Background(), item); err != nil {
		t.Fatalf("store.Save: %v", err)
	}
	return item
}
