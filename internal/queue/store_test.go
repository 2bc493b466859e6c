package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"dynq/internal/queue"
	"dynq/internal/testsupport"
)

func TestSaveAndGetRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	row := 7
	item := testsupport.NewItem("accounts 1/2", 3, 4)
	item.Metadata.RowNumber = &row
	item.SucceededIndices = []int{0, 2}
	testsupport.SaveItem(t, store, item)
	if item.Seq == 0 {
		t.Fatal("expected seq to be assigned")
	}

	fetched, err := store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected item to be found")
	}
	if fetched.Priority != 3 || fetched.Status != queue.StatusPending {
		t.Fatalf("unexpected fetched item: %#v", fetched)
	}
	if len(fetched.Operations) != 4 || fetched.Operations[1].Entity != "account" {
		t.Fatalf("operations not restored: %#v", fetched.Operations)
	}
	if len(fetched.SucceededIndices) != 2 || fetched.SucceededIndices[1] != 2 {
		t.Fatalf("succeeded indices not restored: %v", fetched.SucceededIndices)
	}
	if fetched.Metadata.RowNumber == nil || *fetched.Metadata.RowNumber != 7 {
		t.Fatalf("row number not restored: %#v", fetched.Metadata)
	}
	if !fetched.CreatedAt.Equal(item.CreatedAt) {
		t.Fatalf("created_at mismatch: got %v want %v", fetched.CreatedAt, item.CreatedAt)
	}

	missing, err := store.Get(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("Get missing failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing item, got %#v", missing)
	}
}

func TestSaveRejectsInvalidIndices(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	item := testsupport.NewItem("bad", 1, 2)
	item.SucceededIndices = []int{5}
	if err := store.Save(context.Background(), item); !errors.Is(err, queue.ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}
}

func TestListAllKeepsInsertionOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.SaveItem(t, store, testsupport.NewItem("first", 9, 1))
	second := testsupport.SaveItem(t, store, testsupport.NewItem("second", 1, 1))
	third := testsupport.SaveItem(t, store, testsupport.NewItem("third", 5, 1))

	if err := store.UpdateStatus(ctx, second.ID, queue.StatusFailed); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	items, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	want := []string{first.ID, second.ID, third.ID}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, item := range items {
		if item.ID != want[i] {
			t.Fatalf("position %d: got %s want %s", i, item.ID, want[i])
		}
	}

	failed, err := store.List(ctx, queue.StatusFailed)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != second.ID {
		t.Fatalf("unexpected filtered list: %#v", failed)
	}
}

func TestUpdatesPersistEachColumn(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.SaveItem(t, store, testsupport.NewItem("updates", 4, 3))
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	code := 400
	result := &queue.Result{
		OperationResults: []queue.OperationResult{
			{Success: true},
			{Success: false, StatusCode: &code, Error: "bad request"},
		},
		DurationMS: 1500,
	}

	if err := store.UpdateStatus(ctx, item.ID, queue.StatusPartiallyFailed); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if err := store.UpdatePriority(ctx, item.ID, 200); err != nil {
		t.Fatalf("UpdatePriority failed: %v", err)
	}
	if err := store.UpdateSucceededIndices(ctx, item.ID, []int{0, 1}); err != nil {
		t.Fatalf("UpdateSucceededIndices failed: %v", err)
	}
	if err := store.UpdateResult(ctx, item.ID, result); err != nil {
		t.Fatalf("UpdateResult failed: %v", err)
	}
	if err := store.UpdateStartedAt(ctx, item.ID, &started); err != nil {
		t.Fatalf("UpdateStartedAt failed: %v", err)
	}

	fetched, err := store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != queue.StatusPartiallyFailed {
		t.Fatalf("status = %s", fetched.Status)
	}
	if fetched.Priority != 200 {
		t.Fatalf("priority = %d", fetched.Priority)
	}
	if len(fetched.SucceededIndices) != 2 {
		t.Fatalf("succeeded indices = %v", fetched.SucceededIndices)
	}
	if fetched.Result == nil || len(fetched.Result.OperationResults) != 2 {
		t.Fatalf("result not stored: %#v", fetched.Result)
	}
	if got := fetched.Result.OperationResults[1].StatusCode; got == nil || *got != 400 {
		t.Fatalf("status code not stored: %v", got)
	}
	if fetched.Result.Elapsed() != 1500*time.Millisecond {
		t.Fatalf("elapsed = %v", fetched.Result.Elapsed())
	}
	if fetched.StartedAt == nil || !fetched.StartedAt.Equal(started) {
		t.Fatalf("started_at = %v", fetched.StartedAt)
	}

	if err := store.UpdateResult(ctx, item.ID, nil); err != nil {
		t.Fatalf("clear result failed: %v", err)
	}
	if err := store.UpdateStartedAt(ctx, item.ID, nil); err != nil {
		t.Fatalf("clear started_at failed: %v", err)
	}
	fetched, err = store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Result != nil || fetched.StartedAt != nil {
		t.Fatalf("expected result and started_at cleared, got %#v", fetched)
	}
}

func TestUpdateMissingItemReturnsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	err := store.UpdateStatus(context.Background(), "missing", queue.StatusDone)
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInterruptionFlags(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.SaveItem(t, store, testsupport.NewItem("interrupt", 1, 1))
	at := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	if err := store.MarkInterrupted(ctx, item.ID, at); err != nil {
		t.Fatalf("MarkInterrupted failed: %v", err)
	}
	fetched, _ := store.Get(ctx, item.ID)
	if !fetched.WasInterrupted || fetched.InterruptedAt == nil || !fetched.InterruptedAt.Equal(at) {
		t.Fatalf("interruption not stored: %#v", fetched)
	}

	if err := store.ClearInterrupted(ctx, item.ID); err != nil {
		t.Fatalf("ClearInterrupted failed: %v", err)
	}
	fetched, _ = store.Get(ctx, item.ID)
	if fetched.WasInterrupted || fetched.InterruptedAt != nil {
		t.Fatalf("interruption not cleared: %#v", fetched)
	}
	if fetched.Status != queue.StatusPending {
		t.Fatalf("clearing interruption changed status to %s", fetched.Status)
	}
}

func TestDeleteAndClearAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.SaveItem(t, store, testsupport.NewItem("a", 1, 1))
	testsupport.SaveItem(t, store, testsupport.NewItem("b", 1, 1))
	testsupport.SaveItem(t, store, testsupport.NewItem("c", 1, 1))

	removed, err := store.Delete(ctx, a.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !removed {
		t.Fatal("expected delete to remove a row")
	}
	removed, err = store.Delete(ctx, a.ID)
	if err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if removed {
		t.Fatal("expected second delete to be a no-op")
	}

	cleared, err := store.ClearAll(ctx)
	if err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	if cleared != 2 {
		t.Fatalf("expected 2 cleared rows, got %d", cleared)
	}
	items, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty queue, got %d items", len(items))
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	defaults := queue.DefaultSettings(3)
	loaded, stored, err := store.LoadSettings(ctx, defaults)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if stored {
		t.Fatal("expected no stored concurrency limit on a fresh database")
	}
	if loaded != defaults {
		t.Fatalf("expected defaults, got %#v", loaded)
	}

	want := queue.Settings{Filter: queue.Filter(queue.StatusFailed), Sort: queue.SortSource, MaxConcurrent: 7}
	if err := store.SaveSettings(ctx, want); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	loaded, stored, err = store.LoadSettings(ctx, defaults)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if !stored || loaded != want {
		t.Fatalf("unexpected settings: stored=%v %#v", stored, loaded)
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.SaveItem(t, store, testsupport.NewItem("a", 1, 1))
	testsupport.SaveItem(t, store, testsupport.NewItem("b", 1, 1))
	if err := store.UpdateStatus(ctx, a.ID, queue.StatusDone); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StatusDone] != 1 || stats[queue.StatusPending] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if summary.Total != 2 || summary.Done != 1 || summary.Pending != 1 {
		t.Fatalf("unexpected summary: %#v", summary)
	}

	health, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %#v", health)
	}
	if !health.DirectoryWritable {
		t.Fatal("expected data directory to be writable")
	}
	if len(health.MissingColumns) != 0 {
		t.Fatalf("unexpected missing columns: %v", health.MissingColumns)
	}
	if health.TotalItems != 2 || health.SchemaVersion != 1 {
		t.Fatalf("unexpected counts: %#v", health)
	}
}

func TestReopenKeepsItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	item := testsupport.SaveItem(t, store, testsupport.NewItem("persist", 2, 2))
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	fetched, err := reopened.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil || fetched.Metadata.Description != "persist" {
		t.Fatalf("item lost across reopen: %#v", fetched)
	}
}

func TestOpenRejectsForeignSchemaVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	path := store.Path()
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := queue.OpenPath(path); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
