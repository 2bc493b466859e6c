package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dynq/internal/daemon"
	"dynq/internal/ipc"
	"dynq/internal/logging"
	"dynq/internal/queue"
	"dynq/internal/testsupport"
	"dynq/internal/transport"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithEnvironment("test", "http://127.0.0.1:1", ""))
	cfg.Paths.APIBind = ""
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	var rejectContacts atomic.Bool
	rejectContacts.Store(true)
	provider := transport.Static(transport.Func(func(_ context.Context, ops []queue.Operation) ([]queue.OperationResult, error) {
		results := make([]queue.OperationResult, len(ops))
		for i, op := range ops {
			if op.Entity == "contact" && rejectContacts.Load() {
				results[i] = queue.OperationResult{Success: false, Error: "duplicate detected"}
				continue
			}
			results[i] = queue.OperationResult{Success: true}
		}
		return results, nil
	}))

	d, err := daemon.New(cfg, store, logger, daemon.WithProvider(provider))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}

	socket := filepath.Join(cfg.Paths.DataDir, "dynq.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.Scheduler.AutoDispatch {
		t.Fatalf("unexpected status: %#v", status)
	}

	addResp, err := client.QueueAdd(ipc.QueueAddRequest{Batch: queue.BuildRequest{
		Label:       "Import",
		Environment: "test",
		Entities: []queue.EntityOperations{
			{Entity: "account", Operations: testsupport.Operations("account", 2)},
			{Entity: "contact", Priority: 1, Operations: testsupport.Operations("contact", 2)},
		},
	}})
	if err != nil {
		t.Fatalf("QueueAdd failed: %v", err)
	}
	if len(addResp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(addResp.Items))
	}
	accountID, contactID := addResp.Items[0].ID, addResp.Items[1].ID
	if addResp.Items[0].Priority >= addResp.Items[1].Priority {
		t.Fatalf("expected account batch ahead of contacts: %d vs %d", addResp.Items[0].Priority, addResp.Items[1].Priority)
	}

	bump, err := client.QueuePriority(ipc.QueuePriorityRequest{ID: contactID, Delta: 1})
	if err != nil {
		t.Fatalf("QueuePriority failed: %v", err)
	}
	if bump.Priority != addResp.Items[1].Priority+1 {
		t.Fatalf("unexpected priority %d", bump.Priority)
	}

	paused, err := client.QueueTogglePause(contactID)
	if err != nil {
		t.Fatalf("QueueTogglePause failed: %v", err)
	}
	if paused.Status != string(queue.StatusPaused) {
		t.Fatalf("expected paused, got %s", paused.Status)
	}
	if _, err := client.QueueTogglePause(contactID); err != nil {
		t.Fatalf("QueueTogglePause resume failed: %v", err)
	}

	step, err := client.QueueStep("")
	if err != nil {
		t.Fatalf("QueueStep failed: %v", err)
	}
	if step.Started != accountID {
		t.Fatalf("expected account item to start first, got %s", step.Started)
	}
	waitForStatus(t, client, accountID, queue.StatusDone)

	if _, err := client.QueueStep(""); err != nil {
		t.Fatalf("QueueStep contact failed: %v", err)
	}
	waitForStatus(t, client, contactID, queue.StatusFailed)

	described, err := client.QueueDescribe(contactID)
	if err != nil {
		t.Fatalf("QueueDescribe failed: %v", err)
	}
	if len(described.Item.Failures) != 2 || described.Item.Failures[0].Error != "duplicate detected" {
		t.Fatalf("unexpected failures: %#v", described.Item.Failures)
	}

	removeResp, err := client.QueueRemove([]string{"missing"})
	if err != nil {
		t.Fatalf("QueueRemove failed: %v", err)
	}
	if removeResp.RemovedCount != 0 || removeResp.Items[0].Outcome != "not_found" {
		t.Fatalf("unexpected remove response: %#v", removeResp)
	}

	rejectContacts.Store(false)
	retryResp, err := client.QueueRetry([]string{contactID, accountID})
	if err != nil {
		t.Fatalf("QueueRetry failed: %v", err)
	}
	if retryResp.UpdatedCount != 1 || retryResp.Items[1].Outcome != "not_failed" {
		t.Fatalf("unexpected retry response: %#v", retryResp)
	}

	auto, err := client.AutoDispatch(true)
	if err != nil {
		t.Fatalf("AutoDispatch failed: %v", err)
	}
	if len(auto.Started) != 1 || auto.Started[0] != contactID {
		t.Fatalf("expected contact to start, got %#v", auto.Started)
	}
	waitForStatus(t, client, contactID, queue.StatusDone)

	settings, err := client.QueueSettings(ipc.QueueSettingsRequest{Filter: "done", Sort: "source", MaxConcurrent: 5})
	if err != nil {
		t.Fatalf("QueueSettings failed: %v", err)
	}
	if settings.Filter != "done" || settings.Sort != "source" || settings.MaxConcurrent != 5 {
		t.Fatalf("unexpected settings: %#v", settings)
	}
	if _, err := client.QueueSettings(ipc.QueueSettingsRequest{Sort: "bogus"}); err == nil {
		t.Fatal("expected invalid sort to fail")
	}

	view, err := client.QueueList("", "")
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(view.Items) != 2 || view.Filter != "done" {
		t.Fatalf("unexpected saved view: %#v", view)
	}

	interrupted, err := client.QueueInterrupted()
	if err != nil {
		t.Fatalf("QueueInterrupted failed: %v", err)
	}
	if len(interrupted.Items) != 0 {
		t.Fatalf("expected no interrupted items, got %d", len(interrupted.Items))
	}
	ack, err := client.QueueAcknowledge(nil)
	if err != nil {
		t.Fatalf("QueueAcknowledge failed: %v", err)
	}
	if ack.Cleared != 0 {
		t.Fatalf("expected nothing to acknowledge, got %d", ack.Cleared)
	}

	healthResp, err := client.QueueHealth()
	if err != nil {
		t.Fatalf("QueueHealth failed: %v", err)
	}
	if healthResp.Total != 2 || healthResp.Done != 2 {
		t.Fatalf("unexpected health response: %#v", healthResp)
	}

	dbHealth, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth failed: %v", err)
	}
	if !strings.HasSuffix(dbHealth.DBPath, "queue.db") || !dbHealth.IntegrityCheck {
		t.Fatalf("unexpected db health: %#v", dbHealth)
	}

	clearResp, err := client.QueueClear()
	if err != nil {
		t.Fatalf("QueueClear failed: %v", err)
	}
	if clearResp.Removed != 2 {
		t.Fatalf("expected 2 items cleared, got %d", clearResp.Removed)
	}
}

func waitForStatus(t *testing.T, client *ipc.Client, id string, want queue.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := client.QueueDescribe(id)
		if err != nil {
			t.Fatalf("QueueDescribe %s: %v", id, err)
		}
		if resp.Item.Status == string(want) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("item %s stuck at %s, want %s", id, resp.Item.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
