package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dynq/internal/api"
	"dynq/internal/queue"
	"dynq/internal/testsupport"
)

const buildRequestJSON = `{
  "label": "Import",
  "environment": "test",
  "entities": [
    {"entity": "account", "priority": 0, "operations": [
      {"kind": "create", "entity": "account", "payload": {"name": "a"}},
      {"kind": "create", "entity": "account", "payload": {"name": "b"}}
    ]},
    {"entity": "contact", "priority": 1, "operations": [
      {"kind": "update", "entity": "contact", "payload": {"name": "c"}}
    ]}
  ]
}`

func addSampleBatch(t *testing.T, env *cliTestEnv) []*queue.Item {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(env.cfg), "batch.json")
	if err := os.WriteFile(path, []byte(buildRequestJSON), 0o644); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	out, _, err := runCLI(t, []string{"queue", "add", path}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	requireContains(t, out, "Queued 2 items")

	items, err := env.store.ListAll(context.Background())
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 stored items, got %d", len(items))
	}
	return items
}

func TestQueueAddListAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	addSampleBatch(t, env)

	out, _, err := runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Import: account create (2 records)")
	requireContains(t, out, "Import: contact update (1 records)")
	requireContains(t, out, "0/2")

	out, _, err = runCLI(t, []string{"queue", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Pending")
	requireContains(t, out, "stepping (paused)")

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "running (pid")
	requireContains(t, out, "Environments:   test")
}

func TestQueueAddFromStdin(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLIWithInput(t, []string{"queue", "add", "-", "--batch-size", "1"}, env.socketPath, env.configPath, buildRequestJSON)
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	requireContains(t, out, "Queued 3 items")
	requireContains(t, out, "account create 1/2")

	if _, _, err := runCLIWithInput(t, []string{"queue", "add", "-", "--env", "missing"}, env.socketPath, env.configPath, buildRequestJSON); err == nil {
		t.Fatal("expected unknown environment to fail")
	}
}

func TestQueueStepFailureRetryAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	items := addSampleBatch(t, env)
	first := items[0]
	env.reject.Store(true)

	out, _, err := runCLI(t, []string{"queue", "step"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue step: %v", err)
	}
	requireContains(t, out, "Started "+first.ID)
	waitForStoredStatus(t, env.store, first.ID, queue.StatusFailed)

	out, _, err = runCLI(t, []string{"queue", "show", first.ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	requireContains(t, out, "Status:      Failed")
	requireContains(t, out, "Failed operations:")
	requireContains(t, out, "rejected")

	env.reject.Store(false)
	out, _, err = runCLI(t, []string{"queue", "retry", first.ID, "missing"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Item missing not found")
	requireContains(t, out, "Retried 1 items")

	out, _, err = runCLI(t, []string{"queue", "play"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue play: %v", err)
	}
	requireContains(t, out, "Auto-dispatch enabled")
	waitForStoredStatus(t, env.store, first.ID, queue.StatusDone)
	waitForStoredStatus(t, env.store, items[1].ID, queue.StatusDone)

	out, _, err = runCLI(t, []string{"queue", "pause"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue pause: %v", err)
	}
	requireContains(t, out, "Auto-dispatch paused")
}

func TestQueuePriorityPauseDeleteAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	items := addSampleBatch(t, env)
	id := items[0].ID

	out, _, err := runCLI(t, []string{"queue", "priority", id, "up"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue priority up: %v", err)
	}
	requireContains(t, out, "priority is now 0")

	out, _, err = runCLI(t, []string{"queue", "priority", id, "7"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue priority set: %v", err)
	}
	requireContains(t, out, "priority is now 7")

	out, _, err = runCLI(t, []string{"queue", "toggle-pause", id}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue toggle-pause: %v", err)
	}
	requireContains(t, out, "is Paused")

	out, _, err = runCLI(t, []string{"queue", "delete", id, "missing"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue delete: %v", err)
	}
	requireContains(t, out, "Item missing not found")
	requireContains(t, out, "Removed 1 items")

	out, _, err = runCLI(t, []string{"queue", "clear"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 queue items")
}

func TestQueueSettingsAndJSONList(t *testing.T) {
	env := setupCLITestEnv(t)
	addSampleBatch(t, env)

	out, _, err := runCLI(t, []string{"queue", "settings", "--filter", "failed", "--sort", "status", "--max-concurrent", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue settings: %v", err)
	}
	requireContains(t, out, "Filter:         failed")
	requireContains(t, out, "Max concurrent: 2")

	out, _, err = runCLI(t, []string{"--json", "queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	var items []api.QueueItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode list: %v (%s)", err, out)
	}
	if len(items) != 0 {
		t.Fatalf("expected saved failed filter to hide pending items, got %d", len(items))
	}

	out, _, err = runCLI(t, []string{"--json", "queue", "list", "--status", "all"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list all: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	if _, _, err := runCLI(t, []string{"queue", "settings", "--max-concurrent", "0"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected zero max-concurrent to be rejected")
	}
}

func TestQueueHealthAndAck(t *testing.T) {
	env := setupCLITestEnv(t)
	addSampleBatch(t, env)

	out, _, err := runCLI(t, []string{"queue", "health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Integrity check: yes")
	requireContains(t, out, "Total items: 2")

	out, _, err = runCLI(t, []string{"queue", "ack"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue ack: %v", err)
	}
	requireContains(t, out, "Acknowledged 0 interrupted items")

	out, _, err = runCLI(t, []string{"queue", "interrupted"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue interrupted: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestQueueCommandsFallBackToStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.SaveItem(t, store, testsupport.NewItem("offline batch", 3, 2))
	socket := filepath.Join(cfg.Paths.DataDir, "absent.sock")

	out, _, err := runCLI(t, []string{"queue", "list"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "offline batch")

	out, _, err = runCLI(t, []string{"queue", "show", item.ID}, socket, configPath)
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	requireContains(t, out, "Priority:    3")

	out, _, err = runCLI(t, []string{"queue", "status"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Daemon not running")

	out, _, err = runCLI(t, []string{"status"}, socket, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon: not running")

	_, _, err = runCLI(t, []string{"queue", "play"}, socket, configPath)
	if err == nil || !strings.Contains(err.Error(), "dynq run") {
		t.Fatalf("expected daemon hint, got %v", err)
	}
}

func TestParsePriorityArgs(t *testing.T) {
	up, err := parsePriorityArgs("a", "up")
	if err != nil || up.Delta != -1 || up.Set != nil {
		t.Fatalf("unexpected up request: %#v, %v", up, err)
	}
	down, err := parsePriorityArgs("a", "down")
	if err != nil || down.Delta != 1 {
		t.Fatalf("unexpected down request: %#v, %v", down, err)
	}
	set, err := parsePriorityArgs("a", "200")
	if err != nil || set.Set == nil || *set.Set != 200 {
		t.Fatalf("unexpected set request: %#v, %v", set, err)
	}
	if _, err := parsePriorityArgs("a", "256"); err == nil {
		t.Fatal("expected out of range priority to fail")
	}
	if _, err := parsePriorityArgs(" ", "up"); err == nil {
		t.Fatal("expected empty id to fail")
	}
}
