package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"dynq/internal/logging"
	"dynq/internal/queue"
	"dynq/internal/scheduler"
)

func newTestRouter(reader *mockQueueReader, ready error) http.Handler {
	return NewRouter(RouterOptions{
		Queue: NewQueueService(reader),
		Status: func(ctx context.Context) (DaemonStatus, error) {
			return DaemonStatus{Running: true, PID: 42}, nil
		},
		Ready:   func(context.Context) error { return ready },
		Metrics: true,
		Logger:  logging.NewNop(),
	})
}

func TestRouterQueueList(t *testing.T) {
	reader := &mockQueueReader{
		items: []*queue.Item{sampleItem()},
		snap:  scheduler.Snapshot{Settings: queue.DefaultSettings(1)},
	}
	router := newTestRouter(reader, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/queue?status=pending&sort=status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var resp QueueListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Description != "Accounts" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
	if reader.sort != queue.SortStatus {
		t.Fatalf("expected sort to be forwarded, got %q", reader.sort)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func TestRouterQueueListRejectsBadFilter(t *testing.T) {
	router := newTestRouter(&mockQueueReader{}, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/queue?status=bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRouterQueueItem(t *testing.T) {
	router := newTestRouter(&mockQueueReader{items: []*queue.Item{sampleItem()}}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/queue/item-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp QueueItemResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Item.ID != "item-1" || len(resp.Item.Operations) != 2 {
		t.Fatalf("unexpected item: %+v", resp.Item)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/queue/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRouterHealthAndReadiness(t *testing.T) {
	router := newTestRouter(&mockQueueReader{}, errors.New("store closed"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz: expected 503, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", w.Code)
	}
}

func TestRouterStatus(t *testing.T) {
	router := newTestRouter(&mockQueueReader{}, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var status DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Running || status.PID != 42 {
		t.Fatalf("unexpected status: %+v", status)
	}
}
