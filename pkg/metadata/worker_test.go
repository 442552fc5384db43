package metadata

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/certen/cnft-indexer/pkg/database"
)

type fakeTaskStore struct {
	mu        sync.Mutex
	pending   []*database.MetadataTask
	completed map[uuid.UUID][]byte
	failed    map[uuid.UUID]int
	permFail  map[uuid.UUID]bool
}

func newFakeTaskStore(tasks ...*database.MetadataTask) *fakeTaskStore {
	return &fakeTaskStore{
		pending:   tasks,
		completed: make(map[uuid.UUID][]byte),
		failed:    make(map[uuid.UUID]int),
		permFail:  make(map[uuid.UUID]bool),
	}
}

func (f *fakeTaskStore) ClaimNext(ctx context.Context, lockDuration time.Duration) (*database.MetadataTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, database.ErrNoTaskAvailable
	}
	t := f.pending[0]
	f.pending = f.pending[1:]
	return t, nil
}

func (f *fakeTaskStore) Complete(ctx context.Context, taskID uuid.UUID, assetID []byte, metadataJSON []byte, slotUpdated int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[taskID] = metadataJSON
	return nil
}

func (f *fakeTaskStore) Fail(ctx context.Context, taskID uuid.UUID, maxAttempts int, fetchErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[taskID]++
	if f.failed[taskID] >= maxAttempts {
		f.permFail[taskID] = true
	}
	return nil
}

func TestWorker_Process_SuccessfulFetchCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"name":"asset 1"}`)
	}))
	defer srv.Close()

	taskID := uuid.New()
	store := newFakeTaskStore(&database.MetadataTask{ID: taskID, AssetID: []byte("asset-1"), URI: srv.URL})

	w := New(store, WorkerConfig{PoolSize: 1})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Run(ctx)

	if string(store.completed[taskID]) != `{"name":"asset 1"}` {
		t.Errorf("unexpected completed body: %s", store.completed[taskID])
	}
	if store.failed[taskID] != 0 {
		t.Errorf("expected no failures, got %d", store.failed[taskID])
	}
}

func TestWorker_Process_FetchErrorBelowMaxAttemptsRecordsFailureNotPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	taskID := uuid.New()
	store := newFakeTaskStore(&database.MetadataTask{ID: taskID, AssetID: []byte("asset-1"), URI: srv.URL})

	w := New(store, WorkerConfig{PoolSize: 1, MaxAttempts: 5})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Run(ctx)

	if store.failed[taskID] != 1 {
		t.Fatalf("expected 1 recorded failure, got %d", store.failed[taskID])
	}
	if store.permFail[taskID] {
		t.Error("task should not be permanently failed below max attempts")
	}
}

func TestWorker_Process_FetchErrorAtMaxAttemptsIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	taskID := uuid.New()
	store := newFakeTaskStore(&database.MetadataTask{ID: taskID, AssetID: []byte("asset-1"), URI: srv.URL})

	w := New(store, WorkerConfig{PoolSize: 1, MaxAttempts: 1})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Run(ctx)

	if !store.permFail[taskID] {
		t.Error("expected task to be permanently failed once attempts reach MaxAttempts")
	}
}

func TestDefaultBackoffSchedule_CapsAndGrows(t *testing.T) {
	if DefaultBackoffSchedule(1) != time.Second {
		t.Errorf("attempt 1: expected 1s, got %v", DefaultBackoffSchedule(1))
	}
	if DefaultBackoffSchedule(2) <= DefaultBackoffSchedule(1) {
		t.Error("expected backoff to grow with attempt count")
	}
	if DefaultBackoffSchedule(20) > 30*time.Second {
		t.Errorf("expected backoff capped at 30s, got %v", DefaultBackoffSchedule(20))
	}
}
