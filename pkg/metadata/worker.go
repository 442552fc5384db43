// Package metadata implements the metadata-JSON worker (C6): a bounded
// pool of goroutines that claim pending metadata-fetch tasks, fetch the
// off-chain JSON over HTTP, and persist the result (or retry on
// failure).
package metadata

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/certen/cnft-indexer/pkg/database"
)

// TaskStore is the subset of the metadata repository the worker needs.
type TaskStore interface {
	ClaimNext(ctx context.Context, lockDuration time.Duration) (*database.MetadataTask, error)
	Complete(ctx context.Context, taskID uuid.UUID, assetID []byte, metadataJSON []byte, slotUpdated int64) error
	Fail(ctx context.Context, taskID uuid.UUID, maxAttempts int, fetchErr string) error
}

// BackoffSchedule maps a task's attempt number (1-indexed) to a wait
// duration. WorkerConfig carries one (DefaultBackoffSchedule when
// unset), but the Worker does not apply it: a failed fetch goes back to
// pending through TaskStore.Fail and can be reclaimed at once.
type BackoffSchedule func(attempt int) time.Duration

// DefaultBackoffSchedule doubles from 1s, capped at 30s.
func DefaultBackoffSchedule(attempt int) time.Duration {
	d := time.Second
	for i := 1; i < attempt && d < 30*time.Second; i++ {
		d *= 2
	}
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	PoolSize     int
	QueueSize    int
	FetchTimeout time.Duration
	MaxAttempts  int
	LockDuration time.Duration
	Backoff      BackoffSchedule
	Logger       *log.Logger
}

// Worker fetches off-chain metadata JSON for queued tasks. It runs
// PoolSize goroutines, each polling TaskStore.ClaimNext; idle workers
// back off briefly rather than busy-polling when no task is available.
type Worker struct {
	store  TaskStore
	client *http.Client
	cfg    WorkerConfig
	logger *log.Logger
}

// New returns a Worker. Zero-valued config fields take the documented
// defaults: PoolSize 1, FetchTimeout 1000ms, MaxAttempts 5, LockDuration
// 5s, Backoff DefaultBackoffSchedule.
func New(store TaskStore, cfg WorkerConfig) *Worker {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 1000 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 5 * time.Second
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoffSchedule
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[MetadataWorker] ", log.LstdFlags)
	}
	return &Worker{
		store:  store,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Run starts cfg.PoolSize goroutines claiming and processing tasks until
// ctx is done. It blocks until every goroutine has exited.
func (w *Worker) Run(ctx context.Context) {
	done := make(chan struct{}, w.cfg.PoolSize)
	for i := 0; i < w.cfg.PoolSize; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			w.loop(ctx)
		}()
	}
	for i := 0; i < w.cfg.PoolSize; i++ {
		<-done
	}
}

func (w *Worker) loop(ctx context.Context) {
	idleBackoff := 500 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.store.ClaimNext(ctx, w.cfg.LockDuration)
		if err == database.ErrNoTaskAvailable {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idleBackoff):
			}
			continue
		}
		if err != nil {
			w.logger.Printf("claim failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(idleBackoff):
			}
			continue
		}

		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task *database.MetadataTask) {
	body, slot, err := w.fetch(ctx, task.URI)
	if err != nil {
		w.logger.Printf("task %s: fetch %s failed: %v", task.ID, task.URI, err)
		if failErr := w.store.Fail(ctx, task.ID, w.cfg.MaxAttempts, err.Error()); failErr != nil {
			w.logger.Printf("task %s: record failure: %v", task.ID, failErr)
		}
		return
	}

	if err := w.store.Complete(ctx, task.ID, task.AssetID, body, slot); err != nil {
		w.logger.Printf("task %s: complete failed: %v", task.ID, err)
	}
}

// fetch retrieves the URI's body with the configured timeout. slot is
// always 0 here: this worker has no chain-slot context of its own, it
// is supplied by whatever onward process reconciles asset_data against
// later on-chain updates.
func (w *Worker) fetch(ctx context.Context, uri string) ([]byte, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	return body, 0, nil
}
