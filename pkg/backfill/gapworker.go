package backfill

import (
	"context"
	"errors"
	"log"

	"github.com/certen/cnft-indexer/pkg/database"
)

// GapTask describes one missing seq range a tree's history needs
// replayed. It mirrors pkg/changelog.GapTask; backfill depends on its
// own copy of the shape rather than importing pkg/changelog, keeping
// the two packages decoupled (the gap detector only produces tasks, the
// backfiller only consumes them — nothing else links them together).
type GapTask struct {
	TreeID []byte
	From   int64
	To     int64
}

// SignatureStore is the subset of the tree repository the gap worker
// needs to make replay idempotent across restarts.
type SignatureStore interface {
	HasSeenSignature(ctx context.Context, treeID []byte, signature string) (bool, error)
	RecordSignature(ctx context.Context, treeID []byte, signature string, slot int64) error
}

// GapWorker drains a bounded channel of GapTasks with a fixed pool of
// goroutines, crawling and replaying each tree's transaction history to
// fill the reported gap. Replay over-fetches relative to [From, To] (the
// chain RPC surface has no seq-range filter, only slot/signature
// pagination) — this is safe because every downstream write is
// seq-guarded and hence idempotent under redundant replay (property P4).
type GapWorker struct {
	crawler     *SignatureCrawler
	fetcher     *TransactionFetcher
	transformer *ProgramTransformer
	signatures  SignatureStore
	workerCount int
	logger      *log.Logger
}

// GapWorkerConfig configures a GapWorker.
type GapWorkerConfig struct {
	WorkerCount int
	Logger      *log.Logger
}

// NewGapWorker returns a GapWorker. cfg.WorkerCount defaults to 1 when
// zero or negative.
func NewGapWorker(crawler *SignatureCrawler, fetcher *TransactionFetcher, transformer *ProgramTransformer, signatures SignatureStore, cfg GapWorkerConfig) *GapWorker {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[GapWorker] ", log.LstdFlags)
	}
	return &GapWorker{
		crawler: crawler, fetcher: fetcher, transformer: transformer,
		signatures: signatures, workerCount: cfg.WorkerCount, logger: logger,
	}
}

// Run drains tasks with cfg.WorkerCount goroutines until tasks is closed
// or ctx is done.
func (w *GapWorker) Run(ctx context.Context, tasks <-chan GapTask) {
	done := make(chan struct{}, w.workerCount)
	for i := 0; i < w.workerCount; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-tasks:
					if !ok {
						return
					}
					w.process(ctx, task)
				}
			}
		}()
	}
	for i := 0; i < w.workerCount; i++ {
		<-done
	}
}

func (w *GapWorker) process(ctx context.Context, task GapTask) {
	var pending []string

	err := w.crawler.CrawlAll(ctx, task.TreeID, func(page []SignatureInfo) error {
		for _, s := range page {
			if s.Err != "" {
				continue // on-chain-failed transaction, nothing to replay
			}
			seen, err := w.signatures.HasSeenSignature(ctx, task.TreeID, s.Signature)
			if err != nil {
				return err
			}
			if seen {
				continue
			}
			pending = append(pending, s.Signature)
		}
		return nil
	})
	if err != nil {
		w.logger.Printf("tree %x: crawl failed: %v", task.TreeID, err)
		return
	}
	if len(pending) == 0 {
		return
	}

	txs, err := w.fetcher.FetchAll(ctx, pending)
	if err != nil {
		w.logger.Printf("tree %x: fetch failed: %v", task.TreeID, err)
		return
	}

	if err := w.transformer.Replay(ctx, txs); err != nil {
		w.logger.Printf("tree %x: replay failed: %v", task.TreeID, err)
		return
	}

	for _, tx := range txs {
		err := w.signatures.RecordSignature(ctx, task.TreeID, tx.Signature, tx.Slot)
		if err != nil && !errors.Is(err, database.ErrSignatureAlreadySeen) {
			w.logger.Printf("tree %x: record signature %s failed: %v", task.TreeID, tx.Signature, err)
		}
	}
}
