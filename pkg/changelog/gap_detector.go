// Package changelog implements the gap detector (C4): a background scan
// over every known tree's change log that turns missing seq ranges into
// backfill tasks.
package changelog

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/certen/cnft-indexer/pkg/database"
	"github.com/certen/cnft-indexer/pkg/merkle"
)

// TreeProvider lists the trees the gap detector scans.
type TreeProvider interface {
	All(ctx context.Context) ([]*database.Tree, error)
}

// ObservedSeqProvider returns every seq recorded for a tree.
type ObservedSeqProvider interface {
	ObservedSeqs(ctx context.Context, treeID []byte) ([]int64, error)
}

// GapTask describes one missing seq range the backfiller should replay
// for a tree. The detector only knows seq boundaries; resolving which
// transaction signatures cover [From, To] is the backfiller's job.
type GapTask struct {
	TreeID []byte
	From   int64
	To     int64
}

// GapFoundCallback is invoked once per detected gap.
type GapFoundCallback func(ctx context.Context, task GapTask) error

// GapDetectorConfig configures a GapDetector.
type GapDetectorConfig struct {
	ScanInterval time.Duration
	Callback     GapFoundCallback
	Logger       *log.Logger
}

// GapDetector periodically scans every known tree's change log for
// missing seq ranges and reports them via Callback. Its run loop mirrors
// a ticker-driven background scan: single goroutine, select over a stop
// channel and the context, no polling faster than ScanInterval.
type GapDetector struct {
	trees    TreeProvider
	observed ObservedSeqProvider
	interval time.Duration
	callback GapFoundCallback
	logger   *log.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
	running bool
}

// NewGapDetector returns a GapDetector. cfg.ScanInterval defaults to one
// minute and cfg.Logger defaults to a component-prefixed stdlib logger
// when zero.
func NewGapDetector(trees TreeProvider, observed ObservedSeqProvider, cfg GapDetectorConfig) *GapDetector {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[GapDetector] ", log.LstdFlags)
	}
	return &GapDetector{
		trees:    trees,
		observed: observed,
		interval: cfg.ScanInterval,
		callback: cfg.Callback,
		logger:   cfg.Logger,
	}
}

// Start begins the background scan loop. It returns immediately; the
// scan runs in its own goroutine until Stop is called or ctx is done.
func (d *GapDetector) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.running = true
	go d.run(ctx)
}

// Stop halts the scan loop and waits for it to exit.
func (d *GapDetector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	close(d.stopCh)
	d.running = false
	d.mu.Unlock()
	<-d.doneCh
}

func (d *GapDetector) run(ctx context.Context) {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			if err := d.scanOnce(ctx); err != nil {
				d.logger.Printf("scan failed: %v", err)
			}
		}
	}
}

// ScanOnce runs a single scan pass immediately, independent of the
// ticker. Exported so callers (tests, a manual CLI trigger) can invoke it
// synchronously without waiting for the interval.
func (d *GapDetector) ScanOnce(ctx context.Context) error {
	return d.scanOnce(ctx)
}

func (d *GapDetector) scanOnce(ctx context.Context) error {
	trees, err := d.trees.All(ctx)
	if err != nil {
		return err
	}

	for _, tree := range trees {
		seqs, err := d.observed.ObservedSeqs(ctx, tree.TreeID)
		if err != nil {
			d.logger.Printf("tree %x: list observed seqs: %v", tree.TreeID, err)
			continue
		}

		gaps := merkle.FindGaps(seqs)
		if len(seqs) > 0 && seqs[0] > 0 {
			// The change log should start at seq 0; a nonzero floor is
			// itself a gap from genesis, not just between observations.
			gaps = append([]merkle.GapRange{{From: 0, To: seqs[0] - 1}}, gaps...)
		}
		if len(gaps) == 0 {
			continue
		}

		d.logger.Printf("tree %x: %d gap range(s) found", tree.TreeID, len(gaps))
		if d.callback == nil {
			continue
		}
		for _, g := range gaps {
			task := GapTask{TreeID: tree.TreeID, From: g.From, To: g.To}
			if err := d.callback(ctx, task); err != nil {
				d.logger.Printf("tree %x: gap callback failed for [%d,%d]: %v", tree.TreeID, g.From, g.To, err)
			}
		}
	}
	return nil
}
