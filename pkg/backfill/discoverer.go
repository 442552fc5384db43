package backfill

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"time"

	"github.com/certen/cnft-indexer/pkg/database"
)

// treeConfigMinLen is the length of this repo's own stand-in for the
// tree-config account's wire layout, exactly as pkg/programs documents its own
// instruction payload layouts: max_depth(u32) || max_buffer_size(u32) ||
// authority(32) || creation_slot(u64) || seq(u64).
const treeConfigMinLen = 4 + 4 + 32 + 8 + 8

// TreeStore is the subset of the tree repository the discoverer needs.
type TreeStore interface {
	Upsert(ctx context.Context, t *database.Tree) error
}

// DiscovererConfig configures a Discoverer.
type DiscovererConfig struct {
	ProgramID         []byte
	AuthorityPrefix   byte // first byte an authority PDA must carry, per config.TreeAuthorityPrefix
	ScanInterval      time.Duration
	Logger            *log.Logger
}

// Discoverer periodically scans the chain for tree-config accounts
// owned by the compressed-asset program and registers each as a known
// tree. Its poll-loop shape — ticker, context-cancellable, single
// goroutine — mirrors the teacher's EventWatcher.pollLoop.
type Discoverer struct {
	rpc    ChainRPC
	trees  TreeStore
	cfg    DiscovererConfig
	logger *log.Logger
}

// NewDiscoverer returns a Discoverer. cfg.ScanInterval defaults to five
// minutes when zero.
func NewDiscoverer(rpc ChainRPC, trees TreeStore, cfg DiscovererConfig) *Discoverer {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[Discoverer] ", log.LstdFlags)
	}
	return &Discoverer{rpc: rpc, trees: trees, cfg: cfg, logger: logger}
}

// Run blocks, scanning every cfg.ScanInterval until ctx is done.
func (d *Discoverer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.ScanInterval)
	defer ticker.Stop()

	d.scanOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scanOnce(ctx)
		}
	}
}

// ScanOnce runs a single discovery scan immediately, independent of the
// ticker. Exported so callers (tests, a one-shot backfill pass) can run
// it synchronously without waiting for the interval.
func (d *Discoverer) ScanOnce(ctx context.Context) {
	d.scanOnce(ctx)
}

func (d *Discoverer) scanOnce(ctx context.Context) {
	accounts, err := d.rpc.GetProgramAccounts(ctx, d.cfg.ProgramID)
	if err != nil {
		d.logger.Printf("scan failed: %v", err)
		return
	}

	for _, acc := range accounts {
		tree, err := d.parseTreeConfig(acc)
		if err != nil {
			d.logger.Printf("account %x: skipping, %v", acc.Pubkey, err)
			continue
		}
		if err := d.trees.Upsert(ctx, tree); err != nil {
			d.logger.Printf("tree %x: upsert failed: %v", tree.TreeID, err)
		}
	}
}

func (d *Discoverer) parseTreeConfig(acc ProgramAccount) (*database.Tree, error) {
	if len(acc.Data) < treeConfigMinLen {
		return nil, fmt.Errorf("account data too short: %d bytes", len(acc.Data))
	}

	maxDepth := binary.LittleEndian.Uint32(acc.Data[0:4])
	maxBufferSize := binary.LittleEndian.Uint32(acc.Data[4:8])
	authority := acc.Data[8:40]
	creationSlot := int64(binary.LittleEndian.Uint64(acc.Data[40:48]))
	seq := int64(binary.LittleEndian.Uint64(acc.Data[48:56]))

	if len(authority) == 0 || authority[0] != d.cfg.AuthorityPrefix {
		return nil, fmt.Errorf("authority prefix mismatch: got %#x, want %#x", authority[0], d.cfg.AuthorityPrefix)
	}

	return &database.Tree{
		TreeID:        acc.Pubkey,
		Authority:     authority,
		MaxDepth:      int(maxDepth),
		MaxBufferSize: int(maxBufferSize),
		CreationSlot:  creationSlot,
		Seq:           seq,
	}, nil
}
