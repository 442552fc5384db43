// Command treecrawl runs one backfill pass: discover trees, scan every
// tree's change log for seq gaps, and replay the chain history that
// fills them, then exit. It is the tree backfiller (C5) without the
// indexer daemon's ingestion loops, for filling gaps out of band.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/certen/cnft-indexer/pkg/applier"
	"github.com/certen/cnft-indexer/pkg/backfill"
	"github.com/certen/cnft-indexer/pkg/changelog"
	"github.com/certen/cnft-indexer/pkg/config"
	"github.com/certen/cnft-indexer/pkg/database"
	"github.com/certen/cnft-indexer/pkg/programs"
)

func main() {
	discoverOnly := flag.Bool("discover-only", false, "register newly-seen trees and exit, without scanning for gaps")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall time budget for this pass")
	flag.Parse()

	logger := log.New(os.Stdout, "[treecrawl] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dbClient, err := database.NewClient(cfg, database.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect database: %v\n", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	repos := database.NewRepositories(dbClient)

	rpc, err := backfill.DialRPCClient(ctx, cfg.ChainRPCURL, cfg.ChainRPCTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial chain rpc: %v\n", err)
		os.Exit(1)
	}
	defer rpc.Close()

	discoverer := backfill.NewDiscoverer(rpc, repos.Trees, backfill.DiscovererConfig{
		ProgramID:       []byte(cfg.BubblegumProgramID),
		AuthorityPrefix: cfg.TreeAuthorityPrefix,
		Logger:          logger,
	})
	logger.Printf("scanning for trees")
	discoverer.ScanOnce(ctx)
	if *discoverOnly {
		return
	}

	dispatcher := programs.NewDispatcher(logger)
	dispatcher.Register(programs.NewCompressedAssetParser([]byte(cfg.BubblegumProgramID)))
	dispatcher.Register(programs.NewTokenProgramParser([]byte(cfg.TokenProgramID)))
	dispatcher.Register(programs.NewMplCoreParser([]byte(cfg.MplCoreProgramID)))
	dispatcher.Register(programs.NewTokenMetadataParser([]byte(cfg.TokenMetadataProgramID)))

	asset := applier.New(repos.Assets, repos.ChangeLogs, repos.Metadata, repos.Accounts, logger)
	asset.SetBubblegumProgramID([]byte(cfg.BubblegumProgramID))

	crawler := backfill.NewSignatureCrawler(rpc, cfg.SignaturePageSize)
	fetcher := backfill.NewTransactionFetcher(rpc)
	transformer := backfill.NewProgramTransformer(dispatcher, asset, logger)
	gapWorker := backfill.NewGapWorker(crawler, fetcher, transformer, repos.Trees, backfill.GapWorkerConfig{
		WorkerCount: cfg.GapWorkerCount,
		Logger:      logger,
	})

	gapTasks := make(chan backfill.GapTask, cfg.GapChannelSize)
	gapDetector := changelog.NewGapDetector(repos.Trees, repos.ChangeLogs, changelog.GapDetectorConfig{
		Logger: logger,
		Callback: func(ctx context.Context, task changelog.GapTask) error {
			select {
			case gapTasks <- backfill.GapTask{TreeID: task.TreeID, From: task.From, To: task.To}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})

	logger.Printf("scanning change logs for gaps")
	if err := gapDetector.ScanOnce(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "gap scan failed: %v\n", err)
		os.Exit(1)
	}
	close(gapTasks)

	logger.Printf("replaying %d gap(s)", len(gapTasks))
	gapWorker.Run(ctx, gapTasks)
	logger.Printf("backfill pass complete")
}
