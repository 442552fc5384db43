// Command indexer runs the compressed-asset indexer daemon: the account
// and transaction ingestion loops (C7), the change-log gap detector
// (C4), the tree backfiller (C5), and the metadata-JSON worker (C6),
// wired together behind a health-check HTTP server and a two-phase
// shutdown.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/certen/cnft-indexer/pkg/applier"
	"github.com/certen/cnft-indexer/pkg/backfill"
	"github.com/certen/cnft-indexer/pkg/changelog"
	"github.com/certen/cnft-indexer/pkg/config"
	"github.com/certen/cnft-indexer/pkg/database"
	"github.com/certen/cnft-indexer/pkg/ingest"
	"github.com/certen/cnft-indexer/pkg/metadata"
	"github.com/certen/cnft-indexer/pkg/programs"
)

// HealthStatus reports the daemon's component health over /health. Each
// field is set once its component has finished wiring; Database is
// refreshed on every request since it is the one component cheap enough
// to check live.
type HealthStatus struct {
	Status        string `json:"status"` // "starting", "ok", "degraded"
	Database      string `json:"database"`
	Ingestion     string `json:"ingestion"`
	Backfill      string `json:"backfill"`
	Metadata      string `json:"metadata"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	mu        sync.RWMutex
	startTime time.Time
}

func newHealthStatus() *HealthStatus {
	return &HealthStatus{Status: "starting", Database: "unknown", Ingestion: "unknown", Backfill: "unknown", Metadata: "unknown", startTime: time.Now()}
}

func (h *HealthStatus) set(field *string, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	*field = value
}

func (h *HealthStatus) snapshot(dbClient *database.Client) HealthStatus {
	h.mu.RLock()
	out := HealthStatus{Status: h.Status, Database: h.Database, Ingestion: h.Ingestion, Backfill: h.Backfill, Metadata: h.Metadata}
	h.mu.RUnlock()

	if dbHealth, err := dbClient.Health(context.Background()); err == nil && dbHealth.Healthy {
		out.Database = "connected"
	} else {
		out.Database = "disconnected"
		out.Status = "degraded"
	}
	out.UptimeSeconds = int64(time.Since(h.startTime).Seconds())
	return out
}

func main() {
	logger := log.New(os.Stdout, "[indexer] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	health := newHealthStatus()

	dbClient, err := database.NewClient(cfg, database.WithLogger(logger))
	if err != nil {
		logger.Fatalf("connect database: %v", err)
	}
	defer dbClient.Close()
	health.set(&health.Database, "connected")

	repos := database.NewRepositories(dbClient)

	dispatcher := programs.NewDispatcher(logger)
	dispatcher.Register(programs.NewCompressedAssetParser([]byte(cfg.BubblegumProgramID)))
	dispatcher.Register(programs.NewTokenProgramParser([]byte(cfg.TokenProgramID)))
	dispatcher.Register(programs.NewMplCoreParser([]byte(cfg.MplCoreProgramID)))
	dispatcher.Register(programs.NewTokenMetadataParser([]byte(cfg.TokenMetadataProgramID)))

	registry := prometheus.NewRegistry()
	applierMetrics := ingest.NewMetrics(registry, "applier")

	asset := applier.New(repos.Assets, repos.ChangeLogs, repos.Metadata, repos.Accounts, logger)
	asset.SetWarnFunc(func(assetID []byte, reason string) {
		logger.Printf("asset %x: invariant warning: %s", assetID, reason)
		applierMetrics.ApplyWarnings.Inc()
	})
	asset.SetBubblegumProgramID([]byte(cfg.BubblegumProgramID))

	bus := ingest.NewChannelBus(30 * time.Second)

	accountMetrics := ingest.NewMetrics(registry, "accounts")
	txMetrics := ingest.NewMetrics(registry, "transactions")

	accountLoop := ingest.NewAccountLoop(bus, ingest.LoopConfig{
		Stream:           cfg.AccountStreamURL,
		Concurrency:      cfg.AccountWorkerCount,
		AckFlushInterval: cfg.AckFlushInterval,
		AckFlushSize:     cfg.AckBufferSize,
		Logger:           log.New(os.Stdout, "[ingest:accounts] ", log.LstdFlags),
	}, dispatcher, asset, decodeAccountRecord, accountMetrics)

	txLoop := ingest.NewTransactionLoop(bus, ingest.LoopConfig{
		Stream:           cfg.TxStreamURL,
		Concurrency:      cfg.TxWorkerCount,
		AckFlushInterval: cfg.AckFlushInterval,
		AckFlushSize:     cfg.AckBufferSize,
		Logger:           log.New(os.Stdout, "[ingest:transactions] ", log.LstdFlags),
	}, dispatcher, asset, decodeTransactionRecord, txMetrics)

	rpc, err := backfill.DialRPCClient(context.Background(), cfg.ChainRPCURL, cfg.ChainRPCTimeout)
	if err != nil {
		logger.Fatalf("dial chain rpc: %v", err)
	}
	defer rpc.Close()

	crawler := backfill.NewSignatureCrawler(rpc, cfg.SignaturePageSize)
	fetcher := backfill.NewTransactionFetcher(rpc)
	transformer := backfill.NewProgramTransformer(dispatcher, asset, log.New(os.Stdout, "[backfill:replay] ", log.LstdFlags))
	gapWorker := backfill.NewGapWorker(crawler, fetcher, transformer, repos.Trees, backfill.GapWorkerConfig{
		WorkerCount: cfg.GapWorkerCount,
		Logger:      log.New(os.Stdout, "[backfill:gapworker] ", log.LstdFlags),
	})

	discoverer := backfill.NewDiscoverer(rpc, repos.Trees, backfill.DiscovererConfig{
		ProgramID:       []byte(cfg.BubblegumProgramID),
		AuthorityPrefix: cfg.TreeAuthorityPrefix,
		ScanInterval:    cfg.DiscoveryInterval,
		Logger:          log.New(os.Stdout, "[backfill:discoverer] ", log.LstdFlags),
	})

	gapTasks := make(chan backfill.GapTask, cfg.GapChannelSize)
	gapDetector := changelog.NewGapDetector(repos.Trees, repos.ChangeLogs, changelog.GapDetectorConfig{
		ScanInterval: cfg.DiscoveryInterval,
		Logger:       log.New(os.Stdout, "[backfill:gapdetector] ", log.LstdFlags),
		Callback: func(ctx context.Context, task changelog.GapTask) error {
			select {
			case gapTasks <- backfill.GapTask{TreeID: task.TreeID, From: task.From, To: task.To}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})

	metadataWorker := metadata.New(repos.Metadata, metadata.WorkerConfig{
		PoolSize:     cfg.MetadataWorkerCount,
		QueueSize:    cfg.MetadataQueueSize,
		FetchTimeout: cfg.MetadataFetchTimeout,
		MaxAttempts:  cfg.MetadataMaxAttempts,
		LockDuration: cfg.MetadataLockDuration,
		Logger:       log.New(os.Stdout, "[metadata] ", log.LstdFlags),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := health.snapshot(dbClient)
		w.Header().Set("Content-Type", "application/json")
		if snap.Status != "ok" && snap.Status != "starting" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(snap)
	})
	httpServer := &http.Server{Addr: cfg.HealthAddr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())

	if err := accountLoop.Start(ctx); err != nil {
		logger.Fatalf("start account ingestion loop: %v", err)
	}
	if err := txLoop.Start(ctx); err != nil {
		logger.Fatalf("start transaction ingestion loop: %v", err)
	}
	health.set(&health.Ingestion, "running")

	gapDetector.Start(ctx)
	go discoverer.Run(ctx)
	go gapWorker.Run(ctx, gapTasks)
	health.set(&health.Backfill, "running")

	go metadataWorker.Run(ctx)
	health.set(&health.Metadata, "running")

	health.set(&health.Status, "ok")

	go func() {
		logger.Printf("health server listening on %s", cfg.HealthAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("health server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Printf("shutdown signal received, draining")

	cancel()
	accountLoop.Stop()
	txLoop.Stop()
	gapDetector.Stop()
	close(gapTasks)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("health server shutdown error: %v", err)
	}

	logger.Printf("indexer stopped")
}
