// Command server runs the option snapshot lifecycle service: the folder
// ingester, the lifetime archiver, the permutation generator, and the
// HTTP upload/status surface, all over one embedded store.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"option-pipeline/internal/archiver"
	"option-pipeline/internal/config"
	"option-pipeline/internal/ingest"
	"option-pipeline/internal/observability"
	"option-pipeline/internal/permuter"
	"option-pipeline/internal/server"
	"option-pipeline/internal/storage/sqlite"
	"option-pipeline/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[option-pipeline] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sqlite.Open(ctx, sqlite.Options{
		Path:        cfg.DBPath,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		logger.Fatalf("Open store: %v", err)
	}
	defer db.Close()
	logger.Printf("Store ready at %s", db.Path())

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	snapshotStore := sqlite.NewSnapshotStore(db)
	archiveStore := sqlite.NewArchiveStore(db)
	featureStore := sqlite.NewFeatureStore(db)
	statsStore := sqlite.NewStatsStore(db)

	watcher, err := ingest.New(ingest.Options{
		Dir:       cfg.IncomingDir,
		Snapshots: snapshotStore,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		logger.Fatalf("Create ingest watcher: %v", err)
	}

	arch := archiver.New(archiver.Options{
		Snapshots:    snapshotStore,
		Archive:      archiveStore,
		BatchSize:    cfg.ArchiveBatchSize,
		MinHistory:   cfg.MinHistory,
		MaxAttempts:  cfg.MaxMoveAttempts,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
		Metrics:      metrics,
	})

	perm := permuter.New(permuter.Options{
		Archive:      archiveStore,
		Features:     featureStore,
		BatchSize:    cfg.ExpandBatchSize,
		MaxAttempts:  cfg.MaxMoveAttempts,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
		Metrics:      metrics,
	})
	// Feature schema evolves here, once, before any batch runs.
	if err := perm.Init(ctx); err != nil {
		logger.Fatalf("Init permutation generator: %v", err)
	}

	workers := []*worker.Worker{
		worker.New(worker.Options{Processor: watcher, CheckInterval: cfg.IngestInterval, Logger: logger}),
		worker.New(worker.Options{Processor: arch, CheckInterval: cfg.ArchiveInterval, Logger: logger}),
		worker.New(worker.Options{Processor: perm, CheckInterval: cfg.ExpandInterval, Logger: logger}),
	}

	srv := server.New(server.Options{
		Addr:        cfg.HTTPAddr,
		IncomingDir: cfg.IncomingDir,
		Workers:     workers,
		Ingest:      watcher,
		Archiver:    arch,
		Permuter:    perm,
		Stats:       statsStore,
		Logger:      logger,
	})

	for _, w := range workers {
		w.Start()
	}
	srv.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
	cancel()

	go func() {
		<-sigCh
		logger.Println("Second signal, forcing exit")
		os.Exit(1)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.StopTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown: %v", err)
	}

	// Workers finish their in-flight per-key transaction before they
	// honor the stop; one that exceeds the timeout is reported, not killed.
	for _, w := range workers {
		if err := w.Stop(cfg.StopTimeout); err != nil {
			logger.Printf("Stop: %v", err)
		}
	}

	logger.Println("Shutdown complete")
}
