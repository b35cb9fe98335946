// Command report prints a plain-text summary of the store: row counts
// per stage, recent snapshots, and completed contract lifespans.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"option-pipeline/internal/reporting"
	"option-pipeline/internal/storage/sqlite"
)

func main() {
	var (
		dbPath  = flag.String("db", "database/options.db", "path to the store file")
		recent  = flag.Int("recent", 10, "number of recent snapshots to include")
		timeout = flag.Duration("timeout", 30*time.Second, "query timeout")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[report] ", log.LstdFlags)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sqlite.Open(ctx, sqlite.Options{Path: *dbPath})
	if err != nil {
		logger.Fatalf("Open store: %v", err)
	}
	defer db.Close()

	gen := reporting.NewGenerator(
		sqlite.NewSnapshotStore(db),
		sqlite.NewLifespanStore(db),
		sqlite.NewStatsStore(db),
	)

	report, err := gen.Generate(ctx, *recent)
	if err != nil {
		logger.Fatalf("Generate report: %v", err)
	}
	if err := reporting.Render(os.Stdout, report); err != nil {
		logger.Fatalf("Render report: %v", err)
	}
}
