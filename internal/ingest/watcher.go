// Package ingest implements the ingestion collaborator: it watches a
// folder for JSON snapshot batch files and upserts their rows into the
// hot table, one short write transaction per file.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"option-pipeline/internal/domain"
	"option-pipeline/internal/observability"
	"option-pipeline/internal/storage"
)

// Status holds the watcher's cumulative counters.
type Status struct {
	TotalFiles     int64  `json:"total_files"`
	TotalSnapshots int64  `json:"total_snapshots"`
	LastError      string `json:"last_error,omitempty"`
}

// Watcher scans an incoming folder and ingests snapshot files.
type Watcher struct {
	dir       string
	snapshots storage.SnapshotStore
	logger    *log.Logger
	metrics   *observability.Metrics

	mu     sync.Mutex
	status Status
}

// Options contains configuration for creating a Watcher.
type Options struct {
	// Dir is the incoming folder. Created if missing.
	Dir       string
	Snapshots storage.SnapshotStore
	Logger    *log.Logger
	Metrics   *observability.Metrics
}

// New creates a new Watcher.
func New(opts Options) (*Watcher, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: incoming folder required", storage.ErrInvalidInput)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create incoming folder: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		dir:       opts.Dir,
		snapshots: opts.Snapshots,
		logger:    logger,
		metrics:   opts.Metrics,
	}, nil
}

// Name implements worker.Processor.
func (w *Watcher) Name() string {
	return "snapshot-ingest"
}

// Status returns a snapshot of the cumulative counters.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// ProcessBatch ingests every JSON file currently in the folder. Returns
// the number of files examined. A bad file is logged and skipped; it
// never aborts the batch.
func (w *Watcher) ProcessBatch(ctx context.Context) (int, error) {
	files, err := filepath.Glob(filepath.Join(w.dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("scan incoming folder: %w", err)
	}

	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		if err := w.ingestFile(ctx, file); err != nil {
			w.logger.Printf("[%s] %s: %v", w.Name(), filepath.Base(file), err)
			w.mu.Lock()
			w.status.LastError = err.Error()
			w.mu.Unlock()
			if w.metrics != nil {
				w.metrics.IngestErrors.Inc()
			}
		}
	}
	return len(files), nil
}

// ingestFile parses one snapshot batch file and upserts its rows. The
// file is removed once consumed; a malformed file is also removed so it
// cannot poison every later cycle. An unreadable file is left in place
// for the next cycle.
func (w *Watcher) ingestFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var snaps []*domain.Snapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		w.remove(path)
		return fmt.Errorf("parse file: %w", err)
	}
	if len(snaps) == 0 {
		w.remove(path)
		return nil
	}

	for _, s := range snaps {
		if s.Timestamp == "" {
			s.Timestamp = time.Now().UTC().Format(time.RFC3339)
		}
	}

	if err := w.snapshots.UpsertBatch(ctx, snaps); err != nil {
		return fmt.Errorf("upsert snapshots: %w", err)
	}
	w.remove(path)

	w.mu.Lock()
	w.status.TotalFiles++
	w.status.TotalSnapshots += int64(len(snaps))
	w.mu.Unlock()
	if w.metrics != nil {
		w.metrics.FilesIngested.Inc()
		w.metrics.SnapshotsIngested.Add(float64(len(snaps)))
	}

	w.logger.Printf("[%s] ingested %d snapshots from %s", w.Name(), len(snaps), filepath.Base(path))
	return nil
}

func (w *Watcher) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.logger.Printf("[%s] failed to remove %s: %v", w.Name(), filepath.Base(path), err)
	}
}
