// Package archiver implements the lifetime stage: it finds contracts whose
// full observed history is expired and relocates their snapshot rows into
// the archive, or discards them when the history is too short to be useful.
// Per contract key the state machine is ACTIVE -> {DISCARDED | ARCHIVED},
// terminal either way.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"option-pipeline/internal/observability"
	"option-pipeline/internal/storage"
)

// Status holds the archiver's cumulative counters. Updated after every
// batch under a dedicated mutex; read via a snapshot copy.
type Status struct {
	TotalArchived  int64  `json:"total_archived"`
	TotalDiscarded int64  `json:"total_discarded"`
	LastError      string `json:"last_error,omitempty"`
}

// Archiver scans the hot table for fully expired contracts and moves each
// contract's rows into the archive with a per-key atomic transaction.
type Archiver struct {
	snapshots    storage.SnapshotStore
	archive      storage.ArchiveStore
	batchSize    int
	minHistory   int
	maxAttempts  int
	retryBackoff time.Duration
	logger       *log.Logger
	metrics      *observability.Metrics

	mu     sync.Mutex
	status Status
}

// Options contains configuration for creating an Archiver.
type Options struct {
	Snapshots storage.SnapshotStore
	Archive   storage.ArchiveStore

	// BatchSize is the maximum number of contract keys examined per cycle.
	// Default: 500.
	BatchSize int

	// MinHistory is the minimum number of snapshot rows worth archiving;
	// shorter histories are deleted instead. Default: 5.
	MinHistory int

	// MaxAttempts is the per-key retry ceiling on a busy store. Default: 3.
	MaxAttempts int

	// RetryBackoff is the base of the linear backoff between attempts.
	// Default: 100ms.
	RetryBackoff time.Duration

	Logger  *log.Logger
	Metrics *observability.Metrics
}

// New creates a new Archiver.
func New(opts Options) *Archiver {
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = 500
	}
	minHistory := opts.MinHistory
	if minHistory == 0 {
		minHistory = 5
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	retryBackoff := opts.RetryBackoff
	if retryBackoff == 0 {
		retryBackoff = 100 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Archiver{
		snapshots:    opts.Snapshots,
		archive:      opts.Archive,
		batchSize:    batchSize,
		minHistory:   minHistory,
		maxAttempts:  maxAttempts,
		retryBackoff: retryBackoff,
		logger:       logger,
		metrics:      opts.Metrics,
	}
}

// Name implements worker.Processor.
func (a *Archiver) Name() string {
	return "lifetime-archiver"
}

// Status returns a snapshot of the cumulative counters.
func (a *Archiver) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// ProcessBatch selects up to batchSize expired contract keys and processes
// each one. A failure on one key never aborts the rest of the batch; the
// key stays ACTIVE for the next cycle. Returns the number of keys examined.
func (a *Archiver) ProcessBatch(ctx context.Context) (int, error) {
	start := time.Now()

	keys, err := a.snapshots.ExpiredKeys(ctx, a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select candidates: %w", err)
	}

	var archived, discarded int64
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		switch err := a.processKey(ctx, key); {
		case err == nil:
			archived++
		case errors.Is(err, errDiscarded):
			discarded++
		case errors.Is(err, errSkipped):
			// no-op or still-active: nothing to count
		default:
			a.logger.Printf("[%s] key %s: %v", a.Name(), key, err)
			a.setLastError(err)
			if a.metrics != nil {
				a.metrics.ArchiveErrors.Inc()
			}
		}
	}

	a.mu.Lock()
	a.status.TotalArchived += archived
	a.status.TotalDiscarded += discarded
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.ContractsArchived.Add(float64(archived))
		a.metrics.ContractsDiscarded.Add(float64(discarded))
		a.metrics.BatchDuration.WithLabelValues(a.Name()).Observe(time.Since(start).Seconds())
	}

	if archived > 0 || discarded > 0 {
		a.logger.Printf("[%s] archived %d, discarded %d (batch of %d keys)",
			a.Name(), archived, discarded, len(keys))
	}
	return len(keys), nil
}

// Internal per-key results. errDiscarded and errSkipped are flow markers,
// not failures.
var (
	errDiscarded = errors.New("discarded")
	errSkipped   = errors.New("skipped")
)

// processKey moves one contract. nil means archived.
func (a *Archiver) processKey(ctx context.Context, key string) error {
	rows, err := a.snapshots.HistoryByKey(ctx, key)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	// Another cycle already moved it; idempotent no-op.
	if len(rows) == 0 {
		return errSkipped
	}

	if len(rows) < a.minHistory {
		if err := a.retryMove(ctx, "discard", func(ctx context.Context) storage.MoveOutcome {
			return a.archive.Discard(ctx, key)
		}); err != nil {
			return fmt.Errorf("discard short history: %w", err)
		}
		return errDiscarded
	}

	err = a.retryMove(ctx, "archive", func(ctx context.Context) storage.MoveOutcome {
		return a.archive.Archive(ctx, key)
	})
	if errors.Is(err, storage.ErrStillActive) {
		// Late-arriving observations turned the key active again between
		// candidate selection and the move; re-check next cycle.
		a.logger.Printf("[%s] key %s gained active rows, deferring", a.Name(), key)
		return errSkipped
	}
	if err != nil {
		return fmt.Errorf("archive move: %w", err)
	}
	return nil
}

func (a *Archiver) retryMove(ctx context.Context, stage string, op func(context.Context) storage.MoveOutcome) error {
	counted := func(ctx context.Context) storage.MoveOutcome {
		out := op(ctx)
		if out.Status == storage.MoveRetryable && a.metrics != nil {
			a.metrics.MoveRetries.WithLabelValues(stage).Inc()
		}
		return out
	}
	err := storage.RetryMove(ctx, a.maxAttempts, a.retryBackoff, counted)
	if err != nil && errors.Is(err, storage.ErrBusy) && a.metrics != nil {
		a.metrics.MoveFailures.WithLabelValues(stage).Inc()
	}
	return err
}

func (a *Archiver) setLastError(err error) {
	a.mu.Lock()
	a.status.LastError = err.Error()
	a.mu.Unlock()
}
