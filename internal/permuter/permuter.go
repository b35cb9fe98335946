// Package permuter implements the feature-expansion stage: each archived
// contract's ordered history of N observations becomes all N*(N-1)/2
// ordered (buy, sell) pairs in the feature table, and the consumed archive
// rows are removed in the same atomic step.
//
// Pair generation is intentionally quadratic in per-contract history
// length; history length is bounded by observation frequency times the
// contract's lifetime, not by the size of the store.
package permuter

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

// Status holds the permuter's cumulative counters. Updated after every
// batch under a dedicated mutex; read via a snapshot copy.
type Status struct {
	TotalContracts    int64  `json:"total_contracts"`
	TotalRowsInserted int64  `json:"total_rows_inserted"`
	TotalDroppedShort int64  `json:"total_dropped_short"`
	LastError         string `json:"last_error,omitempty"`
}

// Permuter expands archived contract histories into permutation feature rows.
type Permuter struct {
	archive      storage.ArchiveStore
	features     storage.FeatureStore
	batchSize    int
	maxAttempts  int
	retryBackoff time.Duration
	logger       *log.Logger
	metrics      *observability.Metrics

	plan *expansionPlan

	mu     sync.Mutex
	status Status
}

// Options contains configuration for creating a Permuter.
type Options struct {
	Archive  storage.ArchiveStore
	Features storage.FeatureStore

	// BatchSize is the maximum number of contract keys examined per cycle.
	// Default: 50.
	BatchSize int

	// MaxAttempts is the per-key retry ceiling on a busy store. Default: 5.
	MaxAttempts int

	// RetryBackoff is the base of the linear backoff between attempts.
	// Default: 100ms.
	RetryBackoff time.Duration

	Logger  *log.Logger
	Metrics *observability.Metrics
}

// New creates a new Permuter. Call Init before starting the worker loop.
func New(opts Options) *Permuter {
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = 50
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 5
	}
	retryBackoff := opts.RetryBackoff
	if retryBackoff == 0 {
		retryBackoff = 100 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Permuter{
		archive:      opts.Archive,
		features:     opts.Features,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
		retryBackoff: retryBackoff,
		logger:       logger,
		metrics:      opts.Metrics,
	}
}

// Init introspects the archive schema, evolves the feature table
// additively, and fixes the expansion plan for this worker's lifetime.
// Schema changes are applied here, once, never mid-batch.
func (p *Permuter) Init(ctx context.Context) error {
	cols, err := p.archive.Columns(ctx)
	if err != nil {
		return fmt.Errorf("introspect archive schema: %w", err)
	}
	if len(cols) == 0 {
		return errors.New("archive table has no columns")
	}
	if err := p.features.EnsureSchema(ctx, cols); err != nil {
		return fmt.Errorf("ensure feature schema: %w", err)
	}
	p.plan = newExpansionPlan(cols)
	return nil
}

// Name implements worker.Processor.
func (p *Permuter) Name() string {
	return "permutation-generator"
}

// Status returns a snapshot of the cumulative counters.
func (p *Permuter) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// ProcessBatch selects up to batchSize archived contract keys and expands
// each one. A failure on one key never aborts the rest of the batch.
// Returns the number of keys examined.
func (p *Permuter) ProcessBatch(ctx context.Context) (int, error) {
	if p.plan == nil {
		return 0, errors.New("permuter not initialized")
	}

	start := time.Now()

	keys, err := p.archive.Keys(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select candidates: %w", err)
	}

	var expanded, inserted, dropped int64
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		n, err := p.processKey(ctx, key)
		switch {
		case err == nil && n > 0:
			expanded++
			inserted += int64(n)
		case err == nil:
			dropped++
		case errors.Is(err, errSkipped):
		default:
			p.logger.Printf("[%s] key %s: %v", p.Name(), key, err)
			p.setLastError(err)
			if p.metrics != nil {
				p.metrics.ExpansionErrors.Inc()
			}
		}
	}

	p.mu.Lock()
	p.status.TotalContracts += expanded
	p.status.TotalRowsInserted += inserted
	p.status.TotalDroppedShort += dropped
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.ContractsExpanded.Add(float64(expanded))
		p.metrics.FeatureRowsWritten.Add(float64(inserted))
		p.metrics.BatchDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	}

	if expanded > 0 || dropped > 0 {
		p.logger.Printf("[%s] expanded %d contracts into %d rows, dropped %d short (batch of %d keys)",
			p.Name(), expanded, inserted, dropped, len(keys))
	}
	return len(keys), nil
}

var errSkipped = errors.New("skipped")

// processKey expands one contract, returning the number of feature rows
// inserted. (0, nil) means the history was too short and was cleaned up.
func (p *Permuter) processKey(ctx context.Context, key string) (int, error) {
	history, err := p.archive.HistoryByKey(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("fetch archive history: %w", err)
	}

	// Another cycle already consumed it; idempotent no-op.
	if len(history) == 0 {
		return 0, errSkipped
	}

	if len(history) < 2 {
		if err := p.retryMove(ctx, func(ctx context.Context) storage.MoveOutcome {
			return p.features.DropHistory(ctx, key)
		}); err != nil {
			return 0, fmt.Errorf("drop unpairable history: %w", err)
		}
		return 0, nil
	}

	rows, badTimestamps := p.plan.expand(key, history)
	if badTimestamps > 0 {
		p.logger.Printf("[%s] key %s: %d pairs with unparseable timestamps, hold duration zeroed",
			p.Name(), key, badTimestamps)
	}

	err = p.retryMove(ctx, func(ctx context.Context) storage.MoveOutcome {
		return p.features.InsertAndConsume(ctx, key, p.plan.columns, rows)
	})
	if err != nil {
		return 0, fmt.Errorf("insert permutations: %w", err)
	}
	return len(rows), nil
}

func (p *Permuter) retryMove(ctx context.Context, op func(context.Context) storage.MoveOutcome) error {
	counted := func(ctx context.Context) storage.MoveOutcome {
		out := op(ctx)
		if out.Status == storage.MoveRetryable && p.metrics != nil {
			p.metrics.MoveRetries.WithLabelValues("expand").Inc()
		}
		return out
	}
	err := storage.RetryMove(ctx, p.maxAttempts, p.retryBackoff, counted)
	if err != nil && errors.Is(err, storage.ErrBusy) && p.metrics != nil {
		p.metrics.MoveFailures.WithLabelValues("expand").Inc()
	}
	return err
}

func (p *Permuter) setLastError(err error) {
	p.mu.Lock()
	p.status.LastError = err.Error()
	p.mu.Unlock()
}
