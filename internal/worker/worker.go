// Package worker provides the background-loop scaffolding shared by the
// pipeline stages. Each stage runs as an independent goroutine that polls
// the store on its own interval; stages never signal each other — a later
// stage simply finds no work if an earlier one produced none.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Processor is one pipeline stage: it selects a batch of candidate keys
// and processes them. ProcessBatch returns the number of keys examined.
// A processor must handle per-key errors internally (log and move on);
// an error return means the batch itself could not run.
type Processor interface {
	Name() string
	ProcessBatch(ctx context.Context) (int, error)
}

// Status is a point-in-time snapshot of a worker loop.
type Status struct {
	Name          string    `json:"name"`
	Running       bool      `json:"running"`
	LastRun       time.Time `json:"last_run"`
	LastBatchSize int       `json:"last_batch_size"`
	LastError     string    `json:"last_error,omitempty"`
}

// Options contains configuration for creating a Worker.
type Options struct {
	Processor Processor

	// CheckInterval is the sleep after a batch that found no candidates.
	// Default: 60s.
	CheckInterval time.Duration

	// YieldInterval is the brief pause after a productive batch, so
	// backlogs drain quickly without starving other workers of store
	// access. Default: 100ms.
	YieldInterval time.Duration

	// ErrorInterval is the sleep after a failed batch. Default: 5s.
	ErrorInterval time.Duration

	Logger *log.Logger
}

// Worker drives a Processor in a cancellable background loop.
type Worker struct {
	proc          Processor
	checkInterval time.Duration
	yieldInterval time.Duration
	errorInterval time.Duration
	logger        *log.Logger

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new Worker.
func New(opts Options) *Worker {
	checkInterval := opts.CheckInterval
	if checkInterval == 0 {
		checkInterval = 60 * time.Second
	}
	yieldInterval := opts.YieldInterval
	if yieldInterval == 0 {
		yieldInterval = 100 * time.Millisecond
	}
	errorInterval := opts.ErrorInterval
	if errorInterval == 0 {
		errorInterval = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Worker{
		proc:          opts.Processor,
		checkInterval: checkInterval,
		yieldInterval: yieldInterval,
		errorInterval: errorInterval,
		logger:        logger,
		status:        Status{Name: opts.Processor.Name()},
	}
}

// Start launches the background loop (idempotent).
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		w.logger.Printf("[%s] already running", w.proc.Name())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.status.Running = true
	go w.run(ctx, w.done)
	w.logger.Printf("[%s] worker started", w.proc.Name())
}

// Stop signals the loop to stop and waits up to timeout for it to finish
// its in-flight batch. Safe to call at any time; it never interrupts an
// in-flight transaction. A worker that exceeds the timeout is reported
// hung, not forcibly killed.
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		w.logger.Printf("[%s] worker stopped", w.proc.Name())
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker %s did not stop within %v", w.proc.Name(), timeout)
	}
}

// Status returns a consistent snapshot of the loop state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer func() {
		w.mu.Lock()
		w.status.Running = false
		w.mu.Unlock()
		close(done)
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := w.proc.ProcessBatch(ctx)

		w.mu.Lock()
		w.status.LastRun = time.Now().UTC()
		w.status.LastBatchSize = processed
		if err != nil {
			w.status.LastError = err.Error()
		}
		w.mu.Unlock()

		delay := w.yieldInterval
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			w.logger.Printf("[%s] batch error: %v", w.proc.Name(), err)
			delay = w.errorInterval
		case processed == 0:
			delay = w.checkInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
