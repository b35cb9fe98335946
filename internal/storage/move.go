package storage

import (
	"context"
	"time"
)

// MoveStatus classifies the outcome of one attempt at a per-key atomic move.
type MoveStatus int

const (
	// MoveSuccess means the move committed.
	MoveSuccess MoveStatus = iota
	// MoveRetryable means the store was busy; the caller may retry with backoff.
	MoveRetryable
	// MoveFatal means the attempt failed for a reason retrying cannot fix.
	MoveFatal
)

// MoveOutcome is the result of one attempt at a per-key atomic move.
// The caller loop drives retries based on the status tag.
type MoveOutcome struct {
	Status MoveStatus
	Err    error
}

// Success returns a committed outcome.
func Success() MoveOutcome {
	return MoveOutcome{Status: MoveSuccess}
}

// Retryable returns a busy outcome the caller may retry.
func Retryable(err error) MoveOutcome {
	return MoveOutcome{Status: MoveRetryable, Err: err}
}

// Fatal returns a non-retryable outcome.
func Fatal(err error) MoveOutcome {
	return MoveOutcome{Status: MoveFatal, Err: err}
}

// RetryMove runs op until it succeeds, fails fatally, the context is
// cancelled, or maxAttempts attempts are exhausted. Between attempts it
// sleeps backoff*attempt (linearly increasing). After the ceiling the
// last error is returned wrapped in ErrBusy semantics so the key can be
// left for the next cycle; other keys in the batch are unaffected.
func RetryMove(ctx context.Context, maxAttempts int, backoff time.Duration, op func(context.Context) MoveOutcome) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome := op(ctx)
		switch outcome.Status {
		case MoveSuccess:
			return nil
		case MoveFatal:
			return outcome.Err
		case MoveRetryable:
			lastErr = outcome.Err
		}

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
	return lastErr
}
