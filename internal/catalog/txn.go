package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Tx is the exported form of withTx for callers outside this package
// (the aggregate/newest/purge packages all drive their work through
// handle-owned transactions rather than opening their own).
func (h *Handle) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return h.withTx(ctx, fn)
}

// withTx runs fn inside a single transaction, committing on success and
// rolling back on any returned error, mirroring the teacher's conn-scoped
// transaction closures (grounded on DeleteIssue's s.withTx pattern) but
// exposing *sql.Tx directly since every backend here is reached through
// database/sql rather than a pooled raw connection.
func (h *Handle) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := h.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit transaction: %w", err)
	}
	return nil
}

// Interruption is the cooperative yield point bulk maintenance work
// checks between batches (§4.3, glossary "Interruption"). A caller
// running a long purge/reindex loop calls Yield after each bounded
// batch; it returns ErrInterrupted if the handle has been asked to quit,
// returns at once if no foreground operation is running, and otherwise
// waits up to delta, giving that foreground operation a chance to run.
type Interruption struct {
	h     *Handle
	delta time.Duration
}

// NewInterruption starts an interruption scope bound to h. delta is the
// maximum pause taken at each yield point (§4.3 "interrupt_operation(delta_ms)").
func (h *Handle) NewInterruption(delta time.Duration) *Interruption {
	return &Interruption{h: h, delta: delta}
}

// Yield commits no transaction itself -- the caller must have already
// committed its current batch -- and checks §4.2's do-in-use scope: if
// no foreground mutation/query is currently running, it returns at
// once; otherwise it waits out delta, polling for the foreground work
// to clear early, or returns ErrInterrupted if the handle was asked to
// quit in the meantime. This is the "commit -> wait-until-idle ->
// reopen" half of the pattern; the reopen half is the caller beginning
// its next transaction afterward.
func (in *Interruption) Yield(ctx context.Context) error {
	select {
	case <-in.h.quit:
		return ErrInterrupted
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if in.delta <= 0 || !in.h.foregroundActive() {
		return nil
	}

	const pollInterval = 20 * time.Millisecond
	deadline := time.NewTimer(in.delta)
	defer deadline.Stop()
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()
	for {
		select {
		case <-in.h.quit:
			return ErrInterrupted
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-poll.C:
			if !in.h.foregroundActive() {
				return nil
			}
		}
	}
}

// RunBatches drives a bounded-batch loop: step is called repeatedly,
// each call expected to process at most one batch and report how many
// rows it affected. The loop stops when step reports 0 rows affected
// (exhausted), returns an error, or the interruption fires between
// batches (§4.6 purge engine shape; §4.5 newest-index maintenance shape).
func RunBatches(ctx context.Context, in *Interruption, step func(ctx context.Context) (affected int, err error)) (total int, err error) {
	for {
		n, err := step(ctx)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			return total, nil
		}
		if in != nil {
			if err := in.Yield(ctx); err != nil {
				if errors.Is(err, ErrInterrupted) {
					return total, ErrInterrupted
				}
				return total, err
			}
		}
	}
}
