// Package daemon implements the Maintenance Worker (§4.7): a single
// long-lived background task that imports legacy catalogs, runs initial
// best-effort cleanup, and then collects deleted rows one storage at a
// time whenever the configured maintenance window is open.
//
// Grounded on the teacher's internal/daemon (a long-lived background
// task driven by a store-backed work queue) and internal/daemonrunner
// (flock-based singleton so only one worker runs against a given file),
// with the work-queue body replaced entirely: there is no external queue
// here, only the catalog's own deleted-row backlog.
package daemon

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/barc/catalog/internal/aggregate"
	"github.com/barc/catalog/internal/catalog"
	"github.com/barc/catalog/internal/engineconfig"
	"github.com/barc/catalog/internal/lockfile"
	"github.com/barc/catalog/internal/purge"
	"github.com/barc/catalog/internal/storage"
)

// Importer runs the legacy-catalog import step (§4.7 step 2) against
// every `<base>.oldNNN` sibling of the open catalog file. The worker
// depends on this interface rather than on internal/importer directly;
// *importer.Importer satisfies it.
type Importer interface {
	ImportLegacy(ctx context.Context, h *catalog.Handle, agg *aggregate.Maintainer, catalogPath string) error
}

// Worker is the maintenance worker's runtime state.
type Worker struct {
	handle   *catalog.Handle
	engine   *purge.Engine
	agg      *aggregate.Maintainer
	importer Importer
	cfg      engineconfig.Config
	log      *slog.Logger

	catalogPath string
	lockFile    *lockfileHandle
	trigger     chan struct{}
}

type lockfileHandle = struct{ close func() error }

// New assembles a Worker around an already-open handle.
func New(h *catalog.Handle, store storage.Store, cfg engineconfig.Config, importer Importer, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	agg := aggregate.New(log)
	w := &Worker{
		handle:   h,
		engine:   purge.New(h, store, agg, cfg.Tunables.PurgeBatchLimit),
		agg:      agg,
		importer: importer,
		cfg:      cfg,
		log:      log,
		trigger:  make(chan struct{}, 1),
	}
	w.engine.SetTrigger(w.Trigger)
	return w
}

// Engine exposes the worker's purge engine so a caller that also runs an
// RPC server (cmd/barc serve) can share the one instance instead of
// constructing a second engine whose DeleteStorage would trigger nobody.
func (w *Worker) Engine() *purge.Engine { return w.engine }

// Trigger wakes a sleeping worker early, mirroring §5's "semaphore with
// modification signal" — callers (delete_storage) raise this after
// marking a storage deleted so collection doesn't wait out a full sleep
// tick for nothing.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// AcquireLock takes the singleton maintenance-worker lock for the
// directory containing the catalog file, refusing to run a second
// worker against the same catalog (§4.7, grounded on
// internal/lockfile's AcquireDaemonLock).
func (w *Worker) AcquireLock(dir, version string) error {
	f, err := lockfile.AcquireDaemonLock(dir, lockfile.LockInfo{
		PID:       os.Getpid(),
		Database:  w.catalogPath,
		Version:   version,
		StartedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("daemon: acquire worker lock in %s: %w", dir, err)
	}
	w.lockFile = &lockfileHandle{close: f.Close}
	return nil
}

// ReleaseLock drops the singleton lock, if held.
func (w *Worker) ReleaseLock() error {
	if w.lockFile == nil {
		return nil
	}
	err := w.lockFile.close()
	w.lockFile = nil
	return err
}

// Run executes the worker's lifecycle (§4.7 steps 2-4) until ctx is
// cancelled or the handle's quit channel closes. Step 1 (wait for the
// store to open, retrying with backoff) is the caller's job: Run
// assumes handle is already open, since the backoff belongs to whatever
// constructs the Store/Handle pair, not to this package.
func (w *Worker) Run(ctx context.Context) error {
	if w.importer != nil {
		if err := w.importer.ImportLegacy(ctx, w.handle, w.agg, w.catalogPath); err != nil {
			w.log.Warn("legacy import step failed", "error", err)
		}
	}
	w.runInitialCleanup(ctx)
	return w.mainLoop(ctx)
}

// SetCatalogPath records the path the worker is maintaining, used for
// legacy-import sibling discovery and lock-info reporting.
func (w *Worker) SetCatalogPath(path string) { w.catalogPath = path }

// runInitialCleanup performs §4.7 step 3. Each step is independent and
// best-effort: a failure is logged, not fatal, matching the teacher's
// "never let one bad row block startup" posture in its own migration
// code.
func (w *Worker) runInitialCleanup(ctx context.Context) {
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"dedupe meta rows", w.dedupeMeta},
		{"revert stuck updates", w.revertStuckUpdates},
		{"purge stuck creates", w.purgeStuckCreates},
		{"delete empty-named storages", w.deleteEmptyNamedStorages},
		{"reset entity lock counts", w.resetEntityLockCounts},
		{"delete empty job uuids", w.deleteEmptyJobUUIDs},
		{"prune empties", w.pruneEmpties},
	}
	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			w.log.Warn("initial cleanup step failed", "step", s.name, "error", err)
		}
	}
}

func (w *Worker) dedupeMeta(ctx context.Context) error {
	return w.handle.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM meta WHERE rowid NOT IN (
				SELECT MIN(rowid) FROM meta GROUP BY key
			)`)
		return err
	})
}

// revertStuckUpdates reverts rows left in state UPDATE (an interrupted
// re-check) back to UPDATE_REQUESTED so the worker's main loop retries
// them (the storage state machine documented in §4.7).
func (w *Worker) revertStuckUpdates(ctx context.Context) error {
	return w.handle.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE storages SET state='UPDATE_REQUESTED' WHERE state='UPDATE'`)
		return err
	})
}

// purgeStuckCreates removes storages left in state CREATE: a backup run
// that never completed, so the row was never meant to be visible.
func (w *Worker) purgeStuckCreates(ctx context.Context) error {
	rows, err := w.queryIDs(ctx, `SELECT id FROM storages WHERE state='CREATE'`)
	if err != nil {
		return err
	}
	in := w.handle.NewInterruption(2 * time.Second)
	for _, id := range rows {
		if err := w.engine.PurgeStorage(ctx, in, id); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) deleteEmptyNamedStorages(ctx context.Context) error {
	rows, err := w.queryIDs(ctx, `SELECT id FROM storages WHERE name=''`)
	if err != nil {
		return err
	}
	in := w.handle.NewInterruption(2 * time.Second)
	for _, id := range rows {
		if err := w.engine.PurgeStorage(ctx, in, id); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) resetEntityLockCounts(ctx context.Context) error {
	return w.handle.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE entities SET locked_count=0 WHERE locked_count < 0`)
		return err
	})
}

func (w *Worker) deleteEmptyJobUUIDs(ctx context.Context) error {
	return w.handle.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM uuids WHERE job_uuid='' AND id != 0`)
		return err
	})
}

func (w *Worker) pruneEmpties(ctx context.Context) error {
	storageIDs, err := w.queryIDs(ctx, `SELECT id FROM storages WHERE entry_count=0`)
	if err != nil {
		return err
	}
	for _, id := range storageIDs {
		if _, err := w.engine.PruneStorage(ctx, id); err != nil {
			return err
		}
	}
	entityIDs, err := w.queryIDs(ctx, `SELECT id FROM entities WHERE entry_count=0 AND id != 1`)
	if err != nil {
		return err
	}
	for _, id := range entityIDs {
		if _, err := w.engine.PruneEntity(ctx, id); err != nil {
			return err
		}
	}
	uuidIDs, err := w.queryIDs(ctx, `SELECT id FROM uuids WHERE id != 0`)
	if err != nil {
		return err
	}
	for _, id := range uuidIDs {
		if _, err := w.engine.PruneUUID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) queryIDs(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	err := w.handle.Tx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}

// mainLoop is §4.7 step 4: while the maintenance window is open, drain
// the deleted-storage backlog one row at a time, yielding between
// storages; outside the window, sleep in bounded ticks, observing quit
// and the trigger semaphore.
func (w *Worker) mainLoop(ctx context.Context) error {
	window := w.cfg.Window.Predicate()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.handle.Quit():
			return nil
		default:
		}

		if !window(time.Now()) {
			if !w.sleepTick(ctx) {
				return nil
			}
			continue
		}

		did, err := w.collectOne(ctx)
		if err != nil {
			w.log.Warn("collect deleted storage failed", "error", err)
			if !w.sleepTick(ctx) {
				return nil
			}
			continue
		}
		if !did {
			if !w.sleepTick(ctx) {
				return nil
			}
		}
	}
}

// collectOne purges a single deleted storage and prunes its entity,
// reporting whether a candidate was found.
func (w *Worker) collectOne(ctx context.Context) (bool, error) {
	storageID, entityID, found, err := w.engine.NextDeletedStorage(ctx)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	in := w.handle.NewInterruption(2 * time.Second)
	if err := w.engine.PurgeStorage(ctx, in, storageID); err != nil {
		return false, fmt.Errorf("daemon: purge storage %d: %w", storageID, err)
	}
	if _, err := w.engine.PruneEntity(ctx, entityID); err != nil {
		return false, fmt.Errorf("daemon: prune entity %d: %w", entityID, err)
	}
	return true, nil
}

// sleepTick sleeps in 10-second steps up to MaintenanceSleep, waking
// early on quit, context cancellation, or Trigger. Returns false if the
// worker should stop.
func (w *Worker) sleepTick(ctx context.Context) bool {
	total := w.cfg.Tunables.MaintenanceSleep
	if total <= 0 {
		total = engineconfig.DefaultTunables().MaintenanceSleep
	}
	deadline := time.Now().Add(total)
	for {
		step := time.Until(deadline)
		if step <= 0 {
			return true
		}
		if step > 10*time.Second {
			step = 10 * time.Second
		}
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-w.handle.Quit():
			timer.Stop()
			return false
		case <-w.trigger:
			timer.Stop()
			return true
		case <-timer.C:
		}
	}
}

// OpenWithRetry retries store.Open with exponential backoff until it
// succeeds or quit closes (§4.7 step 1), grounded on the teacher's
// retry-on-busy connection dial pattern (the same pattern as the
// catalog package's unexported retryOpen, which catalog.Open does not
// call).
func OpenWithRetry(ctx context.Context, quit <-chan struct{}, attempt func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // retry indefinitely until quit or ctx cancellation
	return backoff.Retry(func() error {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		case <-quit:
			return backoff.Permanent(fmt.Errorf("daemon: quit requested during open"))
		default:
		}
		return attempt()
	}, backoff.WithContext(b, ctx))
}
