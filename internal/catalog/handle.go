// Package catalog implements the Handle & Session Layer, the Transaction
// & Interruption Core, and the mutation/query surfaces of the backup
// index catalog engine, against either the sqlite or mysql storage
// dialect (§4.2-§4.3, §4.8-§4.9).
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/barc/catalog/internal/storage"
)

// Handle is a process-wide open catalog. One Handle wraps one Store and
// owns the in-use bookkeeping every session shares (§4.2).
type Handle struct {
	store  storage.Store
	log    *slog.Logger
	dryRun bool

	mu      sync.RWMutex // guards inUse
	inUse   map[string]struct{}
	clearMu sync.Mutex // serializes cross-storage clear operations (§5)
	quit    chan struct{}
	once    sync.Once

	fgMu    sync.RWMutex // guards fgCount
	fgCount int          // externally callable mutation/query calls currently running
}

// Options configure Open/Create.
type Options struct {
	Logger            *slog.Logger
	EnableForeignKeys bool
	NoJournal         bool
	DryRun            bool
	BusyRetries       int // max retries of the busy handler before giving up; 0 = unlimited
}

// Open opens an existing catalog for read-write access. The store
// applies its schema DDL but does not check the stored meta.version, so
// a catalog at another version is neither migrated, recreated nor
// refused (§3 invariant 7).
func Open(ctx context.Context, store storage.Store, path string, opts Options) (*Handle, error) {
	return newHandle(ctx, store, path, storage.ModeReadWrite, opts)
}

// OpenReadOnly opens an existing catalog without permitting mutation.
func OpenReadOnly(ctx context.Context, store storage.Store, path string, opts Options) (*Handle, error) {
	return newHandle(ctx, store, path, storage.ModeRead, opts)
}

// Create discards any existing catalog file/database at path and
// initializes a fresh one at INDEX_VERSION.
func Create(ctx context.Context, store storage.Store, path string, opts Options) (*Handle, error) {
	return newHandle(ctx, store, path, storage.ModeCreate, opts)
}

func newHandle(ctx context.Context, store storage.Store, path string, mode storage.OpenMode, opts Options) (*Handle, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &Handle{
		store: store,
		log:   opts.Logger,
		inUse: make(map[string]struct{}),
		quit:  make(chan struct{}),
	}

	retries := 0
	store.SetBusyHandler(func(n int) bool {
		retries = n
		h.log.Debug("waiting on storage lock", "retries", n)
		if opts.BusyRetries > 0 && n >= opts.BusyRetries {
			return false
		}
		return true
	})
	_ = retries

	flags := storage.OpenFlags{NoJournal: opts.NoJournal, EnableForeignKeys: opts.EnableForeignKeys}
	if err := store.Open(ctx, path, mode, flags); err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	h.dryRun = opts.DryRun
	return h, nil
}

// Close releases the underlying storage connection. Safe to call once;
// further calls are a no-op.
func (h *Handle) Close() error {
	var err error
	h.once.Do(func() {
		close(h.quit)
		err = h.store.Close()
	})
	return err
}

// Store exposes the underlying dialect store for package-internal callers
// in this module (mutation.go, query.go, the aggregate/newest/purge
// packages taking a *sql.DB via Store().DB()).
func (h *Handle) Store() storage.Store { return h.store }

// Quit signals background maintenance loops bound to this handle to stop
// at their next interruption point (§5 global quit flag).
func (h *Handle) Quit() <-chan struct{} { return h.quit }

// DryRun reports whether mutation operations should compute their effect
// without committing it, mirroring the teacher's dry-run plumbing through
// bulk delete operations.
func (h *Handle) DryRun() bool { return h.dryRun }

// markInUse records storageKey as actively written to by the current
// foreground operation, so a concurrent background purge/clear on the
// same storage backs off instead of racing it (§5).
func (h *Handle) markInUse(storageKey string) func() {
	h.mu.Lock()
	h.inUse[storageKey] = struct{}{}
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.inUse, storageKey)
		h.mu.Unlock()
	}
}

// isInUse reports whether storageKey is currently marked in-use.
func (h *Handle) isInUse(storageKey string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.inUse[storageKey]
	return ok
}

// lockClear serializes the exactly-one-at-a-time cross-storage clear
// operation (§5): only one ClearStorage/Purge pass runs at a time across
// the whole handle, regardless of which storage it targets.
func (h *Handle) lockClear() func() {
	h.clearMu.Lock()
	return h.clearMu.Unlock
}

// NewStorageLock marks key in-use for the duration of a clear/purge pass
// and serializes it against any other clear/purge on the handle, so two
// concurrent clears can never race on the same EntryNewest name (§5: "an
// additional write semaphore that serializes cross-storage newest-index
// reshuffles").
func (h *Handle) NewStorageLock(key string) func() {
	unlockClear := h.lockClear()
	unmark := h.markInUse(key)
	return func() {
		unmark()
		unlockClear()
	}
}

// beginForeground registers one externally callable mutation/query as
// running, implementing §4.2's "do-in-use" scope: every public Handle
// method wraps its body in this, so Interruption.Yield can tell an
// actually-busy engine from an idle one instead of always sleeping the
// full delta. Deliberately separate from inUse/mu above, which
// NewStorageLock uses for its own narrow clear-storage serialization --
// folding this into that map would make a running clear/purge pass see
// its own lock entry and conclude it must wait on itself.
func (h *Handle) beginForeground() func() {
	h.fgMu.Lock()
	h.fgCount++
	h.fgMu.Unlock()
	return func() {
		h.fgMu.Lock()
		h.fgCount--
		h.fgMu.Unlock()
	}
}

// foregroundActive reports whether any externally callable mutation or
// query is currently running.
func (h *Handle) foregroundActive() bool {
	h.fgMu.RLock()
	defer h.fgMu.RUnlock()
	return h.fgCount > 0
}

// retryOpen retries an open attempt with exponential backoff, for a
// caller that may race a foreground process for the initial lock on the
// catalog file (§4.2, grounded on the teacher's retry-on-busy dial
// pattern). Open, OpenReadOnly and Create make a single attempt and do
// not call it; the maintenance worker uses daemon.OpenWithRetry.
func retryOpen(ctx context.Context, attempt func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		default:
		}
		return attempt()
	}, backoff.WithContext(b, ctx))
}
