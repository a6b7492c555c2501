// Package storage defines the dialect-agnostic contract every catalog
// backend (sqlite, mysql) satisfies, and the small set of operations that
// genuinely differ by SQL dialect. Everything else the catalog engine
// does is plain ANSI-ish SQL issued directly against the *sql.DB the
// Store exposes.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"
)

// OpenMode selects how Open treats an existing catalog file (§4.2).
type OpenMode int

const (
	// ModeRead opens an existing catalog for read-only access.
	ModeRead OpenMode = iota
	// ModeReadWrite opens an existing catalog, creating it if absent.
	ModeReadWrite
	// ModeCreate deletes any existing catalog file first, then creates fresh.
	ModeCreate
)

// OpenFlags are optional behaviors layered on top of OpenMode.
type OpenFlags struct {
	NoJournal         bool
	EnableForeignKeys bool
}

// BusyHandler is invoked whenever the store is waiting on a lock held by
// another connection, so the caller can keep a UI responsive (§4.2).
type BusyHandler func(retries int) (continueWaiting bool)

// Store is the contract the catalog engine uses against a relational
// backend. Schema DDL and the one upsert that differs by
// dialect (EntryNewest's insert-or-replace) live behind this interface;
// every other catalog operation issues plain SQL through DB().
type Store interface {
	// Open establishes the connection and, unless read-only, applies the
	// schema DDL and stamps INDEX_VERSION on a file without a version
	// row. A stored version is not checked, so a catalog at another
	// version is neither migrated, recreated nor refused.
	Open(ctx context.Context, path string, mode OpenMode, flags OpenFlags) error
	Close() error

	// DB exposes the underlying connection pool for ANSI SQL callers.
	DB() *sql.DB

	// Dialect names the backend ("sqlite" or "mysql").
	Dialect() string

	// SetBusyHandler installs the callback invoked on lock contention.
	SetBusyHandler(h BusyHandler)

	// UpsertNewest performs the dialect-specific insert-or-replace of one
	// EntryNewest row (SQLite: ON CONFLICT DO UPDATE; MySQL: ON DUPLICATE
	// KEY UPDATE). Every other statement the catalog issues is portable.
	UpsertNewest(ctx context.Context, tx *sql.Tx, row NewestRow) error

	// ColumnExists reports whether a column is present on a table.
	ColumnExists(ctx context.Context, table, column string) (bool, error)
}

// NewestRow is the dialect-agnostic payload UpsertNewest writes.
type NewestRow struct {
	Name            string
	EntryID         int64
	StorageID       int64
	UUIDID          int64
	EntityID        int64
	EntryType       string
	TimeLastAccess  time.Time
	TimeModified    time.Time
	TimeLastChanged time.Time
	Owner           string
	Permission      uint32
	Size            uint64
}

// ConnString builds a SQLite connection string carrying the standard
// pragmas (busy_timeout, foreign_keys, journal mode) honoring the
// BIC_LOCK_TIMEOUT env var for the busy timeout, mirroring the way the
// teacher corpus's SQLiteConnString layers pragmas onto a file: URI.
func ConnString(path string, mode OpenMode, flags OpenFlags) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}

	busy := 30 * time.Second
	if v := strings.TrimSpace(os.Getenv("BIC_LOCK_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			busy = d
		}
	}
	busyMs := int64(busy / time.Millisecond)

	params := []string{fmt.Sprintf("_pragma=busy_timeout(%d)", busyMs)}
	if flags.EnableForeignKeys {
		params = append(params, "_pragma=foreign_keys(ON)")
	}
	if !flags.NoJournal {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	if mode == ModeRead {
		params = append(params, "mode=ro")
	}

	sep := "?"
	if strings.HasPrefix(path, "file:") && strings.Contains(path, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + sep + strings.Join(params, "&")
}
