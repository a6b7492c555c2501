// Package sqlite is the SQLite dialect backend for the catalog store,
// built on the pure-Go, CGo-free driver from github.com/ncruces/go-sqlite3
// so the engine ships as a single static binary (§6).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/barc/catalog/internal/storage"
)

// Store is the SQLite implementation of storage.Store.
type Store struct {
	db      *sql.DB
	busy    storage.BusyHandler
	path    string
}

var _ storage.Store = (*Store)(nil)

// New returns an unopened SQLite store.
func New() *Store {
	return &Store{}
}

func (s *Store) Dialect() string { return "sqlite" }

func (s *Store) SetBusyHandler(h storage.BusyHandler) { s.busy = h }

func (s *Store) DB() *sql.DB { return s.db }

// Open establishes the connection, applies mode semantics (§4.2), and
// brings the schema to INDEX_VERSION, mirroring the teacher's pattern of
// opening the file: URI then running the migration bundle inside a
// single transaction.
func (s *Store) Open(ctx context.Context, path string, mode storage.OpenMode, flags storage.OpenFlags) error {
	if path == "" {
		return fmt.Errorf("sqlite: empty path")
	}
	if mode == storage.ModeCreate {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("sqlite: remove existing catalog: %w", err)
		}
	}

	dsn := storage.ConnString(path, mode, flags)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer file-backed engine; busy_timeout pragma covers waiters
	s.db = db
	s.path = path

	if mode == storage.ModeRead {
		return nil
	}

	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// ensureSchema applies the DDL bundle and, on a file with no version
// row in meta, the seed rows, then records INDEX_VERSION in meta. An
// existing version row is not compared with INDEX_VERSION: a catalog at
// another version is neither migrated nor rejected.
func (s *Store) ensureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin schema tx: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'version'`).Scan(&existing)
	freshFile := errors.Is(err, sql.ErrNoRows)
	if err != nil && !freshFile {
		// meta table itself may not exist yet; that's expected for a brand
		// new file and is handled below by running the DDL bundle anyway.
		freshFile = true
	}

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: apply schema: %w", err)
		}
	}

	if freshFile {
		for _, stmt := range seedStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("sqlite: seed catalog: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('version', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fmt.Sprint(7))
		if err != nil {
			return fmt.Errorf("sqlite: write schema version: %w", err)
		}
	}

	return tx.Commit()
}

// UpsertNewest performs SQLite's ON CONFLICT form of the EntryNewest
// insert-or-replace (§4.5).
func (s *Store) UpsertNewest(ctx context.Context, tx *sql.Tx, row storage.NewestRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entriesNewest
			(name, entry_id, storage_id, uuid_id, entity_id, type,
			 time_last_access, time_modified, time_last_changed, owner, permission, size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			entry_id = excluded.entry_id,
			storage_id = excluded.storage_id,
			uuid_id = excluded.uuid_id,
			entity_id = excluded.entity_id,
			type = excluded.type,
			time_last_access = excluded.time_last_access,
			time_modified = excluded.time_modified,
			time_last_changed = excluded.time_last_changed,
			owner = excluded.owner,
			permission = excluded.permission,
			size = excluded.size
		WHERE excluded.entry_id > entriesNewest.entry_id`,
		row.Name, row.EntryID, row.StorageID, row.UUIDID, row.EntityID, row.EntryType,
		timeOrNil(row.TimeLastAccess), timeOrNil(row.TimeModified), timeOrNil(row.TimeLastChanged),
		row.Owner, row.Permission, row.Size,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert newest %q: %w", row.Name, err)
	}
	return nil
}

// ColumnExists reports whether column is present on table, mirroring
// the teacher's pragma_table_info based check.
func (s *Store) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, fmt.Errorf("sqlite: pragma_table_info(%s): %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
