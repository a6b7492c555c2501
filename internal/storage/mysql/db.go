// Package mysql is the networked-server dialect backend for the catalog
// store, for deployments that already run a MySQL/MariaDB cluster rather
// than shipping per-archive SQLite files (§6).
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/barc/catalog/internal/storage"
)

// Store is the MySQL implementation of storage.Store. Unlike the SQLite
// dialect, path is a DSN naming a database that already exists on a
// running server; ModeCreate drops and recreates the catalog's tables
// rather than removing a file.
type Store struct {
	db   *sql.DB
	busy storage.BusyHandler
}

var _ storage.Store = (*Store)(nil)

func New() *Store { return &Store{} }

func (s *Store) Dialect() string { return "mysql" }

func (s *Store) SetBusyHandler(h storage.BusyHandler) { s.busy = h }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Open(ctx context.Context, dsn string, mode storage.OpenMode, flags storage.OpenFlags) error {
	if dsn == "" {
		return fmt.Errorf("mysql: empty dsn")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("mysql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("mysql: ping: %w", err)
	}
	s.db = db

	if mode == storage.ModeRead {
		return nil
	}
	if mode == storage.ModeCreate {
		if err := s.dropAll(ctx); err != nil {
			db.Close()
			s.db = nil
			return err
		}
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

var tablesInDropOrder = []string{
	"entryFragments", "specialEntries", "hardlinkEntries", "linkEntries",
	"directoryEntries", "imageEntries", "fileEntries", "entriesNewest",
	"skippedEntries", "history", "entries", "storages", "entities", "uuids", "meta",
}

func (s *Store) dropAll(ctx context.Context) error {
	for _, t := range tablesInDropOrder {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("mysql: drop %s: %w", t, err)
		}
	}
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mysql: begin schema tx: %w", err)
	}
	defer tx.Rollback()

	var existing sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT value FROM meta WHERE `key` = 'version'").Scan(&existing)
	freshDB := err != nil

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mysql: apply schema: %w", err)
		}
	}

	if freshDB {
		for _, stmt := range seedStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("mysql: seed catalog: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO meta (`key`, value) VALUES ('version', ?) ON DUPLICATE KEY UPDATE value = VALUES(value)",
			fmt.Sprint(7))
		if err != nil {
			return fmt.Errorf("mysql: write schema version: %w", err)
		}
	}

	return tx.Commit()
}

// UpsertNewest performs MySQL's ON DUPLICATE KEY form of the same
// insert-or-replace SQLite does with ON CONFLICT (§4.5). The higher
// entry_id wins, matching the "most recently written name wins" rule.
func (s *Store) UpsertNewest(ctx context.Context, tx *sql.Tx, row storage.NewestRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entriesNewest
			(name, entry_id, storage_id, uuid_id, entity_id, type,
			 time_last_access, time_modified, time_last_changed, owner, permission, size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			entry_id = IF(VALUES(entry_id) > entry_id, VALUES(entry_id), entry_id),
			storage_id = IF(VALUES(entry_id) > entry_id, VALUES(storage_id), storage_id),
			uuid_id = IF(VALUES(entry_id) > entry_id, VALUES(uuid_id), uuid_id),
			entity_id = IF(VALUES(entry_id) > entry_id, VALUES(entity_id), entity_id),
			type = IF(VALUES(entry_id) > entry_id, VALUES(type), type),
			time_last_access = IF(VALUES(entry_id) > entry_id, VALUES(time_last_access), time_last_access),
			time_modified = IF(VALUES(entry_id) > entry_id, VALUES(time_modified), time_modified),
			time_last_changed = IF(VALUES(entry_id) > entry_id, VALUES(time_last_changed), time_last_changed),
			owner = IF(VALUES(entry_id) > entry_id, VALUES(owner), owner),
			permission = IF(VALUES(entry_id) > entry_id, VALUES(permission), permission),
			size = IF(VALUES(entry_id) > entry_id, VALUES(size), size)`,
		row.Name, row.EntryID, row.StorageID, row.UUIDID, row.EntityID, row.EntryType,
		timeOrNil(row.TimeLastAccess), timeOrNil(row.TimeModified), timeOrNil(row.TimeLastChanged),
		row.Owner, row.Permission, row.Size,
	)
	if err != nil {
		return fmt.Errorf("mysql: upsert newest %q: %w", row.Name, err)
	}
	return nil
}

func (s *Store) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`,
		strings.ToLower(table), column).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("mysql: information_schema lookup %s.%s: %w", table, column, err)
	}
	return count > 0, nil
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
