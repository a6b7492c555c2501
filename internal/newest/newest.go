// Package newest maintains the EntryNewest projection (§4.5): for each
// distinct entry name, the single row pointing at the entry with the
// greatest time-last-changed across all non-deleted storages, ties
// broken by the higher entry id, then by the higher storage id.
package newest

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/barc/catalog/internal/storage"
)

// batchSize caps how many distinct names one Add/Remove pass batch
// touches before yielding, mirroring the purge engine's bounded-batch
// shape so neither maintenance path can stall foreground work (§4.5
// "both passes are chunked").
const batchSize = 512

// Interrupter is the yield-point contract Add/Remove call between
// batches. *catalog.Interruption satisfies this structurally, so this
// package never needs to import catalog (which itself imports newest
// from its mutation paths, per §4.5/§4.9).
type Interrupter interface {
	Yield(ctx context.Context) error
}

// Add scans every name introduced by storageID and upserts EntryNewest
// for any name where the incoming entry now wins (§4.5 "on add").
func Add(ctx context.Context, store storage.Store, in Interrupter, storageID int64) error {
	var lastEntryID int64
	for {
		names, err := nextAddBatch(ctx, store.DB(), storageID, lastEntryID, batchSize)
		if err != nil {
			return fmt.Errorf("newest: add batch for storage %d: %w", storageID, err)
		}
		if len(names) == 0 {
			return nil
		}
		for _, n := range names {
			if err := upsertOneName(ctx, store, n); err != nil {
				return fmt.Errorf("newest: add %q: %w", n.Name, err)
			}
			if n.EntryID > lastEntryID {
				lastEntryID = n.EntryID
			}
		}
		if in != nil {
			if err := in.Yield(ctx); err != nil {
				return err
			}
		}
	}
}

// Remove deletes and re-scans EntryNewest for every name owned by
// storageID being cleared or deleted (§4.5 "on remove").
func Remove(ctx context.Context, store storage.Store, in Interrupter, storageID int64) error {
	for {
		names, err := namesOwnedByStorage(ctx, store.DB(), storageID, batchSize)
		if err != nil {
			return fmt.Errorf("newest: remove batch for storage %d: %w", storageID, err)
		}
		if len(names) == 0 {
			return nil
		}

		for _, name := range names {
			if err := withTxOn(ctx, store, func(tx *sql.Tx) error {
				if _, err := tx.ExecContext(ctx, `DELETE FROM entriesNewest WHERE name=?`, name); err != nil {
					return err
				}
				return rescanMax(ctx, store, tx, name)
			}); err != nil {
				return fmt.Errorf("newest: rescan %q: %w", name, err)
			}
		}
		if in != nil {
			if err := in.Yield(ctx); err != nil {
				return err
			}
		}
	}
}

type candidate struct {
	Name    string
	EntryID int64
}

// nextAddBatch finds up to limit entries belonging to storageID with
// entry_id > afterID, ordered by entry id for deterministic chunking.
// "Belonging to storageID" means either a fragment in this storage
// (file/image/hardlink) or a direct storage_id on the entry's own type
// row (directory/link/special), the same ownership test purge.go's
// ownedEntryIDs uses.
func nextAddBatch(ctx context.Context, db *sql.DB, storageID, afterID int64, limit int) ([]candidate, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT e.id, e.name FROM entries e
		WHERE e.id > ?
		AND e.id IN (
			SELECT entry_id FROM entryFragments WHERE storage_id = ?
			UNION
			SELECT entry_id FROM directoryEntries WHERE storage_id = ?
			UNION
			SELECT entry_id FROM linkEntries WHERE storage_id = ?
			UNION
			SELECT entry_id FROM specialEntries WHERE storage_id = ?
		)
		ORDER BY e.id
		LIMIT ?`, afterID, storageID, storageID, storageID, storageID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.EntryID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func namesOwnedByStorage(ctx context.Context, db *sql.DB, storageID int64, limit int) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM entriesNewest WHERE storage_id=? LIMIT ?`, storageID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// upsertOneName re-derives the winning entry for name across all
// non-deleted storages: inside one transaction it deletes name's row
// and writes the winner via the dialect-specific upsert, so the row can
// move to another storage even when the winning entry id is unchanged.
func upsertOneName(ctx context.Context, store storage.Store, c candidate) error {
	return withTxOn(ctx, store, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entriesNewest WHERE name=?`, c.Name); err != nil {
			return err
		}
		return rescanMax(ctx, store, tx, c.Name)
	})
}

// rescanMax finds the current maximum (time_last_changed, entry_id,
// storage_id) candidate for name across non-deleted storages and upserts it, or
// leaves EntryNewest without a row for name if none remain. The
// candidate pool unions fragment ownership with the three
// directly-storage-scoped entry kinds, the same as nextAddBatch.
func rescanMax(ctx context.Context, store storage.Store, tx *sql.Tx, name string) error {
	row := tx.QueryRowContext(ctx, `
		SELECT e.id, e.uuid_id, e.entity_id, owner.storage_id, e.type,
			e.time_last_access, e.time_modified, e.time_last_changed,
			e.owner, e.permission, e.size
		FROM entries e
		JOIN (
			SELECT DISTINCT entry_id, storage_id FROM entryFragments
			UNION
			SELECT entry_id, storage_id FROM directoryEntries
			UNION
			SELECT entry_id, storage_id FROM linkEntries
			UNION
			SELECT entry_id, storage_id FROM specialEntries
		) owner ON owner.entry_id = e.id
		JOIN storages s ON s.id = owner.storage_id
		WHERE e.name = ? AND s.deleted = 0
		ORDER BY e.time_last_changed DESC, e.id DESC, owner.storage_id DESC
		LIMIT 1`, name)

	var nr storage.NewestRow
	var storageID int64
	err := row.Scan(&nr.EntryID, &nr.UUIDID, &nr.EntityID, &storageID, &nr.EntryType,
		&nr.TimeLastAccess, &nr.TimeModified, &nr.TimeLastChanged, &nr.Owner, &nr.Permission, &nr.Size)
	if err == sql.ErrNoRows {
		// No surviving candidate: nothing to (re)point at.
		return nil
	}
	if err != nil {
		return err
	}
	nr.Name = name
	nr.StorageID = storageID
	return store.UpsertNewest(ctx, tx, nr)
}

func withTxOn(ctx context.Context, store storage.Store, fn func(tx *sql.Tx) error) error {
	tx, err := store.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
