// Package purge implements the bounded-batch, interruptable deletion
// engine (§4.6) — the hardest algorithm in the catalog: remove every row
// belonging to a storage without blocking foreground work for more than
// one batch.
package purge

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/barc/catalog/internal/aggregate"
	"github.com/barc/catalog/internal/catalog"
	"github.com/barc/catalog/internal/newest"
	"github.com/barc/catalog/internal/storage"
)

// DefaultBatchLimit is SINGLE_STEP_PURGE_LIMIT (§6 tunable constants).
const DefaultBatchLimit = 4096

// Engine drives bounded-batch deletes against one store.
type Engine struct {
	store      storage.Store
	handle     *catalog.Handle
	batchLimit int
	agg        *aggregate.Maintainer
	trigger    func()
}

// New returns a purge Engine. batchLimit <= 0 uses DefaultBatchLimit.
func New(h *catalog.Handle, store storage.Store, agg *aggregate.Maintainer, batchLimit int) *Engine {
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}
	return &Engine{store: store, handle: h, batchLimit: batchLimit, agg: agg}
}

// SetTrigger wires fn to be called whenever DeleteStorage marks a row
// deleted, so a maintenance worker sleeping on its own tick can be woken
// immediately instead of waiting out the full interval (§4.6 "signal the
// worker", §5 "semaphore with modification signal"). A nil Engine
// trigger is a silent no-op, so wiring it is optional for callers (e.g.
// cmd/barc gc) that drive the engine without a running worker.
func (e *Engine) SetTrigger(fn func()) { e.trigger = fn }

// purgeBatch deletes up to the batch limit of rows matching whereClause
// (a fragment with "?" placeholders, no leading WHERE) from table in one
// statement, using the portable nested-derived-table form so the same
// SQL text runs unmodified against SQLite and MySQL (§4.6 "bounded-batch
// delete"; grounded on the teacher's buildSQLInClause chunking idiom in
// delete.go, generalized to a single bounded DELETE instead of an IN
// list built in Go).
func (e *Engine) purgeBatch(ctx context.Context, tx *sql.Tx, table, whereClause string, args []any) (int64, error) {
	stmt := fmt.Sprintf(
		`DELETE FROM %s WHERE id IN (SELECT id FROM (SELECT id FROM %s WHERE %s LIMIT %d) AS bic_purge_batch)`,
		table, table, whereClause, e.batchLimit,
	)
	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeTable runs purgeBatch repeatedly (via catalog.RunBatches) until
// the filter is drained or interruption fires. doneFlag reports whether
// the filter was fully drained (§4.6 "done-flag out parameter").
func (e *Engine) PurgeTable(ctx context.Context, in *catalog.Interruption, table, whereClause string, args []any) (deleted int, doneFlag bool, err error) {
	deleted, err = catalog.RunBatches(ctx, in, func(ctx context.Context) (int, error) {
		var n int64
		tx, err := e.store.DB().BeginTx(ctx, nil)
		if err != nil {
			return 0, err
		}
		defer tx.Rollback()
		n, err = e.purgeBatch(ctx, tx, table, whereClause, args)
		if err != nil {
			return 0, err
		}
		if err := tx.Commit(); err != nil {
			return 0, err
		}
		return int(n), nil
	})
	doneFlag = err == nil
	return deleted, doneFlag, err
}

// ClearStorage removes every row belonging to storageID in the exact
// order §4.6 requires to preserve referential closure, but leaves the
// storage row itself in place (used by both ClearStorage and the first
// phase of PurgeStorage).
func (e *Engine) ClearStorage(ctx context.Context, in *catalog.Interruption, storageID int64) error {
	release := e.handle.NewStorageLock(storageKey(storageID))
	defer release()

	// Step 1+2: entry ids owned by this storage, then purge its fragments.
	entryIDs, err := e.ownedEntryIDs(ctx, storageID)
	if err != nil {
		return fmt.Errorf("purge: collect entry ids of storage %d: %w", storageID, err)
	}

	if _, _, err := e.PurgeTable(ctx, in, "entryFragments", "storage_id = ?", []any{storageID}); err != nil {
		return fmt.Errorf("purge: clear storage %d fragments: %w", storageID, err)
	}

	// Step 3+4: type-specific rows for ids with no surviving fragment,
	// plus the non-fragmenting kinds scoped to this storage directly.
	if _, _, err := e.PurgeTable(ctx, in, "directoryEntries", "storage_id = ?", []any{storageID}); err != nil {
		return fmt.Errorf("purge: clear storage %d directories: %w", storageID, err)
	}
	if _, _, err := e.PurgeTable(ctx, in, "linkEntries", "storage_id = ?", []any{storageID}); err != nil {
		return fmt.Errorf("purge: clear storage %d links: %w", storageID, err)
	}
	if _, _, err := e.PurgeTable(ctx, in, "specialEntries", "storage_id = ?", []any{storageID}); err != nil {
		return fmt.Errorf("purge: clear storage %d specials: %w", storageID, err)
	}
	for _, chunk := range chunkIDs(entryIDs, e.batchLimit) {
		if err := e.purgeOrphanedTypeRows(ctx, in, chunk); err != nil {
			return fmt.Errorf("purge: clear storage %d type rows: %w", storageID, err)
		}
	}

	// Step 5: the entry rows themselves, now that nothing references them.
	for _, chunk := range chunkIDs(entryIDs, e.batchLimit) {
		inClause, args := inClauseFor(chunk)
		where := "id IN " + inClause + ` AND id NOT IN (
			SELECT entry_id FROM entryFragments UNION SELECT entry_id FROM directoryEntries
			UNION SELECT entry_id FROM linkEntries UNION SELECT entry_id FROM specialEntries)`
		if _, _, err := e.PurgeTable(ctx, in, "entries", where, args); err != nil {
			return fmt.Errorf("purge: clear storage %d entries: %w", storageID, err)
		}
	}

	// Step 6: remove-from-newest.
	if err := newest.Remove(ctx, e.store, in, storageID); err != nil {
		return fmt.Errorf("purge: clear storage %d newest index: %w", storageID, err)
	}

	// Step 7: zero aggregates and recompute the owning entity.
	if err := e.handle.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE storages SET
				entry_count=0, entry_size=0, file_count=0, file_size=0,
				image_count=0, image_size=0, directory_count=0, link_count=0,
				hardlink_count=0, hardlink_size=0, special_count=0,
				newest_entry_count=0, newest_entry_size=0,
				newest_file_count=0, newest_file_size=0,
				newest_image_count=0, newest_image_size=0
			WHERE id=?`, storageID)
		return err
	}); err != nil {
		return fmt.Errorf("purge: zero storage %d aggregates: %w", storageID, err)
	}
	if err := e.handle.Tx(ctx, func(tx *sql.Tx) error {
		return e.agg.RecomputeStorage(ctx, tx, storageID)
	}); err != nil {
		return fmt.Errorf("purge: recompute after clearing storage %d: %w", storageID, err)
	}
	return nil
}

// purgeOrphanedTypeRows deletes file/image/hardlink type rows in ids
// that no longer have any surviving fragment anywhere.
func (e *Engine) purgeOrphanedTypeRows(ctx context.Context, in *catalog.Interruption, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	inClause, args := inClauseFor(ids)
	for _, table := range []string{"fileEntries", "imageEntries", "hardlinkEntries"} {
		where := fmt.Sprintf(`entry_id IN %s AND entry_id NOT IN (SELECT entry_id FROM entryFragments)`, inClause)
		if _, _, err := e.PurgeTable(ctx, in, table, where, args); err != nil {
			return err
		}
	}
	return nil
}

// PurgeStorage is the "strong deletion" of §4.6: clear, then remove the
// storage's own row. No FTS table is touched here.
func (e *Engine) PurgeStorage(ctx context.Context, in *catalog.Interruption, storageID int64) error {
	if err := e.ClearStorage(ctx, in, storageID); err != nil {
		return err
	}
	return e.handle.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM storages WHERE id=?`, storageID)
		return err
	})
}

// PruneStorage deletes storageID only if it is state OK and empty
// (§4.6 "pruning").
func (e *Engine) PruneStorage(ctx context.Context, storageID int64) (pruned bool, err error) {
	err = e.handle.Tx(ctx, func(tx *sql.Tx) error {
		var state string
		var entryCount int64
		if err := tx.QueryRowContext(ctx, `SELECT state, entry_count FROM storages WHERE id=?`, storageID).
			Scan(&state, &entryCount); err != nil {
			return err
		}
		if state != "OK" || entryCount != 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM storages WHERE id=?`, storageID); err != nil {
			return err
		}
		pruned = true
		return nil
	})
	return pruned, err
}

// PruneEntity deletes entityID only if unlocked, not the default entity,
// and empty.
func (e *Engine) PruneEntity(ctx context.Context, entityID int64) (pruned bool, err error) {
	err = e.handle.Tx(ctx, func(tx *sql.Tx) error {
		var lockedCount, entryCount int64
		if err := tx.QueryRowContext(ctx, `SELECT locked_count, entry_count FROM entities WHERE id=?`, entityID).
			Scan(&lockedCount, &entryCount); err != nil {
			return err
		}
		if lockedCount > 0 || entryCount != 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id=? AND id != 1`, entityID); err != nil {
			return err
		}
		pruned = true
		return nil
	})
	return pruned, err
}

// PruneUUID deletes uuidID only if it has no entities.
func (e *Engine) PruneUUID(ctx context.Context, uuidID int64) (pruned bool, err error) {
	err = e.handle.Tx(ctx, func(tx *sql.Tx) error {
		var n int64
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE uuid_id=?`, uuidID).Scan(&n); err != nil {
			return err
		}
		if n != 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM uuids WHERE id=?`, uuidID); err != nil {
			return err
		}
		pruned = true
		return nil
	})
	return pruned, err
}

// DeleteStorage is the cheap, user-visible delete (§4.6 "deletion
// policy"): marks the storage deleted, decrements the owning entity's
// aggregates by the storage's stored totals, prunes the entity if now
// empty, and leaves the slow reclamation to the worker.
func (e *Engine) DeleteStorage(ctx context.Context, storageID int64) error {
	var entityID int64
	if err := e.handle.Tx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT entity_id, entry_count, entry_size, file_count, file_size,
				image_count, image_size, directory_count, link_count,
				hardlink_count, hardlink_size, special_count,
				newest_entry_count, newest_entry_size,
				newest_file_count, newest_file_size, newest_image_count, newest_image_size
			FROM storages WHERE id=?`, storageID)
		var s struct {
			entryCount, entrySize, fileCount, fileSize, imageCount, imageSize,
			dirCount, linkCount, hardlinkCount, hardlinkSize, specialCount,
			newestEntryCount, newestEntrySize, newestFileCount, newestFileSize,
			newestImageCount, newestImageSize int64
		}
		if err := row.Scan(&entityID, &s.entryCount, &s.entrySize, &s.fileCount, &s.fileSize,
			&s.imageCount, &s.imageSize, &s.dirCount, &s.linkCount, &s.hardlinkCount, &s.hardlinkSize,
			&s.specialCount, &s.newestEntryCount, &s.newestEntrySize, &s.newestFileCount, &s.newestFileSize,
			&s.newestImageCount, &s.newestImageSize); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE storages SET deleted=1 WHERE id=?`, storageID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE entities SET
				entry_count = entry_count - ?, entry_size = entry_size - ?,
				file_count = file_count - ?, file_size = file_size - ?,
				image_count = image_count - ?, image_size = image_size - ?,
				directory_count = directory_count - ?, link_count = link_count - ?,
				hardlink_count = hardlink_count - ?, hardlink_size = hardlink_size - ?,
				special_count = special_count - ?,
				newest_entry_count = newest_entry_count - ?, newest_entry_size = newest_entry_size - ?,
				newest_file_count = newest_file_count - ?, newest_file_size = newest_file_size - ?,
				newest_image_count = newest_image_count - ?, newest_image_size = newest_image_size - ?
			WHERE id=?`,
			s.entryCount, s.entrySize, s.fileCount, s.fileSize, s.imageCount, s.imageSize,
			s.dirCount, s.linkCount, s.hardlinkCount, s.hardlinkSize, s.specialCount,
			s.newestEntryCount, s.newestEntrySize, s.newestFileCount, s.newestFileSize,
			s.newestImageCount, s.newestImageSize, entityID,
		)
		return err
	}); err != nil {
		return fmt.Errorf("purge: delete_storage %d: %w", storageID, err)
	}

	if _, err := e.PruneEntity(ctx, entityID); err != nil {
		return fmt.Errorf("purge: prune entity %d after delete_storage: %w", entityID, err)
	}
	if e.trigger != nil {
		e.trigger()
	}
	return nil
}

// NextDeletedStorage returns one storage row with deleted=1 and
// state != UPDATE (§4.7 step 4's "single row, to minimize
// prepared-statement lifetime" candidate pick), or found=false if none
// remain.
func (e *Engine) NextDeletedStorage(ctx context.Context) (storageID, entityID int64, found bool, err error) {
	err = e.handle.Tx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, entity_id FROM storages
			WHERE deleted = 1 AND state != 'UPDATE'
			LIMIT 1`)
		if scanErr := row.Scan(&storageID, &entityID); scanErr != nil {
			if scanErr == sql.ErrNoRows {
				return nil
			}
			return scanErr
		}
		found = true
		return nil
	})
	return storageID, entityID, found, err
}

func (e *Engine) ownedEntryIDs(ctx context.Context, storageID int64) ([]int64, error) {
	seen := map[int64]struct{}{}
	add := func(rows *sql.Rows) error {
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			seen[id] = struct{}{}
		}
		return rows.Err()
	}

	rows, err := e.store.DB().QueryContext(ctx, `SELECT DISTINCT entry_id FROM entryFragments WHERE storage_id=?`, storageID)
	if err != nil {
		return nil, err
	}
	if err := add(rows); err != nil {
		return nil, err
	}
	for _, table := range []string{"directoryEntries", "linkEntries", "specialEntries"} {
		rows, err := e.store.DB().QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT entry_id FROM %s WHERE storage_id=?`, table), storageID)
		if err != nil {
			return nil, err
		}
		if err := add(rows); err != nil {
			return nil, err
		}
	}

	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out, nil
}

func chunkIDs(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = DefaultBatchLimit
	}
	var chunks [][]int64
	for len(ids) > 0 {
		n := size
		if n > len(ids) {
			n = len(ids)
		}
		chunks = append(chunks, ids[:n])
		ids = ids[n:]
	}
	return chunks
}

func inClauseFor(ids []int64) (string, []any) {
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	return "(" + string(placeholders) + ")", args
}

func storageKey(id int64) string { return fmt.Sprintf("storage:%d", id) }
