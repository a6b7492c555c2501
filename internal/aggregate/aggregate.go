// Package aggregate recomputes and maintains the per-kind counts and
// sizes stored on storage and entity rows (§4.4). Recomputation always
// runs from the underlying fragment/sub-row tables, so it is idempotent
// and tolerates partial state left behind by an interrupted purge.
package aggregate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/barc/catalog/internal/types"
)

// Maintainer recomputes aggregates against one open transaction. It is
// grounded on the teacher's `internal/compact` summarization pipeline in
// shape only (a Config/New constructor driving a bounded recompute pass)
// — the actual work here is SUM/COUNT SQL, not AI summarization, since
// there is no catalog analogue to compacting natural-language text.
type Maintainer struct {
	log *slog.Logger
}

// New returns a Maintainer that logs through log (or slog.Default if nil).
func New(log *slog.Logger) *Maintainer {
	if log == nil {
		log = slog.Default()
	}
	return &Maintainer{log: log}
}

// RecomputeStorage recomputes storage-level aggregates (§4.4 first
// paragraph) by grouping fragments and non-fragmenting sub-rows
// restricted to storageID, writes both the total and newest-restricted
// sets in one UPDATE, then recomputes the owning entity.
func (m *Maintainer) RecomputeStorage(ctx context.Context, tx *sql.Tx, storageID int64) error {
	agg, err := m.computeStorageAggregates(ctx, tx, storageID)
	if err != nil {
		return fmt.Errorf("aggregate: compute storage %d: %w", storageID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE storages SET
			entry_count=?, entry_size=?, file_count=?, file_size=?,
			image_count=?, image_size=?, directory_count=?, link_count=?,
			hardlink_count=?, hardlink_size=?, special_count=?,
			newest_entry_count=?, newest_entry_size=?,
			newest_file_count=?, newest_file_size=?,
			newest_image_count=?, newest_image_size=?
		WHERE id=?`,
		agg.EntryCount, agg.EntrySize, agg.FileCount, agg.FileSize,
		agg.ImageCount, agg.ImageSize, agg.DirectoryCount, agg.LinkCount,
		agg.HardlinkCount, agg.HardlinkSize, agg.SpecialCount,
		agg.NewestEntryCount, agg.NewestEntrySize,
		agg.NewestFileCount, agg.NewestFileSize,
		agg.NewestImageCount, agg.NewestImageSize,
		storageID,
	)
	if err != nil {
		return fmt.Errorf("aggregate: write storage %d: %w", storageID, err)
	}

	var entityID int64
	err = tx.QueryRowContext(ctx, `SELECT entity_id FROM storages WHERE id=?`, storageID).Scan(&entityID)
	if err != nil {
		return fmt.Errorf("aggregate: lookup owning entity of storage %d: %w", storageID, err)
	}
	return m.RecomputeEntity(ctx, tx, entityID)
}

// RecomputeEntity sums the entity's aggregates over its (non-deleted)
// storages (§4.4 second paragraph).
func (m *Maintainer) RecomputeEntity(ctx context.Context, tx *sql.Tx, entityID int64) error {
	row := tx.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(entry_count),0), COALESCE(SUM(entry_size),0),
			COALESCE(SUM(file_count),0), COALESCE(SUM(file_size),0),
			COALESCE(SUM(image_count),0), COALESCE(SUM(image_size),0),
			COALESCE(SUM(directory_count),0), COALESCE(SUM(link_count),0),
			COALESCE(SUM(hardlink_count),0), COALESCE(SUM(hardlink_size),0),
			COALESCE(SUM(special_count),0),
			COALESCE(SUM(newest_entry_count),0), COALESCE(SUM(newest_entry_size),0),
			COALESCE(SUM(newest_file_count),0), COALESCE(SUM(newest_file_size),0),
			COALESCE(SUM(newest_image_count),0), COALESCE(SUM(newest_image_size),0)
		FROM storages WHERE entity_id=? AND deleted=0`, entityID)

	var agg types.Aggregates
	err := row.Scan(
		&agg.EntryCount, &agg.EntrySize, &agg.FileCount, &agg.FileSize,
		&agg.ImageCount, &agg.ImageSize, &agg.DirectoryCount, &agg.LinkCount,
		&agg.HardlinkCount, &agg.HardlinkSize, &agg.SpecialCount,
		&agg.NewestEntryCount, &agg.NewestEntrySize,
		&agg.NewestFileCount, &agg.NewestFileSize,
		&agg.NewestImageCount, &agg.NewestImageSize,
	)
	if err != nil {
		return fmt.Errorf("aggregate: sum storages of entity %d: %w", entityID, err)
	}
	clampNonNegative(&agg, m.log, "entity", entityID)

	_, err = tx.ExecContext(ctx, `
		UPDATE entities SET
			entry_count=?, entry_size=?, file_count=?, file_size=?,
			image_count=?, image_size=?, directory_count=?, link_count=?,
			hardlink_count=?, hardlink_size=?, special_count=?,
			newest_entry_count=?, newest_entry_size=?,
			newest_file_count=?, newest_file_size=?,
			newest_image_count=?, newest_image_size=?
		WHERE id=?`,
		agg.EntryCount, agg.EntrySize, agg.FileCount, agg.FileSize,
		agg.ImageCount, agg.ImageSize, agg.DirectoryCount, agg.LinkCount,
		agg.HardlinkCount, agg.HardlinkSize, agg.SpecialCount,
		agg.NewestEntryCount, agg.NewestEntrySize,
		agg.NewestFileCount, agg.NewestFileSize,
		agg.NewestImageCount, agg.NewestImageSize,
		entityID,
	)
	if err != nil {
		return fmt.Errorf("aggregate: write entity %d: %w", entityID, err)
	}
	return nil
}

// UUIDAggregates computes aggregates for a job UUID on demand, summed
// over the entities that share it; never persisted (§4.4 third sentence).
func (m *Maintainer) UUIDAggregates(ctx context.Context, tx *sql.Tx, uuidID int64) (types.Aggregates, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(entry_count),0), COALESCE(SUM(entry_size),0),
			COALESCE(SUM(file_count),0), COALESCE(SUM(file_size),0),
			COALESCE(SUM(image_count),0), COALESCE(SUM(image_size),0),
			COALESCE(SUM(directory_count),0), COALESCE(SUM(link_count),0),
			COALESCE(SUM(hardlink_count),0), COALESCE(SUM(hardlink_size),0),
			COALESCE(SUM(special_count),0),
			COALESCE(SUM(newest_entry_count),0), COALESCE(SUM(newest_entry_size),0),
			COALESCE(SUM(newest_file_count),0), COALESCE(SUM(newest_file_size),0),
			COALESCE(SUM(newest_image_count),0), COALESCE(SUM(newest_image_size),0)
		FROM entities WHERE uuid_id=? AND deleted=0`, uuidID)

	var agg types.Aggregates
	err := row.Scan(
		&agg.EntryCount, &agg.EntrySize, &agg.FileCount, &agg.FileSize,
		&agg.ImageCount, &agg.ImageSize, &agg.DirectoryCount, &agg.LinkCount,
		&agg.HardlinkCount, &agg.HardlinkSize, &agg.SpecialCount,
		&agg.NewestEntryCount, &agg.NewestEntrySize,
		&agg.NewestFileCount, &agg.NewestFileSize,
		&agg.NewestImageCount, &agg.NewestImageSize,
	)
	if err != nil {
		return types.Aggregates{}, fmt.Errorf("aggregate: sum entities of uuid %d: %w", uuidID, err)
	}
	clampNonNegative(&agg, m.log, "uuid", uuidID)
	return agg, nil
}

func (m *Maintainer) computeStorageAggregates(ctx context.Context, tx *sql.Tx, storageID int64) (types.Aggregates, error) {
	var agg types.Aggregates

	row := tx.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT f.entry_id), COALESCE(SUM(f.size),0)
		FROM entryFragments f
		JOIN entries e ON e.id = f.entry_id
		WHERE f.storage_id = ? AND e.type = 'FILE'`, storageID)
	if err := row.Scan(&agg.FileCount, &agg.FileSize); err != nil {
		return agg, fmt.Errorf("file aggregates: %w", err)
	}

	row = tx.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT f.entry_id), COALESCE(SUM(f.size),0)
		FROM entryFragments f
		JOIN entries e ON e.id = f.entry_id
		WHERE f.storage_id = ? AND e.type = 'IMAGE'`, storageID)
	if err := row.Scan(&agg.ImageCount, &agg.ImageSize); err != nil {
		return agg, fmt.Errorf("image aggregates: %w", err)
	}

	row = tx.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT f.entry_id), COALESCE(SUM(f.size),0)
		FROM entryFragments f
		JOIN entries e ON e.id = f.entry_id
		WHERE f.storage_id = ? AND e.type = 'HARDLINK'`, storageID)
	if err := row.Scan(&agg.HardlinkCount, &agg.HardlinkSize); err != nil {
		return agg, fmt.Errorf("hardlink aggregates: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM directoryEntries WHERE storage_id=?`, storageID).
		Scan(&agg.DirectoryCount); err != nil {
		return agg, fmt.Errorf("directory aggregates: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM linkEntries WHERE storage_id=?`, storageID).
		Scan(&agg.LinkCount); err != nil {
		return agg, fmt.Errorf("link aggregates: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM specialEntries WHERE storage_id=?`, storageID).
		Scan(&agg.SpecialCount); err != nil {
		return agg, fmt.Errorf("special aggregates: %w", err)
	}

	agg.EntryCount = agg.FileCount + agg.ImageCount + agg.HardlinkCount +
		agg.DirectoryCount + agg.LinkCount + agg.SpecialCount
	agg.EntrySize = agg.FileSize + agg.ImageSize + agg.HardlinkSize

	row = tx.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN type='FILE' THEN 1 ELSE 0 END),0),
			COALESCE(SUM(CASE WHEN type='FILE' THEN size ELSE 0 END),0),
			COALESCE(SUM(CASE WHEN type='IMAGE' THEN 1 ELSE 0 END),0),
			COALESCE(SUM(CASE WHEN type='IMAGE' THEN size ELSE 0 END),0),
			COUNT(*), COALESCE(SUM(size),0)
		FROM entriesNewest WHERE storage_id=?`, storageID)
	if err := row.Scan(
		&agg.NewestFileCount, &agg.NewestFileSize,
		&agg.NewestImageCount, &agg.NewestImageSize,
		&agg.NewestEntryCount, &agg.NewestEntrySize,
	); err != nil {
		return agg, fmt.Errorf("newest aggregates: %w", err)
	}

	clampNonNegative(&agg, m.log, "storage", storageID)
	return agg, nil
}

// clampNonNegative implements the §4.4 numeric semantics note: a
// floating total returned negative (only possible mid-interruption) is
// clamped to zero and logged rather than propagated as an error.
func clampNonNegative(agg *types.Aggregates, log *slog.Logger, kind string, id int64) {
	fields := []*uint64{
		&agg.EntryCount, &agg.EntrySize, &agg.FileCount, &agg.FileSize,
		&agg.ImageCount, &agg.ImageSize, &agg.DirectoryCount, &agg.LinkCount,
		&agg.HardlinkCount, &agg.HardlinkSize, &agg.SpecialCount,
		&agg.NewestEntryCount, &agg.NewestEntrySize,
		&agg.NewestFileCount, &agg.NewestFileSize,
		&agg.NewestImageCount, &agg.NewestImageSize,
	}
	for _, f := range fields {
		// uint64 fields can't go negative in Go; this guards the SQL
		// driver handing back a signed value that looked negative before
		// scan conversion (e.g. a corrupted SUM from a half-written
		// incremental path). COALESCE already keeps NULL sums at 0.
		if int64(*f) < 0 {
			log.Warn("negative aggregate clamped to zero", "kind", kind, "id", id)
			*f = 0
		}
	}
}
