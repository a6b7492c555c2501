package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/barc/catalog/internal/aggregate"
	"github.com/barc/catalog/internal/newest"
	"github.com/barc/catalog/internal/types"
)

// NewUUID registers a job UUID, reusing the existing row if jobUUID is
// already known (§4.9 implicitly: uuids are the root of the id chain).
func (h *Handle) NewUUID(ctx context.Context, jobUUID string) (types.IndexId, error) {
	defer h.beginForeground()()
	if strings.TrimSpace(jobUUID) == "" {
		return types.NONE, fmt.Errorf("catalog: new_uuid: %w", ErrExpectedParameter)
	}
	if _, err := uuid.Parse(jobUUID); err != nil {
		return types.NONE, fmt.Errorf("catalog: new_uuid: invalid job uuid %q: %w", jobUUID, err)
	}

	var id int64
	err := h.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT id FROM uuids WHERE job_uuid=?`, jobUUID).Scan(&id); err == nil {
			return nil
		} else if err != sql.ErrNoRows {
			return err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO uuids (job_uuid) VALUES (?)`, jobUUID)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return types.NONE, wrapStoreError("new_uuid", err)
	}
	return types.NewUUIDID(id), nil
}

// NewEntityParams is the parameter bundle for NewEntity (§4.9, scenario 1).
type NewEntityParams struct {
	JobUUID      string
	ScheduleUUID string
	Host         string
	User         string
	ArchiveType  types.ArchiveType
	Created      time.Time
	Locked       bool
}

// NewEntity creates an entity owned by the job UUID, creating the UUID
// row first if it doesn't yet exist.
func (h *Handle) NewEntity(ctx context.Context, p NewEntityParams) (types.IndexId, error) {
	defer h.beginForeground()()
	if strings.TrimSpace(p.JobUUID) == "" {
		return types.NONE, fmt.Errorf("catalog: new_entity: %w", ErrExpectedParameter)
	}

	uuidID, err := h.NewUUID(ctx, p.JobUUID)
	if err != nil {
		return types.NONE, err
	}

	lockedCount := 0
	if p.Locked {
		lockedCount = 1
	}

	var id int64
	err = h.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO entities (uuid_id, job_uuid, schedule_uuid, host, user, archive_type, created_at, locked_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuidID.Value, p.JobUUID, p.ScheduleUUID, p.Host, p.User, p.ArchiveType.String(), p.Created, lockedCount)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return types.NONE, wrapStoreError("new_entity", err)
	}
	return types.NewEntityID(id), nil
}

// NewStorageParams is the parameter bundle for NewStorage (§4.9, scenario 1).
type NewStorageParams struct {
	UUIDID   types.IndexId
	EntityID types.IndexId
	Host     string
	User     string
	Name     string
	Created  time.Time
	Size     uint64
	State    types.State
	Mode     types.Mode
}

// NewStorage creates a storage row under an existing entity.
func (h *Handle) NewStorage(ctx context.Context, p NewStorageParams) (types.IndexId, error) {
	defer h.beginForeground()()
	if err := types.RequireType("new_storage: entity_id", types.TypeEntity, p.EntityID); err != nil {
		return types.NONE, err
	}
	if err := types.RequireType("new_storage: uuid_id", types.TypeUUID, p.UUIDID); err != nil {
		return types.NONE, err
	}
	var id int64
	err := h.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO storages (entity_id, uuid_id, host, user, name, created_at, size, state, mode)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.EntityID.Value, p.UUIDID.Value, p.Host, p.User, p.Name, p.Created, p.Size, p.State.String(), p.Mode.String())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return types.NONE, wrapStoreError("new_storage", err)
	}
	return types.NewStorageID(id), nil
}

// AddFileParams carries the fields needed to add a fragment-capable
// entry (file, image, or hardlink) to a storage (§4.9 "add-entry family").
type AddFileParams struct {
	StorageID       types.IndexId
	EntityID        types.IndexId
	UUIDID          types.IndexId
	Name            string
	Type            types.EntryType // File, Image, or Hardlink
	Size            uint64
	TimeLastAccess  time.Time
	TimeModified    time.Time
	TimeLastChanged time.Time
	Owner           string
	Group           string
	Permission      uint32
	FragmentOffset  uint64
	FragmentSize    uint64
}

// AddFile reuses-or-inserts the entry row for (entity, type, name),
// inserts its fragment, then bumps every ancestor DirectoryEntry's
// totals in this storage (§4.9). The newest-restricted counterparts
// (newest_entry_count/newest_entry_size) are not updated here.
func (h *Handle) AddFile(ctx context.Context, agg *aggregate.Maintainer, p AddFileParams) (types.IndexId, error) {
	defer h.beginForeground()()
	if !p.Type.FragmentCapable() {
		return types.NONE, fmt.Errorf("catalog: add_file: type %v is not fragment-capable", p.Type)
	}
	if err := types.RequireType("add_file: storage_id", types.TypeStorage, p.StorageID); err != nil {
		return types.NONE, err
	}
	if err := types.RequireType("add_file: entity_id", types.TypeEntity, p.EntityID); err != nil {
		return types.NONE, err
	}
	if err := types.RequireType("add_file: uuid_id", types.TypeUUID, p.UUIDID); err != nil {
		return types.NONE, err
	}
	var entryID int64
	err := h.withTx(ctx, func(tx *sql.Tx) error {
		id, err := upsertEntry(ctx, tx, p.EntityID.Value, p.UUIDID.Value, p.Type, p.Name,
			p.TimeLastAccess, p.TimeModified, p.TimeLastChanged, p.Owner, p.Group, p.Permission, p.Size)
		if err != nil {
			return err
		}
		entryID = id

		if err := ensureTypeRow(ctx, tx, p.Type, entryID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entryFragments (entry_id, storage_id, offset_, size) VALUES (?, ?, ?, ?)`,
			entryID, p.StorageID.Value, p.FragmentOffset, p.FragmentSize); err != nil {
			return err
		}

		if err := bumpDirectoryAncestors(ctx, tx, p.StorageID.Value, p.Name, 1, int64(p.Size)); err != nil {
			return err
		}
		return agg.RecomputeStorage(ctx, tx, p.StorageID.Value)
	})
	if err != nil {
		return types.NONE, wrapStoreError("add_file", err)
	}
	if err := newest.Add(ctx, h.store, h.NewInterruption(2*time.Second), p.StorageID.Value); err != nil {
		return types.NONE, wrapStoreError("add_file", err)
	}
	return types.NewEntryID(entryID), nil
}

// AddStructuralParams carries the fields for directory/link/special
// entries, which carry a storage_id directly on their type row instead
// of a fragment (§4.9).
type AddStructuralParams struct {
	StorageID       types.IndexId
	EntityID        types.IndexId
	UUIDID          types.IndexId
	Name            string
	Type            types.EntryType // Directory, Link, or Special
	TimeLastAccess  time.Time
	TimeModified    time.Time
	TimeLastChanged time.Time
	Owner           string
	Group           string
	Permission      uint32

	DestinationName string // Link only
	SpecialType     string // Special only
	DeviceMajor     int
	DeviceMinor     int
}

// AddStructural adds a directory, link, or special entry.
func (h *Handle) AddStructural(ctx context.Context, agg *aggregate.Maintainer, p AddStructuralParams) (types.IndexId, error) {
	defer h.beginForeground()()
	if p.Type.FragmentCapable() {
		return types.NONE, fmt.Errorf("catalog: add_structural: type %v is fragment-capable, use AddFile", p.Type)
	}
	if err := types.RequireType("add_structural: storage_id", types.TypeStorage, p.StorageID); err != nil {
		return types.NONE, err
	}
	if err := types.RequireType("add_structural: entity_id", types.TypeEntity, p.EntityID); err != nil {
		return types.NONE, err
	}
	if err := types.RequireType("add_structural: uuid_id", types.TypeUUID, p.UUIDID); err != nil {
		return types.NONE, err
	}
	var entryID int64
	err := h.withTx(ctx, func(tx *sql.Tx) error {
		id, err := upsertEntry(ctx, tx, p.EntityID.Value, p.UUIDID.Value, p.Type, p.Name,
			p.TimeLastAccess, p.TimeModified, p.TimeLastChanged, p.Owner, p.Group, p.Permission, 0)
		if err != nil {
			return err
		}
		entryID = id

		switch p.Type {
		case types.EntryDirectory:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO directoryEntries (entry_id, storage_id, path_name) VALUES (?, ?, ?)
				ON CONFLICT DO NOTHING`, entryID, p.StorageID.Value, p.Name)
		case types.EntryLink:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO linkEntries (entry_id, storage_id, destination_name) VALUES (?, ?, ?)
				ON CONFLICT DO NOTHING`, entryID, p.StorageID.Value, p.DestinationName)
		case types.EntrySpecial:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO specialEntries (entry_id, storage_id, special_type, device_major, device_minor)
				VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
				entryID, p.StorageID.Value, p.SpecialType, p.DeviceMajor, p.DeviceMinor)
		}
		if err != nil {
			return err
		}

		if err := bumpDirectoryAncestors(ctx, tx, p.StorageID.Value, p.Name, 1, 0); err != nil {
			return err
		}
		return agg.RecomputeStorage(ctx, tx, p.StorageID.Value)
	})
	if err != nil {
		return types.NONE, wrapStoreError("add_structural", err)
	}
	if err := newest.Add(ctx, h.store, h.NewInterruption(2*time.Second), p.StorageID.Value); err != nil {
		return types.NONE, wrapStoreError("add_structural", err)
	}
	return types.NewEntryID(entryID), nil
}

func upsertEntry(ctx context.Context, tx *sql.Tx, entityID, uuidID int64, t types.EntryType, name string,
	lastAccess, modified, lastChanged time.Time, owner, group string, perm uint32, size uint64) (int64, error) {

	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM entries WHERE entity_id=? AND type=? AND name=?`,
		entityID, t.String(), name).Scan(&id)
	if err == nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE entries SET time_last_access=?, time_modified=?, time_last_changed=?, owner=?, "group"=?, permission=?, size=?
			WHERE id=?`, lastAccess, modified, lastChanged, owner, group, perm, size, id)
		return id, err
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO entries (entity_id, uuid_id, type, name, time_last_access, time_modified, time_last_changed, owner, "group", permission, size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entityID, uuidID, t.String(), name, lastAccess, modified, lastChanged, owner, group, perm, size)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func ensureTypeRow(ctx context.Context, tx *sql.Tx, t types.EntryType, entryID int64) error {
	var err error
	switch t {
	case types.EntryFile:
		_, err = tx.ExecContext(ctx, `INSERT INTO fileEntries (entry_id) VALUES (?) ON CONFLICT DO NOTHING`, entryID)
	case types.EntryImage:
		_, err = tx.ExecContext(ctx, `INSERT INTO imageEntries (entry_id) VALUES (?) ON CONFLICT DO NOTHING`, entryID)
	case types.EntryHardlink:
		_, err = tx.ExecContext(ctx, `INSERT INTO hardlinkEntries (entry_id) VALUES (?) ON CONFLICT DO NOTHING`, entryID)
	default:
		return fmt.Errorf("catalog: ensure_type_row: unsupported type %v", t)
	}
	return err
}

// bumpDirectoryAncestors walks the directory prefix of name and adds
// countDelta/sizeDelta to every ancestor DirectoryEntry's totals that
// exists in storageID (§4.9 "walk the directory prefix ... bumping").
func bumpDirectoryAncestors(ctx context.Context, tx *sql.Tx, storageID int64, name string, countDelta, sizeDelta int64) error {
	dir := path.Dir(name)
	for dir != "." && dir != "/" && dir != "" {
		_, err := tx.ExecContext(ctx, `
			UPDATE directoryEntries de
			SET total_entry_count = total_entry_count + ?, total_entry_size = total_entry_size + ?
			FROM entries e
			WHERE de.entry_id = e.id AND e.name = ? AND de.storage_id = ?`,
			countDelta, sizeDelta, dir, storageID)
		if err != nil {
			// Portable fallback for dialects without UPDATE ... FROM
			// (SQLite added it in 3.33; kept here defensively).
			_, err = tx.ExecContext(ctx, `
				UPDATE directoryEntries
				SET total_entry_count = total_entry_count + ?, total_entry_size = total_entry_size + ?
				WHERE storage_id = ? AND entry_id = (SELECT id FROM entries WHERE name = ? AND type = 'DIRECTORY' LIMIT 1)`,
				countDelta, sizeDelta, storageID, dir)
			if err != nil {
				return fmt.Errorf("bump directory ancestor %q: %w", dir, err)
			}
		}
		dir = path.Dir(dir)
	}
	return nil
}

// AssignEntityToUUID moves an entity to a different job UUID, re-running
// the aggregate maintainer implicitly (entity-level aggregates don't
// depend on the owning UUID, but UUID aggregates are computed on demand
// so no stored row needs rewriting beyond the back-pointer) (§4.9, §9).
func (h *Handle) AssignEntityToUUID(ctx context.Context, entityID types.IndexId, newJobUUID string) error {
	defer h.beginForeground()()
	if err := types.RequireType("assign_entity_to_uuid: entity_id", types.TypeEntity, entityID); err != nil {
		return err
	}
	newUUIDID, err := h.NewUUID(ctx, newJobUUID)
	if err != nil {
		return err
	}
	err = h.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE entities SET uuid_id=?, job_uuid=? WHERE id=?`, newUUIDID.Value, newJobUUID, entityID.Value)
		return err
	})
	return wrapStoreError("assign_entity_to_uuid", err)
}

// AssignStorageToEntity moves a storage between entities, re-running the
// aggregate maintainer on both the old and new parent (§4.9 "Assign
// operations ... re-run the aggregate maintainer on both sides").
func (h *Handle) AssignStorageToEntity(ctx context.Context, agg *aggregate.Maintainer, storageID, newEntityID types.IndexId) error {
	defer h.beginForeground()()
	if err := types.RequireType("assign_storage_to_entity: storage_id", types.TypeStorage, storageID); err != nil {
		return err
	}
	if err := types.RequireType("assign_storage_to_entity: new_entity_id", types.TypeEntity, newEntityID); err != nil {
		return err
	}
	var oldEntityID int64
	err := h.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT entity_id FROM storages WHERE id=?`, storageID.Value).Scan(&oldEntityID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE storages SET entity_id=? WHERE id=?`, newEntityID.Value, storageID.Value); err != nil {
			return err
		}
		if err := agg.RecomputeStorage(ctx, tx, storageID.Value); err != nil {
			return err
		}
		return agg.RecomputeEntity(ctx, tx, oldEntityID)
	})
	return wrapStoreError("assign_storage_to_entity", err)
}

// LockEntity/UnlockEntity adjust locked_count (§3 invariant, §8 scenario 5).
func (h *Handle) LockEntity(ctx context.Context, entityID types.IndexId) error {
	defer h.beginForeground()()
	if err := types.RequireType("lock_entity", types.TypeEntity, entityID); err != nil {
		return err
	}
	return wrapStoreError("lock_entity", h.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE entities SET locked_count = locked_count + 1 WHERE id=?`, entityID.Value)
		return err
	}))
}

func (h *Handle) UnlockEntity(ctx context.Context, entityID types.IndexId) error {
	defer h.beginForeground()()
	if err := types.RequireType("unlock_entity", types.TypeEntity, entityID); err != nil {
		return err
	}
	return wrapStoreError("unlock_entity", h.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE entities SET locked_count = CASE WHEN locked_count > 0 THEN locked_count - 1 ELSE 0 END WHERE id=?`, entityID.Value)
		return err
	}))
}
