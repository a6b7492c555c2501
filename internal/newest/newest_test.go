package newest_test

import (
	"context"
	"testing"
	"time"

	"github.com/barc/catalog/internal/aggregate"
	"github.com/barc/catalog/internal/catalog"
	"github.com/barc/catalog/internal/newest"
	"github.com/barc/catalog/internal/storage/sqlite"
	"github.com/barc/catalog/internal/types"
)

func openTestHandle(t *testing.T) *catalog.Handle {
	t.Helper()
	store := sqlite.New()
	h, err := catalog.Create(context.Background(), store, ":memory:", catalog.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func seedEntityAndStorage(t *testing.T, h *catalog.Handle, name string) (uuidID, entityID, storageID types.IndexId) {
	t.Helper()
	ctx := context.Background()
	var err error
	uuidID, err = h.NewUUID(ctx, "11111111-1111-1111-1111-111111111111")
	if err != nil {
		t.Fatalf("NewUUID: %v", err)
	}
	entityID, err = h.NewEntity(ctx, catalog.NewEntityParams{
		JobUUID: "11111111-1111-1111-1111-111111111111", Created: time.Now(), ArchiveType: types.ArchiveNormal,
	})
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	storageID, err = h.NewStorage(ctx, catalog.NewStorageParams{
		UUIDID: uuidID, EntityID: entityID, Name: name, Created: time.Now(),
		State: types.StateOK, Mode: types.ModeManual,
	})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return uuidID, entityID, storageID
}

// TestAddCoversNonFragmentKinds exercises Add directly (rather than
// through Handle.AddStructural) against every one of the three
// direct-storage_id entry kinds, since those were invisible to
// nextAddBatch/rescanMax before they unioned in directoryEntries/
// linkEntries/specialEntries.
func TestAddCoversNonFragmentKinds(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	agg := aggregate.New(nil)
	uuidID, entityID, storageID := seedEntityAndStorage(t, h, "s1")

	now := time.Now()
	if _, err := h.AddStructural(ctx, agg, catalog.AddStructuralParams{
		StorageID: storageID, EntityID: entityID, UUIDID: uuidID,
		Name: "/a/dir", Type: types.EntryDirectory,
		TimeLastAccess: now, TimeModified: now, TimeLastChanged: now,
	}); err != nil {
		t.Fatalf("AddStructural(directory): %v", err)
	}
	if _, err := h.AddStructural(ctx, agg, catalog.AddStructuralParams{
		StorageID: storageID, EntityID: entityID, UUIDID: uuidID,
		Name: "/a/link", Type: types.EntryLink, DestinationName: "/a/dir",
		TimeLastAccess: now, TimeModified: now, TimeLastChanged: now,
	}); err != nil {
		t.Fatalf("AddStructural(link): %v", err)
	}
	if _, err := h.AddStructural(ctx, agg, catalog.AddStructuralParams{
		StorageID: storageID, EntityID: entityID, UUIDID: uuidID,
		Name: "/a/dev", Type: types.EntrySpecial, SpecialType: "BLOCK",
		TimeLastAccess: now, TimeModified: now, TimeLastChanged: now,
	}); err != nil {
		t.Fatalf("AddStructural(special): %v", err)
	}

	for _, name := range []string{"/a/dir", "/a/link", "/a/dev"} {
		n, err := h.FindNewestByName(ctx, name)
		if err != nil {
			t.Fatalf("FindNewestByName(%s): %v", name, err)
		}
		if n.StorageID != storageID.Value {
			t.Errorf("FindNewestByName(%s).StorageID = %d, want %d", name, n.StorageID, storageID.Value)
		}
	}
}

// TestRemoveDropsNonFragmentKinds is Remove's mirror of the Add test
// above: clearing the owning storage must drop directory/link/special
// entries from entriesNewest just like it drops file/image/hardlink ones.
func TestRemoveDropsNonFragmentKinds(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	store := h.Store()
	storageID := int64(7)

	if _, err := store.DB().ExecContext(ctx, `
		INSERT INTO entriesNewest (name, entry_id, storage_id, uuid_id, entity_id, type)
		VALUES ('/a/dir', 1, ?, 0, 0, 'DIRECTORY')`, storageID); err != nil {
		t.Fatalf("seed entriesNewest: %v", err)
	}

	if err := newest.Remove(ctx, store, nil, storageID); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	var count int
	if err := store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM entriesNewest WHERE name='/a/dir'`).Scan(&count); err != nil {
		t.Fatalf("count entriesNewest: %v", err)
	}
	if count != 0 {
		t.Errorf("entriesNewest still has %d row(s) for /a/dir after Remove", count)
	}
}
