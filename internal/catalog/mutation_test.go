package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/barc/catalog/internal/aggregate"
	"github.com/barc/catalog/internal/storage/sqlite"
	"github.com/barc/catalog/internal/types"
)

func openTestHandle(t *testing.T) *Handle {
	t.Helper()
	store := sqlite.New()
	h, err := Create(context.Background(), store, ":memory:", Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func newTestEntity(t *testing.T, h *Handle) (uuidID, entityID types.IndexId) {
	t.Helper()
	ctx := context.Background()
	uuidID, err := h.NewUUID(ctx, "11111111-1111-1111-1111-111111111111")
	if err != nil {
		t.Fatalf("NewUUID: %v", err)
	}
	entityID, err = h.NewEntity(ctx, NewEntityParams{
		JobUUID:     "11111111-1111-1111-1111-111111111111",
		Host:        "host",
		User:        "user",
		ArchiveType: types.ArchiveNormal,
		Created:     time.Now(),
	})
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	return uuidID, entityID
}

func newTestStorage(t *testing.T, h *Handle, uuidID, entityID types.IndexId, name string) types.IndexId {
	t.Helper()
	storageID, err := h.NewStorage(context.Background(), NewStorageParams{
		UUIDID:   uuidID,
		EntityID: entityID,
		Name:     name,
		Created:  time.Now(),
		State:    types.StateOK,
		Mode:     types.ModeManual,
	})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return storageID
}

// TestAddFileFeedsNewestIndex is §8 scenario 2: add_file then query newest
// by name returns an entry pointing at the storage that was just added.
func TestAddFileFeedsNewestIndex(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	agg := aggregate.New(nil)
	uuidID, entityID := newTestEntity(t, h)
	storageID := newTestStorage(t, h, uuidID, entityID, "storage-a")

	now := time.Now()
	_, err := h.AddFile(ctx, agg, AddFileParams{
		StorageID:       storageID,
		EntityID:        entityID,
		UUIDID:          uuidID,
		Name:            "/data/file.txt",
		Type:            types.EntryFile,
		Size:            1024,
		TimeLastAccess:  now,
		TimeModified:    now,
		TimeLastChanged: now,
		Owner:           "root",
		Permission:      0644,
		FragmentSize:    1024,
	})
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	n, err := h.FindNewestByName(ctx, "/data/file.txt")
	if err != nil {
		t.Fatalf("FindNewestByName: %v", err)
	}
	if n.StorageID != storageID.Value {
		t.Errorf("newest entry points at storage %d, want %d", n.StorageID, storageID.Value)
	}
	if n.Type != types.EntryFile {
		t.Errorf("newest entry type = %v, want FILE", n.Type)
	}
}

// TestAddStructuralFeedsNewestIndex exercises the three non-fragment-
// capable kinds the newest-index bug previously dropped entirely.
func TestAddStructuralFeedsNewestIndex(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	agg := aggregate.New(nil)
	uuidID, entityID := newTestEntity(t, h)
	storageID := newTestStorage(t, h, uuidID, entityID, "storage-a")

	now := time.Now()
	for _, p := range []AddStructuralParams{
		{
			StorageID: storageID, EntityID: entityID, UUIDID: uuidID,
			Name: "/data/dir", Type: types.EntryDirectory,
			TimeLastAccess: now, TimeModified: now, TimeLastChanged: now,
		},
		{
			StorageID: storageID, EntityID: entityID, UUIDID: uuidID,
			Name: "/data/link", Type: types.EntryLink, DestinationName: "/data/dir",
			TimeLastAccess: now, TimeModified: now, TimeLastChanged: now,
		},
		{
			StorageID: storageID, EntityID: entityID, UUIDID: uuidID,
			Name: "/data/dev", Type: types.EntrySpecial, SpecialType: "CHAR",
			TimeLastAccess: now, TimeModified: now, TimeLastChanged: now,
		},
	} {
		if _, err := h.AddStructural(ctx, agg, p); err != nil {
			t.Fatalf("AddStructural(%s): %v", p.Name, err)
		}
	}

	for _, want := range []struct {
		name string
		typ  types.EntryType
	}{
		{"/data/dir", types.EntryDirectory},
		{"/data/link", types.EntryLink},
		{"/data/dev", types.EntrySpecial},
	} {
		n, err := h.FindNewestByName(ctx, want.name)
		if err != nil {
			t.Fatalf("FindNewestByName(%s): %v", want.name, err)
		}
		if n.Type != want.typ {
			t.Errorf("FindNewestByName(%s).Type = %v, want %v", want.name, n.Type, want.typ)
		}
		if n.StorageID != storageID.Value {
			t.Errorf("FindNewestByName(%s).StorageID = %d, want %d", want.name, n.StorageID, storageID.Value)
		}
	}
}

// TestAddFileNewerStorageWins covers §3 invariant 2: the same name
// reintroduced by a later storage with a greater modification time
// replaces the newest pointer.
func TestAddFileNewerStorageWins(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	agg := aggregate.New(nil)
	uuidID, entityID := newTestEntity(t, h)
	storageA := newTestStorage(t, h, uuidID, entityID, "storage-a")
	storageB := newTestStorage(t, h, uuidID, entityID, "storage-b")

	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	if _, err := h.AddFile(ctx, agg, AddFileParams{
		StorageID: storageA, EntityID: entityID, UUIDID: uuidID,
		Name: "/data/file.txt", Type: types.EntryFile, Size: 10,
		TimeLastAccess: older, TimeModified: older, TimeLastChanged: older,
		FragmentSize: 10,
	}); err != nil {
		t.Fatalf("AddFile(storageA): %v", err)
	}
	if _, err := h.AddFile(ctx, agg, AddFileParams{
		StorageID: storageB, EntityID: entityID, UUIDID: uuidID,
		Name: "/data/file.txt", Type: types.EntryFile, Size: 20,
		TimeLastAccess: newer, TimeModified: newer, TimeLastChanged: newer,
		FragmentSize: 20,
	}); err != nil {
		t.Fatalf("AddFile(storageB): %v", err)
	}

	n, err := h.FindNewestByName(ctx, "/data/file.txt")
	if err != nil {
		t.Fatalf("FindNewestByName: %v", err)
	}
	if n.StorageID != storageB.Value {
		t.Errorf("newest entry points at storage %d, want the newer storage %d", n.StorageID, storageB.Value)
	}
}

func TestFindNewestByNameNotFound(t *testing.T) {
	h := openTestHandle(t)
	if _, err := h.FindNewestByName(context.Background(), "/nope"); !isNotFound(err) {
		t.Errorf("expected ErrNotFound for an unknown name, got %v", err)
	}
}

// TestLockUnlockEntityAdjustsCount covers §3's locked_count invariant.
func TestLockUnlockEntityAdjustsCount(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	_, entityID := newTestEntity(t, h)

	if err := h.LockEntity(ctx, entityID); err != nil {
		t.Fatalf("LockEntity: %v", err)
	}
	e, err := h.FindEntity(ctx, entityID)
	if err != nil {
		t.Fatalf("FindEntity: %v", err)
	}
	if e.LockedCount != 1 {
		t.Errorf("LockedCount = %d, want 1", e.LockedCount)
	}

	if err := h.UnlockEntity(ctx, entityID); err != nil {
		t.Fatalf("UnlockEntity: %v", err)
	}
	e, err = h.FindEntity(ctx, entityID)
	if err != nil {
		t.Fatalf("FindEntity: %v", err)
	}
	if e.LockedCount != 0 {
		t.Errorf("LockedCount = %d, want 0", e.LockedCount)
	}

	// Unlocking an already-unlocked entity clamps at zero rather than
	// going negative.
	if err := h.UnlockEntity(ctx, entityID); err != nil {
		t.Fatalf("UnlockEntity (already zero): %v", err)
	}
	e, err = h.FindEntity(ctx, entityID)
	if err != nil {
		t.Fatalf("FindEntity: %v", err)
	}
	if e.LockedCount != 0 {
		t.Errorf("LockedCount went negative: %d", e.LockedCount)
	}
}
