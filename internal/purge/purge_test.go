package purge

import (
	"context"
	"testing"
	"time"

	"github.com/barc/catalog/internal/aggregate"
	"github.com/barc/catalog/internal/catalog"
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

func seedStorage(t *testing.T, h *catalog.Handle, name string) (uuidID, entityID, storageID types.IndexId) {
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

// TestClearStorageRemovesNewestEntries covers the purge engine's step 6:
// clearing a storage must also drop its rows from entriesNewest.
func TestClearStorageRemovesNewestEntries(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	agg := aggregate.New(nil)
	uuidID, entityID, storageID := seedStorage(t, h, "s1")

	now := time.Now()
	if _, err := h.AddFile(ctx, agg, catalog.AddFileParams{
		StorageID: storageID, EntityID: entityID, UUIDID: uuidID,
		Name: "/a/file.txt", Type: types.EntryFile, Size: 5,
		TimeLastAccess: now, TimeModified: now, TimeLastChanged: now, FragmentSize: 5,
	}); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if _, err := h.FindNewestByName(ctx, "/a/file.txt"); err != nil {
		t.Fatalf("FindNewestByName before clear: %v", err)
	}

	engine := New(h, h.Store(), agg, 0)
	in := h.NewInterruption(0)
	if err := engine.ClearStorage(ctx, in, storageID.Value); err != nil {
		t.Fatalf("ClearStorage: %v", err)
	}

	if _, err := h.FindNewestByName(ctx, "/a/file.txt"); err == nil {
		t.Error("expected FindNewestByName to fail after the owning storage was cleared")
	}
}

// TestDeleteStorageSignalsTrigger covers §4.6's "signal the worker":
// DeleteStorage must call the wired trigger immediately rather than
// leaving the caller to wait for a maintenance worker's next poll tick.
func TestDeleteStorageSignalsTrigger(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	agg := aggregate.New(nil)
	_, _, storageID := seedStorage(t, h, "s1")

	engine := New(h, h.Store(), agg, 0)
	fired := make(chan struct{}, 1)
	engine.SetTrigger(func() { fired <- struct{}{} })

	if err := engine.DeleteStorage(ctx, storageID.Value); err != nil {
		t.Fatalf("DeleteStorage: %v", err)
	}

	select {
	case <-fired:
	default:
		t.Error("DeleteStorage did not call the wired trigger")
	}
}

func TestDeleteStorageWithoutTriggerIsNoop(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	agg := aggregate.New(nil)
	_, _, storageID := seedStorage(t, h, "s1")

	engine := New(h, h.Store(), agg, 0)
	if err := engine.DeleteStorage(ctx, storageID.Value); err != nil {
		t.Fatalf("DeleteStorage: %v", err)
	}
}

func TestPruneStorageOnlyDeletesEmptyOKStorage(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	agg := aggregate.New(nil)
	_, _, storageID := seedStorage(t, h, "s1")

	engine := New(h, h.Store(), agg, 0)
	pruned, err := engine.PruneStorage(ctx, storageID.Value)
	if err != nil {
		t.Fatalf("PruneStorage: %v", err)
	}
	if !pruned {
		t.Error("expected an empty OK storage to be pruned")
	}
}
