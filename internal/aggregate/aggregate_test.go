package aggregate

import (
	"context"
	"database/sql"
	"testing"
	"time"

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

// TestRecomputeStorageCountsEveryKind covers §4.4: a storage's
// aggregates count both kinds of ownership, a fragment-capable entry (a
// file) and a direct-storage_id one (a directory).
func TestRecomputeStorageCountsEveryKind(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	agg := New(nil)

	uuidID, err := h.NewUUID(ctx, "11111111-1111-1111-1111-111111111111")
	if err != nil {
		t.Fatalf("NewUUID: %v", err)
	}
	entityID, err := h.NewEntity(ctx, catalog.NewEntityParams{
		JobUUID: "11111111-1111-1111-1111-111111111111", Created: time.Now(), ArchiveType: types.ArchiveNormal,
	})
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	storageID, err := h.NewStorage(ctx, catalog.NewStorageParams{
		UUIDID: uuidID, EntityID: entityID, Name: "s1", Created: time.Now(),
		State: types.StateOK, Mode: types.ModeManual,
	})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	now := time.Now()
	if _, err := h.AddFile(ctx, agg, catalog.AddFileParams{
		StorageID: storageID, EntityID: entityID, UUIDID: uuidID,
		Name: "/a/file.txt", Type: types.EntryFile, Size: 100,
		TimeLastAccess: now, TimeModified: now, TimeLastChanged: now, FragmentSize: 100,
	}); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if _, err := h.AddStructural(ctx, agg, catalog.AddStructuralParams{
		StorageID: storageID, EntityID: entityID, UUIDID: uuidID,
		Name: "/a", Type: types.EntryDirectory,
		TimeLastAccess: now, TimeModified: now, TimeLastChanged: now,
	}); err != nil {
		t.Fatalf("AddStructural: %v", err)
	}

	s, err := h.FindStorageByID(ctx, storageID)
	if err != nil {
		t.Fatalf("FindStorageByID: %v", err)
	}
	if s.FileCount != 1 {
		t.Errorf("FileCount = %d, want 1", s.FileCount)
	}
	if s.FileSize != 100 {
		t.Errorf("FileSize = %d, want 100", s.FileSize)
	}
	if s.DirectoryCount != 1 {
		t.Errorf("DirectoryCount = %d, want 1", s.DirectoryCount)
	}
	if s.EntryCount != 2 {
		t.Errorf("EntryCount = %d, want 2", s.EntryCount)
	}

	e, err := h.FindEntity(ctx, entityID)
	if err != nil {
		t.Fatalf("FindEntity: %v", err)
	}
	if e.EntryCount != s.EntryCount {
		t.Errorf("entity EntryCount = %d, want to match storage's %d", e.EntryCount, s.EntryCount)
	}
}

func TestClampNonNegativeZerosAndLogs(t *testing.T) {
	agg := types.Aggregates{EntryCount: 3}
	// clampNonNegative only guards against a signed value that looked
	// negative before scan conversion; on a genuinely positive uint64
	// field it must leave the value untouched.
	clampNonNegative(&agg, New(nil).log, "storage", 1)
	if agg.EntryCount != 3 {
		t.Errorf("clampNonNegative altered a non-negative value: got %d, want 3", agg.EntryCount)
	}
}

func TestUUIDAggregatesSumsEntities(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	agg := New(nil)

	uuidID, err := h.NewUUID(ctx, "11111111-1111-1111-1111-111111111111")
	if err != nil {
		t.Fatalf("NewUUID: %v", err)
	}
	entityID, err := h.NewEntity(ctx, catalog.NewEntityParams{
		JobUUID: "11111111-1111-1111-1111-111111111111", Created: time.Now(), ArchiveType: types.ArchiveNormal,
	})
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	storageID, err := h.NewStorage(ctx, catalog.NewStorageParams{
		UUIDID: uuidID, EntityID: entityID, Name: "s1", Created: time.Now(),
		State: types.StateOK, Mode: types.ModeManual,
	})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	now := time.Now()
	if _, err := h.AddFile(ctx, agg, catalog.AddFileParams{
		StorageID: storageID, EntityID: entityID, UUIDID: uuidID,
		Name: "/a/file.txt", Type: types.EntryFile, Size: 42,
		TimeLastAccess: now, TimeModified: now, TimeLastChanged: now, FragmentSize: 42,
	}); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	var got types.Aggregates
	err = h.Tx(ctx, func(tx *sql.Tx) error {
		var txErr error
		got, txErr = agg.UUIDAggregates(ctx, tx, uuidID.Value)
		return txErr
	})
	if err != nil {
		t.Fatalf("UUIDAggregates: %v", err)
	}
	if got.FileCount != 1 || got.FileSize != 42 {
		t.Errorf("UUIDAggregates = %+v, want FileCount=1 FileSize=42", got)
	}
}
