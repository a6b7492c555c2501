package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/barc/catalog/internal/catalog"
	"github.com/barc/catalog/internal/engineconfig"
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

func TestRunInitialCleanupDeletesEmptyNamedStorage(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)

	uuidID, err := h.NewUUID(ctx, "11111111-1111-1111-1111-111111111111")
	if err != nil {
		t.Fatalf("NewUUID: %v", err)
	}
	entityID, err := h.NewEntity(ctx, catalog.NewEntityParams{
		JobUUID:     "11111111-1111-1111-1111-111111111111",
		Host:        "host",
		User:        "user",
		ArchiveType: types.ArchiveNormal,
		Created:     time.Now(),
	})
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	_, err = h.NewStorage(ctx, catalog.NewStorageParams{
		UUIDID:   uuidID,
		EntityID: entityID,
		Name:     "",
		Created:  time.Now(),
		State:    types.StateOK,
		Mode:     types.ModeManual,
	})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	w := New(h, h.Store(), engineconfig.DefaultConfig(), nil, nil)
	if err := w.deleteEmptyNamedStorages(ctx); err != nil {
		t.Fatalf("deleteEmptyNamedStorages: %v", err)
	}

	ids, err := w.queryIDs(ctx, `SELECT id FROM storages WHERE name=''`)
	if err != nil {
		t.Fatalf("queryIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected empty-named storage to be purged, found %d remaining", len(ids))
	}
}

func TestWindowPredicateOpenAndClosed(t *testing.T) {
	h := openTestHandle(t)
	cfg := engineconfig.DefaultConfig()
	cfg.Window = engineconfig.WindowConfig{StartHour: 1, EndHour: 1} // StartHour==EndHour => always open per Predicate
	w := New(h, h.Store(), cfg, nil, nil)

	if !w.cfg.Window.Predicate()(time.Now()) {
		t.Fatal("expected StartHour==EndHour window to always be open")
	}

	w.cfg.Window = engineconfig.WindowConfig{StartHour: 0, EndHour: 0, Days: []string{"mon"}}
	closed := time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC) // a Tuesday
	if w.cfg.Window.Predicate()(closed) {
		t.Fatal("expected tuesday to fall outside a monday-only window")
	}
}

func TestTriggerWakesSleepTick(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	w := New(h, h.Store(), engineconfig.DefaultConfig(), nil, nil)
	w.cfg.Tunables.MaintenanceSleep = 5 * time.Minute

	done := make(chan bool, 1)
	go func() { done <- w.sleepTick(ctx) }()
	w.Trigger()

	select {
	case ok := <-done:
		if !ok {
			t.Error("sleepTick returned false after a Trigger wake")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sleepTick did not wake on Trigger")
	}
}
