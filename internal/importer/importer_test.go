package importer

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/barc/catalog/internal/aggregate"
	"github.com/barc/catalog/internal/catalog"
	"github.com/barc/catalog/internal/storage/sqlite"
)

func TestFindLegacySiblingsOrdersByGeneration(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "catalog.db")
	for _, suffix := range []string{".old003", ".old001", ".old010"} {
		if err := os.WriteFile(base+suffix, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(base, []byte("x"), 0o644)
	os.WriteFile(base+".fail", []byte("x"), 0o644)

	got, err := findLegacySiblings(base)
	if err != nil {
		t.Fatalf("findLegacySiblings: %v", err)
	}
	want := []string{base + ".old001", base + ".old003", base + ".old010"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestImportOneUnknownVersionRenamesToFail(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	legacyPath := filepath.Join(dir, "catalog.db.old001")

	db, err := sql.Open("sqlite3", legacyPath)
	if err != nil {
		t.Fatalf("open legacy file: %v", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('version', '3')`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	store := sqlite.New()
	h, err := catalog.Create(ctx, store, ":memory:", catalog.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer h.Close()

	im := New(nil)
	agg := aggregate.New(nil)
	if err := im.ImportLegacy(ctx, h, agg, filepath.Join(dir, "catalog.db")); err != nil {
		t.Fatalf("ImportLegacy: %v", err)
	}

	if _, err := os.Stat(legacyPath + ".fail"); err != nil {
		t.Errorf("expected %s to exist after a v3 import failure: %v", legacyPath+".fail", err)
	}
	if _, err := os.Stat(legacyPath); !os.IsNotExist(err) {
		t.Errorf("expected original legacy file to be gone (renamed), stat err: %v", err)
	}
}

func TestImportOneCurrentVersionCopiesUUIDs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	legacyPath := filepath.Join(dir, "catalog.db.old007")

	db, err := sql.Open("sqlite3", legacyPath)
	if err != nil {
		t.Fatalf("open legacy file: %v", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('version', '7')`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE uuids (id INTEGER PRIMARY KEY, job_uuid TEXT NOT NULL UNIQUE)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO uuids (id, job_uuid) VALUES (5, '22222222-2222-2222-2222-222222222222')`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	store := sqlite.New()
	h, err := catalog.Create(ctx, store, ":memory:", catalog.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer h.Close()

	im := New(nil)
	agg := aggregate.New(nil)
	if err := im.ImportLegacy(ctx, h, agg, filepath.Join(dir, "catalog.db")); err != nil {
		t.Fatalf("ImportLegacy: %v", err)
	}

	id, err := h.NewUUID(ctx, "22222222-2222-2222-2222-222222222222")
	if err != nil {
		t.Fatalf("NewUUID lookup: %v", err)
	}
	if id.IsNone() {
		t.Error("expected imported uuid to be present after legacy import")
	}
	if _, err := os.Stat(legacyPath); !os.IsNotExist(err) {
		t.Errorf("expected legacy file to be deleted after successful import, stat err: %v", err)
	}
}

func TestProgressReporterRateLimits(t *testing.T) {
	p := newProgressReporter(nil, "test")
	p.lastEmit = time.Now().Add(-2 * time.Minute)
	p.Step(1, 1000) // small delta, but interval elapsed -> should emit and reset lastEmit
	if time.Since(p.lastEmit) > time.Second {
		t.Error("expected Step to refresh lastEmit once the interval elapsed")
	}
}
