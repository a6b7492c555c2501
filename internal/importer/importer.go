// Package importer implements the Maintenance Worker's legacy-catalog
// import step (§4.7 step 2): find `<base>.oldNNN` siblings of the open
// catalog file, read each one's own `meta.version`, and dispatch to a
// version-specific import path (v1..v6, plus current).
//
// Grounded on the teacher's internal/importer package shape (a
// dispatch-by-source-version entry point driving per-version import
// functions with periodic progress reporting) with the JSONL/git-history
// body replaced entirely: this engine's legacy sources are older
// revisions of its own relational schema, not an issue tracker's
// append-only event log.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/barc/catalog/internal/aggregate"
	"github.com/barc/catalog/internal/catalog"
)

// CurrentVersion is the schema version this importer treats as "no
// translation needed" (matches types.INDEX_VERSION).
const CurrentVersion = 7

var legacyNamePattern = regexp.MustCompile(`\.old(\d+)$`)

// Importer runs the legacy-import step against one catalog file's
// directory. It satisfies internal/daemon's Importer interface
// structurally, so daemon need not import this package.
type Importer struct {
	log *slog.Logger
}

// New returns an Importer that logs through log (or slog.Default if nil).
func New(log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{log: log}
}

// ImportLegacy scans filepath.Dir(catalogPath) for `<base>.oldNNN`
// siblings of catalogPath, importing each in ascending NNN order. A
// sibling that imports successfully is deleted; one that fails is
// renamed to `<name>.fail` (§6 "Legacy files").
func (im *Importer) ImportLegacy(ctx context.Context, h *catalog.Handle, agg *aggregate.Maintainer, catalogPath string) error {
	if catalogPath == "" {
		return nil
	}
	siblings, err := findLegacySiblings(catalogPath)
	if err != nil {
		return fmt.Errorf("importer: scan legacy siblings of %s: %w", catalogPath, err)
	}
	for _, path := range siblings {
		if err := im.importOne(ctx, h, agg, path); err != nil {
			im.log.Warn("legacy import failed, renaming to .fail", "path", path, "error", err)
			if renameErr := os.Rename(path, path+".fail"); renameErr != nil {
				im.log.Warn("failed to rename failed legacy import", "path", path, "error", renameErr)
			}
			continue
		}
		if err := os.Remove(path); err != nil {
			im.log.Warn("failed to remove imported legacy file", "path", path, "error", err)
		}
	}
	return nil
}

// findLegacySiblings returns every `<base>.oldNNN` file next to
// catalogPath, sorted by ascending NNN (oldest schema generation first).
func findLegacySiblings(catalogPath string) ([]string, error) {
	dir := filepath.Dir(catalogPath)
	base := filepath.Base(catalogPath)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	type found struct {
		path string
		n    int
	}
	var matches []found
	for _, e := range entries {
		name := e.Name()
		if len(name) <= len(base) || name[:len(base)] != base {
			continue
		}
		m := legacyNamePattern.FindStringSubmatch(name[len(base):])
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		matches = append(matches, found{filepath.Join(dir, name), n})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].n < matches[j].n })

	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = m.path
	}
	return paths, nil
}

// importOne opens one legacy file read-write, reads its meta.version,
// dispatches to the matching import path, and recomputes aggregates for
// whatever it touched.
func (im *Importer) importOne(ctx context.Context, h *catalog.Handle, agg *aggregate.Maintainer, path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open legacy file %s: %w", path, err)
	}
	defer db.Close()

	var versionStr string
	if err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='version'`).Scan(&versionStr); err != nil {
		return fmt.Errorf("read meta.version from %s: %w", path, catalog.ErrVersionUnknown)
	}
	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return fmt.Errorf("parse meta.version %q in %s: %w", versionStr, path, catalog.ErrVersionUnknown)
	}

	progress := newProgressReporter(im.log, path)
	fn, ok := versionImporters[version]
	if !ok {
		return fmt.Errorf("importer: %s has version %d: %w", path, version, catalog.ErrVersionUnknown)
	}
	storageIDs, err := fn(ctx, db, h, progress)
	if err != nil {
		return fmt.Errorf("import %s (v%d): %w", path, version, err)
	}

	return h.Tx(ctx, func(tx *sql.Tx) error {
		for _, id := range storageIDs {
			if err := agg.RecomputeStorage(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// versionImporter imports one legacy source database into h, returning
// the ids of every storage it touched so the caller can recompute
// aggregates. Every legacy source version names a distinct row layout
// that predates the current schema.
type versionImporter func(ctx context.Context, src *sql.DB, h *catalog.Handle, progress *progressReporter) (storageIDs []int64, err error)

// versionImporters is the dispatch table §4.7 step 2 and the redesign
// notes require: the interface is load-bearing (every source version
// must be recognized and routed), but v1 through v6's row layouts are
// not specified anywhere in this system's inputs, so each entry reports
// ErrVersionUnknown rather than silently treating an unrecognized layout
// as empty. CurrentVersion's entry is the one real body; it copies only
// the source's job UUIDs (see importCurrentVersion).
var versionImporters = map[int]versionImporter{
	1:              unimplementedVersion(1),
	2:              unimplementedVersion(2),
	3:              unimplementedVersion(3),
	4:              unimplementedVersion(4),
	5:              unimplementedVersion(5),
	6:              unimplementedVersion(6),
	CurrentVersion: importCurrentVersion,
}

func unimplementedVersion(v int) versionImporter {
	return func(ctx context.Context, src *sql.DB, h *catalog.Handle, progress *progressReporter) ([]int64, error) {
		return nil, fmt.Errorf("importer: v%d import path: %w", v, catalog.ErrVersionUnknown)
	}
}

// importCurrentVersion copies the uuid rows (job UUIDs) of a
// same-schema-generation legacy file, re-minting ids through NewUUID.
// Entity, storage and entry rows are not copied, and the returned list
// of touched storage ids is always empty.
func importCurrentVersion(ctx context.Context, src *sql.DB, h *catalog.Handle, progress *progressReporter) ([]int64, error) {
	type legacyUUID struct {
		id      int64
		jobUUID string
	}
	rows, err := src.QueryContext(ctx, `SELECT id, job_uuid FROM uuids WHERE id != 0`)
	if err != nil {
		return nil, fmt.Errorf("read legacy uuids: %w", err)
	}
	var uuids []legacyUUID
	for rows.Next() {
		var u legacyUUID
		if err := rows.Scan(&u.id, &u.jobUUID); err != nil {
			rows.Close()
			return nil, err
		}
		uuids = append(uuids, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var touched []int64
	total := len(uuids)
	for i, u := range uuids {
		if _, err := h.NewUUID(ctx, u.jobUUID); err != nil {
			return touched, fmt.Errorf("import legacy uuid %d: %w", u.id, err)
		}
		progress.Step(i+1, total)
	}
	return touched, nil
}

// progressReporter emits §4.7 step 2's ETA-bearing progress lines, rate
// limited to once per minReportInterval and only when the fraction done
// has advanced by at least minStepDelta since the last report. This is
// plain arithmetic over elapsed wall time, not a concern any library in
// the example pack addresses, so it stays on log/slog and time.Since.
type progressReporter struct {
	log       *slog.Logger
	label     string
	start     time.Time
	lastEmit  time.Time
	lastFrac  float64
}

const (
	minReportInterval = 60 * time.Second
	minStepDelta      = 0.001 // 0.1%
)

func newProgressReporter(log *slog.Logger, label string) *progressReporter {
	if log == nil {
		log = slog.Default()
	}
	now := time.Now()
	return &progressReporter{log: log, label: label, start: now, lastEmit: now}
}

// Step reports progress for step `done` out of `total`, emitting a log
// line only when both the minimum interval and minimum step delta have
// elapsed since the last emission.
func (p *progressReporter) Step(done, total int) {
	if total <= 0 {
		return
	}
	frac := float64(done) / float64(total)
	now := time.Now()
	if now.Sub(p.lastEmit) < minReportInterval || frac-p.lastFrac < minStepDelta {
		return
	}
	elapsed := now.Sub(p.start)
	var eta time.Duration
	if frac > 0 {
		eta = time.Duration(float64(elapsed) / frac * (1 - frac))
	}
	p.log.Info("legacy import progress",
		"file", p.label, "done", done, "total", total,
		"percent", fmt.Sprintf("%.1f", frac*100), "eta", eta.Round(time.Second))
	p.lastEmit = now
	p.lastFrac = frac
}
