package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/barc/catalog/internal/types"
)

// filterClause is an AND-joined SQL fragment plus its positional args,
// the small filter DSL named in §4.8.
type filterClause struct {
	parts []string
	args  []any
}

func (f *filterClause) add(expr string, args ...any) {
	f.parts = append(f.parts, expr)
	f.args = append(f.args, args...)
}

func (f *filterClause) idSet(column string, ids []int64) {
	if len(ids) == 0 {
		return
	}
	ph := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	f.add(fmt.Sprintf("%s IN (%s)", column, ph))
	for _, id := range ids {
		f.args = append(f.args, id)
	}
}

func (f *filterClause) where() (string, []any) {
	if len(f.parts) == 0 {
		return "1=1", nil
	}
	return strings.Join(f.parts, " AND "), f.args
}

// TokenizePattern implements §4.8's full-text pattern rule: split on
// whitespace with quote grouping, strip each token to alphanumerics and
// UTF-8 codepoints >= 128, append a trailing "*" to form a prefix query.
// An all-whitespace or empty pattern yields no tokens (a no-op filter).
func TokenizePattern(pattern string) []string {
	raw := splitWords(pattern)
	tokens := make([]string, 0, len(raw))
	for _, w := range raw {
		var b strings.Builder
		for _, r := range w {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r >= 128 {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String()+"*")
		}
	}
	return tokens
}

// splitWords tokenizes on whitespace but keeps a double-quoted run
// together as one word (quotes stripped), matching §4.8's "whitespace
// (with quote grouping)" rule.
func splitWords(s string) []string {
	var words []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
		case unicode.IsSpace(r) && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

// ftsMatchExpr joins tokens into an FTS5 MATCH query string (AND of
// prefix terms); returns "" if there are no tokens (caller should skip
// the FTS join entirely).
func ftsMatchExpr(tokens []string) string {
	return strings.Join(tokens, " ")
}

// entitySortColumns maps §6's entity sort-mode vocabulary to columns.
var entitySortColumns = map[types.EntitySortMode]string{
	types.EntitySortJobUUID: "job_uuid",
	types.EntitySortCreated: "created_at",
}

var storageSortColumns = map[types.StorageSortMode]string{
	types.StorageSortName:    "name",
	types.StorageSortSize:    "size",
	types.StorageSortCreated: "created_at",
	types.StorageSortState:   "state",
}

var entrySortColumns = map[types.EntrySortMode]string{
	types.EntrySortName:        "name",
	types.EntrySortType:        "type",
	types.EntrySortSize:        "size",
	types.EntrySortLastChanged: "time_last_changed",
}

func orderClause(column string, order types.SortOrder) string {
	if column == "" || order == types.OrderNone {
		return ""
	}
	dir := "ASC"
	if order == types.OrderDescending {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", column, dir)
}

// EntityRows is a single-pass, finite cursor over entity rows (§4.8,
// §9 "generators/cursors" note: modeled as a non-restartable lazy
// sequence, not a reusable iterator).
type EntityRows struct {
	rows *sql.Rows
}

func (c *EntityRows) Next(dest *types.Entity) (bool, error) {
	if !c.rows.Next() {
		return false, c.rows.Err()
	}
	var archiveType string
	err := c.rows.Scan(&dest.ID, &dest.JobUUID, &dest.ScheduleUUID, &dest.Host, &dest.User,
		&archiveType, &dest.Created, &dest.LockedCount, &dest.Deleted,
		&dest.EntryCount, &dest.EntrySize, &dest.FileCount, &dest.FileSize,
		&dest.ImageCount, &dest.ImageSize, &dest.DirectoryCount, &dest.LinkCount,
		&dest.HardlinkCount, &dest.HardlinkSize, &dest.SpecialCount,
		&dest.NewestEntryCount, &dest.NewestEntrySize, &dest.NewestFileCount, &dest.NewestFileSize,
		&dest.NewestImageCount, &dest.NewestImageSize)
	if err != nil {
		return false, err
	}
	dest.ArchiveType, err = types.ParseArchiveType(archiveType)
	return true, err
}

// Close is explicit and idempotent (§9 cursor note).
func (c *EntityRows) Close() error { return c.rows.Close() }

const entityColumns = `id, job_uuid, schedule_uuid, host, user, archive_type, created_at, locked_count, deleted,
	entry_count, entry_size, file_count, file_size, image_count, image_size, directory_count, link_count,
	hardlink_count, hardlink_size, special_count,
	newest_entry_count, newest_entry_size, newest_file_count, newest_file_size, newest_image_count, newest_image_size`

// ListEntities runs an entity listing against filter f, returning a
// cursor (§4.8).
func (h *Handle) ListEntities(ctx context.Context, f types.EntityFilter) (*EntityRows, error) {
	defer h.beginForeground()()
	clause := &filterClause{}
	clause.idSet("id", f.EntityIDs)
	clause.idSet("uuid_id", f.UUIDIDs)
	if f.Host != "" {
		clause.add("host = ?", f.Host)
	}
	if f.User != "" {
		clause.add("user = ?", f.User)
	}
	if f.ArchiveType != nil {
		clause.add("archive_type = ?", f.ArchiveType.String())
	}
	if !f.IncludeDeleted {
		clause.add("deleted = 0")
	}

	where, args := clause.where()
	column := entitySortColumns[f.Sort]
	query := fmt.Sprintf("SELECT %s FROM entities WHERE %s%s", entityColumns, where, orderClause(column, f.Order))
	query, args = applyPage(query, args, f.Offset, f.Limit)

	rows, err := h.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreError("list_entities", err)
	}
	return &EntityRows{rows: rows}, nil
}

// FindEntity looks up one entity by id (§8 scenario 1).
func (h *Handle) FindEntity(ctx context.Context, id types.IndexId) (types.Entity, error) {
	defer h.beginForeground()()
	if err := types.RequireType("find_entity", types.TypeEntity, id); err != nil {
		return types.Entity{}, err
	}
	row := h.store.DB().QueryRowContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE id=?", id.Value)
	var e types.Entity
	var archiveType string
	err := row.Scan(&e.ID, &e.JobUUID, &e.ScheduleUUID, &e.Host, &e.User,
		&archiveType, &e.Created, &e.LockedCount, &e.Deleted,
		&e.EntryCount, &e.EntrySize, &e.FileCount, &e.FileSize,
		&e.ImageCount, &e.ImageSize, &e.DirectoryCount, &e.LinkCount,
		&e.HardlinkCount, &e.HardlinkSize, &e.SpecialCount,
		&e.NewestEntryCount, &e.NewestEntrySize, &e.NewestFileCount, &e.NewestFileSize,
		&e.NewestImageCount, &e.NewestImageSize)
	if err != nil {
		return types.Entity{}, wrapStoreError("find_entity", err)
	}
	e.ArchiveType, err = types.ParseArchiveType(archiveType)
	return e, err
}

const storageColumns = `id, entity_id, uuid_id, host, user, name, created_at, size, state, mode, last_checked, last_error, deleted,
	entry_count, entry_size, file_count, file_size, image_count, image_size, directory_count, link_count,
	hardlink_count, hardlink_size, special_count,
	newest_entry_count, newest_entry_size, newest_file_count, newest_file_size, newest_image_count, newest_image_size`

func scanStorage(row interface{ Scan(...any) error }) (types.Storage, error) {
	var s types.Storage
	var state, mode string
	var lastChecked sql.NullTime
	err := row.Scan(&s.ID, &s.EntityID, &s.UUIDID, &s.Host, &s.User, &s.Name, &s.Created, &s.Size,
		&state, &mode, &lastChecked, &s.LastError, &s.Deleted,
		&s.EntryCount, &s.EntrySize, &s.FileCount, &s.FileSize,
		&s.ImageCount, &s.ImageSize, &s.DirectoryCount, &s.LinkCount,
		&s.HardlinkCount, &s.HardlinkSize, &s.SpecialCount,
		&s.NewestEntryCount, &s.NewestEntrySize, &s.NewestFileCount, &s.NewestFileSize,
		&s.NewestImageCount, &s.NewestImageSize)
	if err != nil {
		return s, err
	}
	if lastChecked.Valid {
		s.LastChecked = lastChecked.Time
	}
	if s.State, err = types.ParseState(state); err != nil {
		return s, err
	}
	s.Mode, err = types.ParseMode(mode)
	return s, err
}

// FindStorageByID looks up one storage by id (§8 scenario 1).
func (h *Handle) FindStorageByID(ctx context.Context, id types.IndexId) (types.Storage, error) {
	defer h.beginForeground()()
	if err := types.RequireType("find_storage_by_id", types.TypeStorage, id); err != nil {
		return types.Storage{}, err
	}
	row := h.store.DB().QueryRowContext(ctx, "SELECT "+storageColumns+" FROM storages WHERE id=?", id.Value)
	s, err := scanStorage(row)
	if err != nil {
		return types.Storage{}, wrapStoreError("find_storage_by_id", err)
	}
	return s, nil
}

// StorageRows is the cursor type for ListStorages.
type StorageRows struct{ rows *sql.Rows }

func (c *StorageRows) Next() (types.Storage, bool, error) {
	if !c.rows.Next() {
		return types.Storage{}, false, c.rows.Err()
	}
	s, err := scanStorage(c.rows)
	return s, true, err
}
func (c *StorageRows) Close() error { return c.rows.Close() }

// ListStorages runs a storage listing against filter f, joining the FTS
// projection when a pattern is present (§4.8).
func (h *Handle) ListStorages(ctx context.Context, f types.StorageFilter) (*StorageRows, error) {
	defer h.beginForeground()()
	clause := &filterClause{}
	clause.idSet("id", f.StorageIDs)
	clause.idSet("entity_id", f.EntityIDs)
	clause.idSet("uuid_id", f.UUIDIDs)
	if f.State != nil {
		clause.add("state = ?", f.State.String())
	}
	if len(f.StateSet) > 0 {
		vals := make([]string, len(f.StateSet))
		for i, s := range f.StateSet {
			vals[i] = s.String()
		}
		ph := strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")
		clause.add(fmt.Sprintf("state IN (%s)", ph))
		for _, v := range vals {
			clause.args = append(clause.args, v)
		}
	}
	if f.Mode != nil {
		clause.add("mode = ?", f.Mode.String())
	}
	if f.Host != "" {
		clause.add("host = ?", f.Host)
	}
	if f.User != "" {
		clause.add("user = ?", f.User)
	}
	if !f.IncludeDeleted {
		clause.add("deleted = 0")
	}

	from := "storages"
	if tokens := TokenizePattern(f.Pattern); len(tokens) > 0 {
		from = "storages JOIN FTS_storages ON FTS_storages.rowid = storages.id"
		clause.add("FTS_storages MATCH ?", ftsMatchExpr(tokens))
	}

	where, args := clause.where()
	column := storageSortColumns[f.Sort]
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s%s", qualify(storageColumns, "storages"), from, where, orderClause(column, f.Order))
	query, args = applyPage(query, args, f.Offset, f.Limit)

	rows, err := h.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreError("list_storages", err)
	}
	return &StorageRows{rows: rows}, nil
}

// EntryRows is the cursor type for ListEntries.
type EntryRows struct{ rows *sql.Rows }

func (c *EntryRows) Next() (types.Entry, bool, error) {
	if !c.rows.Next() {
		return types.Entry{}, false, c.rows.Err()
	}
	var e types.Entry
	var entryType string
	err := c.rows.Scan(&e.ID, &e.EntityID, &e.UUIDID, &entryType, &e.Name,
		&e.TimeLastAccess, &e.TimeModified, &e.TimeLastChanged, &e.Owner, &e.Group, &e.Permission, &e.Size)
	if err != nil {
		return e, false, err
	}
	e.Type, err = types.ParseEntryType(entryType)
	return e, true, err
}
func (c *EntryRows) Close() error { return c.rows.Close() }

const entryColumns = `id, entity_id, uuid_id, type, name, time_last_access, time_modified, time_last_changed, owner, "group", permission, size`

// ListEntries runs an entry listing against filter f (§4.8).
func (h *Handle) ListEntries(ctx context.Context, f types.EntryFilter) (*EntryRows, error) {
	defer h.beginForeground()()
	clause := &filterClause{}
	clause.idSet("entity_id", f.EntityIDs)
	if len(f.TypeSet) > 0 {
		vals := make([]string, len(f.TypeSet))
		for i, t := range f.TypeSet {
			vals[i] = t.String()
		}
		ph := strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")
		clause.add(fmt.Sprintf("type IN (%s)", ph))
		for _, v := range vals {
			clause.args = append(clause.args, v)
		}
	}

	from := "entries"
	if tokens := TokenizePattern(f.Pattern); len(tokens) > 0 {
		from = "entries JOIN FTS_entries ON FTS_entries.rowid = entries.id"
		clause.add("FTS_entries MATCH ?", ftsMatchExpr(tokens))
	}

	where, args := clause.where()
	column := entrySortColumns[f.Sort]
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s%s", qualify(entryColumns, "entries"), from, where, orderClause(column, f.Order))
	query, args = applyPage(query, args, f.Offset, f.Limit)

	rows, err := h.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreError("list_entries", err)
	}
	return &EntryRows{rows: rows}, nil
}

const newestColumns = `name, entry_id, storage_id, uuid_id, entity_id, type,
	time_last_access, time_modified, time_last_changed, owner, permission, size`

// FindNewestByName looks up the EntryNewest projection row for name, the
// read side of §4.5's Newest-Version Index (§8 scenario 2: "add_file ->
// query newest by name -> entry of storage S").
func (h *Handle) FindNewestByName(ctx context.Context, name string) (types.EntryNewest, error) {
	defer h.beginForeground()()
	row := h.store.DB().QueryRowContext(ctx, "SELECT "+newestColumns+" FROM entriesNewest WHERE name=?", name)
	var n types.EntryNewest
	var entryType string
	err := row.Scan(&n.Name, &n.EntryID, &n.StorageID, &n.UUIDID, &n.EntityID, &entryType,
		&n.TimeLastAccess, &n.TimeModified, &n.TimeLastChanged, &n.Owner, &n.Permission, &n.Size)
	if err != nil {
		return types.EntryNewest{}, wrapStoreError("find_newest", err)
	}
	n.Type, err = types.ParseEntryType(entryType)
	return n, err
}

// applyPage appends LIMIT/OFFSET to query; limit <= 0 means unbounded.
func applyPage(query string, args []any, offset, limit int) (string, []any) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	} else if offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, offset)
	}
	return query, args
}

// qualify prefixes a bare column list with table. so it survives a join
// without ambiguity; table.* isn't safe once FTS_* tables are joined in
// because they share column names like "name".
func qualify(columns, table string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if strings.Contains(p, "(") || p == "" {
			parts[i] = p
			continue
		}
		parts[i] = table + "." + p
	}
	return strings.Join(parts, ", ")
}
