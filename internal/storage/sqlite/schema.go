package sqlite

// schemaStatements is the versioned DDL bundle for the SQLite dialect
// (§6). Every statement is CREATE ... IF NOT EXISTS, and the whole
// bundle is applied on each read-write or create Open, inside the
// transaction ensureSchema uses; there are no incremental migrations.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS uuids (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		job_uuid TEXT NOT NULL UNIQUE
	)`,

	`CREATE TABLE IF NOT EXISTS entities (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid_id          INTEGER NOT NULL,
		job_uuid         TEXT NOT NULL,
		schedule_uuid    TEXT NOT NULL DEFAULT '',
		host             TEXT NOT NULL DEFAULT '',
		user             TEXT NOT NULL DEFAULT '',
		archive_type     TEXT NOT NULL DEFAULT 'NORMAL',
		created_at       DATETIME NOT NULL,
		locked_count     INTEGER NOT NULL DEFAULT 0,
		deleted          INTEGER NOT NULL DEFAULT 0,
		entry_count         INTEGER NOT NULL DEFAULT 0,
		entry_size          INTEGER NOT NULL DEFAULT 0,
		file_count          INTEGER NOT NULL DEFAULT 0,
		file_size           INTEGER NOT NULL DEFAULT 0,
		image_count         INTEGER NOT NULL DEFAULT 0,
		image_size          INTEGER NOT NULL DEFAULT 0,
		directory_count     INTEGER NOT NULL DEFAULT 0,
		link_count          INTEGER NOT NULL DEFAULT 0,
		hardlink_count      INTEGER NOT NULL DEFAULT 0,
		hardlink_size       INTEGER NOT NULL DEFAULT 0,
		special_count       INTEGER NOT NULL DEFAULT 0,
		newest_entry_count  INTEGER NOT NULL DEFAULT 0,
		newest_entry_size   INTEGER NOT NULL DEFAULT 0,
		newest_file_count   INTEGER NOT NULL DEFAULT 0,
		newest_file_size    INTEGER NOT NULL DEFAULT 0,
		newest_image_count  INTEGER NOT NULL DEFAULT 0,
		newest_image_size   INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_uuid_id ON entities(uuid_id)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_job_uuid ON entities(job_uuid)`,

	`CREATE TABLE IF NOT EXISTS storages (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id        INTEGER NOT NULL,
		uuid_id          INTEGER NOT NULL,
		host             TEXT NOT NULL DEFAULT '',
		user             TEXT NOT NULL DEFAULT '',
		name             TEXT NOT NULL,
		created_at       DATETIME NOT NULL,
		size             INTEGER NOT NULL DEFAULT 0,
		state            TEXT NOT NULL DEFAULT 'CREATE',
		mode             TEXT NOT NULL DEFAULT 'MANUAL',
		last_checked     DATETIME,
		last_error       TEXT NOT NULL DEFAULT '',
		deleted          INTEGER NOT NULL DEFAULT 0,
		entry_count         INTEGER NOT NULL DEFAULT 0,
		entry_size          INTEGER NOT NULL DEFAULT 0,
		file_count          INTEGER NOT NULL DEFAULT 0,
		file_size           INTEGER NOT NULL DEFAULT 0,
		image_count         INTEGER NOT NULL DEFAULT 0,
		image_size          INTEGER NOT NULL DEFAULT 0,
		directory_count     INTEGER NOT NULL DEFAULT 0,
		link_count          INTEGER NOT NULL DEFAULT 0,
		hardlink_count      INTEGER NOT NULL DEFAULT 0,
		hardlink_size       INTEGER NOT NULL DEFAULT 0,
		special_count       INTEGER NOT NULL DEFAULT 0,
		newest_entry_count  INTEGER NOT NULL DEFAULT 0,
		newest_entry_size   INTEGER NOT NULL DEFAULT 0,
		newest_file_count   INTEGER NOT NULL DEFAULT 0,
		newest_file_size    INTEGER NOT NULL DEFAULT 0,
		newest_image_count  INTEGER NOT NULL DEFAULT 0,
		newest_image_size   INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_storages_entity_id ON storages(entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_storages_uuid_id ON storages(uuid_id)`,
	`CREATE INDEX IF NOT EXISTS idx_storages_deleted_state ON storages(deleted, state)`,

	`CREATE TABLE IF NOT EXISTS entries (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id         INTEGER NOT NULL,
		uuid_id           INTEGER NOT NULL,
		type              TEXT NOT NULL,
		name              TEXT NOT NULL,
		time_last_access  DATETIME,
		time_modified     DATETIME,
		time_last_changed DATETIME,
		owner             TEXT NOT NULL DEFAULT '',
		"group"           TEXT NOT NULL DEFAULT '',
		permission        INTEGER NOT NULL DEFAULT 0,
		size              INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_entity_id ON entries(entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_name ON entries(name)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_entity_type_name ON entries(entity_id, type, name)`,

	`CREATE TABLE IF NOT EXISTS fileEntries (
		entry_id INTEGER PRIMARY KEY REFERENCES entries(id)
	)`,

	`CREATE TABLE IF NOT EXISTS imageEntries (
		entry_id    INTEGER PRIMARY KEY REFERENCES entries(id),
		file_system TEXT NOT NULL DEFAULT '',
		block_size  INTEGER NOT NULL DEFAULT 0,
		size        INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS directoryEntries (
		entry_id            INTEGER NOT NULL REFERENCES entries(id),
		storage_id          INTEGER NOT NULL,
		path_name           TEXT NOT NULL,
		total_entry_count   INTEGER NOT NULL DEFAULT 0,
		total_entry_size    INTEGER NOT NULL DEFAULT 0,
		newest_entry_count  INTEGER NOT NULL DEFAULT 0,
		newest_entry_size   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (entry_id, storage_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_directory_storage ON directoryEntries(storage_id)`,
	`CREATE INDEX IF NOT EXISTS idx_directory_path ON directoryEntries(path_name)`,

	`CREATE TABLE IF NOT EXISTS linkEntries (
		entry_id         INTEGER NOT NULL REFERENCES entries(id),
		storage_id       INTEGER NOT NULL,
		destination_name TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (entry_id, storage_id)
	)`,

	`CREATE TABLE IF NOT EXISTS hardlinkEntries (
		entry_id INTEGER PRIMARY KEY REFERENCES entries(id),
		size     INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS specialEntries (
		entry_id     INTEGER NOT NULL REFERENCES entries(id),
		storage_id   INTEGER NOT NULL,
		special_type TEXT NOT NULL DEFAULT '',
		device_major INTEGER NOT NULL DEFAULT 0,
		device_minor INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (entry_id, storage_id)
	)`,

	`CREATE TABLE IF NOT EXISTS entryFragments (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id   INTEGER NOT NULL,
		storage_id INTEGER NOT NULL,
		offset_    INTEGER NOT NULL,
		size       INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fragments_entry ON entryFragments(entry_id)`,
	`CREATE INDEX IF NOT EXISTS idx_fragments_storage ON entryFragments(storage_id)`,

	`CREATE TABLE IF NOT EXISTS entriesNewest (
		name              TEXT PRIMARY KEY,
		entry_id          INTEGER NOT NULL,
		storage_id        INTEGER NOT NULL,
		uuid_id           INTEGER NOT NULL,
		entity_id         INTEGER NOT NULL,
		type              TEXT NOT NULL,
		time_last_access  DATETIME,
		time_modified     DATETIME,
		time_last_changed DATETIME,
		owner             TEXT NOT NULL DEFAULT '',
		permission        INTEGER NOT NULL DEFAULT 0,
		size              INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS skippedEntries (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		storage_id INTEGER NOT NULL,
		name       TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS history (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid_id        INTEGER NOT NULL,
		entity_id      INTEGER NOT NULL,
		started_at     DATETIME NOT NULL,
		duration_ns    INTEGER NOT NULL DEFAULT 0,
		total_entries  INTEGER NOT NULL DEFAULT 0,
		total_size     INTEGER NOT NULL DEFAULT 0,
		error_message  TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS FTS_entries USING fts5(
		name, content='entries', content_rowid='id'
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS FTS_storages USING fts5(
		name, content='storages', content_rowid='id'
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS FTS_uuids USING fts5(
		job_uuid, content='uuids', content_rowid='id'
	)`,
}

// seedStatements runs once on a brand new catalog file: the reserved
// uuid row 0 and the default entity (§3 ownership note; §9 design note
// on DefaultEntityID). ensureSchema writes the schema version marker
// itself.
var seedStatements = []string{
	`INSERT OR IGNORE INTO uuids (id, job_uuid) VALUES (0, '')`,
	`INSERT OR IGNORE INTO entities (id, uuid_id, job_uuid, archive_type, created_at, locked_count)
		VALUES (1, 0, '', 'NORMAL', CURRENT_TIMESTAMP, 0)`,
}
