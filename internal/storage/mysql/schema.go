package mysql

// schemaStatements mirrors the SQLite dialect's table bundle with the
// MySQL-specific type substitutions (AUTO_INCREMENT, no inline CHECK on
// generated columns, InnoDB engine) and drops the FTS virtual tables in
// favor of MySQL native FULLTEXT indexes (§6).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		` + "`key`" + ` VARCHAR(64) PRIMARY KEY,
		value TEXT NOT NULL
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS uuids (
		id       BIGINT PRIMARY KEY AUTO_INCREMENT,
		job_uuid VARCHAR(64) NOT NULL UNIQUE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS entities (
		id               BIGINT PRIMARY KEY AUTO_INCREMENT,
		uuid_id          BIGINT NOT NULL,
		job_uuid         VARCHAR(64) NOT NULL,
		schedule_uuid    VARCHAR(64) NOT NULL DEFAULT '',
		host             VARCHAR(255) NOT NULL DEFAULT '',
		user             VARCHAR(255) NOT NULL DEFAULT '',
		archive_type     VARCHAR(32) NOT NULL DEFAULT 'NORMAL',
		created_at       DATETIME NOT NULL,
		locked_count     INT NOT NULL DEFAULT 0,
		deleted          TINYINT NOT NULL DEFAULT 0,
		entry_count         BIGINT NOT NULL DEFAULT 0,
		entry_size          BIGINT NOT NULL DEFAULT 0,
		file_count          BIGINT NOT NULL DEFAULT 0,
		file_size           BIGINT NOT NULL DEFAULT 0,
		image_count         BIGINT NOT NULL DEFAULT 0,
		image_size          BIGINT NOT NULL DEFAULT 0,
		directory_count     BIGINT NOT NULL DEFAULT 0,
		link_count          BIGINT NOT NULL DEFAULT 0,
		hardlink_count      BIGINT NOT NULL DEFAULT 0,
		hardlink_size       BIGINT NOT NULL DEFAULT 0,
		special_count       BIGINT NOT NULL DEFAULT 0,
		newest_entry_count  BIGINT NOT NULL DEFAULT 0,
		newest_entry_size   BIGINT NOT NULL DEFAULT 0,
		newest_file_count   BIGINT NOT NULL DEFAULT 0,
		newest_file_size    BIGINT NOT NULL DEFAULT 0,
		newest_image_count  BIGINT NOT NULL DEFAULT 0,
		newest_image_size   BIGINT NOT NULL DEFAULT 0,
		KEY idx_entities_uuid_id (uuid_id),
		KEY idx_entities_job_uuid (job_uuid)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS storages (
		id               BIGINT PRIMARY KEY AUTO_INCREMENT,
		entity_id        BIGINT NOT NULL,
		uuid_id          BIGINT NOT NULL,
		host             VARCHAR(255) NOT NULL DEFAULT '',
		user             VARCHAR(255) NOT NULL DEFAULT '',
		name             VARCHAR(255) NOT NULL,
		created_at       DATETIME NOT NULL,
		size             BIGINT NOT NULL DEFAULT 0,
		state            VARCHAR(32) NOT NULL DEFAULT 'CREATE',
		mode             VARCHAR(32) NOT NULL DEFAULT 'MANUAL',
		last_checked     DATETIME NULL,
		last_error       TEXT NOT NULL,
		deleted          TINYINT NOT NULL DEFAULT 0,
		entry_count         BIGINT NOT NULL DEFAULT 0,
		entry_size          BIGINT NOT NULL DEFAULT 0,
		file_count          BIGINT NOT NULL DEFAULT 0,
		file_size           BIGINT NOT NULL DEFAULT 0,
		image_count         BIGINT NOT NULL DEFAULT 0,
		image_size          BIGINT NOT NULL DEFAULT 0,
		directory_count     BIGINT NOT NULL DEFAULT 0,
		link_count          BIGINT NOT NULL DEFAULT 0,
		hardlink_count      BIGINT NOT NULL DEFAULT 0,
		hardlink_size       BIGINT NOT NULL DEFAULT 0,
		special_count       BIGINT NOT NULL DEFAULT 0,
		newest_entry_count  BIGINT NOT NULL DEFAULT 0,
		newest_entry_size   BIGINT NOT NULL DEFAULT 0,
		newest_file_count   BIGINT NOT NULL DEFAULT 0,
		newest_file_size    BIGINT NOT NULL DEFAULT 0,
		newest_image_count  BIGINT NOT NULL DEFAULT 0,
		newest_image_size   BIGINT NOT NULL DEFAULT 0,
		KEY idx_storages_entity_id (entity_id),
		KEY idx_storages_uuid_id (uuid_id),
		KEY idx_storages_deleted_state (deleted, state)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS entries (
		id                BIGINT PRIMARY KEY AUTO_INCREMENT,
		entity_id         BIGINT NOT NULL,
		uuid_id           BIGINT NOT NULL,
		type              VARCHAR(16) NOT NULL,
		name              VARCHAR(1024) NOT NULL,
		time_last_access  DATETIME NULL,
		time_modified     DATETIME NULL,
		time_last_changed DATETIME NULL,
		owner             VARCHAR(128) NOT NULL DEFAULT '',
		` + "`group`" + ` VARCHAR(128) NOT NULL DEFAULT '',
		permission        INT NOT NULL DEFAULT 0,
		size              BIGINT NOT NULL DEFAULT 0,
		KEY idx_entries_entity_id (entity_id),
		FULLTEXT KEY ft_entries_name (name),
		UNIQUE KEY idx_entries_entity_type_name (entity_id, type, name(255))
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS fileEntries (
		entry_id BIGINT PRIMARY KEY
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS imageEntries (
		entry_id    BIGINT PRIMARY KEY,
		file_system VARCHAR(64) NOT NULL DEFAULT '',
		block_size  BIGINT NOT NULL DEFAULT 0,
		size        BIGINT NOT NULL DEFAULT 0
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS directoryEntries (
		entry_id            BIGINT NOT NULL,
		storage_id          BIGINT NOT NULL,
		path_name           VARCHAR(2048) NOT NULL,
		total_entry_count   BIGINT NOT NULL DEFAULT 0,
		total_entry_size    BIGINT NOT NULL DEFAULT 0,
		newest_entry_count  BIGINT NOT NULL DEFAULT 0,
		newest_entry_size   BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (entry_id, storage_id),
		KEY idx_directory_storage (storage_id),
		KEY idx_directory_path (path_name(255))
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS linkEntries (
		entry_id         BIGINT NOT NULL,
		storage_id       BIGINT NOT NULL,
		destination_name VARCHAR(2048) NOT NULL DEFAULT '',
		PRIMARY KEY (entry_id, storage_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS hardlinkEntries (
		entry_id BIGINT PRIMARY KEY,
		size     BIGINT NOT NULL DEFAULT 0
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS specialEntries (
		entry_id     BIGINT NOT NULL,
		storage_id   BIGINT NOT NULL,
		special_type VARCHAR(32) NOT NULL DEFAULT '',
		device_major INT NOT NULL DEFAULT 0,
		device_minor INT NOT NULL DEFAULT 0,
		PRIMARY KEY (entry_id, storage_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS entryFragments (
		id         BIGINT PRIMARY KEY AUTO_INCREMENT,
		entry_id   BIGINT NOT NULL,
		storage_id BIGINT NOT NULL,
		offset_    BIGINT NOT NULL,
		size       BIGINT NOT NULL,
		KEY idx_fragments_entry (entry_id),
		KEY idx_fragments_storage (storage_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS entriesNewest (
		name              VARCHAR(1024) NOT NULL,
		entry_id          BIGINT NOT NULL,
		storage_id        BIGINT NOT NULL,
		uuid_id           BIGINT NOT NULL,
		entity_id         BIGINT NOT NULL,
		type              VARCHAR(16) NOT NULL,
		time_last_access  DATETIME NULL,
		time_modified     DATETIME NULL,
		time_last_changed DATETIME NULL,
		owner             VARCHAR(128) NOT NULL DEFAULT '',
		permission        INT NOT NULL DEFAULT 0,
		size              BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (name(255))
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS skippedEntries (
		id         BIGINT PRIMARY KEY AUTO_INCREMENT,
		storage_id BIGINT NOT NULL,
		name       VARCHAR(1024) NOT NULL,
		reason     VARCHAR(255) NOT NULL DEFAULT ''
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS history (
		id             BIGINT PRIMARY KEY AUTO_INCREMENT,
		uuid_id        BIGINT NOT NULL,
		entity_id      BIGINT NOT NULL,
		started_at     DATETIME NOT NULL,
		duration_ns    BIGINT NOT NULL DEFAULT 0,
		total_entries  BIGINT NOT NULL DEFAULT 0,
		total_size     BIGINT NOT NULL DEFAULT 0,
		error_message  TEXT NOT NULL
	) ENGINE=InnoDB`,
}

var seedStatements = []string{
	`INSERT IGNORE INTO uuids (id, job_uuid) VALUES (0, '')`,
	`INSERT IGNORE INTO entities (id, uuid_id, job_uuid, archive_type, created_at, locked_count)
		VALUES (1, 0, '', 'NORMAL', NOW(), 0)`,
}
