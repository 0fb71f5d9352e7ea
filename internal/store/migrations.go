package store

// Migration represents a database migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: "001_init",
		Up: `
-- Downloaded backup artifacts
CREATE TABLE downloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id TEXT NOT NULL,
    filename TEXT NOT NULL,
    output_path TEXT NOT NULL,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    checksum TEXT NOT NULL DEFAULT '',
    verified BOOLEAN NOT NULL DEFAULT 0,
    fetched_at DATETIME NOT NULL
);

CREATE INDEX idx_downloads_site ON downloads(site_id);
CREATE INDEX idx_downloads_filename ON downloads(filename);

-- Restore operation history
CREATE TABLE restore_operations (
    id TEXT PRIMARY KEY,
    site_id TEXT NOT NULL,
    target_filename TEXT NOT NULL,
    state TEXT NOT NULL,
    pre_backup_requested BOOLEAN NOT NULL DEFAULT 0,
    pre_backup_filename TEXT NOT NULL DEFAULT '',
    can_rollback BOOLEAN NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL,
    finished_at DATETIME
);

CREATE INDEX idx_restores_site ON restore_operations(site_id);
CREATE INDEX idx_restores_state ON restore_operations(state);
`,
		Down: `
DROP TABLE restore_operations;
DROP TABLE downloads;
`,
	},
}
