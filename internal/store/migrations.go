package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "entries: partition-scoped memory entries",
		SQL: `
CREATE TABLE entries (
    fingerprint      TEXT PRIMARY KEY,
    partition_id     TEXT NOT NULL,
    payload          BLOB,

    -- Spatial identity
    resonance        REAL NOT NULL DEFAULT 0,
    pattern          BLOB,

    -- Retention state
    importance       REAL NOT NULL DEFAULT 0,
    persistent       INTEGER NOT NULL DEFAULT 0,
    decay            REAL NOT NULL DEFAULT 0,

    -- Access tracking
    created_at       INTEGER NOT NULL,
    last_accessed_at INTEGER NOT NULL,
    access_count     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_entries_partition  ON entries(partition_id);
CREATE INDEX idx_entries_persistent ON entries(persistent);
`,
	},
	{
		Version:     2,
		Description: "crystals: append-only promoted entries and clusters",
		SQL: `
CREATE TABLE crystals (
    id                  TEXT PRIMARY KEY,
    source_fingerprint  TEXT,
    member_fingerprints BLOB,
    pattern             BLOB,
    stability_score     REAL NOT NULL,
    created_at          INTEGER NOT NULL
);

CREATE INDEX idx_crystals_created ON crystals(created_at DESC);
`,
	},
	{
		Version:     3,
		Description: "partitions: durable spiral placement",
		SQL: `
CREATE TABLE partitions (
    id           TEXT PRIMARY KEY,
    content_type TEXT NOT NULL,
    depth_tag    TEXT NOT NULL,
    position     BLOB NOT NULL,
    capacity     REAL NOT NULL,
    created_at   INTEGER NOT NULL
);

CREATE INDEX idx_partitions_group ON partitions(content_type, depth_tag, created_at);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
