package store

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// CreateSchema creates the database schema if it doesn't exist and checks
// the version of an existing one.
func CreateSchema(db *sql.DB) error {
	if err := createSchemaVersionTable(db); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	tables := []struct {
		name string
		ddl  string
	}{
		{"blobs", blobsTable},
		{"rules", rulesTable},
		{"matches", matchesTable},
		{"findings", findingsTable},
		{"provenance", provenanceTable},
	}
	for _, t := range tables {
		if _, err := db.Exec(t.ddl); err != nil {
			return fmt.Errorf("creating %s table: %w", t.name, err)
		}
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}

	return nil
}

func createSchemaVersionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		_, err = db.Exec("INSERT INTO schema_version (version) VALUES (?)", SchemaVersion)
		return err
	case err != nil:
		return err
	case version != SchemaVersion:
		return fmt.Errorf("unsupported schema version %d (expected %d)", version, SchemaVersion)
	}
	return nil
}

const blobsTable = `
	CREATE TABLE IF NOT EXISTS blobs (
		id TEXT PRIMARY KEY NOT NULL,
		size INTEGER NOT NULL
	)`

const rulesTable = `
	CREATE TABLE IF NOT EXISTS rules (
		id TEXT PRIMARY KEY NOT NULL,
		name TEXT NOT NULL,
		signature TEXT NOT NULL,
		structural_id TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		categories TEXT NOT NULL DEFAULT ''
	)`

const matchesTable = `
	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		blob_id TEXT NOT NULL REFERENCES blobs(id),
		rule_id TEXT NOT NULL,
		rule_name TEXT NOT NULL DEFAULT '',
		structural_id TEXT NOT NULL UNIQUE,
		offset_start INTEGER NOT NULL,
		offset_end INTEGER NOT NULL,
		snippet_before BLOB,
		snippet_matching BLOB,
		snippet_after BLOB,
		finding_id TEXT
	)`

const findingsTable = `
	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		structural_id TEXT NOT NULL UNIQUE,
		rule_id TEXT NOT NULL,
		matching BLOB
	)`

// Text columns default to '' rather than NULL so the UNIQUE constraint
// deduplicates repeated provenance.
const provenanceTable = `
	CREATE TABLE IF NOT EXISTS provenance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		blob_id TEXT NOT NULL REFERENCES blobs(id),
		type TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		container TEXT NOT NULL DEFAULT '',
		commit_hash TEXT NOT NULL DEFAULT '',
		author_name TEXT NOT NULL DEFAULT '',
		author_email TEXT NOT NULL DEFAULT '',
		author_time INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		UNIQUE(blob_id, type, path, container, commit_hash)
	)`

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_provenance_blob_id ON provenance(blob_id)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_blob_id ON matches(blob_id)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_finding_id ON matches(finding_id)`,
}
