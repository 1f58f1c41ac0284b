package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// MergeConfig configures the merge operation.
type MergeConfig struct {
	// SourcePaths are the database files to merge from.
	SourcePaths []string
	// DestPath is the destination database file.
	DestPath string
}

// MergeStats tracks merge operation statistics.
type MergeStats struct {
	BlobsMerged      int
	RulesMerged      int
	MatchesMerged    int
	FindingsMerged   int
	ProvenanceMerged int
	SourcesProcessed int
}

// Merge combines multiple result databases into one.
// Deduplication is handled via INSERT OR IGNORE on unique keys.
func Merge(cfg MergeConfig) (*MergeStats, error) {
	if len(cfg.SourcePaths) == 0 {
		return nil, fmt.Errorf("no source databases specified")
	}
	if cfg.DestPath == "" {
		return nil, fmt.Errorf("destination path is required")
	}

	destDB, err := openSQLite(cfg.DestPath)
	if err != nil {
		return nil, err
	}
	defer destDB.Close()

	if err := CreateSchema(destDB); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	stats := &MergeStats{}
	for _, sourcePath := range cfg.SourcePaths {
		sourceStats, err := mergeFrom(destDB, sourcePath)
		if err != nil {
			return stats, fmt.Errorf("merging from %s: %w", sourcePath, err)
		}
		stats.BlobsMerged += sourceStats.BlobsMerged
		stats.RulesMerged += sourceStats.RulesMerged
		stats.MatchesMerged += sourceStats.MatchesMerged
		stats.FindingsMerged += sourceStats.FindingsMerged
		stats.ProvenanceMerged += sourceStats.ProvenanceMerged
		stats.SourcesProcessed++
	}

	return stats, nil
}

// mergeTable describes how one table is copied between databases.
type mergeTable struct {
	name    string
	columns string
	count   func(*MergeStats) *int
}

var mergeTables = []mergeTable{
	{"blobs", "id, size", func(s *MergeStats) *int { return &s.BlobsMerged }},
	{"rules", "id, name, signature, structural_id, description, categories", func(s *MergeStats) *int { return &s.RulesMerged }},
	{"matches", "blob_id, rule_id, rule_name, structural_id, offset_start, offset_end, snippet_before, snippet_matching, snippet_after, finding_id", func(s *MergeStats) *int { return &s.MatchesMerged }},
	{"findings", "structural_id, rule_id, matching", func(s *MergeStats) *int { return &s.FindingsMerged }},
	{"provenance", "blob_id, type, path, container, commit_hash, author_name, author_email, author_time, message", func(s *MergeStats) *int { return &s.ProvenanceMerged }},
}

// mergeFrom copies data from a source database to the destination in one
// transaction.
func mergeFrom(destDB *sql.DB, sourcePath string) (*MergeStats, error) {
	// Sources are read with a separate handle; its schema must match ours.
	sourceDB, err := openSQLite(sourcePath)
	if err != nil {
		return nil, err
	}
	defer sourceDB.Close()

	var version int
	if err := sourceDB.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	if version != SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d (expected %d)", version, SchemaVersion)
	}

	tx, err := destDB.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stats := &MergeStats{}
	for _, t := range mergeTables {
		n, err := copyRows(tx, sourceDB, t)
		if err != nil {
			return nil, fmt.Errorf("merging %s: %w", t.name, err)
		}
		*t.count(stats) = n
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return stats, nil
}

// copyRows streams every row of t from src into tx and returns the number
// of rows actually inserted.
func copyRows(tx *sql.Tx, src *sql.DB, t mergeTable) (int, error) {
	rows, err := src.Query(fmt.Sprintf("SELECT %s FROM %s", t.columns, t.name))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}

	placeholders := "?" + strings.Repeat(", ?", len(cols)-1)
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)", t.name, t.columns, placeholders))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return count, err
		}
		result, err := stmt.Exec(values...)
		if err != nil {
			return count, err
		}
		affected, _ := result.RowsAffected()
		if affected > 0 {
			count++
		}
	}
	return count, rows.Err()
}
