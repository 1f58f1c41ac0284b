package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/praetorian-inc/sigscan/pkg/types"
	_ "modernc.org/sqlite"
)

// driverName is the database/sql driver registered by modernc.org/sqlite.
const driverName = "sqlite"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-based store.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serializes writers from parallel scan workers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring database: %w", err)
	}
	return db, nil
}

// AddBlob stores a blob record.
func (s *SQLiteStore) AddBlob(id types.BlobID, size int64) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO blobs (id, size) VALUES (?, ?)", id.Hex(), size)
	if err != nil {
		return fmt.Errorf("inserting blob: %w", err)
	}
	return nil
}

// AddRule stores a rule, replacing an older definition with the same ID.
func (s *SQLiteStore) AddRule(r *types.Rule) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO rules (id, name, signature, structural_id, description, categories)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Name,
		r.Signature,
		r.StructuralID,
		r.Description,
		strings.Join(r.Categories, ","),
	)
	if err != nil {
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

// AddMatch stores a match record.
func (s *SQLiteStore) AddMatch(m *types.Match) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO matches
		(blob_id, rule_id, rule_name, structural_id, offset_start, offset_end,
		 snippet_before, snippet_matching, snippet_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.BlobID.Hex(),
		m.RuleID,
		m.RuleName,
		m.StructuralID,
		m.Location.Offset.Start,
		m.Location.Offset.End,
		m.Snippet.Before,
		m.Snippet.Matching,
		m.Snippet.After,
	)
	if err != nil {
		return fmt.Errorf("inserting match: %w", err)
	}
	return nil
}

// AddFinding stores a finding (deduplicated) and links its matches to it.
func (s *SQLiteStore) AddFinding(f *types.Finding) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR IGNORE INTO findings (structural_id, rule_id, matching)
		VALUES (?, ?, ?)
	`, f.ID, f.RuleID, f.Matching)
	if err != nil {
		return fmt.Errorf("inserting finding: %w", err)
	}

	for _, m := range f.Matches {
		if _, err := tx.Exec("UPDATE matches SET finding_id = ? WHERE structural_id = ?", f.ID, m.StructuralID); err != nil {
			return fmt.Errorf("linking match to finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing finding: %w", err)
	}
	return nil
}

// AddProvenance associates provenance with a blob.
func (s *SQLiteStore) AddProvenance(blobID types.BlobID, prov types.Provenance) error {
	var (
		path, container, commitHash      string
		authorName, authorEmail, message string
		authorTime                       int64
	)

	switch p := prov.(type) {
	case types.FileProvenance:
		path = p.FilePath
	case types.ArchiveProvenance:
		path = p.MemberPath
		container = p.ArchivePath
	case types.GitProvenance:
		path = p.BlobPath
		container = p.RepoPath
		if p.Commit != nil {
			commitHash = p.Commit.CommitID
			authorName = p.Commit.AuthorName
			authorEmail = p.Commit.AuthorEmail
			authorTime = p.Commit.AuthorTimestamp.Unix()
			message = p.Commit.Message
		}
	default:
		return fmt.Errorf("unknown provenance type: %T", prov)
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO provenance
		(blob_id, type, path, container, commit_hash, author_name, author_email, author_time, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		blobID.Hex(),
		prov.Kind(),
		path,
		container,
		commitHash,
		authorName,
		authorEmail,
		authorTime,
		message,
	)
	if err != nil {
		return fmt.Errorf("inserting provenance: %w", err)
	}
	return nil
}

const matchColumns = `blob_id, rule_id, rule_name, structural_id, offset_start, offset_end,
	snippet_before, snippet_matching, snippet_after`

// GetMatches retrieves matches for a blob.
func (s *SQLiteStore) GetMatches(blobID types.BlobID) ([]*types.Match, error) {
	return s.queryMatches("SELECT "+matchColumns+" FROM matches WHERE blob_id = ? ORDER BY offset_start, rule_id", blobID.Hex())
}

// GetAllMatches retrieves all matches (for JSON export).
func (s *SQLiteStore) GetAllMatches() ([]*types.Match, error) {
	return s.queryMatches("SELECT " + matchColumns + " FROM matches ORDER BY id")
}

func (s *SQLiteStore) queryMatches(query string, args ...any) ([]*types.Match, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*types.Match, 0)
	for rows.Next() {
		var m types.Match
		var blobIDHex string

		err := rows.Scan(
			&blobIDHex,
			&m.RuleID,
			&m.RuleName,
			&m.StructuralID,
			&m.Location.Offset.Start,
			&m.Location.Offset.End,
			&m.Snippet.Before,
			&m.Snippet.Matching,
			&m.Snippet.After,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}

		m.BlobID, err = types.ParseBlobID(blobIDHex)
		if err != nil {
			return nil, fmt.Errorf("parsing blob ID: %w", err)
		}

		matches = append(matches, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}

	return matches, nil
}

// GetFindings retrieves all findings with their linked matches.
func (s *SQLiteStore) GetFindings() ([]*types.Finding, error) {
	rows, err := s.db.Query(`
		SELECT structural_id, rule_id, matching
		FROM findings
		ORDER BY rule_id, structural_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying findings: %w", err)
	}

	findings := make([]*types.Finding, 0)
	for rows.Next() {
		var f types.Finding
		if err := rows.Scan(&f.ID, &f.RuleID, &f.Matching); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning finding: %w", err)
		}
		findings = append(findings, &f)
	}
	// Close before issuing nested queries on the single connection.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating findings: %w", err)
	}

	for _, f := range findings {
		f.Matches, err = s.queryMatches("SELECT "+matchColumns+" FROM matches WHERE finding_id = ? ORDER BY id", f.ID)
		if err != nil {
			return nil, err
		}
	}

	return findings, nil
}

// GetRules retrieves all stored rules ordered by ID.
func (s *SQLiteStore) GetRules() ([]*types.Rule, error) {
	rows, err := s.db.Query(`
		SELECT id, name, signature, structural_id, description, categories
		FROM rules
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*types.Rule, 0)
	for rows.Next() {
		var r types.Rule
		var categories string
		if err := rows.Scan(&r.ID, &r.Name, &r.Signature, &r.StructuralID, &r.Description, &categories); err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		if categories != "" {
			r.Categories = strings.Split(categories, ",")
		}
		rules = append(rules, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return rules, nil
}

// GetProvenance retrieves every provenance record for a blob.
func (s *SQLiteStore) GetProvenance(blobID types.BlobID) ([]types.Provenance, error) {
	rows, err := s.db.Query(`
		SELECT type, path, container, commit_hash, author_name, author_email, author_time, message
		FROM provenance
		WHERE blob_id = ?
		ORDER BY id
	`, blobID.Hex())
	if err != nil {
		return nil, fmt.Errorf("querying provenance: %w", err)
	}
	defer rows.Close()

	provs := make([]types.Provenance, 0)
	for rows.Next() {
		var (
			kind, path, container, commitHash string
			authorName, authorEmail, message  string
			authorTime                        int64
		)
		if err := rows.Scan(&kind, &path, &container, &commitHash, &authorName, &authorEmail, &authorTime, &message); err != nil {
			return nil, fmt.Errorf("scanning provenance: %w", err)
		}

		switch kind {
		case "file":
			provs = append(provs, types.FileProvenance{FilePath: path})
		case "archive":
			provs = append(provs, types.ArchiveProvenance{ArchivePath: container, MemberPath: path})
		case "git":
			gp := types.GitProvenance{RepoPath: container, BlobPath: path}
			if commitHash != "" {
				gp.Commit = &types.CommitMetadata{
					CommitID:        commitHash,
					AuthorName:      authorName,
					AuthorEmail:     authorEmail,
					AuthorTimestamp: time.Unix(authorTime, 0).UTC(),
					Message:         message,
				}
			}
			provs = append(provs, gp)
		default:
			return nil, fmt.Errorf("unknown provenance type in database: %s", kind)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provenance: %w", err)
	}
	return provs, nil
}

// FindingExists checks if a finding with this structural ID exists.
func (s *SQLiteStore) FindingExists(structuralID string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM findings WHERE structural_id = ?", structuralID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking finding existence: %w", err)
	}
	return count > 0, nil
}

// BlobExists checks if a blob has already been scanned.
func (s *SQLiteStore) BlobExists(id types.BlobID) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM blobs WHERE id = ?", id.Hex()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking blob existence: %w", err)
	}
	return count > 0, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
