package store

import (
	"fmt"

	"github.com/praetorian-inc/sigscan/pkg/types"
)

// MemoryPath selects the in-memory backend.
const MemoryPath = ":memory:"

// Store provides persistence for scan results.
// This interface abstracts the underlying storage implementation,
// allowing for different backends (SQLite, memory).
// Implementations are safe for concurrent use.
type Store interface {
	// AddBlob stores a blob record.
	AddBlob(id types.BlobID, size int64) error

	// AddRule stores a rule so reports can describe it later.
	AddRule(r *types.Rule) error

	// AddMatch stores a match record. Matches are unique by structural ID.
	AddMatch(m *types.Match) error

	// AddFinding stores a finding (deduplicated) and links its matches.
	AddFinding(f *types.Finding) error

	// AddProvenance associates provenance with a blob.
	AddProvenance(blobID types.BlobID, prov types.Provenance) error

	// GetMatches retrieves matches for a blob.
	GetMatches(blobID types.BlobID) ([]*types.Match, error)

	// GetAllMatches retrieves all matches (for JSON export).
	GetAllMatches() ([]*types.Match, error)

	// GetFindings retrieves all findings with their matches, ordered by
	// rule ID then finding ID.
	GetFindings() ([]*types.Finding, error)

	// GetRules retrieves all stored rules ordered by ID.
	GetRules() ([]*types.Rule, error)

	// GetProvenance retrieves every provenance record for a blob.
	GetProvenance(blobID types.BlobID) ([]types.Provenance, error)

	// FindingExists checks if a finding with this structural ID exists.
	FindingExists(structuralID string) (bool, error)

	// BlobExists checks if a blob has already been scanned.
	BlobExists(id types.BlobID) (bool, error)

	// Close closes the database connection.
	Close() error
}

// Config for store initialization.
type Config struct {
	// Path is the database file path.
	// Use ":memory:" for the in-memory store (useful for testing).
	Path string
}

// New creates a new Store: MemoryStore for ":memory:", SQLite otherwise.
func New(cfg Config) (Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	if cfg.Path == MemoryPath {
		return NewMemory(), nil
	}

	return NewSQLite(cfg.Path)
}
