package store

import (
	"cmp"
	"slices"
	"sync"

	"github.com/praetorian-inc/sigscan/pkg/types"
)

// MemoryStore implements Store using in-memory data structures.
// Results are lost on Close; use it for tests, library use and one-shot
// scans that only print a report.
type MemoryStore struct {
	mu         sync.RWMutex
	blobs      map[types.BlobID]int64
	rules      map[string]*types.Rule
	matches    []*types.Match
	matchIDs   map[string]bool           // structural IDs in matches
	findings   map[string]*types.Finding // keyed by finding ID
	provenance map[types.BlobID][]types.Provenance
}

// NewMemory creates a new in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		blobs:      make(map[types.BlobID]int64),
		rules:      make(map[string]*types.Rule),
		matches:    make([]*types.Match, 0),
		matchIDs:   make(map[string]bool),
		findings:   make(map[string]*types.Finding),
		provenance: make(map[types.BlobID][]types.Provenance),
	}
}

// AddBlob stores a blob record. Adding a known blob is a no-op.
func (m *MemoryStore) AddBlob(id types.BlobID, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.blobs[id]; !exists {
		m.blobs[id] = size
	}
	return nil
}

// AddRule stores a rule, replacing an older definition with the same ID.
func (m *MemoryStore) AddRule(r *types.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rules[r.ID] = r
	return nil
}

// AddMatch stores a match record.
func (m *MemoryStore) AddMatch(match *types.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.matchIDs[match.StructuralID] {
		return nil
	}
	m.matchIDs[match.StructuralID] = true
	m.matches = append(m.matches, match)
	return nil
}

// AddFinding stores a finding. A finding seen before gains any matches it
// did not already hold.
func (m *MemoryStore) AddFinding(f *types.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.findings[f.ID]
	if !ok {
		stored := *f
		stored.Matches = slices.Clone(f.Matches)
		m.findings[f.ID] = &stored
		return nil
	}

	for _, match := range f.Matches {
		dup := slices.ContainsFunc(existing.Matches, func(e *types.Match) bool {
			return e.StructuralID == match.StructuralID
		})
		if !dup {
			existing.Matches = append(existing.Matches, match)
		}
	}
	return nil
}

// AddProvenance associates provenance with a blob.
func (m *MemoryStore) AddProvenance(blobID types.BlobID, prov types.Provenance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.provenance[blobID] {
		if sameProvenance(p, prov) {
			return nil
		}
	}
	m.provenance[blobID] = append(m.provenance[blobID], prov)
	return nil
}

// sameProvenance compares provenance by kind, path and, for git, commit.
func sameProvenance(a, b types.Provenance) bool {
	if a.Kind() != b.Kind() || a.Path() != b.Path() {
		return false
	}
	switch pa := a.(type) {
	case types.ArchiveProvenance:
		return pa.ArchivePath == b.(types.ArchiveProvenance).ArchivePath
	case types.GitProvenance:
		pb := b.(types.GitProvenance)
		if pa.RepoPath != pb.RepoPath {
			return false
		}
		if pa.Commit == nil || pb.Commit == nil {
			return pa.Commit == pb.Commit
		}
		return pa.Commit.CommitID == pb.Commit.CommitID
	}
	return true
}

// GetProvenance retrieves every provenance record for a blob.
func (m *MemoryStore) GetProvenance(blobID types.BlobID) ([]types.Provenance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.provenance[blobID]), nil
}

// GetMatches retrieves matches for a blob.
func (m *MemoryStore) GetMatches(blobID types.BlobID) ([]*types.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*types.Match, 0)
	for _, match := range m.matches {
		if match.BlobID == blobID {
			result = append(result, match)
		}
	}
	slices.SortStableFunc(result, func(a, b *types.Match) int {
		if c := cmp.Compare(a.Location.Offset.Start, b.Location.Offset.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.RuleID, b.RuleID)
	})
	return result, nil
}

// GetAllMatches retrieves all matches in insertion order.
func (m *MemoryStore) GetAllMatches() ([]*types.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.matches), nil
}

// GetFindings retrieves all findings ordered by rule ID then finding ID.
func (m *MemoryStore) GetFindings() ([]*types.Finding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*types.Finding, 0, len(m.findings))
	for _, f := range m.findings {
		copied := *f
		copied.Matches = slices.Clone(f.Matches)
		result = append(result, &copied)
	}
	slices.SortFunc(result, func(a, b *types.Finding) int {
		if c := cmp.Compare(a.RuleID, b.RuleID); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

// GetRules retrieves all stored rules ordered by ID.
func (m *MemoryStore) GetRules() ([]*types.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*types.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		result = append(result, r)
	}
	slices.SortFunc(result, func(a, b *types.Rule) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

// FindingExists checks if a finding with this structural ID exists.
func (m *MemoryStore) FindingExists(structuralID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.findings[structuralID]
	return exists, nil
}

// BlobExists checks if a blob has already been scanned.
func (m *MemoryStore) BlobExists(id types.BlobID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.blobs[id]
	return exists, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
