package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/praetorian-inc/sigscan/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func testMatch(content []byte, ruleID string, start, end int64) *types.Match {
	m := &types.Match{
		BlobID:   types.ComputeBlobID(content),
		RuleID:   ruleID,
		RuleName: ruleID + " name",
		Location: types.Location{Offset: types.OffsetSpan{Start: start, End: end}},
		Snippet:  types.NewSnippet(content, int(start), int(end), 1),
	}
	m.StructuralID = m.ComputeStructuralID("sid-" + ruleID)
	return m
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	s, err := New(Config{Path: MemoryPath})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(Config{Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())
}

func TestStore_Blobs(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			id := types.ComputeBlobID([]byte{1, 2, 3})

			exists, err := s.BlobExists(id)
			require.NoError(t, err)
			assert.False(t, exists)

			require.NoError(t, s.AddBlob(id, 3))
			require.NoError(t, s.AddBlob(id, 3))

			exists, err = s.BlobExists(id)
			require.NoError(t, err)
			assert.True(t, exists)
		})
	}
}

func TestStore_Matches(t *testing.T) {
	content := []byte{0x00, 0x7F, 'E', 'L', 'F', 0x02, 0x4D, 0x5A}
	other := []byte("other")

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			elf := testMatch(content, "exe.elf.1", 1, 5)
			pe := testMatch(content, "exe.pe.1", 6, 8)
			foreign := testMatch(other, "exe.pe.1", 0, 2)

			require.NoError(t, s.AddBlob(elf.BlobID, int64(len(content))))
			require.NoError(t, s.AddMatch(pe))
			require.NoError(t, s.AddMatch(elf))
			require.NoError(t, s.AddMatch(elf))
			require.NoError(t, s.AddMatch(foreign))

			got, err := s.GetMatches(elf.BlobID)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "exe.elf.1", got[0].RuleID)
			assert.Equal(t, "exe.elf.1 name", got[0].RuleName)
			assert.Equal(t, types.OffsetSpan{Start: 1, End: 5}, got[0].Location.Offset)
			assert.Equal(t, []byte{0x7F, 'E', 'L', 'F'}, got[0].Snippet.Matching)
			assert.Equal(t, []byte{0x00}, got[0].Snippet.Before)
			assert.Equal(t, []byte{0x02}, got[0].Snippet.After)
			assert.Equal(t, elf.StructuralID, got[0].StructuralID)
			assert.Equal(t, elf.BlobID, got[0].BlobID)

			all, err := s.GetAllMatches()
			require.NoError(t, err)
			assert.Len(t, all, 3)

			none, err := s.GetMatches(types.BlobID{})
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStore_Findings(t *testing.T) {
	a := []byte{0xCA, 0xFE, 0x01}
	b := []byte{0xCA, 0xFE, 0x02}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m1 := testMatch(a, "cafe", 0, 2)
			m2 := testMatch(b, "cafe", 0, 2)
			for _, m := range []*types.Match{m1, m2} {
				require.NoError(t, s.AddMatch(m))
			}

			id := types.ComputeFindingID("sid-cafe", []byte{0xCA, 0xFE})
			exists, err := s.FindingExists(id)
			require.NoError(t, err)
			assert.False(t, exists)

			require.NoError(t, s.AddFinding(&types.Finding{ID: id, RuleID: "cafe", Matching: []byte{0xCA, 0xFE}, Matches: []*types.Match{m1}}))
			// A later scan adds another occurrence of the same finding.
			require.NoError(t, s.AddFinding(&types.Finding{ID: id, RuleID: "cafe", Matching: []byte{0xCA, 0xFE}, Matches: []*types.Match{m2}}))
			require.NoError(t, s.AddFinding(&types.Finding{ID: "zzz", RuleID: "aaa", Matching: []byte{0x01}}))

			exists, err = s.FindingExists(id)
			require.NoError(t, err)
			assert.True(t, exists)

			findings, err := s.GetFindings()
			require.NoError(t, err)
			require.Len(t, findings, 2)
			assert.Equal(t, "aaa", findings[0].RuleID)
			assert.Empty(t, findings[0].Matches)

			cafe := findings[1]
			assert.Equal(t, id, cafe.ID)
			assert.Equal(t, []byte{0xCA, 0xFE}, cafe.Matching)
			require.Len(t, cafe.Matches, 2)
			assert.Equal(t, m1.StructuralID, cafe.Matches[0].StructuralID)
			assert.Equal(t, m2.StructuralID, cafe.Matches[1].StructuralID)
		})
	}
}

func TestStore_Rules(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r := &types.Rule{ID: "b.1", Name: "B", Signature: "11 ?? 22", Description: "desc", Categories: []string{"x", "y"}}
			r.StructuralID = r.ComputeStructuralID()
			require.NoError(t, s.AddRule(r))
			require.NoError(t, s.AddRule(&types.Rule{ID: "a.1", Name: "A", Signature: "33"}))

			rules, err := s.GetRules()
			require.NoError(t, err)
			require.Len(t, rules, 2)
			assert.Equal(t, "a.1", rules[0].ID)
			assert.Equal(t, r.Signature, rules[1].Signature)
			assert.Equal(t, r.StructuralID, rules[1].StructuralID)
			assert.Equal(t, []string{"x", "y"}, rules[1].Categories)
		})
	}
}

func TestStore_Provenance(t *testing.T) {
	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			id := types.ComputeBlobID([]byte("blob"))
			provs := []types.Provenance{
				types.FileProvenance{FilePath: "/bin/ls"},
				types.ArchiveProvenance{ArchivePath: "/tmp/a.zip", MemberPath: "bin/ls"},
				types.GitProvenance{
					RepoPath: "/repo",
					BlobPath: "bin/ls",
					Commit: &types.CommitMetadata{
						CommitID:        "0123456789abcdef0123456789abcdef01234567",
						AuthorName:      "Dev",
						AuthorEmail:     "dev@example.com",
						AuthorTimestamp: when,
						Message:         "add ls",
					},
				},
			}
			for _, p := range provs {
				require.NoError(t, s.AddProvenance(id, p))
			}
			// Duplicates are ignored.
			require.NoError(t, s.AddProvenance(id, types.FileProvenance{FilePath: "/bin/ls"}))

			got, err := s.GetProvenance(id)
			require.NoError(t, err)
			assert.Equal(t, provs, got)

			empty, err := s.GetProvenance(types.BlobID{})
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestSQLiteStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	id := types.ComputeBlobID([]byte("x"))
	require.NoError(t, s.AddBlob(id, 1))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	exists, err := s.BlobExists(id)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLiteStore_SchemaVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	_, err = s.db.Exec("UPDATE schema_version SET version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = NewSQLite(path)
	assert.ErrorContains(t, err, "unsupported schema version 99")
}
