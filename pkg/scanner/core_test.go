package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/praetorian-inc/sigscan/pkg/enum"
	"github.com/praetorian-inc/sigscan/pkg/matcher"
	"github.com/praetorian-inc/sigscan/pkg/store"
	"github.com/praetorian-inc/sigscan/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blob struct {
	content []byte
	path    string
}

// sliceEnumerator yields fixed blobs in order.
type sliceEnumerator []blob

func (s sliceEnumerator) Enumerate(ctx context.Context, callback func(content []byte, blobID types.BlobID, prov types.Provenance) error) error {
	for _, b := range s {
		if err := callback(b.content, types.ComputeBlobID(b.content), types.FileProvenance{FilePath: b.path}); err != nil {
			return err
		}
	}
	return nil
}

// failingStore rejects every blob.
type failingStore struct {
	store.Store
}

func (failingStore) AddBlob(types.BlobID, int64) error {
	return errors.New("disk full")
}

func testRules() []*types.Rule {
	return []*types.Rule{
		{ID: "test.elf", Name: "ELF header", Signature: "7F 45 4C 46"},
		{ID: "test.wild", Name: "Wildcard", Signature: "AA ?? CC"},
	}
}

func newTestCore(t *testing.T, s store.Store, incremental bool) *Core {
	t.Helper()
	rules := testRules()
	m, err := matcher.New(matcher.Config{Rules: rules, ContextBytes: 2})
	require.NoError(t, err)

	core, err := NewCore(Config{Rules: rules, Matcher: m, Store: s, Incremental: incremental})
	require.NoError(t, err)
	return core
}

func TestNewCore_Validation(t *testing.T) {
	m, err := matcher.New(matcher.Config{Rules: testRules()})
	require.NoError(t, err)

	_, err = NewCore(Config{Store: store.NewMemory()})
	assert.ErrorContains(t, err, "matcher is required")

	_, err = NewCore(Config{Matcher: m})
	assert.ErrorContains(t, err, "store is required")
}

func TestNewCore_StoresRules(t *testing.T) {
	s := store.NewMemory()
	newTestCore(t, s, false)

	rules, err := s.GetRules()
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "test.elf", rules[0].ID)
}

func TestRun_GroupsFindingsAcrossBlobs(t *testing.T) {
	s := store.NewMemory()
	core := newTestCore(t, s, false)

	e := sliceEnumerator{
		{content: []byte("\x7fELF\x02\x01"), path: "a.bin"},
		{content: []byte("junk\x7fELF\x01"), path: "b.bin"},
	}

	stats, err := core.Run(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Blobs)
	assert.Equal(t, int64(2), stats.Matches)
	assert.Equal(t, int64(1), stats.NewFindings)
	assert.Equal(t, int64(0), stats.Skipped)
	assert.Equal(t, int64(15), stats.Bytes)

	findings, err := s.GetFindings()
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "test.elf", findings[0].RuleID)
	assert.Equal(t, []byte("\x7fELF"), findings[0].Matching)
	assert.Len(t, findings[0].Matches, 2)
}

func TestRun_RuleStats(t *testing.T) {
	core := newTestCore(t, store.NewMemory(), false)

	e := sliceEnumerator{
		{content: []byte("\x7fELF\x02\x01"), path: "a.bin"},
		{content: []byte("junk\x7fELF\x01"), path: "b.bin"},
		{content: []byte("plain"), path: "c.txt"},
	}

	stats, err := core.Run(context.Background(), e)
	require.NoError(t, err)

	// test.wild has no anchor long enough to prefilter, so it runs on every blob
	assert.Equal(t, int64(5), stats.RuleScans)
	assert.Equal(t, int64(1), stats.RulesFiltered)
	assert.Equal(t, int64(0), stats.RulesTruncated)

	require.Contains(t, stats.Rules, "test.elf")
	assert.Equal(t, int64(2), stats.Rules["test.elf"].Blobs)
	assert.Equal(t, int64(2), stats.Rules["test.elf"].Matches)
	require.Contains(t, stats.Rules, "test.wild")
	assert.Equal(t, int64(3), stats.Rules["test.wild"].Blobs)
	assert.Equal(t, int64(0), stats.Rules["test.wild"].Matches)
}

func TestRun_RuleStatsTruncated(t *testing.T) {
	rules := testRules()
	m, err := matcher.New(matcher.Config{Rules: rules, MaxMatchesPerBlob: 1})
	require.NoError(t, err)
	core, err := NewCore(Config{Rules: rules, Matcher: m, Store: store.NewMemory()})
	require.NoError(t, err)

	stats, err := core.Run(context.Background(), sliceEnumerator{
		{content: []byte("\x7fELF\x7fELF"), path: "twice.bin"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Matches)
	assert.Equal(t, int64(1), stats.RulesTruncated)
	assert.Equal(t, int64(1), stats.Rules["test.elf"].Truncated)
}

func TestScanBlob_WildcardBytesSplitFindings(t *testing.T) {
	core := newTestCore(t, store.NewMemory(), false)

	content := []byte{0xAA, 0x01, 0xCC, 0xAA, 0x02, 0xCC, 0xAA, 0x01, 0xCC}
	res, err := core.ScanBlob(content, types.ComputeBlobID(content), nil)
	require.NoError(t, err)

	require.Len(t, res.Matches, 3)
	require.Len(t, res.Findings, 2)
	assert.Equal(t, 2, res.NewFindings)
	assert.Len(t, res.Findings[0].Matches, 2)
	assert.Equal(t, []byte{0xAA, 0x01, 0xCC}, res.Findings[0].Matching)
	assert.Equal(t, []byte{0xAA, 0x02, 0xCC}, res.Findings[1].Matching)
	assert.Equal(t, "blob:"+res.BlobID.Hex(), res.Source)
}

func TestRun_Incremental(t *testing.T) {
	s := store.NewMemory()
	content := []byte("prefix\x7fELF")

	first := newTestCore(t, s, true)
	stats, err := first.Run(context.Background(), sliceEnumerator{{content: content, path: "one"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.NewFindings)

	second := newTestCore(t, s, true)
	stats, err = second.Run(context.Background(), sliceEnumerator{{content: content, path: "two"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Blobs)
	assert.Equal(t, int64(1), stats.Skipped)
	assert.Equal(t, int64(0), stats.Matches)
	assert.Equal(t, int64(0), stats.NewFindings)

	provs, err := s.GetProvenance(types.ComputeBlobID(content))
	require.NoError(t, err)
	assert.Len(t, provs, 2, "known blob still records its new location")
}

func TestRun_NonIncrementalRescans(t *testing.T) {
	s := store.NewMemory()
	content := []byte("\x7fELF")

	for range 2 {
		core := newTestCore(t, s, false)
		stats, err := core.Run(context.Background(), sliceEnumerator{{content: content, path: "x"}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Matches)
	}

	matches, err := s.GetAllMatches()
	require.NoError(t, err)
	assert.Len(t, matches, 1, "matches are unique by structural ID")
}

func TestRun_StoreErrorStops(t *testing.T) {
	core := newTestCore(t, failingStore{Store: store.NewMemory()}, false)

	_, err := core.Run(context.Background(), sliceEnumerator{{content: []byte("x"), path: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRun_FilesystemEnumerator(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.so"), []byte("\x7fELF\x02"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("nothing here"), 0o644))

	s, err := store.New(store.Config{Path: filepath.Join(t.TempDir(), "results.db")})
	require.NoError(t, err)
	core := newTestCore(t, s, false)
	defer core.Close()

	stats, err := core.Run(context.Background(), enum.NewFilesystemEnumerator(enum.Config{Root: dir}))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Blobs)
	assert.Equal(t, int64(1), stats.Matches)

	provs, err := s.GetProvenance(types.ComputeBlobID([]byte("\x7fELF\x02")))
	require.NoError(t, err)
	require.Len(t, provs, 1)
	assert.Equal(t, filepath.Join(dir, "a.so"), provs[0].Path())
}

func TestScanBlob_SavesMatchedBlobs(t *testing.T) {
	rules := testRules()
	m, err := matcher.New(matcher.Config{Rules: rules})
	require.NoError(t, err)
	blobs, err := store.NewBlobStore(t.TempDir())
	require.NoError(t, err)

	core, err := NewCore(Config{Rules: rules, Matcher: m, Store: store.NewMemory(), Blobs: blobs})
	require.NoError(t, err)

	matched := []byte("\x7fELF")
	plain := []byte("plain")
	_, err = core.ScanBlob(matched, types.ComputeBlobID(matched), nil)
	require.NoError(t, err)
	_, err = core.ScanBlob(plain, types.ComputeBlobID(plain), nil)
	require.NoError(t, err)

	assert.True(t, blobs.Exists(types.ComputeBlobID(matched)))
	assert.False(t, blobs.Exists(types.ComputeBlobID(plain)))
}

func TestGetBuiltinRules_Cached(t *testing.T) {
	a, err := GetBuiltinRules()
	require.NoError(t, err)
	require.NotEmpty(t, a)

	b, err := GetBuiltinRules()
	require.NoError(t, err)
	assert.Same(t, a[0], b[0])
}
